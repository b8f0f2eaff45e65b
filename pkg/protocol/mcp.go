package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// ProtocolRevision is the protocol version announced during the handshake.
	ProtocolRevision = "2025-03-26"

	// Methods for lifecycle management
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"

	// Methods for server features
	MethodListTools             = "tools/list"
	MethodCallTool              = "tools/call"
	MethodListPrompts           = "prompts/list"
	MethodGetPrompt             = "prompts/get"
	MethodListResources         = "resources/list"
	MethodListResourceTemplates = "resources/templates/list"
	MethodReadResource          = "resources/read"
)

// CapabilityType defines the types of capabilities in MCP
type CapabilityType string

const (
	// CapabilityTools indicates the server supports tools
	CapabilityTools CapabilityType = "tools"

	// CapabilityResources indicates the server supports resources
	CapabilityResources CapabilityType = "resources"

	// CapabilityPrompts indicates the server supports prompts
	CapabilityPrompts CapabilityType = "prompts"

	// CapabilityPagination indicates list methods honour cursors
	CapabilityPagination CapabilityType = "pagination"
)

// ErrMalformed is wrapped by every decoding or validation failure of a
// counterpart message.
var ErrMalformed = errors.New("malformed message")

// Implementation names one side of the connection.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams defines the parameters for the initialize request
type InitializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    map[string]bool `json:"capabilities"`
	ClientInfo      Implementation  `json:"clientInfo"`
}

// InitializeResult defines the response for the initialize request
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    map[string]bool `json:"capabilities"`
	ServerInfo      Implementation  `json:"serverInfo"`
	Instructions    string          `json:"instructions,omitempty"`
}

// Validate checks the handshake answer before the session trusts it.
func (r *InitializeResult) Validate() error {
	if r.ProtocolVersion == "" {
		return wrapMalformed("initialize result has no protocolVersion")
	}
	if r.ServerInfo.Name == "" {
		return wrapMalformed("initialize result has no serverInfo.name")
	}
	return nil
}

// HasCapability reports whether the counterpart declared capability c.
func (r *InitializeResult) HasCapability(c CapabilityType) bool {
	return r.Capabilities[string(c)]
}

// PingParams defines parameters for the ping request
type PingParams struct {
	// Optional timestamp from sender
	Timestamp int64 `json:"timestamp,omitempty"`
}

// PingResult is the response for ping
type PingResult struct {
	Timestamp int64 `json:"timestamp"`
}

// Validate accepts any ping answer; an empty object is a valid pong.
func (r *PingResult) Validate() error { return nil }

// PaginatedParams carries the optional cursor accepted by every list method.
type PaginatedParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// PaginatedResult carries the cursor of the next page, empty on the last one.
type PaginatedResult struct {
	NextCursor string `json:"nextCursor,omitempty"`
}

// Validator is implemented by result types that can check their own shape.
type Validator interface {
	Validate() error
}

// DecodeResult unmarshals a response result into v and validates its shape.
func DecodeResult(raw json.RawMessage, v Validator) error {
	if len(raw) == 0 {
		return wrapMalformed("empty result")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		if errors.Is(err, ErrMalformed) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v.Validate()
}
