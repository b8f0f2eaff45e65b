package protocol

import (
	"encoding/json"
	"fmt"
)

// Tool represents a tool in the MCP protocol
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsParams defines parameters for listing tools
type ListToolsParams struct {
	PaginatedParams
}

// ListToolsResult defines the response for listing tools
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
	PaginatedResult
}

// Validate implements Validator.
func (r *ListToolsResult) Validate() error {
	if r.Tools == nil {
		return wrapMalformed("tools/list result has no tools array")
	}
	for i, t := range r.Tools {
		if t.Name == "" {
			return fmt.Errorf("%w: tool %d has no name", ErrMalformed, i)
		}
	}
	return nil
}

// CallToolParams defines parameters for calling a tool
type CallToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// CallToolResult is the outcome of a tool invocation. A handler failure is
// reported here with IsError set, not as a protocol error.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// NewToolResult wraps handler output.
func NewToolResult(text string) *CallToolResult {
	return &CallToolResult{Content: []Content{TextContent(text)}}
}

// NewToolErrorResult wraps a handler failure as a value.
func NewToolErrorResult(message string) *CallToolResult {
	return &CallToolResult{Content: []Content{TextContent(message)}, IsError: true}
}

// Text returns the concatenated text of the result.
func (r *CallToolResult) Text() string {
	return JoinText(r.Content)
}

// Validate implements Validator.
func (r *CallToolResult) Validate() error {
	if r.Content == nil {
		return wrapMalformed("tools/call result has no content array")
	}
	return nil
}
