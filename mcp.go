package mcp

import (
	"github.com/ajitpratap0/mcp-relay/pkg/client"
	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
	"github.com/ajitpratap0/mcp-relay/pkg/registry"
	"github.com/ajitpratap0/mcp-relay/pkg/relay"
	"github.com/ajitpratap0/mcp-relay/pkg/resolver"
	"github.com/ajitpratap0/mcp-relay/pkg/server"
	"github.com/ajitpratap0/mcp-relay/pkg/transport"
)

// Version represents the current version of the module
const Version = "0.1.0"

// ProtocolVersion is the MCP revision spoken on the wire.
const ProtocolVersion = protocol.ProtocolRevision

// These exports provide direct access to the core components
var (
	// NewRegistry creates an empty capability registry
	NewRegistry = registry.New

	// NewServer binds a registry to a transport
	NewServer = server.New

	// NewSession creates a lazily connecting client session
	NewSession = client.NewSession

	// DefaultSessionConfig returns a session config that spawns a server
	DefaultSessionConfig = client.DefaultSessionConfig

	// NewResolver resolves /commands and @mentions through a session
	NewResolver = resolver.New

	// NewStdioTransport creates a transport over a reader/writer pair
	NewStdioTransport = transport.NewStdioTransport

	// NewStdioServerTransport creates a transport over stdin/stdout
	NewStdioServerTransport = transport.NewStdioServerTransport

	// NewCommandTransport creates a transport to a spawned server process
	NewCommandTransport = transport.NewCommandTransport

	// StreamText streams text word by word
	StreamText = relay.FromString

	// Pump delivers a stream to a sink
	Pump = relay.Pump
)

// Capability names advertised during the handshake
const (
	CapabilityTools     = protocol.CapabilityTools
	CapabilityPrompts   = protocol.CapabilityPrompts
	CapabilityResources = protocol.CapabilityResources
)
