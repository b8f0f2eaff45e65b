// Package protocol defines the wire types exchanged between an MCP client and
// server.
//
// # Package Organization
//
//   - jsonrpc.go: JSON-RPC 2.0 envelopes, error object and message classification
//   - mcp.go: method names, capabilities, handshake and paging types
//   - content.go: tagged content blocks
//   - tools.go, prompts.go, resources.go: capability descriptors and their results
//
// # Message Flow
//
//  1. Client sends an initialize request with its protocol version and capabilities
//  2. Server responds with its own version, capabilities and server info
//  3. Client sends the notifications/initialized notification
//  4. Client issues list, call, get and read requests; responses are matched by id
//
// # Validation
//
// Every result type implements Validator. DecodeResult unmarshals and validates
// in one step and wraps any failure in ErrMalformed, so a counterpart that
// answers with the wrong shape is rejected before its data reaches callers.
package protocol
