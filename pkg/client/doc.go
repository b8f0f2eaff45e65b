// Package client provides the client side of the MCP protocol.
//
// # Client
//
// Client is a typed API over one started transport. Initialize performs the
// handshake within a bounded time; every other method maps JSON-RPC errors
// back into the pkg/errors taxonomy and validates the shape of the answer
// before returning it.
//
// # Session
//
// Session owns the connection for a whole process. It is created
// disconnected and connects on first use:
//
//	s := client.NewSession(client.DefaultSessionConfig("mcp-demo-server"))
//	defer s.Close(ctx)
//
//	result, err := s.CallTool(ctx, "create-issue", map[string]interface{}{"title": "Bug"})
//
// Concurrent callers that find the session connecting wait for the same
// attempt, so at most one server process exists. A connect that fails at any
// step stops what it started before returning. When the connection drops the
// session becomes disconnected and the next call reconnects.
//
// After connecting, the session caches the server's tools, prompts and
// resources. LookupResource finds a resource by exact name and refreshes the
// cache once on a miss.
package client
