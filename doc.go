// Package mcp is the root of mcp-relay, the client/server core of a chat
// front end speaking the Model Context Protocol (2025-03-26).
//
// # Overview
//
// The module consists of several sub-packages:
//
//   - pkg/registry: the server's canonical Tools, Prompts and Resources
//   - pkg/server: binds a registry to a transport
//   - pkg/transport: newline-framed JSON-RPC over pipes or a spawned process
//   - pkg/client: the protocol client and the singleton Session that owns it
//   - pkg/resolver: turns "/command key=value" and "@resource" into calls
//   - pkg/relay: ordered, cancellable text streams with an explicit done
//   - pkg/chat: the conversation model that relay streams grow in place
//
// # Serving a Registry
//
//	reg := mcp.NewRegistry()
//	reg.RegisterTool(protocol.Tool{
//	    Name:        "word-count",
//	    InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
//	}, func(ctx context.Context, args map[string]interface{}) (string, error) {
//	    return strconv.Itoa(len(strings.Fields(args["text"].(string)))), nil
//	})
//
//	srv := mcp.NewServer(mcp.NewStdioServerTransport(transport.DefaultConfig()), reg)
//	if err := srv.Serve(ctx); err != nil {
//	    // Handle error
//	}
//
// # Connecting a Session
//
// A Session spawns the server on first use. Concurrent callers share one
// connection attempt, and a server that dies is restarted on the next call.
//
//	session := mcp.NewSession(mcp.DefaultSessionConfig("mcp-demo-server"))
//	defer session.Close(ctx)
//
//	res, err := mcp.NewResolver(session).Resolve(ctx, "/create-issue title=Bug @Style Guide")
//	if err != nil {
//	    // ctx ended
//	}
//	if res.Command != nil && res.Command.Err == nil {
//	    stream := relay.FromToolResult(ctx, res.Command.Tool, relay.DefaultDelay)
//	    _ = mcp.Pump(ctx, stream, sink)
//	}
//
// # Commands
//
//   - cmd/mcp-demo-server: the demo catalog served on stdio
//   - cmd/mcp-chat: a terminal chat client with optional model and SSE output
package mcp
