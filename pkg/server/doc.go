// Package server exposes a capability registry over an MCP transport.
//
// A Server registers one handler per MCP method on its transport and
// answers from a registry.Registry:
//
//	reg := registry.New()
//	// register tools, prompts and resources ...
//	srv := server.New(transport.NewStdioServerTransport(transport.DefaultConfig()), reg,
//		server.WithName("mcp-demo-server"),
//	)
//	if err := srv.Serve(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// Serve returns nil when the client closes the connection. List methods
// page their results with opaque cursors. Registry errors cross the wire
// with codes that let the client rebuild the same error category.
package server
