// Package transport carries JSON-RPC 2.0 messages between an MCP client and
// server.
//
// Messages are framed one per line. Every outgoing request gets a unique
// correlation id ("req_N") and its caller waits on a pending entry keyed by
// that id, so responses are routed by id and never by arrival order. Any
// number of requests may be in flight at once.
//
// # Transports
//
// StdioTransport works over any reader/writer pair. A server wraps its own
// stdin and stdout with NewStdioServerTransport; tests connect two
// transports with io.Pipe.
//
// CommandTransport spawns the counterpart process and wraps its pipes. Stop
// closes the child's stdin, kills the child after Config.StopGracePeriod and
// always reaps it.
//
// # Closing
//
// When the read side reaches EOF, the child exits, or Stop is called, every
// in-flight request resolves with a ConnectionClosed error and later
// requests fail with it immediately. Nothing is retried. A request that gets
// no answer within Config.RequestTimeout fails with OperationTimeout.
//
// # Middleware
//
// Middleware wrap a Transport; Chain composes them outermost first:
//
//	t := transport.Chain(
//		transport.LoggingMiddleware(logger),
//		observability.NewMiddleware(tracer, metrics),
//	).Wrap(transport.NewCommandTransport("mcp-demo-server", nil, transport.DefaultConfig()))
package transport
