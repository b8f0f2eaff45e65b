package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/ajitpratap0/mcp-relay/pkg/errors"
	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
	"github.com/ajitpratap0/mcp-relay/pkg/registry"
	"github.com/ajitpratap0/mcp-relay/pkg/server"
	"github.com/ajitpratap0/mcp-relay/pkg/transport"
)

func testConfig() transport.Config {
	config := transport.DefaultConfig()
	config.RequestTimeout = 2 * time.Second
	return config
}

// servePipe runs srvSetup's transport on one end of an in-memory pipe pair
// and returns the unstarted client end.
func servePipe(t *testing.T, srvSetup func(tr *transport.StdioTransport)) *transport.StdioTransport {
	t.Helper()
	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()

	srv := transport.NewStdioTransport(c2sR, s2cW, testConfig())
	srvSetup(srv)
	require.NoError(t, srv.Start(context.Background()))

	t.Cleanup(func() {
		_ = srv.Stop(context.Background())
		_ = s2cW.Close()
		_ = c2sW.Close()
	})
	return transport.NewStdioTransport(s2cR, c2sW, testConfig())
}

// serveRegistry exposes reg through a real server on a pipe pair.
func serveRegistry(t *testing.T, reg *registry.Registry, opts ...server.ServerOption) *transport.StdioTransport {
	t.Helper()
	return servePipe(t, func(tr *transport.StdioTransport) {
		server.New(tr, reg, opts...)
	})
}

func demoRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.RegisterTool(protocol.Tool{
		Name:        "create-issue",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"title":{"type":"string"},"priority":{"type":"integer","minimum":1,"maximum":4,"default":2}},"required":["title"]}`),
	}, func(_ context.Context, args map[string]interface{}) (string, error) {
		return fmt.Sprintf("Created issue: %s (priority %v)", args["title"], args["priority"]), nil
	}))
	require.NoError(t, reg.RegisterPrompt(protocol.Prompt{
		Name:      "content-idea",
		Arguments: []protocol.PromptArgument{{Name: "topic", Required: true}, {Name: "format", Default: "blog post"}},
	}, func(args map[string]string) []protocol.PromptMessage {
		return []protocol.PromptMessage{{
			Role:    protocol.RoleUser,
			Content: protocol.TextContent("Generate a content idea about " + args["topic"] + " as a " + args["format"]),
		}}
	}))
	require.NoError(t, reg.RegisterResource(protocol.Resource{
		URI:      "content://blog-example",
		Name:     "Blog Post Example",
		MimeType: "text/markdown",
	}, func(context.Context) (string, error) {
		return "# 5 Ways to Boost Your Productivity\n", nil
	}))
	return reg
}

func connect(t *testing.T, tr transport.Transport, opts ...ClientOption) *Client {
	t.Helper()
	require.NoError(t, tr.Start(context.Background()))
	c := New(tr, opts...)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	require.NoError(t, c.Initialize(context.Background()))
	return c
}

func TestInitialize(t *testing.T) {
	tr := serveRegistry(t, demoRegistry(t), server.WithName("demo"), server.WithVersion("2.0.0"))
	c := connect(t, tr, WithName("tester"))

	assert.Equal(t, "demo", c.ServerInfo().Name)
	assert.Equal(t, "2.0.0", c.ServerInfo().Version)
	assert.True(t, c.HasCapability(protocol.CapabilityTools))
	assert.True(t, c.HasCapability(protocol.CapabilityResources))

	// a second Initialize is a no-op
	require.NoError(t, c.Initialize(context.Background()))

	pong, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.NotZero(t, pong.Timestamp)
}

func TestHandshakeTimeout(t *testing.T) {
	tr := servePipe(t, func(srv *transport.StdioTransport) {
		srv.RegisterRequestHandler(protocol.MethodInitialize, func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	})
	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(func() { _ = tr.Stop(context.Background()) })

	c := New(tr, WithHandshakeTimeout(100*time.Millisecond))
	start := time.Now()
	err := c.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, mcperrors.IsConnectionError(err), "got %v", err)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, c.HasCapability(protocol.CapabilityTools))
}

func TestCallToolAndValidation(t *testing.T) {
	c := connect(t, serveRegistry(t, demoRegistry(t)))
	ctx := context.Background()

	result, err := c.CallTool(ctx, "create-issue", map[string]interface{}{"title": "Login broken"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "Created issue: Login broken (priority 2)", result.Text())

	_, err = c.CallTool(ctx, "create-issue", map[string]interface{}{"title": "Bug", "priority": 5})
	require.Error(t, err)
	assert.True(t, mcperrors.IsInvalidArgument(err), "got %v", err)

	_, err = c.CallTool(ctx, "delete-everything", nil)
	assert.True(t, mcperrors.IsNotFound(err), "got %v", err)
}

func TestGetPromptAndReadResource(t *testing.T) {
	c := connect(t, serveRegistry(t, demoRegistry(t)))
	ctx := context.Background()

	prompt, err := c.GetPrompt(ctx, "content-idea", map[string]string{"topic": "coffee", "format": "blog post"})
	require.NoError(t, err)
	require.Len(t, prompt.Messages, 1)
	assert.Equal(t, protocol.RoleUser, prompt.Messages[0].Role)
	assert.Contains(t, prompt.Messages[0].Content.Text, "coffee")
	assert.Contains(t, prompt.Messages[0].Content.Text, "blog post")

	resources, err := c.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, resources, 1)

	contents, err := c.ReadResource(ctx, resources[0].URI)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(contents.Text(), "# 5 Ways to Boost Your Productivity"))

	_, err = c.ReadResource(ctx, "content://ghost")
	assert.True(t, mcperrors.IsNotFound(err))
}

func TestListFollowsCursors(t *testing.T) {
	reg := registry.New()
	for i := 0; i < 7; i++ {
		require.NoError(t, reg.RegisterTool(protocol.Tool{Name: fmt.Sprintf("t%d", i)},
			func(context.Context, map[string]interface{}) (string, error) { return "", nil }))
	}
	c := connect(t, serveRegistry(t, reg, server.WithPageSize(3)))

	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 7)
	assert.Equal(t, "t0", tools[0].Name)
	assert.Equal(t, "t6", tools[6].Name)

	page, next, err := c.ListToolsPage(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, page, 3)
	assert.NotEmpty(t, next)
}

func TestMalformedResponses(t *testing.T) {
	tr := servePipe(t, func(srv *transport.StdioTransport) {
		srv.RegisterRequestHandler(protocol.MethodInitialize, func(context.Context, json.RawMessage) (interface{}, error) {
			return &protocol.InitializeResult{
				ProtocolVersion: protocol.ProtocolRevision,
				ServerInfo:      protocol.Implementation{Name: "odd", Version: "0"},
			}, nil
		})
		srv.RegisterRequestHandler(protocol.MethodCallTool, func(context.Context, json.RawMessage) (interface{}, error) {
			return json.RawMessage(`{"content":[{"type":"hologram"}]}`), nil
		})
		srv.RegisterRequestHandler(protocol.MethodReadResource, func(context.Context, json.RawMessage) (interface{}, error) {
			return json.RawMessage(`{"uri":"x"}`), nil
		})
	})
	c := connect(t, tr)

	_, err := c.CallTool(context.Background(), "anything", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrMalformed)

	_, err = c.ReadResource(context.Background(), "x")
	assert.ErrorIs(t, err, protocol.ErrMalformed)
}

func TestCallAfterServerGoneIsConnectionClosed(t *testing.T) {
	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()
	srv := transport.NewStdioTransport(c2sR, s2cW, testConfig())
	server.New(srv, demoRegistry(t))
	require.NoError(t, srv.Start(context.Background()))

	c := connect(t, transport.NewStdioTransport(s2cR, c2sW, testConfig()))

	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, s2cW.Close())
	<-c.Done()

	_, err := c.CallTool(context.Background(), "create-issue", map[string]interface{}{"title": "x"})
	assert.True(t, mcperrors.IsConnectionClosed(err), "got %v", err)
}
