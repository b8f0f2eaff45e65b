// Package client provides the client side of the MCP protocol.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-relay/pkg/errors"
	"github.com/ajitpratap0/mcp-relay/pkg/logging"
	"github.com/ajitpratap0/mcp-relay/pkg/pagination"
	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
	"github.com/ajitpratap0/mcp-relay/pkg/transport"
)

// DefaultHandshakeTimeout bounds the initialize exchange.
const DefaultHandshakeTimeout = 5 * time.Second

// Client is a typed MCP client over one transport.
type Client struct {
	transport        transport.Transport
	name             string
	version          string
	transportName    string
	handshakeTimeout time.Duration
	logger           logging.Logger

	mu           sync.RWMutex
	initialized  bool
	serverInfo   protocol.Implementation
	capabilities map[string]bool
	instructions string
}

// ClientOption defines options for creating a client
type ClientOption func(*Client)

// WithName sets the client name
func WithName(name string) ClientOption {
	return func(c *Client) {
		c.name = name
	}
}

// WithVersion sets the client version
func WithVersion(version string) ClientOption {
	return func(c *Client) {
		c.version = version
	}
}

// WithHandshakeTimeout bounds Initialize
func WithHandshakeTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.handshakeTimeout = d
	}
}

// WithTransportName names the transport in connection errors
func WithTransportName(name string) ClientOption {
	return func(c *Client) {
		c.transportName = name
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client over t. The transport must be started before
// Initialize is called.
func New(t transport.Transport, options ...ClientOption) *Client {
	c := &Client{
		transport:        t,
		name:             "mcp-relay-client",
		version:          "1.0.0",
		transportName:    "stdio",
		handshakeTimeout: DefaultHandshakeTimeout,
		logger:           logging.Nop(),
		capabilities:     make(map[string]bool),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Initialize performs the handshake: initialize, then
// notifications/initialized. It is a no-op once it has succeeded.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.RLock()
	initialized := c.initialized
	c.mu.RUnlock()
	if initialized {
		return nil
	}

	hctx := ctx
	if c.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, c.handshakeTimeout)
		defer cancel()
	}

	params := &protocol.InitializeParams{
		ProtocolVersion: protocol.ProtocolRevision,
		Capabilities:    map[string]bool{},
		ClientInfo:      protocol.Implementation{Name: c.name, Version: c.version},
	}

	var result protocol.InitializeResult
	if err := c.request(hctx, protocol.MethodInitialize, params, &result); err != nil {
		if mcperrors.IsTimeout(err) && ctx.Err() == nil {
			return mcperrors.HandshakeTimeout(c.transportName, c.handshakeTimeout)
		}
		return err
	}

	if err := c.transport.SendNotification(hctx, protocol.MethodInitialized, nil); err != nil {
		return err
	}

	c.mu.Lock()
	c.initialized = true
	c.serverInfo = result.ServerInfo
	c.instructions = result.Instructions
	c.capabilities = make(map[string]bool, len(result.Capabilities))
	for name, enabled := range result.Capabilities {
		c.capabilities[name] = enabled
	}
	c.mu.Unlock()

	c.logger.Info("connected",
		logging.String("server", result.ServerInfo.Name),
		logging.String("server_version", result.ServerInfo.Version),
		logging.String("protocol_version", result.ProtocolVersion),
	)
	return nil
}

// Close stops the transport. Pending calls fail with ConnectionClosed.
func (c *Client) Close(ctx context.Context) error {
	return c.transport.Stop(ctx)
}

// Done is closed when the underlying transport can no longer carry requests.
func (c *Client) Done() <-chan struct{} {
	return c.transport.Done()
}

// ServerInfo returns the server's name and version from the handshake.
func (c *Client) ServerInfo() protocol.Implementation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Instructions returns the server's usage hint, if it sent one.
func (c *Client) Instructions() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instructions
}

// HasCapability checks if the server supports a specific capability
func (c *Client) HasCapability(capability protocol.CapabilityType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized && c.capabilities[string(capability)]
}

// Ping checks if the server is responding.
func (c *Client) Ping(ctx context.Context) (*protocol.PingResult, error) {
	var result protocol.PingResult
	if err := c.request(ctx, protocol.MethodPing, &protocol.PingParams{Timestamp: time.Now().UnixMilli()}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListToolsPage fetches one page of tools.
func (c *Client) ListToolsPage(ctx context.Context, cursor string) ([]protocol.Tool, string, error) {
	var result protocol.ListToolsResult
	params := &protocol.ListToolsParams{PaginatedParams: protocol.PaginatedParams{Cursor: cursor}}
	if err := c.request(ctx, protocol.MethodListTools, params, &result); err != nil {
		return nil, "", err
	}
	return result.Tools, result.NextCursor, nil
}

// ListTools fetches every tool, following cursors.
func (c *Client) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	return pagination.CollectAll(ctx, c.ListToolsPage)
}

// ListPromptsPage fetches one page of prompts.
func (c *Client) ListPromptsPage(ctx context.Context, cursor string) ([]protocol.Prompt, string, error) {
	var result protocol.ListPromptsResult
	params := &protocol.ListPromptsParams{PaginatedParams: protocol.PaginatedParams{Cursor: cursor}}
	if err := c.request(ctx, protocol.MethodListPrompts, params, &result); err != nil {
		return nil, "", err
	}
	return result.Prompts, result.NextCursor, nil
}

// ListPrompts fetches every prompt, following cursors.
func (c *Client) ListPrompts(ctx context.Context) ([]protocol.Prompt, error) {
	return pagination.CollectAll(ctx, c.ListPromptsPage)
}

// ListResourcesPage fetches one page of resources.
func (c *Client) ListResourcesPage(ctx context.Context, cursor string) ([]protocol.Resource, string, error) {
	var result protocol.ListResourcesResult
	params := &protocol.ListResourcesParams{PaginatedParams: protocol.PaginatedParams{Cursor: cursor}}
	if err := c.request(ctx, protocol.MethodListResources, params, &result); err != nil {
		return nil, "", err
	}
	return result.Resources, result.NextCursor, nil
}

// ListResources fetches every resource, following cursors.
func (c *Client) ListResources(ctx context.Context) ([]protocol.Resource, error) {
	return pagination.CollectAll(ctx, c.ListResourcesPage)
}

// ListResourceTemplatesPage fetches one page of resource templates.
func (c *Client) ListResourceTemplatesPage(ctx context.Context, cursor string) ([]protocol.ResourceTemplate, string, error) {
	var result protocol.ListResourceTemplatesResult
	params := &protocol.ListResourceTemplatesParams{PaginatedParams: protocol.PaginatedParams{Cursor: cursor}}
	if err := c.request(ctx, protocol.MethodListResourceTemplates, params, &result); err != nil {
		return nil, "", err
	}
	return result.ResourceTemplates, result.NextCursor, nil
}

// ListResourceTemplates fetches every resource template, following cursors.
func (c *Client) ListResourceTemplates(ctx context.Context) ([]protocol.ResourceTemplate, error) {
	return pagination.CollectAll(ctx, c.ListResourceTemplatesPage)
}

// CallTool invokes a tool. A tool that ran and failed comes back as a result
// with IsError set, not as an error.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	var result protocol.CallToolResult
	if err := c.request(ctx, protocol.MethodCallTool, &protocol.CallToolParams{Name: name, Arguments: args}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPrompt renders a prompt with the given arguments.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (*protocol.GetPromptResult, error) {
	var result protocol.GetPromptResult
	if err := c.request(ctx, protocol.MethodGetPrompt, &protocol.GetPromptParams{Name: name, Arguments: args}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReadResource reads the contents of a resource.
func (c *Client) ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	var result protocol.ReadResourceResult
	if err := c.request(ctx, protocol.MethodReadResource, &protocol.ReadResourceParams{URI: uri}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// request sends method and decodes the answer into out. JSON-RPC errors are
// mapped back into the error taxonomy.
func (c *Client) request(ctx context.Context, method string, params interface{}, out protocol.Validator) error {
	raw, err := c.transport.SendRequest(ctx, method, params)
	if err != nil {
		var rpcErr *protocol.Error
		if errors.As(err, &rpcErr) {
			return mcperrors.FromJSONRPCError(rpcErr).
				WithContext(&mcperrors.Context{Method: method, Component: "client"})
		}
		return err
	}
	if err := protocol.DecodeResult(raw, out); err != nil {
		return mcperrors.MalformedResponse(method, err)
	}
	return nil
}
