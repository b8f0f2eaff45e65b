package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-relay/pkg/errors"
	"github.com/ajitpratap0/mcp-relay/pkg/logging"
	"github.com/ajitpratap0/mcp-relay/pkg/pagination"
	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
	"github.com/ajitpratap0/mcp-relay/pkg/registry"
	"github.com/ajitpratap0/mcp-relay/pkg/transport"
)

// Server represents an MCP server
type Server struct {
	transport    transport.Transport
	registry     *registry.Registry
	name         string
	version      string
	instructions string
	pageSize     int
	logger       logging.Logger

	mu          sync.RWMutex
	initialized bool
	clientInfo  protocol.Implementation
}

// ServerOption defines options for creating a server
type ServerOption func(*Server)

// WithName sets the server name
func WithName(name string) ServerOption {
	return func(s *Server) {
		s.name = name
	}
}

// WithVersion sets the server version
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

// WithInstructions sets the usage hint returned by initialize
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// WithPageSize sets how many entries each list page holds
func WithPageSize(n int) ServerOption {
	return func(s *Server) {
		s.pageSize = n
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a server exposing reg over t and registers its handlers.
func New(t transport.Transport, reg *registry.Registry, options ...ServerOption) *Server {
	s := &Server{
		transport: t,
		registry:  reg,
		name:      "mcp-relay-server",
		version:   "1.0.0",
		pageSize:  pagination.DefaultLimit,
		logger:    logging.Nop(),
	}
	for _, option := range options {
		option(s)
	}
	s.logger = s.logger.WithFields(logging.String("component", "server"))

	t.RegisterRequestHandler(protocol.MethodInitialize, s.handleInitialize)
	t.RegisterNotificationHandler(protocol.MethodInitialized, s.handleInitialized)
	t.RegisterRequestHandler(protocol.MethodPing, s.handlePing)
	t.RegisterRequestHandler(protocol.MethodListTools, s.handleListTools)
	t.RegisterRequestHandler(protocol.MethodCallTool, s.handleCallTool)
	t.RegisterRequestHandler(protocol.MethodListPrompts, s.handleListPrompts)
	t.RegisterRequestHandler(protocol.MethodGetPrompt, s.handleGetPrompt)
	t.RegisterRequestHandler(protocol.MethodListResources, s.handleListResources)
	t.RegisterRequestHandler(protocol.MethodListResourceTemplates, s.handleListResourceTemplates)
	t.RegisterRequestHandler(protocol.MethodReadResource, s.handleReadResource)

	return s
}

// Serve starts the transport and blocks until the client disconnects or ctx
// is cancelled. A client disconnect is a normal end and returns nil.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.transport.Start(ctx); err != nil {
		return err
	}
	s.logger.Info("server listening",
		logging.String("name", s.name),
		logging.String("version", s.version),
		logging.Int("tools", len(s.registry.ListTools())),
		logging.Int("prompts", len(s.registry.ListPrompts())),
		logging.Int("resources", len(s.registry.ListResources())),
	)

	select {
	case <-s.transport.Done():
		s.logger.Info("client disconnected")
		return nil
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.transport.Stop(stopCtx)
		return ctx.Err()
	}
}

// Stop closes the transport.
func (s *Server) Stop(ctx context.Context) error {
	return s.transport.Stop(ctx)
}

// Initialized reports whether the client finished the handshake.
func (s *Server) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// ClientInfo returns what the client sent in initialize.
func (s *Server) ClientInfo() protocol.Implementation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientInfo
}

func (s *Server) capabilities() map[string]bool {
	return map[string]bool{
		string(protocol.CapabilityTools):      true,
		string(protocol.CapabilityPrompts):    true,
		string(protocol.CapabilityResources):  true,
		string(protocol.CapabilityPagination): true,
	}
}

// decodeParams unmarshals params into target. Absent params leave target at
// its zero value.
func decodeParams(method string, params json.RawMessage, target interface{}) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, target); err != nil {
		return mcperrors.InvalidArgument("params", err.Error()).
			WithContext(&mcperrors.Context{Method: method, Component: "server"})
	}
	return nil
}

func (s *Server) handleInitialize(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p protocol.InitializeParams
	if err := decodeParams(protocol.MethodInitialize, params, &p); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.clientInfo = p.ClientInfo
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("client connected",
		logging.String("client", p.ClientInfo.Name),
		logging.String("client_version", p.ClientInfo.Version),
		logging.String("protocol_version", p.ProtocolVersion),
	)

	return &protocol.InitializeResult{
		ProtocolVersion: protocol.ProtocolRevision,
		Capabilities:    s.capabilities(),
		ServerInfo:      protocol.Implementation{Name: s.name, Version: s.version},
		Instructions:    s.instructions,
	}, nil
}

func (s *Server) handleInitialized(ctx context.Context, params json.RawMessage) error {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	s.logger.Debug("handshake complete")
	return nil
}

func (s *Server) handlePing(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p protocol.PingParams
	if err := decodeParams(protocol.MethodPing, params, &p); err != nil {
		return nil, err
	}
	ts := p.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	return &protocol.PingResult{Timestamp: ts}, nil
}

func (s *Server) handleListTools(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p protocol.ListToolsParams
	if err := decodeParams(protocol.MethodListTools, params, &p); err != nil {
		return nil, err
	}
	page, next, err := pagination.Paginate(s.registry.ListTools(), p.Cursor, s.pageSize)
	if err != nil {
		return nil, err
	}
	return &protocol.ListToolsResult{Tools: page, PaginatedResult: protocol.PaginatedResult{NextCursor: next}}, nil
}

func (s *Server) handleCallTool(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p protocol.CallToolParams
	if err := decodeParams(protocol.MethodCallTool, params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, mcperrors.MissingArgument("name")
	}
	return s.registry.CallTool(ctx, p.Name, p.Arguments)
}

func (s *Server) handleListPrompts(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p protocol.ListPromptsParams
	if err := decodeParams(protocol.MethodListPrompts, params, &p); err != nil {
		return nil, err
	}
	page, next, err := pagination.Paginate(s.registry.ListPrompts(), p.Cursor, s.pageSize)
	if err != nil {
		return nil, err
	}
	return &protocol.ListPromptsResult{Prompts: page, PaginatedResult: protocol.PaginatedResult{NextCursor: next}}, nil
}

func (s *Server) handleGetPrompt(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p protocol.GetPromptParams
	if err := decodeParams(protocol.MethodGetPrompt, params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, mcperrors.MissingArgument("name")
	}
	return s.registry.GetPrompt(p.Name, p.Arguments)
}

func (s *Server) handleListResources(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p protocol.ListResourcesParams
	if err := decodeParams(protocol.MethodListResources, params, &p); err != nil {
		return nil, err
	}
	page, next, err := pagination.Paginate(s.registry.ListResources(), p.Cursor, s.pageSize)
	if err != nil {
		return nil, err
	}
	return &protocol.ListResourcesResult{Resources: page, PaginatedResult: protocol.PaginatedResult{NextCursor: next}}, nil
}

func (s *Server) handleListResourceTemplates(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p protocol.ListResourceTemplatesParams
	if err := decodeParams(protocol.MethodListResourceTemplates, params, &p); err != nil {
		return nil, err
	}
	page, next, err := pagination.Paginate(s.registry.ListResourceTemplates(), p.Cursor, s.pageSize)
	if err != nil {
		return nil, err
	}
	return &protocol.ListResourceTemplatesResult{ResourceTemplates: page, PaginatedResult: protocol.PaginatedResult{NextCursor: next}}, nil
}

func (s *Server) handleReadResource(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p protocol.ReadResourceParams
	if err := decodeParams(protocol.MethodReadResource, params, &p); err != nil {
		return nil, err
	}
	if p.URI == "" {
		return nil, mcperrors.MissingArgument("uri")
	}
	return s.registry.ReadResource(ctx, p.URI)
}
