package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	mcperrors "github.com/ajitpratap0/mcp-relay/pkg/errors"
	"github.com/ajitpratap0/mcp-relay/pkg/logging"
	"github.com/ajitpratap0/mcp-relay/pkg/observability"
	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
	"github.com/ajitpratap0/mcp-relay/pkg/transport"
)

// State is the connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	errSessionClosed    = errors.New("session closed")
	errLostDuringWarmup = errors.New("connection lost while loading capabilities")
)

// Dialer creates an unstarted transport to the server. The session starts
// it, and stops it on any failure.
type Dialer func(ctx context.Context) (transport.Transport, error)

// SessionConfig describes how a Session reaches its server.
type SessionConfig struct {
	// Command and Args start the server process. Ignored when a Dialer is set.
	Command string
	Args    []string
	Env     []string

	Transport        transport.Config
	HandshakeTimeout time.Duration
	ClientName       string
	ClientVersion    string

	// StopTimeout bounds teardown of a failed or replaced connection.
	StopTimeout time.Duration
}

// DefaultSessionConfig returns a config that launches command.
func DefaultSessionConfig(command string, args ...string) SessionConfig {
	return SessionConfig{
		Command:          command,
		Args:             args,
		Transport:        transport.DefaultConfig(),
		HandshakeTimeout: DefaultHandshakeTimeout,
		ClientName:       "mcp-relay-client",
		ClientVersion:    "1.0.0",
		StopTimeout:      5 * time.Second,
	}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithDialer replaces process spawning with d.
func WithDialer(d Dialer) SessionOption {
	return func(s *Session) {
		s.dial = d
	}
}

// WithMiddleware wraps every transport the session creates.
func WithMiddleware(m ...transport.Middleware) SessionOption {
	return func(s *Session) {
		s.middleware = append(s.middleware, m...)
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(logger logging.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithMetrics records state transitions.
func WithMetrics(m *observability.MetricsProvider) SessionOption {
	return func(s *Session) {
		s.metrics = m
	}
}

// Session owns the single connection to a server. It connects lazily,
// shares one connect attempt between concurrent callers, and caches the
// server's tools, prompts and resources.
type Session struct {
	config     SessionConfig
	dial       Dialer
	middleware []transport.Middleware
	logger     logging.Logger
	metrics    *observability.MetricsProvider

	connect singleflight.Group

	mu         sync.RWMutex
	state      State
	closed     bool
	generation uint64
	client     *Client
	transport  transport.Transport
	tools      []protocol.Tool
	prompts    []protocol.Prompt
	resources  []protocol.Resource
	templates  []protocol.ResourceTemplate
}

// NewSession creates a disconnected session. Nothing is spawned until the
// first call that needs the server.
func NewSession(config SessionConfig, opts ...SessionOption) *Session {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = 5 * time.Second
	}
	if config.Transport.Name == "" {
		config.Transport.Name = "stdio"
	}
	s := &Session{
		config: config,
		logger: logging.Nop(),
	}
	s.dial = s.spawn
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithFields(logging.String("component", "session"))
	s.metrics.RecordConnectionState(StateDisconnected.String())
	return s
}

func (s *Session) spawn(context.Context) (transport.Transport, error) {
	if s.config.Command == "" {
		return nil, mcperrors.InvalidArgument("command", "no server command configured")
	}
	return transport.NewCommandTransport(s.config.Command, s.config.Args, s.config.Transport,
		transport.WithEnv(s.config.Env...)), nil
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Client returns a connected client, connecting first if needed. Callers
// arriving while a connect is in flight wait for that same attempt.
func (s *Session) Client(ctx context.Context) (*Client, error) {
	s.mu.RLock()
	if s.state == StateConnected && s.client != nil {
		c := s.client
		s.mu.RUnlock()
		return c, nil
	}
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, mcperrors.ConnectionClosed(s.config.Transport.Name, errSessionClosed)
	}

	ch := s.connect.DoChan("connect", func() (interface{}, error) {
		return s.doConnect(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Client), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) doConnect(ctx context.Context) (*Client, error) {
	s.mu.Lock()
	if s.state == StateConnected && s.client != nil {
		c := s.client
		s.mu.Unlock()
		return c, nil
	}
	s.setState(StateConnecting)
	s.mu.Unlock()

	start := time.Now()
	t, c, err := s.open(ctx)
	if err != nil {
		s.mu.Lock()
		s.setState(StateDisconnected)
		s.mu.Unlock()
		s.logger.WithError(err).Warn("connect failed", logging.Duration("elapsed", time.Since(start)))
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.setState(StateDisconnected)
		s.mu.Unlock()
		s.stop(t)
		return nil, mcperrors.ConnectionClosed(s.config.Transport.Name, errSessionClosed)
	}
	s.generation++
	gen := s.generation
	s.client = c
	s.transport = t
	s.clearCaches()
	s.mu.Unlock()

	go s.watch(gen, t)

	// Callers keep waiting on this attempt until the caches are warm, so
	// none of them sees a connected session with empty lists.
	s.warm(ctx, c)

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return nil, mcperrors.ConnectionClosed(s.config.Transport.Name, errLostDuringWarmup)
	}
	s.setState(StateConnected)
	s.mu.Unlock()

	s.logger.Info("session connected",
		logging.String("server", c.ServerInfo().Name),
		logging.Duration("elapsed", time.Since(start)),
	)
	return c, nil
}

// open dials, starts and initializes a transport. On any failure the
// partial transport is stopped before returning.
func (s *Session) open(ctx context.Context) (transport.Transport, *Client, error) {
	t, err := s.dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(s.middleware) > 0 {
		t = transport.Chain(s.middleware...).Wrap(t)
	}

	if err := t.Start(ctx); err != nil {
		s.stop(t)
		return nil, nil, err
	}

	c := New(t,
		WithName(s.config.ClientName),
		WithVersion(s.config.ClientVersion),
		WithHandshakeTimeout(s.config.HandshakeTimeout),
		WithTransportName(s.config.Transport.Name),
		WithLogger(s.logger),
	)
	if err := c.Initialize(ctx); err != nil {
		s.stop(t)
		return nil, nil, err
	}
	return t, c, nil
}

// watch moves the session to Disconnected when the transport of generation
// gen dies underneath it.
func (s *Session) watch(gen uint64, t transport.Transport) {
	done := t.Done()
	if done == nil {
		return
	}
	<-done

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.generation++
	s.client = nil
	s.transport = nil
	s.clearCaches()
	s.setState(StateDisconnected)
	s.mu.Unlock()

	s.logger.Warn("connection lost")
	s.stop(t)
}

// warm fills the caches concurrently. A failed list leaves its cache empty.
func (s *Session) warm(ctx context.Context, c *Client) {
	var g errgroup.Group
	g.Go(func() error {
		if _, err := s.refreshTools(ctx, c); err != nil {
			s.logger.WithError(err).Warn("tool list unavailable")
		}
		return nil
	})
	g.Go(func() error {
		if _, err := s.refreshPrompts(ctx, c); err != nil {
			s.logger.WithError(err).Warn("prompt list unavailable")
		}
		return nil
	})
	g.Go(func() error {
		if _, err := s.refreshResources(ctx, c); err != nil {
			s.logger.WithError(err).Warn("resource list unavailable")
		}
		return nil
	})
	_ = g.Wait()
}

// Reconnect drops the current connection and connects anew.
func (s *Session) Reconnect(ctx context.Context) (*Client, error) {
	s.teardown()
	return s.Client(ctx)
}

// Close drops the connection and reaps the server process. Later calls fail
// with ConnectionClosed.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	t := s.detach()
	if t == nil {
		return nil
	}
	return t.Stop(ctx)
}

func (s *Session) teardown() {
	if t := s.detach(); t != nil {
		s.stop(t)
	}
}

func (s *Session) detach() transport.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.transport
	s.generation++
	s.client = nil
	s.transport = nil
	s.clearCaches()
	if s.state != StateDisconnected {
		s.setState(StateDisconnected)
	}
	return t
}

func (s *Session) stop(t transport.Transport) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.StopTimeout)
	defer cancel()
	if err := t.Stop(ctx); err != nil {
		s.logger.WithError(err).Debug("transport stop")
	}
}

// setState must be called with mu held.
func (s *Session) setState(state State) {
	if s.state == state {
		return
	}
	s.logger.Debug("state change",
		logging.String("from", s.state.String()),
		logging.String("to", state.String()),
	)
	s.state = state
	s.metrics.RecordConnectionState(state.String())
}

// clearCaches must be called with mu held.
func (s *Session) clearCaches() {
	s.tools = nil
	s.prompts = nil
	s.resources = nil
	s.templates = nil
}

// Tools returns the cached tool list.
func (s *Session) Tools() []protocol.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.Tool(nil), s.tools...)
}

// Prompts returns the cached prompt list.
func (s *Session) Prompts() []protocol.Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.Prompt(nil), s.prompts...)
}

// Resources returns the cached resource list.
func (s *Session) Resources() []protocol.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.Resource(nil), s.resources...)
}

// ResourceTemplates returns the cached resource template list.
func (s *Session) ResourceTemplates() []protocol.ResourceTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.ResourceTemplate(nil), s.templates...)
}

// RefreshTools refetches the tool list.
func (s *Session) RefreshTools(ctx context.Context) ([]protocol.Tool, error) {
	c, err := s.Client(ctx)
	if err != nil {
		return nil, err
	}
	return s.refreshTools(ctx, c)
}

// RefreshPrompts refetches the prompt list.
func (s *Session) RefreshPrompts(ctx context.Context) ([]protocol.Prompt, error) {
	c, err := s.Client(ctx)
	if err != nil {
		return nil, err
	}
	return s.refreshPrompts(ctx, c)
}

// RefreshResources refetches the resource and resource template lists.
func (s *Session) RefreshResources(ctx context.Context) ([]protocol.Resource, error) {
	c, err := s.Client(ctx)
	if err != nil {
		return nil, err
	}
	return s.refreshResources(ctx, c)
}

func (s *Session) refreshTools(ctx context.Context, c *Client) ([]protocol.Tool, error) {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.client == c {
		s.tools = tools
	}
	s.mu.Unlock()
	return tools, nil
}

func (s *Session) refreshPrompts(ctx context.Context, c *Client) ([]protocol.Prompt, error) {
	prompts, err := c.ListPrompts(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.client == c {
		s.prompts = prompts
	}
	s.mu.Unlock()
	return prompts, nil
}

func (s *Session) refreshResources(ctx context.Context, c *Client) ([]protocol.Resource, error) {
	resources, err := c.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	// Templates are optional; a server without them still has resources.
	templates, terr := c.ListResourceTemplates(ctx)
	if terr != nil {
		s.logger.WithError(terr).Debug("resource templates unavailable")
	}
	s.mu.Lock()
	if s.client == c {
		s.resources = resources
		if terr == nil {
			s.templates = templates
		}
	}
	s.mu.Unlock()
	return resources, nil
}

// LookupResource finds the resource whose name is exactly name. A miss
// triggers exactly one refresh of the resource list before giving up. A
// name shared by several resources is an error; no candidate is picked.
func (s *Session) LookupResource(ctx context.Context, name string) (protocol.Resource, error) {
	if _, err := s.Client(ctx); err != nil {
		return protocol.Resource{}, err
	}
	res, err := findResource(s.Resources(), name)
	if err == nil || !isMiss(err) {
		return res, err
	}

	s.logger.Debug("resource cache miss, refreshing", logging.String("name", name))
	resources, rerr := s.RefreshResources(ctx)
	if rerr != nil {
		return protocol.Resource{}, rerr
	}
	return findResource(resources, name)
}

func findResource(resources []protocol.Resource, name string) (protocol.Resource, error) {
	var matches []protocol.Resource
	for _, r := range resources {
		if r.Name == name {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return protocol.Resource{}, mcperrors.MentionNotFound(name)
	case 1:
		return matches[0], nil
	default:
		uris := make([]string, len(matches))
		for i, m := range matches {
			uris[i] = m.URI
		}
		return protocol.Resource{}, mcperrors.AmbiguousResource(name, uris)
	}
}

func isMiss(err error) bool {
	return mcperrors.IsCode(err, mcperrors.CodeResourceNotFound)
}

// CallTool invokes a tool on the connected server.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	c, err := s.Client(ctx)
	if err != nil {
		return nil, err
	}
	return c.CallTool(ctx, name, args)
}

// GetPrompt renders a prompt on the connected server.
func (s *Session) GetPrompt(ctx context.Context, name string, args map[string]string) (*protocol.GetPromptResult, error) {
	c, err := s.Client(ctx)
	if err != nil {
		return nil, err
	}
	return c.GetPrompt(ctx, name, args)
}

// ReadResource reads a resource on the connected server.
func (s *Session) ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	c, err := s.Client(ctx)
	if err != nil {
		return nil, err
	}
	return c.ReadResource(ctx, uri)
}
