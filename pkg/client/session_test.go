package client

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
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

const sessionHelperEnv = "MCP_RELAY_SESSION_HELPER"

// TestHelperProcess is not a real test. The session tests re-execute the
// test binary with it as a stdio MCP server.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv(sessionHelperEnv)
	if mode == "" {
		return
	}
	if mode == "mute" {
		// reads nothing, answers nothing
		time.Sleep(time.Hour)
	}

	reg := registry.New()
	_ = reg.RegisterTool(protocol.Tool{Name: "hang"}, func(ctx context.Context, _ map[string]interface{}) (string, error) {
		time.Sleep(time.Hour)
		return "", nil
	})
	_ = reg.RegisterResource(protocol.Resource{URI: "content://blog-example", Name: "Blog Post Example", MimeType: "text/markdown"},
		func(context.Context) (string, error) { return "# 5 Ways to Boost Your Productivity\n", nil })

	srv := server.New(transport.NewStdioServerTransport(transport.DefaultConfig()), reg)
	if err := srv.Serve(context.Background()); err != nil {
		os.Exit(2)
	}
	os.Exit(0)
}

// helperDialer launches the helper process and remembers every transport it
// creates.
type helperDialer struct {
	mode string

	mu    sync.Mutex
	spawn []*transport.CommandTransport
}

func (h *helperDialer) dial(context.Context) (transport.Transport, error) {
	config := testConfig()
	config.StopGracePeriod = 200 * time.Millisecond
	ct := transport.NewCommandTransport(os.Args[0], []string{"-test.run=^TestHelperProcess$"}, config,
		transport.WithEnv(sessionHelperEnv+"="+h.mode))
	h.mu.Lock()
	h.spawn = append(h.spawn, ct)
	h.mu.Unlock()
	return ct, nil
}

func (h *helperDialer) last() *transport.CommandTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.spawn[len(h.spawn)-1]
}

func (h *helperDialer) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.spawn)
}

// methodCounter counts outgoing requests per method.
type methodCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *methodCounter) Wrap(next transport.Transport) transport.Transport {
	return &countingTransport{Base: transport.Base{Next: next}, counter: m}
}

func (m *methodCounter) get(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[method]
}

type countingTransport struct {
	transport.Base
	counter *methodCounter
}

func (c *countingTransport) SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.counter.mu.Lock()
	if c.counter.counts == nil {
		c.counter.counts = map[string]int{}
	}
	c.counter.counts[method]++
	c.counter.mu.Unlock()
	return c.Next.SendRequest(ctx, method, params)
}

// delayingTransport holds back one method to stretch cache warm-up.
type delayingTransport struct {
	transport.Base
	method string
	delay  time.Duration
}

func (d *delayingTransport) SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if method == d.method {
		time.Sleep(d.delay)
	}
	return d.Next.SendRequest(ctx, method, params)
}

func newPipeSession(t *testing.T, reg *registry.Registry, dials *int32, opts ...SessionOption) *Session {
	t.Helper()
	dialer := func(context.Context) (transport.Transport, error) {
		atomic.AddInt32(dials, 1)
		// widen the window in which concurrent callers can pile up
		time.Sleep(20 * time.Millisecond)
		return serveRegistry(t, reg), nil
	}
	s := NewSession(SessionConfig{Transport: testConfig()}, append([]SessionOption{WithDialer(dialer)}, opts...)...)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestSessionConcurrentConnectSharesOneAttempt(t *testing.T) {
	var dials int32
	s := newPipeSession(t, demoRegistry(t), &dials)
	assert.Equal(t, StateDisconnected, s.State())

	const callers = 8
	clients := make([]*Client, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := s.Client(context.Background())
			assert.NoError(t, err)
			clients[i] = c
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&dials))
	for _, c := range clients {
		assert.Same(t, clients[0], c)
	}
	assert.Equal(t, StateConnected, s.State())

	// caches were warmed before the first caller returned
	assert.Len(t, s.Tools(), 1)
	assert.Len(t, s.Prompts(), 1)
	assert.Len(t, s.Resources(), 1)
}

func TestSessionConnectedOnlyAfterWarmup(t *testing.T) {
	var dials int32
	slow := transport.MiddlewareFunc(func(next transport.Transport) transport.Transport {
		return &delayingTransport{Base: transport.Base{Next: next}, method: protocol.MethodListResources, delay: 150 * time.Millisecond}
	})
	s := newPipeSession(t, demoRegistry(t), &dials, WithMiddleware(slow))

	// resources seen at the first moment the session reports Connected
	seen := make(chan int, 1)
	go func() {
		for s.State() != StateConnected {
			time.Sleep(time.Millisecond)
		}
		seen <- len(s.Resources())
	}()

	go func() { _, _ = s.Client(context.Background()) }()
	require.Eventually(t, func() bool { return s.State() == StateConnecting }, time.Second, time.Millisecond)

	_, err := s.Client(context.Background())
	require.NoError(t, err)
	assert.Len(t, s.Resources(), 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&dials))

	select {
	case n := <-seen:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("session never reported Connected")
	}
}

func TestSessionConcurrentConnectOneProcess(t *testing.T) {
	h := &helperDialer{mode: "server"}
	s := NewSession(SessionConfig{Transport: testConfig()}, WithDialer(h.dial))
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Client(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, h.count())
	assert.NotZero(t, h.last().Pid())
}

func TestSessionHandshakeFailureReapsProcess(t *testing.T) {
	h := &helperDialer{mode: "mute"}
	s := NewSession(SessionConfig{Transport: testConfig(), HandshakeTimeout: 200 * time.Millisecond}, WithDialer(h.dial))

	_, err := s.Client(context.Background())
	require.Error(t, err)
	assert.True(t, mcperrors.IsConnectionError(err), "got %v", err)
	assert.Equal(t, StateDisconnected, s.State())

	select {
	case <-h.last().Exited():
	default:
		t.Fatal("failed connect left the server process running")
	}
}

func TestSessionSpawnFailure(t *testing.T) {
	config := DefaultSessionConfig("/nonexistent/mcp-demo-server")
	s := NewSession(config)

	_, err := s.Client(context.Background())
	require.Error(t, err)
	assert.True(t, mcperrors.IsConnectionError(err), "got %v", err)
	assert.Equal(t, StateDisconnected, s.State())
}

func TestSessionServerKilledMidCall(t *testing.T) {
	h := &helperDialer{mode: "server"}
	s := NewSession(SessionConfig{Transport: testConfig()}, WithDialer(h.dial))
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	_, err := s.Client(context.Background())
	require.NoError(t, err)
	first := h.last()

	errCh := make(chan error, 1)
	go func() {
		_, err := s.CallTool(context.Background(), "hang", nil)
		errCh <- err
	}()
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, first.Kill())

	select {
	case err := <-errCh:
		assert.True(t, mcperrors.IsConnectionClosed(err), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight call not resolved after the server was killed")
	}

	require.Eventually(t, func() bool { return s.State() == StateDisconnected }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, s.Resources())

	// the next use reconnects with a fresh process
	res, err := s.LookupResource(context.Background(), "Blog Post Example")
	require.NoError(t, err)
	assert.Equal(t, "content://blog-example", res.URI)
	assert.Equal(t, 2, h.count())
	assert.NotEqual(t, first.Pid(), h.last().Pid())
}

func TestLookupResourceRefreshesExactlyOnce(t *testing.T) {
	var dials int32
	counter := &methodCounter{}
	reg := demoRegistry(t)
	s := newPipeSession(t, reg, &dials, WithMiddleware(counter))
	ctx := context.Background()

	res, err := s.LookupResource(ctx, "Blog Post Example")
	require.NoError(t, err)
	assert.Equal(t, "content://blog-example", res.URI)
	assert.Equal(t, 1, counter.get(protocol.MethodListResources))

	// added after the cache was warmed: found by the single refresh
	require.NoError(t, reg.RegisterResource(protocol.Resource{URI: "content://notes", Name: "Meeting Notes"},
		func(context.Context) (string, error) { return "notes", nil }))
	res, err = s.LookupResource(ctx, "Meeting Notes")
	require.NoError(t, err)
	assert.Equal(t, "content://notes", res.URI)
	assert.Equal(t, 2, counter.get(protocol.MethodListResources))

	_, err = s.LookupResource(ctx, "ghost")
	assert.True(t, mcperrors.IsNotFound(err))
	assert.Equal(t, 3, counter.get(protocol.MethodListResources))
}

func TestLookupResourceAmbiguousName(t *testing.T) {
	var dials int32
	counter := &methodCounter{}
	reg := registry.New()
	for _, uri := range []string{"content://a", "content://b"} {
		require.NoError(t, reg.RegisterResource(protocol.Resource{URI: uri, Name: "Notes"},
			func(context.Context) (string, error) { return "", nil }))
	}
	s := newPipeSession(t, reg, &dials, WithMiddleware(counter))

	_, err := s.LookupResource(context.Background(), "Notes")
	require.Error(t, err)
	assert.True(t, mcperrors.IsNotFound(err))
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeAmbiguousResource))
	assert.Contains(t, err.Error(), "content://a")
	assert.Contains(t, err.Error(), "content://b")
	assert.Equal(t, 1, counter.get(protocol.MethodListResources))
}

func TestSessionWarmupToleratesFailures(t *testing.T) {
	dialer := func(context.Context) (transport.Transport, error) {
		return servePipe(t, func(srv *transport.StdioTransport) {
			srv.RegisterRequestHandler(protocol.MethodInitialize, func(context.Context, json.RawMessage) (interface{}, error) {
				return &protocol.InitializeResult{
					ProtocolVersion: protocol.ProtocolRevision,
					ServerInfo:      protocol.Implementation{Name: "partial", Version: "0"},
				}, nil
			})
			srv.RegisterRequestHandler(protocol.MethodListTools, func(context.Context, json.RawMessage) (interface{}, error) {
				return &protocol.ListToolsResult{Tools: []protocol.Tool{{Name: "only-tool"}}}, nil
			})
			// prompts and resources are not implemented: MethodNotFound
		}), nil
	}
	s := NewSession(SessionConfig{Transport: testConfig()}, WithDialer(dialer))
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	_, err := s.Client(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateConnected, s.State())
	assert.Len(t, s.Tools(), 1)
	assert.Empty(t, s.Prompts())
	assert.Empty(t, s.Resources())
}

func TestSessionReconnectAndClose(t *testing.T) {
	var dials int32
	s := NewSession(SessionConfig{Transport: testConfig()}, WithDialer(func(context.Context) (transport.Transport, error) {
		atomic.AddInt32(&dials, 1)
		return serveRegistry(t, demoRegistry(t)), nil
	}))
	ctx := context.Background()

	first, err := s.Client(ctx)
	require.NoError(t, err)
	second, err := s.Reconnect(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&dials))
	assert.Len(t, s.Tools(), 1)

	<-first.Done()

	require.NoError(t, s.Close(ctx))
	assert.Equal(t, StateDisconnected, s.State())
	_, err = s.Client(ctx)
	assert.True(t, mcperrors.IsConnectionClosed(err), "got %v", err)
	<-second.Done()
}
