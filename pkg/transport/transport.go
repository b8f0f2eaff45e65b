package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-relay/pkg/errors"
	"github.com/ajitpratap0/mcp-relay/pkg/logging"
	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
)

// Transport defines the interface every MCP transport implements.
type Transport interface {
	// Start begins receiving messages in the background. It returns once
	// the transport is ready to carry requests.
	Start(ctx context.Context) error

	// Stop closes the transport. In-flight requests fail with
	// ConnectionClosed.
	Stop(ctx context.Context) error

	// SendRequest sends a request and waits for the response with the same
	// correlation id. A JSON-RPC error response is returned as *protocol.Error.
	SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error)

	// SendNotification sends a one-way message.
	SendNotification(ctx context.Context, method string, params interface{}) error

	RegisterRequestHandler(method string, handler RequestHandler)
	RegisterNotificationHandler(method string, handler NotificationHandler)

	// Done is closed once the transport can no longer carry requests.
	Done() <-chan struct{}
}

// RequestHandler handles incoming requests
type RequestHandler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// NotificationHandler handles incoming notifications
type NotificationHandler func(ctx context.Context, params json.RawMessage) error

// Errors
var (
	ErrTransportStopped = errors.New("transport stopped")
	ErrAlreadyStarted   = errors.New("transport already started")
)

// Config configures a transport.
type Config struct {
	// Name identifies the transport in errors and logs.
	Name string

	// RequestTimeout bounds every SendRequest unless the caller's context
	// expires first. Zero disables the bound.
	RequestTimeout time.Duration

	// MaxMessageSize is the largest framed message accepted.
	MaxMessageSize int

	// StopGracePeriod is how long a spawned process may take to exit after
	// its stdin is closed before it is killed.
	StopGracePeriod time.Duration

	Logger logging.Logger
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Name:            "stdio",
		RequestTimeout:  30 * time.Second,
		MaxMessageSize:  10 * 1024 * 1024,
		StopGracePeriod: 2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.StopGracePeriod <= 0 {
		c.StopGracePeriod = d.StopGracePeriod
	}
	if c.Logger == nil {
		c.Logger = logging.Nop()
	}
	return c
}

// BaseTransport provides the request/response bookkeeping shared by all
// transports: handler registration, id generation and the pending map.
type BaseTransport struct {
	mu                   sync.RWMutex
	requestHandlers      map[string]RequestHandler
	notificationHandlers map[string]NotificationHandler
	pendingRequests      map[string]chan *protocol.Response
	nextID               atomic.Int64
	requestIDPrefix      string

	closed    bool
	closeErr  error
	done      chan struct{}
	closeOnce sync.Once
}

// NewBaseTransport creates a new BaseTransport
func NewBaseTransport() *BaseTransport {
	return &BaseTransport{
		requestHandlers:      make(map[string]RequestHandler),
		notificationHandlers: make(map[string]NotificationHandler),
		pendingRequests:      make(map[string]chan *protocol.Response),
		requestIDPrefix:      "req",
		done:                 make(chan struct{}),
	}
}

// RegisterRequestHandler registers a handler for incoming requests
func (t *BaseTransport) RegisterRequestHandler(method string, handler RequestHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requestHandlers[method] = handler
}

// RegisterNotificationHandler registers a handler for incoming notifications
func (t *BaseTransport) RegisterNotificationHandler(method string, handler NotificationHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notificationHandlers[method] = handler
}

// GenerateID generates a unique request ID
func (t *BaseTransport) GenerateID() string {
	return fmt.Sprintf("%s_%d", t.requestIDPrefix, t.nextID.Add(1))
}

// Done is closed by Cleanup.
func (t *BaseTransport) Done() <-chan struct{} {
	return t.done
}

// Err returns the error every pending and future request fails with, or nil
// while the transport is open.
func (t *BaseTransport) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closeErr
}

// PendingCount reports how many requests are awaiting a response.
func (t *BaseTransport) PendingCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pendingRequests)
}

// AddPending registers a response channel for id. It fails with the close
// error once the transport is closed.
func (t *BaseTransport) AddPending(id string) (chan *protocol.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, t.closeErr
	}
	ch := make(chan *protocol.Response, 1)
	t.pendingRequests[protocol.IDKey(id)] = ch
	return ch, nil
}

// RemovePending forgets id without delivering anything.
func (t *BaseTransport) RemovePending(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pendingRequests, protocol.IDKey(id))
}

// HandleResponse routes a response to its waiting caller by correlation id.
// It reports false when no caller is waiting for that id.
func (t *BaseTransport) HandleResponse(response *protocol.Response) bool {
	key := protocol.IDKey(response.ID)
	t.mu.Lock()
	ch, ok := t.pendingRequests[key]
	if ok {
		delete(t.pendingRequests, key)
	}
	t.mu.Unlock()

	if ok {
		ch <- response
	}
	return ok
}

// WaitForResponse waits for the response registered under id. A closed
// transport resolves the wait with its close error; an expired context
// resolves it with OperationTimeout.
func (t *BaseTransport) WaitForResponse(ctx context.Context, id, method string, ch chan *protocol.Response, timeout time.Duration) (*protocol.Response, error) {
	select {
	case response, ok := <-ch:
		if !ok {
			return nil, t.Err()
		}
		return response, nil
	case <-ctx.Done():
		t.RemovePending(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, mcperrors.OperationTimeout(method, timeout)
		}
		return nil, ctx.Err()
	}
}

// HandleRequest dispatches an incoming request to its handler. Handler
// errors and panics are turned into JSON-RPC error responses.
func (t *BaseTransport) HandleRequest(ctx context.Context, request *protocol.Request, logger logging.Logger) (resp *protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in request handler",
				logging.String("method", request.Method),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			resp = protocol.NewErrorResponse(request.ID, &protocol.Error{
				Code:    protocol.InternalError,
				Message: fmt.Sprintf("internal error processing %s", request.Method),
			})
		}
	}()

	t.mu.RLock()
	handler, ok := t.requestHandlers[request.Method]
	t.mu.RUnlock()

	if !ok {
		return protocol.NewErrorResponse(request.ID, &protocol.Error{
			Code:    protocol.MethodNotFound,
			Message: fmt.Sprintf("method not found: %s", request.Method),
		})
	}

	result, err := handler(ctx, request.Params)
	if err != nil {
		return protocol.NewErrorResponse(request.ID, mcperrors.ToJSONRPCError(err))
	}

	resp, err = protocol.NewResponse(request.ID, result)
	if err != nil {
		return protocol.NewErrorResponse(request.ID, &protocol.Error{
			Code:    protocol.InternalError,
			Message: err.Error(),
		})
	}
	return resp
}

// HandleNotification dispatches an incoming notification. Notifications
// without a handler are ignored.
func (t *BaseTransport) HandleNotification(ctx context.Context, notification *protocol.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing notification %s: %v", notification.Method, r)
		}
	}()

	t.mu.RLock()
	handler, ok := t.notificationHandlers[notification.Method]
	t.mu.RUnlock()

	if !ok {
		return nil
	}
	return handler(ctx, notification.Params)
}

// Cleanup closes the transport with err: every pending request is resolved
// with err, later requests fail with it, and Done is closed. Only the first
// call has an effect.
func (t *BaseTransport) Cleanup(err error) {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.closeErr = err
		pending := t.pendingRequests
		t.pendingRequests = make(map[string]chan *protocol.Response)
		t.mu.Unlock()

		for _, ch := range pending {
			close(ch)
		}
		close(t.done)
	})
}
