package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ajitpratap0/mcp-relay/pkg/logging"
)

// Middleware wraps a transport to add behaviour around its calls.
type Middleware interface {
	Wrap(transport Transport) Transport
}

// MiddlewareFunc is an adapter to allow the use of ordinary functions as middleware
type MiddlewareFunc func(Transport) Transport

// Wrap implements the Middleware interface
func (f MiddlewareFunc) Wrap(t Transport) Transport {
	return f(t)
}

// Chain composes middleware so that the first one is the outermost.
func Chain(middleware ...Middleware) Middleware {
	return MiddlewareFunc(func(transport Transport) Transport {
		for i := len(middleware) - 1; i >= 0; i-- {
			transport = middleware[i].Wrap(transport)
		}
		return transport
	})
}

// Base delegates every call to Next. Middleware embed it and override the
// calls they care about.
type Base struct {
	Next Transport
}

func (m *Base) Start(ctx context.Context) error { return m.Next.Start(ctx) }
func (m *Base) Stop(ctx context.Context) error  { return m.Next.Stop(ctx) }
func (m *Base) Done() <-chan struct{}           { return m.Next.Done() }

func (m *Base) SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return m.Next.SendRequest(ctx, method, params)
}

func (m *Base) SendNotification(ctx context.Context, method string, params interface{}) error {
	return m.Next.SendNotification(ctx, method, params)
}

func (m *Base) RegisterRequestHandler(method string, handler RequestHandler) {
	m.Next.RegisterRequestHandler(method, handler)
}

func (m *Base) RegisterNotificationHandler(method string, handler NotificationHandler) {
	m.Next.RegisterNotificationHandler(method, handler)
}

// Unwrap returns the wrapped transport.
func (m *Base) Unwrap() Transport { return m.Next }

// LoggingMiddleware logs every outgoing request and every handled incoming
// request at debug level, and failures at warn level.
func LoggingMiddleware(logger logging.Logger) Middleware {
	return MiddlewareFunc(func(next Transport) Transport {
		return &loggingTransport{
			Base:   Base{Next: next},
			logger: logger.WithFields(logging.String("component", "transport")),
		}
	})
}

type loggingTransport struct {
	Base
	logger logging.Logger
}

func (l *loggingTransport) SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	start := time.Now()
	result, err := l.Next.SendRequest(ctx, method, params)
	log := l.logger.WithContext(ctx)
	if err != nil {
		log.WithError(err).Warn("request failed",
			logging.String("method", method),
			logging.Duration("duration", time.Since(start)),
		)
		return nil, err
	}
	log.Debug("request completed",
		logging.String("method", method),
		logging.Duration("duration", time.Since(start)),
		logging.Int("bytes", len(result)),
	)
	return result, nil
}

func (l *loggingTransport) RegisterRequestHandler(method string, handler RequestHandler) {
	l.Next.RegisterRequestHandler(method, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		start := time.Now()
		result, err := handler(ctx, params)
		log := l.logger.WithContext(ctx)
		if err != nil {
			log.WithError(err).Warn("handler failed",
				logging.String("method", method),
				logging.Duration("duration", time.Since(start)),
			)
			return nil, err
		}
		log.Debug("handled request",
			logging.String("method", method),
			logging.Duration("duration", time.Since(start)),
		)
		return result, nil
	})
}
