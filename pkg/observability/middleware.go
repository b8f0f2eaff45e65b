package observability

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	mcperrors "github.com/ajitpratap0/mcp-relay/pkg/errors"
	"github.com/ajitpratap0/mcp-relay/pkg/transport"
)

// Middleware records a span and request metrics for every request sent
// through, or handled by, the wrapped transport. Either provider may be nil.
type Middleware struct {
	tracer  *TracingProvider
	metrics *MetricsProvider
}

// NewMiddleware creates transport middleware backed by the given providers.
func NewMiddleware(tracer *TracingProvider, metrics *MetricsProvider) *Middleware {
	return &Middleware{tracer: tracer, metrics: metrics}
}

// Wrap implements transport.Middleware
func (m *Middleware) Wrap(next transport.Transport) transport.Transport {
	return &observedTransport{Base: transport.Base{Next: next}, m: m}
}

type observedTransport struct {
	transport.Base
	m *Middleware
}

func (o *observedTransport) SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	ctx, span := o.m.tracer.StartMethodSpan(ctx, method, trace.SpanKindClient)
	start := time.Now()

	result, err := o.Next.SendRequest(ctx, method, params)

	o.m.metrics.RecordRequest(method, err, time.Since(start))
	annotate(span, err)
	EndSpan(span, err)
	return result, err
}

func (o *observedTransport) RegisterRequestHandler(method string, handler transport.RequestHandler) {
	o.Next.RegisterRequestHandler(method, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		ctx, span := o.m.tracer.StartMethodSpan(ctx, method, trace.SpanKindServer)
		start := time.Now()

		result, err := handler(ctx, params)

		o.m.metrics.RecordRequest(method, err, time.Since(start))
		annotate(span, err)
		EndSpan(span, err)
		return result, err
	})
}

func annotate(span trace.Span, err error) {
	if mcpErr, ok := mcperrors.AsMCPError(err); ok {
		span.SetAttributes(
			attribute.Int("mcp.error.code", mcpErr.Code()),
			attribute.String("mcp.error.category", string(mcpErr.Category())),
		)
	}
}
