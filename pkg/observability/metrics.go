// Package observability provides Prometheus metrics and OpenTelemetry tracing
// for the session, the capability registry and the streaming relay.
package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by every counter.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// MetricsConfig configures the Prometheus metrics provider
type MetricsConfig struct {
	// Namespace prefixes every metric name
	Namespace string

	// ServiceName and ServiceVersion become constant labels
	ServiceName    string
	ServiceVersion string

	// ConstLabels are added to every metric
	ConstLabels prometheus.Labels

	// HistogramBuckets for request latency, in seconds
	HistogramBuckets []float64

	// MetricsPath and ListenAddr configure Serve
	MetricsPath string
	ListenAddr  string
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace:        "mcp_relay",
		ServiceName:      "mcp-relay",
		ServiceVersion:   "dev",
		HistogramBuckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		MetricsPath:      "/metrics",
		ListenAddr:       ":9090",
	}
}

// MetricsProvider records session, registry and relay metrics on its own
// registry. A nil *MetricsProvider is valid and records nothing.
type MetricsProvider struct {
	config   MetricsConfig
	registry *prometheus.Registry
	server   *http.Server

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	toolCallsTotal   *prometheus.CounterVec
	promptGetsTotal  *prometheus.CounterVec
	connectionState  *prometheus.GaugeVec
	mentionsTotal    *prometheus.CounterVec
	streamChunkTotal *prometheus.CounterVec
}

// NewMetricsProvider creates a metrics provider and registers its collectors.
func NewMetricsProvider(config MetricsConfig) (*MetricsProvider, error) {
	defaults := DefaultMetricsConfig()
	if config.Namespace == "" {
		config.Namespace = defaults.Namespace
	}
	if len(config.HistogramBuckets) == 0 {
		config.HistogramBuckets = defaults.HistogramBuckets
	}
	if config.MetricsPath == "" {
		config.MetricsPath = defaults.MetricsPath
	}
	if config.ListenAddr == "" {
		config.ListenAddr = defaults.ListenAddr
	}

	constLabels := prometheus.Labels{}
	for k, v := range config.ConstLabels {
		constLabels[k] = v
	}
	if config.ServiceName != "" {
		constLabels["service"] = config.ServiceName
	}
	if config.ServiceVersion != "" {
		constLabels["version"] = config.ServiceVersion
	}

	p := &MetricsProvider{
		config:   config,
		registry: prometheus.NewRegistry(),
	}

	p.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "requests_total",
			Help:        "JSON-RPC requests sent or served, by method and outcome",
			ConstLabels: constLabels,
		},
		[]string{"method", "status"},
	)
	p.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "request_duration_seconds",
			Help:        "JSON-RPC request latency",
			Buckets:     config.HistogramBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method"},
	)
	p.toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "tool_calls_total",
			Help:        "Tool executions by tool and outcome",
			ConstLabels: constLabels,
		},
		[]string{"tool", "status"},
	)
	p.promptGetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "prompt_gets_total",
			Help:        "Prompt renders by prompt and outcome",
			ConstLabels: constLabels,
		},
		[]string{"prompt", "status"},
	)
	p.connectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "connection_state",
			Help:        "Current session state; the active state is 1",
			ConstLabels: constLabels,
		},
		[]string{"state"},
	)
	p.mentionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "resolver_mentions_total",
			Help:        "Resolved @mentions by outcome",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	p.streamChunkTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "stream_chunks_total",
			Help:        "Chunks relayed to sinks, by source",
			ConstLabels: constLabels,
		},
		[]string{"source"},
	)

	for _, c := range []prometheus.Collector{
		p.requestsTotal,
		p.requestDuration,
		p.toolCallsTotal,
		p.promptGetsTotal,
		p.connectionState,
		p.mentionsTotal,
		p.streamChunkTotal,
	} {
		if err := p.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return p, nil
}

// Registry exposes the underlying registry, mainly for tests.
func (p *MetricsProvider) Registry() *prometheus.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

// RecordRequest records one JSON-RPC request.
func (p *MetricsProvider) RecordRequest(method string, err error, duration time.Duration) {
	if p == nil {
		return
	}
	p.requestsTotal.WithLabelValues(method, statusOf(err)).Inc()
	p.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordToolCall records a tool execution. isError marks a contained
// execution failure.
func (p *MetricsProvider) RecordToolCall(tool string, isError bool) {
	if p == nil {
		return
	}
	status := StatusSuccess
	if isError {
		status = StatusError
	}
	p.toolCallsTotal.WithLabelValues(tool, status).Inc()
}

// RecordPromptGet records a prompt render.
func (p *MetricsProvider) RecordPromptGet(prompt string, err error) {
	if p == nil {
		return
	}
	p.promptGetsTotal.WithLabelValues(prompt, statusOf(err)).Inc()
}

// RecordConnectionState marks state as the only active session state.
func (p *MetricsProvider) RecordConnectionState(state string) {
	if p == nil {
		return
	}
	for _, s := range []string{"disconnected", "connecting", "connected"} {
		p.connectionState.WithLabelValues(s).Set(0)
	}
	p.connectionState.WithLabelValues(state).Set(1)
}

// RecordMention records the outcome of one @mention.
func (p *MetricsProvider) RecordMention(err error) {
	if p == nil {
		return
	}
	p.mentionsTotal.WithLabelValues(statusOf(err)).Inc()
}

// RecordStreamChunk records one chunk delivered from source.
func (p *MetricsProvider) RecordStreamChunk(source string) {
	if p == nil {
		return
	}
	p.streamChunkTotal.WithLabelValues(source).Inc()
}

// Handler returns an HTTP handler exposing the provider's registry.
func (p *MetricsProvider) Handler() http.Handler {
	if p == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Serve starts the metrics HTTP server in the background.
func (p *MetricsProvider) Serve() error {
	if p == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(p.config.MetricsPath, p.Handler())

	p.server = &http.Server{
		Addr:              p.config.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "metrics server stopped: %v\n", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the metrics server
func (p *MetricsProvider) Shutdown(ctx context.Context) error {
	if p == nil || p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
