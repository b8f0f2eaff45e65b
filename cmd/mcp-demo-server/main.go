// Command mcp-demo-server serves the demo catalog over stdio.
//
// Stdout carries the protocol; logs go to stderr.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ajitpratap0/mcp-relay/internal/catalog"
	"github.com/ajitpratap0/mcp-relay/pkg/logging"
	"github.com/ajitpratap0/mcp-relay/pkg/observability"
	"github.com/ajitpratap0/mcp-relay/pkg/registry"
	"github.com/ajitpratap0/mcp-relay/pkg/server"
	"github.com/ajitpratap0/mcp-relay/pkg/transport"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mcp-demo-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		logLevel    = flag.String("log-level", envOr("MCP_RELAY_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
		logJSON     = flag.Bool("log-json", false, "log as JSON")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
		traceExp    = flag.String("trace-exporter", "none", "trace exporter (none, otlp-grpc, otlp-http)")
		traceURL    = flag.String("trace-endpoint", "", "OTLP endpoint")
		pageSize    = flag.Int("page-size", 0, "items per list page (0 for the default)")
	)
	flag.Parse()

	var formatter logging.Formatter = logging.NewTextFormatter()
	if *logJSON {
		formatter = logging.NewJSONFormatter()
	}
	logger := logging.New(os.Stderr, formatter).WithFields(logging.String("component", "mcp-demo-server"))
	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics *observability.MetricsProvider
	if *metricsAddr != "" {
		config := observability.DefaultMetricsConfig()
		config.ServiceName = "mcp-demo-server"
		config.ServiceVersion = version
		config.ListenAddr = *metricsAddr
		metrics, err = observability.NewMetricsProvider(config)
		if err != nil {
			return fmt.Errorf("failed to create metrics provider: %w", err)
		}
		if err := metrics.Serve(); err != nil {
			return fmt.Errorf("failed to serve metrics: %w", err)
		}
		defer shutdown(metrics.Shutdown)
		logger.Info("serving metrics", logging.String("addr", *metricsAddr))
	}

	tracer, err := observability.NewTracingProvider(ctx, observability.TracingConfig{
		ServiceName:    "mcp-demo-server",
		ServiceVersion: version,
		Exporter:       observability.ExporterType(*traceExp),
		Endpoint:       *traceURL,
		Insecure:       true,
	})
	if err != nil {
		return fmt.Errorf("failed to create tracing provider: %w", err)
	}
	defer shutdown(tracer.Shutdown)

	reg := registry.New(
		registry.WithLogger(logger),
		registry.WithMetrics(metrics),
		registry.WithTracer(tracer),
	)
	if err := catalog.Register(reg, catalog.NewIssues()); err != nil {
		return err
	}

	config := transport.DefaultConfig()
	config.Name = "stdio"
	config.Logger = logger
	var t transport.Transport = transport.NewStdioServerTransport(config)
	t = observability.NewMiddleware(tracer, metrics).Wrap(t)

	srv := server.New(t, reg,
		server.WithName("mcp-demo-server"),
		server.WithVersion(version),
		server.WithInstructions("Demo catalog: create issues, count words, and draft content. Mention @Blog Post Example or @Style Guide for reference material."),
		server.WithPageSize(*pageSize),
		server.WithLogger(logger),
	)

	logger.Info("serving on stdio", logging.String("version", version))
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func shutdown(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = fn(ctx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
