// Command mcp-chat is a terminal chat client for an MCP server.
//
// It spawns the server, resolves /commands and @mentions against it, and
// streams replies from a model (or an echo when no API key is set). With
// -http it also serves the conversation as Server-Sent Events on /chat.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ajitpratap0/mcp-relay/pkg/chat"
	"github.com/ajitpratap0/mcp-relay/pkg/chat/sqlitestore"
	"github.com/ajitpratap0/mcp-relay/pkg/client"
	"github.com/ajitpratap0/mcp-relay/pkg/logging"
	"github.com/ajitpratap0/mcp-relay/pkg/observability"
	"github.com/ajitpratap0/mcp-relay/pkg/relay"
	"github.com/ajitpratap0/mcp-relay/pkg/relay/llm"
	"github.com/ajitpratap0/mcp-relay/pkg/relay/ssesink"
	"github.com/ajitpratap0/mcp-relay/pkg/resolver"
	"github.com/ajitpratap0/mcp-relay/pkg/transport"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mcp-chat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		serverCmd      = flag.String("server", "mcp-demo-server", "MCP server command to spawn; extra arguments follow --")
		provider       = flag.String("provider", "", "model provider (anthropic, openai, gemini, echo); chosen from API keys when empty")
		model          = flag.String("model", "", "model name (provider default when empty)")
		dbPath         = flag.String("db", "", "SQLite file for chat history (in memory when empty)")
		conversationID = flag.String("conversation", "default", "conversation to resume")
		httpAddr       = flag.String("http", "", "serve /chat as Server-Sent Events on this address")
		logLevel       = flag.String("log-level", envOr("MCP_RELAY_LOG_LEVEL", "warn"), "log level (debug, info, warn, error)")
		delay          = flag.Duration("delay", relay.DefaultDelay, "delay between words of non-model replies")
	)
	flag.Parse()

	logger := logging.New(os.Stderr, logging.NewTextFormatter()).WithFields(logging.String("component", "mcp-chat"))
	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, err := observability.NewMetricsProvider(observability.MetricsConfig{ServiceName: "mcp-chat", ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("failed to create metrics provider: %w", err)
	}

	config := client.DefaultSessionConfig(*serverCmd, flag.Args()...)
	config.ClientName = "mcp-chat"
	config.ClientVersion = version
	config.Transport.Logger = logger
	session := client.NewSession(config,
		client.WithSessionLogger(logger),
		client.WithMetrics(metrics),
		client.WithMiddleware(
			transport.LoggingMiddleware(logger),
			observability.NewMiddleware(nil, metrics),
		),
	)
	defer session.Close(context.Background())

	var completer llm.Completer
	if *provider == "" {
		completer, err = llm.FromEnv(ctx, *model, logger)
	} else {
		completer, err = llm.New(ctx, llm.Config{Provider: *provider, Model: *model, APIKey: apiKey(*provider)})
	}
	if err != nil {
		return err
	}

	var store chat.Store
	var history []chat.Message
	if *dbPath != "" {
		s, err := sqlitestore.New(*dbPath)
		if err != nil {
			return err
		}
		defer s.Close()
		if history, err = s.Load(*conversationID); err != nil {
			return err
		}
		store = s
	}

	a := &app{
		resolver:       resolver.New(session, resolver.WithLogger(logger), resolver.WithMetrics(metrics)),
		completer:      completer,
		conv:           chat.NewConversation(history...),
		store:          store,
		conversationID: *conversationID,
		metrics:        metrics,
		logger:         logger,
		delay:          *delay,
	}

	if c, err := session.Client(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server not available yet: %v\n", err)
	} else {
		info := c.ServerInfo()
		fmt.Printf("Connected to %s %s using %s. Type :help for help.\n", info.Name, info.Version, completer.Name())
		if instr := c.Instructions(); instr != "" {
			fmt.Println(instr)
		}
	}

	if *httpAddr != "" {
		srv := &http.Server{
			Addr:              *httpAddr,
			Handler:           a.routes(metrics),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("http server stopped")
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	return a.repl(ctx, session, os.Stdin, os.Stdout)
}

func (a *app) routes(metrics *observability.MetricsProvider) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /chat", func(w http.ResponseWriter, r *http.Request) {
		message := r.URL.Query().Get("message")
		if strings.TrimSpace(message) == "" {
			http.Error(w, "message is required", http.StatusBadRequest)
			return
		}
		rep, err := a.turn(r.Context(), message)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		defer a.finish(rep.ID)
		ssesink.Serve(w, r, rep.Stream, a.logger, chat.NewSink(a.conv, rep.ID))
	})
	mux.Handle("GET /metrics", metrics.Handler())
	return logging.HTTPMiddleware(a.logger)(mux)
}

const help = `Commands:
  /<tool or prompt> key=value ...   run a tool or expand a prompt
  @<resource name>                  attach a resource to your message
  :tools :prompts :resources        list what the server offers
  :reconnect                        restart the server
  :quit                             exit`

func (a *app) repl(ctx context.Context, session *client.Session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case ":quit", ":exit":
			return nil
		case ":help":
			fmt.Fprintln(out, help)
			continue
		case ":tools":
			for _, t := range session.Tools() {
				fmt.Fprintf(out, "  /%s  %s\n", t.Name, t.Description)
			}
			continue
		case ":prompts":
			for _, p := range session.Prompts() {
				fmt.Fprintf(out, "  /%s  %s\n", p.Name, p.Description)
			}
			continue
		case ":resources":
			for _, r := range session.Resources() {
				fmt.Fprintf(out, "  @%s  %s\n", r.Name, r.URI)
			}
			continue
		case ":reconnect":
			if _, err := session.Reconnect(ctx); err != nil {
				fmt.Fprintf(out, "reconnect failed: %v\n", err)
			}
			continue
		}

		if err := a.respond(ctx, line, out); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "\n[error: %v]\n", err)
		}
	}
}

// respond runs one turn and prints the reply as it streams.
func (a *app) respond(ctx context.Context, line string, out io.Writer) error {
	rep, err := a.turn(ctx, line)
	if err != nil {
		return err
	}
	defer a.finish(rep.ID)

	for _, m := range rep.Resolution.Failed() {
		fmt.Fprintf(out, "[could not attach @%s: %v]\n", m.Name, m.Err)
	}
	for _, m := range rep.Resolution.Resolved() {
		fmt.Fprintf(out, "[attached %s]\n", m.Resource.Name)
	}

	err = chat.Consume(rep.Ctx, a.conv, rep.ID, relay.Tap(rep.Stream, func(c relay.Chunk) {
		fmt.Fprint(out, c.Text)
	}))
	fmt.Fprintln(out)
	return err
}

func apiKey(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	}
	return ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
