// Package llm adapts model completion APIs to relay streams.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ajitpratap0/mcp-relay/pkg/logging"
	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
	"github.com/ajitpratap0/mcp-relay/pkg/relay"
)

// Message is one turn of the conversation sent to a model.
type Message struct {
	Role    protocol.Role
	Content string
}

// Completer produces the model's reply as a stream of text chunks.
type Completer interface {
	Name() string
	Stream(ctx context.Context, messages []Message) relay.Stream
}

// splitSystem separates system messages, joined, from the conversation.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == protocol.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

// Echo answers without a model: it repeats the last user message.
type Echo struct {
	Delay time.Duration
}

func (Echo) Name() string { return "echo" }

func (e Echo) Stream(ctx context.Context, messages []Message) relay.Stream {
	last := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == protocol.RoleUser {
			last = messages[i].Content
			break
		}
	}
	return relay.FromString(ctx, "You said: "+last, e.Delay)
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// FromEnv picks a provider from the first API key found in the environment:
// ANTHROPIC_API_KEY, OPENAI_API_KEY, then GEMINI_API_KEY. Without any key
// the Echo completer is used.
func FromEnv(ctx context.Context, model string, logger logging.Logger) (Completer, error) {
	for _, p := range []struct{ provider, env string }{
		{"anthropic", "ANTHROPIC_API_KEY"},
		{"openai", "OPENAI_API_KEY"},
		{"gemini", "GEMINI_API_KEY"},
	} {
		if key := os.Getenv(p.env); key != "" {
			logger.Info("using model provider", logging.String("provider", p.provider))
			return New(ctx, Config{Provider: p.provider, Model: model, APIKey: key})
		}
	}
	logger.Info("no model API key set, echoing input")
	return Echo{Delay: relay.DefaultDelay}, nil
}

// New creates the completer named by config.Provider.
func New(ctx context.Context, config Config) (Completer, error) {
	switch config.Provider {
	case "anthropic":
		return NewAnthropic(config), nil
	case "openai":
		return NewOpenAI(config), nil
	case "gemini":
		return NewGemini(ctx, config)
	case "echo", "":
		return Echo{Delay: relay.DefaultDelay}, nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", config.Provider)
	}
}
