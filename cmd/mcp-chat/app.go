package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ajitpratap0/mcp-relay/pkg/chat"
	mcperrors "github.com/ajitpratap0/mcp-relay/pkg/errors"
	"github.com/ajitpratap0/mcp-relay/pkg/logging"
	"github.com/ajitpratap0/mcp-relay/pkg/observability"
	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
	"github.com/ajitpratap0/mcp-relay/pkg/relay"
	"github.com/ajitpratap0/mcp-relay/pkg/relay/llm"
	"github.com/ajitpratap0/mcp-relay/pkg/resolver"
)

// app runs chat turns: each user message is resolved against the server
// and answered by a streamed assistant message.
type app struct {
	resolver       *resolver.Resolver
	completer      llm.Completer
	conv           *chat.Conversation
	store          chat.Store
	conversationID string
	metrics        *observability.MetricsProvider
	logger         logging.Logger
	delay          time.Duration
}

// reply is an assistant message whose content is still streaming.
type reply struct {
	ID         string
	Ctx        context.Context
	Stream     relay.Stream
	Resolution *resolver.Resolution
}

// turn records input, resolves its references and starts the reply. The
// reply's context is cancelled when a newer turn starts.
func (a *app) turn(ctx context.Context, input string) (*reply, error) {
	history := a.conv.Messages()
	a.save(a.conv.Append(protocol.RoleUser, input))

	res, err := a.resolver.Resolve(ctx, input)
	if err != nil {
		return nil, err
	}
	for _, m := range res.Failed() {
		a.logger.Info("mention not resolved", logging.String("mention", m.Name), logging.ErrorField(m.Err))
	}

	id, rctx := a.conv.StartAssistant(ctx)
	var (
		stream relay.Stream
		source string
	)
	switch cmd := res.Command; {
	case cmd != nil && cmd.Err != nil:
		stream, source = relay.FromString(rctx, describeFailure(cmd), a.delay), "command"
	case cmd != nil && cmd.Kind == resolver.CommandTool:
		a.conv.AddToolInvocation(id, chat.ToolInvocation{
			Tool:    cmd.Target,
			Args:    stringArgs(cmd.Args),
			Result:  cmd.Tool.Text(),
			IsError: cmd.Tool.IsError,
		})
		stream, source = relay.FromToolResult(rctx, cmd.Tool, a.delay), "tool"
	case cmd != nil && cmd.Kind == resolver.CommandPrompt:
		msgs := append(toLLM(history), promptMessages(cmd.Prompt)...)
		stream, source = a.completer.Stream(rctx, msgs), a.completer.Name()
	default:
		msgs := append(toLLM(history), llm.Message{Role: protocol.RoleUser, Content: withContext(res)})
		stream, source = a.completer.Stream(rctx, msgs), a.completer.Name()
	}

	if m, ok := a.conv.Message(id); ok {
		a.save(m)
	}
	return &reply{
		ID:         id,
		Ctx:        rctx,
		Stream:     relay.Observe(stream, a.metrics, source),
		Resolution: res,
	}, nil
}

// finish persists the reply in its final state.
func (a *app) finish(id string) {
	a.conv.Finish(id)
	if m, ok := a.conv.Message(id); ok {
		a.save(m)
	}
}

func (a *app) save(m chat.Message) {
	if a.store == nil {
		return
	}
	if err := a.store.Save(a.conversationID, m); err != nil {
		a.logger.WithError(err).Warn("failed to save message", logging.String("id", m.ID))
	}
}

func describeFailure(cmd *resolver.CommandResult) string {
	switch {
	case mcperrors.IsNotFound(cmd.Err):
		return fmt.Sprintf("There is no command named /%s.", cmd.Name)
	case mcperrors.IsInvalidArgument(cmd.Err):
		return fmt.Sprintf("/%s was called with invalid arguments: %v", cmd.Name, cmd.Err)
	case mcperrors.IsConnectionError(cmd.Err):
		return fmt.Sprintf("The server is unavailable, /%s was not run. It will be restarted on the next message.", cmd.Name)
	default:
		return fmt.Sprintf("/%s failed: %v", cmd.Name, cmd.Err)
	}
}

// withContext prefixes the user's message with the resources they mentioned.
func withContext(res *resolver.Resolution) string {
	return res.Context() + res.Input
}

func toLLM(history []chat.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func promptMessages(p *protocol.GetPromptResult) []llm.Message {
	out := make([]llm.Message, 0, len(p.Messages))
	for _, m := range p.Messages {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content.Text})
	}
	return out
}

func stringArgs(args map[string]string) map[string]interface{} {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
