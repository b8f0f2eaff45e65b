package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"
	"golang.org/x/sync/errgroup"

	mcperrors "github.com/ajitpratap0/mcp-relay/pkg/errors"
	"github.com/ajitpratap0/mcp-relay/pkg/logging"
	"github.com/ajitpratap0/mcp-relay/pkg/observability"
	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
	"github.com/ajitpratap0/mcp-relay/pkg/schema"
)

// Session is the part of client.Session the resolver needs.
type Session interface {
	Tools() []protocol.Tool
	Prompts() []protocol.Prompt
	Resources() []protocol.Resource
	RefreshTools(ctx context.Context) ([]protocol.Tool, error)
	RefreshPrompts(ctx context.Context) ([]protocol.Prompt, error)
	RefreshResources(ctx context.Context) ([]protocol.Resource, error)
	LookupResource(ctx context.Context, name string) (protocol.Resource, error)
	ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (*protocol.GetPromptResult, error)
}

// CommandKind says what a /command resolved to.
type CommandKind string

const (
	CommandTool   CommandKind = "tool"
	CommandPrompt CommandKind = "prompt"
)

// CommandResult is the outcome of a /command.
type CommandResult struct {
	// Name is the command as typed; Target is the capability it matched.
	Name   string
	Target string
	Kind   CommandKind
	Args   map[string]string

	Tool   *protocol.CallToolResult
	Prompt *protocol.GetPromptResult
	Err    error
}

// MentionResult is the outcome of one @mention.
type MentionResult struct {
	Name     string
	Resource protocol.Resource
	Contents *protocol.ReadResourceResult
	Err      error
}

// Resolution is everything a message referred to.
type Resolution struct {
	Input    string
	Tokens   []Token
	Command  *CommandResult
	Mentions []MentionResult
}

// Resolved returns the mentions that were fetched.
func (r *Resolution) Resolved() []MentionResult {
	var out []MentionResult
	for _, m := range r.Mentions {
		if m.Err == nil {
			out = append(out, m)
		}
	}
	return out
}

// Failed returns the mentions that could not be resolved or fetched.
func (r *Resolution) Failed() []MentionResult {
	var out []MentionResult
	for _, m := range r.Mentions {
		if m.Err != nil {
			out = append(out, m)
		}
	}
	return out
}

// Context renders the fetched resources as a block to prepend to a model
// prompt. It is empty when nothing was fetched.
func (r *Resolution) Context() string {
	var b strings.Builder
	for _, m := range r.Resolved() {
		fmt.Fprintf(&b, "Resource %q (%s):\n", m.Resource.Name, m.Resource.URI)
		b.WriteString(m.Contents.Text())
		if !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Resolver resolves /commands and @mentions through a Session.
type Resolver struct {
	session     Session
	logger      logging.Logger
	metrics     *observability.MetricsProvider
	concurrency int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithMetrics records mention outcomes.
func WithMetrics(m *observability.MetricsProvider) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithConcurrency bounds how many mentions are fetched at once.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		r.concurrency = n
	}
}

// New creates a resolver over session.
func New(session Session, opts ...Option) *Resolver {
	r := &Resolver{
		session:     session,
		logger:      logging.Nop(),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithFields(logging.String("component", "resolver"))
	return r
}

// Resolve runs the command in input, if any, and fetches every mentioned
// resource. Failures are recorded per reference; the returned error is only
// set when ctx ends first.
func (r *Resolver) Resolve(ctx context.Context, input string) (*Resolution, error) {
	res := &Resolution{Input: input, Tokens: Tokenize(input)}

	for _, tok := range res.Tokens {
		if tok.Kind == KindCommand {
			res.Command = r.runCommand(ctx, tok)
			break
		}
	}

	res.Mentions = r.resolveMentions(ctx, input)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (r *Resolver) runCommand(ctx context.Context, tok Token) *CommandResult {
	result := &CommandResult{Name: tok.Name, Args: tok.Args}

	kind, tool, prompt, err := r.findCommand(ctx, tok.Name)
	if err != nil {
		result.Err = err
		r.logger.Info("unknown command", logging.String("command", tok.Name))
		return result
	}
	result.Kind = kind

	switch kind {
	case CommandTool:
		result.Target = tool.Name
		args, err := coerceArgs(tool, tok.Args)
		if err != nil {
			result.Err = err
			return result
		}
		result.Tool, result.Err = r.session.CallTool(ctx, tool.Name, args)
	case CommandPrompt:
		result.Target = prompt.Name
		result.Prompt, result.Err = r.session.GetPrompt(ctx, prompt.Name, tok.Args)
	}

	if result.Err != nil {
		r.logger.WithError(result.Err).Info("command failed", logging.String("command", tok.Name))
	}
	return result
}

// findCommand matches name against tools first, then prompts. A miss on the
// cached lists refreshes both once.
func (r *Resolver) findCommand(ctx context.Context, name string) (CommandKind, protocol.Tool, protocol.Prompt, error) {
	if kind, tool, prompt, ok := matchCommand(name, r.session.Tools(), r.session.Prompts()); ok {
		return kind, tool, prompt, nil
	}

	tools, terr := r.session.RefreshTools(ctx)
	prompts, perr := r.session.RefreshPrompts(ctx)
	if terr != nil && perr != nil {
		return "", protocol.Tool{}, protocol.Prompt{}, terr
	}
	if kind, tool, prompt, ok := matchCommand(name, tools, prompts); ok {
		return kind, tool, prompt, nil
	}
	return "", protocol.Tool{}, protocol.Prompt{}, mcperrors.CommandNotFound(name)
}

func matchCommand(name string, tools []protocol.Tool, prompts []protocol.Prompt) (CommandKind, protocol.Tool, protocol.Prompt, bool) {
	for _, t := range tools {
		if t.Name == name {
			return CommandTool, t, protocol.Prompt{}, true
		}
	}
	for _, p := range prompts {
		if p.Name == name {
			return CommandPrompt, protocol.Tool{}, p, true
		}
	}

	kebab := strcase.ToKebab(name)
	for _, t := range tools {
		if strcase.ToKebab(t.Name) == kebab {
			return CommandTool, t, protocol.Prompt{}, true
		}
	}
	for _, p := range prompts {
		if strcase.ToKebab(p.Name) == kebab {
			return CommandPrompt, protocol.Tool{}, p, true
		}
	}
	return "", protocol.Tool{}, protocol.Prompt{}, false
}

func coerceArgs(tool protocol.Tool, raw map[string]string) (map[string]interface{}, error) {
	s, err := schema.Parse(tool.InputSchema)
	if err != nil {
		return nil, mcperrors.InvalidArgument("inputSchema", err.Error())
	}
	return s.Coerce(raw), nil
}

func (r *Resolver) resolveMentions(ctx context.Context, input string) []MentionResult {
	names := r.mentionNames(ctx, input)
	if len(names) == 0 {
		return nil
	}

	results := make([]MentionResult, len(names))
	g := new(errgroup.Group)
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	for i, name := range names {
		g.Go(func() error {
			results[i] = r.resolveMention(ctx, name)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// mentionNames splits the mentions in input using the cached resource names.
// Multi-word names can only be recognized against a known list, so when any
// mention is not a known name the list is refreshed once and the input is
// split again. This covers a cold cache and a restarted server.
func (r *Resolver) mentionNames(ctx context.Context, input string) []string {
	known := resourceNames(r.session.Resources())
	names := ExtractMentions(input, known)
	if len(names) == 0 || allKnown(names, known) {
		return names
	}

	resources, err := r.session.RefreshResources(ctx)
	if err != nil {
		r.logger.WithError(err).Debug("resource refresh failed")
		return names
	}
	return ExtractMentions(input, resourceNames(resources))
}

func allKnown(names, known []string) bool {
	set := make(map[string]bool, len(known))
	for _, k := range known {
		set[k] = true
	}
	for _, n := range names {
		if !set[n] {
			return false
		}
	}
	return true
}

func (r *Resolver) resolveMention(ctx context.Context, name string) MentionResult {
	result := MentionResult{Name: name}
	defer func() { r.metrics.RecordMention(result.Err) }()

	res, err := r.session.LookupResource(ctx, name)
	if err != nil {
		result.Err = err
		r.logger.WithError(err).Info("mention unresolved", logging.String("mention", name))
		return result
	}
	result.Resource = res

	contents, err := r.session.ReadResource(ctx, res.URI)
	if err != nil {
		result.Err = err
		r.logger.WithError(err).Info("mention fetch failed",
			logging.String("mention", name),
			logging.String("uri", res.URI),
		)
		return result
	}
	result.Contents = contents
	return result
}

func resourceNames(resources []protocol.Resource) []string {
	names := make([]string, 0, len(resources))
	for _, res := range resources {
		names = append(names, res.Name)
	}
	return names
}
