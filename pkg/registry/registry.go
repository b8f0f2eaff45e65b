// Package registry holds the tools, prompts and resources a server exposes
// and executes them.
//
// Registration happens before serving and entries are immutable afterwards.
// Lists come back in registration order. Tool arguments are checked against
// the tool's input schema before the handler runs; a handler that fails or
// panics yields a result flagged IsError rather than an error, so one broken
// tool never takes the session down.
package registry

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/yosida95/uritemplate/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	mcperrors "github.com/ajitpratap0/mcp-relay/pkg/errors"
	"github.com/ajitpratap0/mcp-relay/pkg/logging"
	"github.com/ajitpratap0/mcp-relay/pkg/observability"
	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
	"github.com/ajitpratap0/mcp-relay/pkg/schema"
)

// ToolHandler runs a tool with validated arguments and returns its text.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (string, error)

// PromptRenderer expands a prompt. args holds every declared argument, with
// defaults filled in for absent optional ones.
type PromptRenderer func(args map[string]string) []protocol.PromptMessage

// ResourceReader returns the text of a static resource.
type ResourceReader func(ctx context.Context) (string, error)

// TemplateReader returns the text of a resource matched by a URI template.
// vars holds the values of the template's variables.
type TemplateReader func(ctx context.Context, uri string, vars map[string]string) (string, error)

type toolEntry struct {
	tool    protocol.Tool
	schema  *schema.Schema
	handler ToolHandler
}

type promptEntry struct {
	prompt   protocol.Prompt
	renderer PromptRenderer
}

type resourceEntry struct {
	resource protocol.Resource
	reader   ResourceReader
}

type templateEntry struct {
	template protocol.ResourceTemplate
	compiled *uritemplate.Template
	reader   TemplateReader
}

// Registry is the capability catalog of a server. It is safe for concurrent
// use.
type Registry struct {
	mu        sync.RWMutex
	tools     []*toolEntry
	prompts   []*promptEntry
	resources []*resourceEntry
	templates []*templateEntry

	toolIndex     map[string]*toolEntry
	promptIndex   map[string]*promptEntry
	resourceIndex map[string]*resourceEntry

	logger  logging.Logger
	metrics *observability.MetricsProvider
	tracer  *observability.TracingProvider
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMetrics records tool calls and prompt renders.
func WithMetrics(m *observability.MetricsProvider) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithTracer opens a span per tool call.
func WithTracer(t *observability.TracingProvider) Option {
	return func(r *Registry) {
		r.tracer = t
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		toolIndex:     make(map[string]*toolEntry),
		promptIndex:   make(map[string]*promptEntry),
		resourceIndex: make(map[string]*resourceEntry),
		logger:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithFields(logging.String("component", "registry"))
	return r
}

// RegisterTool adds a tool. The input schema is compiled now; a schema that
// does not compile, a duplicate name or a nil handler is rejected.
func (r *Registry) RegisterTool(tool protocol.Tool, handler ToolHandler) error {
	if tool.Name == "" {
		return mcperrors.MissingArgument("name")
	}
	if handler == nil {
		return mcperrors.InvalidArgument("handler", "must not be nil")
	}
	if len(tool.InputSchema) == 0 {
		tool.InputSchema = []byte(`{"type":"object","properties":{}}`)
	}
	compiled, err := schema.Parse(tool.InputSchema)
	if err != nil {
		return mcperrors.InvalidArgument("inputSchema", err.Error())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.toolIndex[tool.Name]; exists {
		return mcperrors.InvalidArgument("name", fmt.Sprintf("tool %q already registered", tool.Name))
	}
	entry := &toolEntry{tool: tool, schema: compiled, handler: handler}
	r.tools = append(r.tools, entry)
	r.toolIndex[tool.Name] = entry
	return nil
}

// RegisterPrompt adds a prompt. Argument names must be unique and a required
// argument cannot declare a default.
func (r *Registry) RegisterPrompt(prompt protocol.Prompt, renderer PromptRenderer) error {
	if prompt.Name == "" {
		return mcperrors.MissingArgument("name")
	}
	if renderer == nil {
		return mcperrors.InvalidArgument("renderer", "must not be nil")
	}
	seen := make(map[string]bool, len(prompt.Arguments))
	for _, arg := range prompt.Arguments {
		if arg.Name == "" || seen[arg.Name] {
			return mcperrors.InvalidArgument("arguments", fmt.Sprintf("argument name %q is empty or repeated", arg.Name))
		}
		if arg.Required && arg.Default != "" {
			return mcperrors.InvalidArgument("arguments", fmt.Sprintf("required argument %q cannot have a default", arg.Name))
		}
		seen[arg.Name] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.promptIndex[prompt.Name]; exists {
		return mcperrors.InvalidArgument("name", fmt.Sprintf("prompt %q already registered", prompt.Name))
	}
	entry := &promptEntry{prompt: prompt, renderer: renderer}
	r.prompts = append(r.prompts, entry)
	r.promptIndex[prompt.Name] = entry
	return nil
}

// RegisterResource adds a static resource keyed by its URI. Names need not
// be unique.
func (r *Registry) RegisterResource(resource protocol.Resource, reader ResourceReader) error {
	if resource.URI == "" {
		return mcperrors.MissingArgument("uri")
	}
	if reader == nil {
		return mcperrors.InvalidArgument("reader", "must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resourceIndex[resource.URI]; exists {
		return mcperrors.InvalidArgument("uri", fmt.Sprintf("resource %q already registered", resource.URI))
	}
	entry := &resourceEntry{resource: resource, reader: reader}
	r.resources = append(r.resources, entry)
	r.resourceIndex[resource.URI] = entry
	return nil
}

// RegisterResourceTemplate adds a family of resources addressed by an RFC
// 6570 URI template such as "issues://{id}".
func (r *Registry) RegisterResourceTemplate(tmpl protocol.ResourceTemplate, reader TemplateReader) error {
	if tmpl.URITemplate == "" {
		return mcperrors.MissingArgument("uriTemplate")
	}
	if reader == nil {
		return mcperrors.InvalidArgument("reader", "must not be nil")
	}
	compiled, err := uritemplate.New(tmpl.URITemplate)
	if err != nil {
		return mcperrors.InvalidArgument("uriTemplate", err.Error())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.templates {
		if existing.template.URITemplate == tmpl.URITemplate {
			return mcperrors.InvalidArgument("uriTemplate", fmt.Sprintf("template %q already registered", tmpl.URITemplate))
		}
	}
	r.templates = append(r.templates, &templateEntry{template: tmpl, compiled: compiled, reader: reader})
	return nil
}

// ListTools returns every tool in registration order.
func (r *Registry) ListTools() []protocol.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Tool, len(r.tools))
	for i, e := range r.tools {
		out[i] = e.tool
	}
	return out
}

// ListPrompts returns every prompt in registration order.
func (r *Registry) ListPrompts() []protocol.Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Prompt, len(r.prompts))
	for i, e := range r.prompts {
		out[i] = e.prompt
	}
	return out
}

// ListResources returns every static resource in registration order.
func (r *Registry) ListResources() []protocol.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Resource, len(r.resources))
	for i, e := range r.resources {
		out[i] = e.resource
	}
	return out
}

// ListResourceTemplates returns every resource template in registration order.
func (r *Registry) ListResourceTemplates() []protocol.ResourceTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.ResourceTemplate, len(r.templates))
	for i, e := range r.templates {
		out[i] = e.template
	}
	return out
}

// CallTool validates args and runs the tool. An unknown tool is NotFound and
// invalid arguments are InvalidArgument; in both cases the handler is not
// invoked. A handler error or panic is returned as a result with IsError set
// and a nil error.
func (r *Registry) CallTool(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	r.mu.RLock()
	entry, ok := r.toolIndex[name]
	r.mu.RUnlock()
	if !ok {
		return nil, mcperrors.ToolNotFound(name)
	}

	args = entry.schema.ApplyDefaults(args)
	if problems := entry.schema.Validate(args); len(problems) > 0 {
		return nil, mcperrors.InvalidArguments("tool "+name, problems)
	}

	ctx, span := r.tracer.StartSpan(ctx, "tool."+name, trace.WithAttributes(attribute.String("mcp.tool", name)))
	defer span.End()

	start := time.Now()
	text, err := r.runTool(ctx, entry, args)
	log := r.logger.WithContext(ctx).WithFields(
		logging.String("tool", name),
		logging.Duration("duration", time.Since(start)),
	)

	if err != nil {
		log.WithError(err).Warn("tool execution failed")
		r.metrics.RecordToolCall(name, true)
		span.SetAttributes(attribute.Bool("mcp.tool.is_error", true))
		return protocol.NewToolErrorResult(mcperrors.ExecutionFailed(name, err).Error()), nil
	}
	log.Debug("tool executed")
	r.metrics.RecordToolCall(name, false)
	return protocol.NewToolResult(text), nil
}

func (r *Registry) runTool(ctx context.Context, entry *toolEntry, args map[string]interface{}) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic in tool handler",
				logging.String("tool", entry.tool.Name),
				logging.Any("panic", p),
				logging.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return entry.handler(ctx, args)
}

// GetPrompt expands a prompt. An unknown prompt is NotFound; a missing
// required argument is InvalidArgument. The same arguments always produce
// the same messages.
func (r *Registry) GetPrompt(name string, args map[string]string) (*protocol.GetPromptResult, error) {
	r.mu.RLock()
	entry, ok := r.promptIndex[name]
	r.mu.RUnlock()
	if !ok {
		err := mcperrors.PromptNotFound(name)
		r.metrics.RecordPromptGet(name, err)
		return nil, err
	}

	resolved := make(map[string]string, len(entry.prompt.Arguments))
	var problems []mcperrors.FieldError
	for _, arg := range entry.prompt.Arguments {
		value, present := args[arg.Name]
		switch {
		case present && value != "":
			resolved[arg.Name] = value
		case arg.Required:
			problems = append(problems, mcperrors.FieldError{Field: arg.Name, Reason: "required"})
		default:
			resolved[arg.Name] = arg.Default
		}
	}
	if err := mcperrors.InvalidArguments("prompt "+name, problems); err != nil {
		r.metrics.RecordPromptGet(name, err)
		return nil, err
	}

	messages := entry.renderer(resolved)
	r.metrics.RecordPromptGet(name, nil)
	return &protocol.GetPromptResult{
		Description: entry.prompt.Description,
		Messages:    messages,
	}, nil
}

// ReadResource returns the contents behind uri. Static resources are
// checked first, then templates in registration order.
func (r *Registry) ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	r.mu.RLock()
	entry, ok := r.resourceIndex[uri]
	templates := r.templates
	r.mu.RUnlock()

	if ok {
		text, err := entry.reader(ctx)
		if err != nil {
			return nil, mcperrors.ExecutionFailed(uri, err)
		}
		return &protocol.ReadResourceResult{Contents: []protocol.ResourceContents{{
			URI:      uri,
			MimeType: entry.resource.MimeType,
			Text:     text,
		}}}, nil
	}

	for _, t := range templates {
		values := t.compiled.Match(uri)
		if values == nil {
			continue
		}
		vars := make(map[string]string)
		for _, name := range t.compiled.Varnames() {
			vars[name] = values.Get(name).String()
		}
		text, err := t.reader(ctx, uri, vars)
		if err != nil {
			if mcperrors.IsNotFound(err) {
				return nil, err
			}
			return nil, mcperrors.ExecutionFailed(uri, err)
		}
		return &protocol.ReadResourceResult{Contents: []protocol.ResourceContents{{
			URI:      uri,
			MimeType: t.template.MimeType,
			Text:     text,
		}}}, nil
	}

	return nil, mcperrors.ResourceNotFound(uri)
}
