package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/ajitpratap0/mcp-relay/pkg/errors"
	"github.com/ajitpratap0/mcp-relay/pkg/observability"
	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
)

const issueSchema = `{
	"type": "object",
	"properties": {
		"title":    {"type": "string", "minLength": 1},
		"priority": {"type": "integer", "minimum": 1, "maximum": 4, "default": 2}
	},
	"required": ["title"]
}`

func newIssueRegistry(t *testing.T, calls *int32) *Registry {
	t.Helper()
	r := New()
	require.NoError(t, r.RegisterTool(protocol.Tool{
		Name:        "create-issue",
		Description: "Create an issue",
		InputSchema: json.RawMessage(issueSchema),
	}, func(ctx context.Context, args map[string]interface{}) (string, error) {
		atomic.AddInt32(calls, 1)
		return fmt.Sprintf("Created issue: %s (priority %v)", args["title"], args["priority"]), nil
	}))
	return r
}

func TestCallToolRejectsOutOfRangeArgumentWithoutCallingHandler(t *testing.T) {
	var calls int32
	r := newIssueRegistry(t, &calls)

	_, err := r.CallTool(context.Background(), "create-issue", map[string]interface{}{
		"title":    "Bug",
		"priority": float64(5),
	})
	require.Error(t, err)
	assert.True(t, mcperrors.IsInvalidArgument(err))
	assert.Contains(t, err.Error(), "priority")
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestCallToolMissingRequired(t *testing.T) {
	var calls int32
	r := newIssueRegistry(t, &calls)

	_, err := r.CallTool(context.Background(), "create-issue", nil)
	assert.True(t, mcperrors.IsInvalidArgument(err))

	mcpErr, ok := mcperrors.AsMCPError(err)
	require.True(t, ok)
	data, ok := mcpErr.Data().(*mcperrors.ValidationErrorData)
	require.True(t, ok)
	assert.Equal(t, []mcperrors.FieldError{{Field: "title", Reason: "required"}}, data.Fields)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestCallToolAppliesDefaults(t *testing.T) {
	var calls int32
	r := newIssueRegistry(t, &calls)

	result, err := r.CallTool(context.Background(), "create-issue", map[string]interface{}{"title": "Bug"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "Created issue: Bug (priority 2)", result.Text())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCallToolUnknown(t *testing.T) {
	r := New()
	_, err := r.CallTool(context.Background(), "nope", nil)
	assert.True(t, mcperrors.IsNotFound(err))
}

func TestCallToolContainsHandlerFailures(t *testing.T) {
	metrics, err := observability.NewMetricsProvider(observability.MetricsConfig{})
	require.NoError(t, err)
	r := New(WithMetrics(metrics))

	require.NoError(t, r.RegisterTool(protocol.Tool{Name: "fail"}, func(context.Context, map[string]interface{}) (string, error) {
		return "", errors.New("disk on fire")
	}))
	require.NoError(t, r.RegisterTool(protocol.Tool{Name: "panic"}, func(context.Context, map[string]interface{}) (string, error) {
		panic("unreachable state")
	}))

	result, err := r.CallTool(context.Background(), "fail", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Text(), "disk on fire")

	result, err = r.CallTool(context.Background(), "panic", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Text(), "unreachable state")
}

func TestRegisterToolRejections(t *testing.T) {
	r := New()
	noop := func(context.Context, map[string]interface{}) (string, error) { return "", nil }

	require.NoError(t, r.RegisterTool(protocol.Tool{Name: "a"}, noop))
	assert.True(t, mcperrors.IsInvalidArgument(r.RegisterTool(protocol.Tool{Name: "a"}, noop)))
	assert.True(t, mcperrors.IsInvalidArgument(r.RegisterTool(protocol.Tool{Name: ""}, noop)))
	assert.True(t, mcperrors.IsInvalidArgument(r.RegisterTool(protocol.Tool{Name: "b"}, nil)))
	assert.True(t, mcperrors.IsInvalidArgument(r.RegisterTool(protocol.Tool{
		Name:        "c",
		InputSchema: json.RawMessage(`{"type":"string"}`),
	}, noop)))

	tools := r.ListTools()
	require.Len(t, tools, 1)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(tools[0].InputSchema))
}

func TestListsKeepRegistrationOrder(t *testing.T) {
	r := New()
	noop := func(context.Context, map[string]interface{}) (string, error) { return "", nil }
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.RegisterTool(protocol.Tool{Name: name}, noop))
	}
	var names []string
	for _, tool := range r.ListTools() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)

	empty := New()
	assert.NotNil(t, empty.ListTools())
	assert.NotNil(t, empty.ListPrompts())
	assert.NotNil(t, empty.ListResources())
	assert.NotNil(t, empty.ListResourceTemplates())
}

func ideaPrompt() (protocol.Prompt, PromptRenderer) {
	return protocol.Prompt{
			Name: "content-idea",
			Arguments: []protocol.PromptArgument{
				{Name: "topic", Required: true},
				{Name: "format", Default: "blog post"},
			},
		}, func(args map[string]string) []protocol.PromptMessage {
			return []protocol.PromptMessage{{
				Role:    protocol.RoleUser,
				Content: protocol.TextContent(fmt.Sprintf("Idea about %s as a %s.", args["topic"], args["format"])),
			}}
		}
}

func TestGetPrompt(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterPrompt(ideaPrompt()))

	result, err := r.GetPrompt("content-idea", map[string]string{"topic": "coffee"})
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "Idea about coffee as a blog post.", result.Messages[0].Content.Text)

	again, err := r.GetPrompt("content-idea", map[string]string{"topic": "coffee"})
	require.NoError(t, err)
	if diff := cmp.Diff(result, again); diff != "" {
		t.Errorf("GetPrompt is not deterministic (-first +second):\n%s", diff)
	}

	_, err = r.GetPrompt("content-idea", map[string]string{"format": "tweet"})
	assert.True(t, mcperrors.IsInvalidArgument(err))

	_, err = r.GetPrompt("content-idea", map[string]string{"topic": ""})
	assert.True(t, mcperrors.IsInvalidArgument(err))

	_, err = r.GetPrompt("missing", nil)
	assert.True(t, mcperrors.IsNotFound(err))
}

func TestRegisterPromptRejections(t *testing.T) {
	r := New()
	render := func(map[string]string) []protocol.PromptMessage { return nil }

	err := r.RegisterPrompt(protocol.Prompt{Name: "p", Arguments: []protocol.PromptArgument{{Name: "x"}, {Name: "x"}}}, render)
	assert.True(t, mcperrors.IsInvalidArgument(err))

	err = r.RegisterPrompt(protocol.Prompt{Name: "p", Arguments: []protocol.PromptArgument{{Name: "x", Required: true, Default: "d"}}}, render)
	assert.True(t, mcperrors.IsInvalidArgument(err))

	require.NoError(t, r.RegisterPrompt(protocol.Prompt{Name: "p"}, render))
	assert.True(t, mcperrors.IsInvalidArgument(r.RegisterPrompt(protocol.Prompt{Name: "p"}, render)))
}

func TestReadResource(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterResource(protocol.Resource{
		URI:      "content://blog-example",
		Name:     "Blog Post Example",
		MimeType: "text/markdown",
	}, func(context.Context) (string, error) {
		return "# 5 Ways to Boost Your Productivity\n", nil
	}))
	require.NoError(t, r.RegisterResourceTemplate(protocol.ResourceTemplate{
		URITemplate: "issues://{id}",
		Name:        "Issue",
		MimeType:    "text/plain",
	}, func(_ context.Context, uri string, vars map[string]string) (string, error) {
		if vars["id"] == "404" {
			return "", mcperrors.ResourceNotFound(uri)
		}
		return "issue " + vars["id"], nil
	}))

	result, err := r.ReadResource(context.Background(), "content://blog-example")
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "text/markdown", result.Contents[0].MimeType)
	assert.True(t, strings.HasPrefix(result.Text(), "# 5 Ways to Boost Your Productivity"))

	result, err = r.ReadResource(context.Background(), "issues://7")
	require.NoError(t, err)
	assert.Equal(t, "issue 7", result.Text())
	assert.Equal(t, "issues://7", result.Contents[0].URI)

	_, err = r.ReadResource(context.Background(), "issues://404")
	assert.True(t, mcperrors.IsNotFound(err))

	_, err = r.ReadResource(context.Background(), "content://nope")
	assert.True(t, mcperrors.IsNotFound(err))

	assert.True(t, mcperrors.IsInvalidArgument(r.RegisterResource(protocol.Resource{URI: "content://blog-example"},
		func(context.Context) (string, error) { return "", nil })))
}

func TestEveryListedResourceIsReadable(t *testing.T) {
	r := New()
	for i := 0; i < 3; i++ {
		uri := fmt.Sprintf("content://doc-%d", i)
		require.NoError(t, r.RegisterResource(protocol.Resource{URI: uri, Name: uri, MimeType: "text/plain"},
			func(context.Context) (string, error) { return "body of " + uri, nil }))
	}
	for _, res := range r.ListResources() {
		result, err := r.ReadResource(context.Background(), res.URI)
		require.NoError(t, err, res.URI)
		assert.NotEmpty(t, result.Text())
	}
}
