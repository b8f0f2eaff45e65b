package resolver

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/ajitpratap0/mcp-relay/pkg/errors"
	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
)

type fakeSession struct {
	mu        sync.Mutex
	tools     []protocol.Tool
	prompts   []protocol.Prompt
	resources []protocol.Resource
	texts     map[string]string
	delays    map[string]time.Duration
	readErr   map[string]error

	refreshes int
	// cold hides resources until RefreshResources is called
	cold              bool
	resourceRefreshes int
	toolCalls []map[string]interface{}
	prompted  []map[string]string
}

func (f *fakeSession) Tools() []protocol.Tool         { return f.tools }
func (f *fakeSession) Prompts() []protocol.Prompt     { return f.prompts }
func (f *fakeSession) Resources() []protocol.Resource {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cold {
		return nil
	}
	return f.resources
}

func (f *fakeSession) RefreshResources(context.Context) ([]protocol.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cold = false
	f.resourceRefreshes++
	return f.resources, nil
}

func (f *fakeSession) RefreshTools(context.Context) ([]protocol.Tool, error) {
	f.mu.Lock()
	f.refreshes++
	f.mu.Unlock()
	return f.tools, nil
}

func (f *fakeSession) RefreshPrompts(context.Context) ([]protocol.Prompt, error) {
	return f.prompts, nil
}

func (f *fakeSession) LookupResource(_ context.Context, name string) (protocol.Resource, error) {
	for _, r := range f.resources {
		if r.Name == name {
			return r, nil
		}
	}
	return protocol.Resource{}, mcperrors.MentionNotFound(name)
}

func (f *fakeSession) ReadResource(_ context.Context, uri string) (*protocol.ReadResourceResult, error) {
	time.Sleep(f.delays[uri])
	if err := f.readErr[uri]; err != nil {
		return nil, err
	}
	return &protocol.ReadResourceResult{Contents: []protocol.ResourceContents{{URI: uri, MimeType: "text/plain", Text: f.texts[uri]}}}, nil
}

func (f *fakeSession) CallTool(_ context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	f.mu.Lock()
	f.toolCalls = append(f.toolCalls, args)
	f.mu.Unlock()
	return protocol.NewToolResult("ran " + name), nil
}

func (f *fakeSession) GetPrompt(_ context.Context, name string, args map[string]string) (*protocol.GetPromptResult, error) {
	f.mu.Lock()
	f.prompted = append(f.prompted, args)
	f.mu.Unlock()
	return &protocol.GetPromptResult{Messages: []protocol.PromptMessage{{
		Role:    protocol.RoleUser,
		Content: protocol.TextContent(name + " about " + args["topic"]),
	}}}, nil
}

func newFake() *fakeSession {
	return &fakeSession{
		tools: []protocol.Tool{{
			Name:        "create-issue",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"title":{"type":"string"},"priority":{"type":"integer"}}}`),
		}},
		prompts: []protocol.Prompt{{Name: "content-idea"}},
		resources: []protocol.Resource{
			{URI: "content://blog-example", Name: "Blog Post Example"},
			{URI: "content://style-guide", Name: "Style Guide"},
			{URI: "content://faq", Name: "faq"},
		},
		texts: map[string]string{
			"content://blog-example": "# 5 Ways to Boost Your Productivity",
			"content://style-guide":  "Use short sentences.",
			"content://faq":          "Q&A",
		},
	}
}

func TestTokenizeCommand(t *testing.T) {
	tokens := Tokenize(`  /create-issue title="Login broken" priority=3 urgent @faq`)
	require.Len(t, tokens, 3)

	assert.Equal(t, KindCommand, tokens[0].Kind)
	assert.Equal(t, "create-issue", tokens[0].Name)
	assert.Equal(t, map[string]string{"title": "Login broken", "priority": "3"}, tokens[0].Args)

	assert.Equal(t, KindMention, tokens[1].Kind)
	assert.Equal(t, "faq", tokens[1].Name)

	assert.Equal(t, KindText, tokens[2].Kind)
	assert.Equal(t, "urgent", tokens[2].Raw)
}

func TestTokenizeText(t *testing.T) {
	tokens := Tokenize("compare @a with @b please")
	var kinds []Kind
	for _, tok := range tokens {
		kinds = append(kinds, tok.Kind)
	}
	assert.Equal(t, []Kind{KindText, KindMention, KindText, KindMention, KindText}, kinds)

	for _, input := range []string{"/", "/foo/bar", "path /usr/bin", "a / b"} {
		name, ok := CommandName(input)
		assert.False(t, ok, "%q parsed as command %q", input, name)
	}
	name, ok := CommandName("/content-idea")
	assert.True(t, ok)
	assert.Equal(t, "content-idea", name)
}

func TestExtractMentions(t *testing.T) {
	known := []string{"Blog Post Example", "Blog", "faq"}
	got := ExtractMentions("see @Blog Post Example, @faq and @ghost. Also @faq again; mail me@host.com", known)
	if diff := cmp.Diff([]string{"Blog Post Example", "faq", "ghost"}, got); diff != "" {
		t.Errorf("mentions (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{"Blog"}, ExtractMentions("@Blog posts", known))
	assert.Empty(t, ExtractMentions("no mentions here, just @", known))
}

func TestResolveMultiWordMentionWithColdCache(t *testing.T) {
	f := newFake()
	f.cold = true
	r := New(f)

	res, err := r.Resolve(context.Background(), "summarize @Blog Post Example please")
	require.NoError(t, err)
	require.Len(t, res.Mentions, 1)
	m := res.Mentions[0]
	assert.Equal(t, "Blog Post Example", m.Name)
	require.NoError(t, m.Err)
	assert.Equal(t, "content://blog-example", m.Resource.URI)
	assert.Equal(t, 1, f.resourceRefreshes)
}

func TestResolveKnownMentionsSkipRefresh(t *testing.T) {
	f := newFake()
	r := New(f)

	res, err := r.Resolve(context.Background(), "see @Style Guide and @faq")
	require.NoError(t, err)
	assert.Len(t, res.Resolved(), 2)
	assert.Zero(t, f.resourceRefreshes)
}

func TestResolvePartialFailure(t *testing.T) {
	r := New(newFake())

	res, err := r.Resolve(context.Background(), "summarise @Blog Post Example and @ghost")
	require.NoError(t, err)
	require.Len(t, res.Mentions, 2)

	assert.Equal(t, "Blog Post Example", res.Mentions[0].Name)
	require.NoError(t, res.Mentions[0].Err)
	assert.Equal(t, "# 5 Ways to Boost Your Productivity", res.Mentions[0].Contents.Text())

	assert.Equal(t, "ghost", res.Mentions[1].Name)
	assert.True(t, mcperrors.IsNotFound(res.Mentions[1].Err))

	assert.Len(t, res.Resolved(), 1)
	assert.Len(t, res.Failed(), 1)
	assert.Contains(t, res.Context(), "# 5 Ways to Boost Your Productivity")
	assert.Nil(t, res.Command)
}

func TestResolveMentionsKeepOrder(t *testing.T) {
	f := newFake()
	f.delays = map[string]time.Duration{"content://blog-example": 50 * time.Millisecond}
	r := New(f, WithConcurrency(3))

	res, err := r.Resolve(context.Background(), "@Blog Post Example @Style Guide @faq @Blog Post Example")
	require.NoError(t, err)

	var names []string
	for _, m := range res.Mentions {
		names = append(names, m.Name)
		assert.NoError(t, m.Err)
	}
	assert.Equal(t, []string{"Blog Post Example", "Style Guide", "faq"}, names)
}

func TestResolveFetchFailureIsPerMention(t *testing.T) {
	f := newFake()
	f.readErr = map[string]error{"content://style-guide": mcperrors.ConnectionClosed("stdio", nil)}
	r := New(f)

	res, err := r.Resolve(context.Background(), "@faq @Style Guide")
	require.NoError(t, err)
	require.Len(t, res.Mentions, 2)
	assert.NoError(t, res.Mentions[0].Err)
	assert.True(t, mcperrors.IsConnectionClosed(res.Mentions[1].Err))
	assert.Equal(t, "content://style-guide", res.Mentions[1].Resource.URI)
}

func TestResolveToolCommandCoercesArgs(t *testing.T) {
	f := newFake()
	r := New(f)

	res, err := r.Resolve(context.Background(), `/create-issue title="Login broken" priority=3`)
	require.NoError(t, err)
	require.NotNil(t, res.Command)
	require.NoError(t, res.Command.Err)
	assert.Equal(t, CommandTool, res.Command.Kind)
	assert.Equal(t, "ran create-issue", res.Command.Tool.Text())

	require.Len(t, f.toolCalls, 1)
	assert.Equal(t, map[string]interface{}{"title": "Login broken", "priority": float64(3)}, f.toolCalls[0])
}

func TestResolvePromptCommandByNormalizedName(t *testing.T) {
	f := newFake()
	r := New(f)

	res, err := r.Resolve(context.Background(), "/contentIdea topic=coffee")
	require.NoError(t, err)
	require.NoError(t, res.Command.Err)
	assert.Equal(t, CommandPrompt, res.Command.Kind)
	assert.Equal(t, "content-idea", res.Command.Target)
	assert.Equal(t, "content-idea about coffee", res.Command.Prompt.Messages[0].Content.Text)
	assert.Zero(t, f.refreshes)
}

func TestResolveUnknownCommandIsSurfaced(t *testing.T) {
	f := newFake()
	r := New(f)

	res, err := r.Resolve(context.Background(), "/deploy env=prod")
	require.NoError(t, err)
	require.NotNil(t, res.Command)
	assert.True(t, mcperrors.IsNotFound(res.Command.Err))
	assert.Contains(t, res.Command.Err.Error(), "deploy")
	assert.Equal(t, 1, f.refreshes)
	assert.Empty(t, f.toolCalls)
}

func TestResolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(newFake()).Resolve(ctx, "@faq")
	assert.ErrorIs(t, err, context.Canceled)
}
