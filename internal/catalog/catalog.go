// Package catalog is the demo capability set served by mcp-demo-server.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	mcperrors "github.com/ajitpratap0/mcp-relay/pkg/errors"
	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
	"github.com/ajitpratap0/mcp-relay/pkg/registry"
)

// Issue is a ticket created by the create-issue tool.
type Issue struct {
	ID       int      `json:"id"`
	Title    string   `json:"title"`
	Priority int      `json:"priority"`
	Labels   []string `json:"labels,omitempty"`
}

// Issues is the in-memory issue tracker behind create-issue and issues://{id}.
type Issues struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]Issue
}

// NewIssues creates an empty tracker. Numbering starts at 1.
func NewIssues() *Issues {
	return &Issues{nextID: 1, byID: make(map[int]Issue)}
}

// Create stores a new issue and returns it.
func (s *Issues) Create(title string, priority int, labels []string) Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue := Issue{ID: s.nextID, Title: title, Priority: priority, Labels: labels}
	s.byID[issue.ID] = issue
	s.nextID++
	return issue
}

// Get returns issue id.
func (s *Issues) Get(id int) (Issue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.byID[id]
	return issue, ok
}

const (
	BlogExampleURI = "content://blog-example"
	StyleGuideURI  = "content://style-guide"
	IssueTemplate  = "issues://{id}"
)

const blogExample = `# 5 Ways to Boost Your Productivity

1. **Time-block your calendar.** Give every task a slot and protect it.
2. **Batch small tasks.** Answer email twice a day instead of all day.
3. **Use the two-minute rule.** If it takes less than two minutes, do it now.
4. **Plan tomorrow tonight.** Write down three priorities before you stop.
5. **Take real breaks.** Step away from the screen every 90 minutes.
`

const styleGuide = `# Style Guide

- Write in the active voice.
- Keep sentences under 25 words.
- Use sentence case for headings.
- Prefer concrete examples over abstractions.
`

// Register adds the demo tools, prompts and resources to reg.
func Register(reg *registry.Registry, issues *Issues) error {
	tools := []struct {
		tool    protocol.Tool
		handler registry.ToolHandler
	}{
		{
			tool: protocol.Tool{
				Name:        "create-issue",
				Description: "Create a new issue in the tracker",
				InputSchema: json.RawMessage(`{
					"type": "object",
					"properties": {
						"title": {"type": "string", "minLength": 1, "description": "Issue title"},
						"priority": {"type": "integer", "minimum": 1, "maximum": 4, "default": 2, "description": "1 (highest) to 4"},
						"labels": {"type": "string", "description": "Comma separated labels"}
					},
					"required": ["title"]
				}`),
			},
			handler: createIssue(issues),
		},
		{
			tool: protocol.Tool{
				Name:        "word-count",
				Description: "Count the words in a text",
				InputSchema: json.RawMessage(`{
					"type": "object",
					"properties": {"text": {"type": "string"}},
					"required": ["text"]
				}`),
			},
			handler: func(_ context.Context, args map[string]interface{}) (string, error) {
				text, _ := args["text"].(string)
				return strconv.Itoa(len(strings.Fields(text))), nil
			},
		},
		{
			tool: protocol.Tool{
				Name:        "fail",
				Description: "Always fails; useful to see how errors are rendered",
				InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
			},
			handler: func(context.Context, map[string]interface{}) (string, error) {
				return "", errors.New("this tool always fails")
			},
		},
	}
	for _, t := range tools {
		if err := reg.RegisterTool(t.tool, t.handler); err != nil {
			return fmt.Errorf("register tool %s: %w", t.tool.Name, err)
		}
	}

	prompts := []struct {
		prompt   protocol.Prompt
		renderer registry.PromptRenderer
	}{
		{
			prompt: protocol.Prompt{
				Name:        "content-idea",
				Description: "Generate a content idea on a topic",
				Arguments: []protocol.PromptArgument{
					{Name: "topic", Description: "What the content is about", Required: true},
					{Name: "format", Description: "Kind of content", Default: "blog post"},
				},
			},
			renderer: func(args map[string]string) []protocol.PromptMessage {
				return []protocol.PromptMessage{{
					Role: protocol.RoleUser,
					Content: protocol.TextContent(fmt.Sprintf(
						"Generate a creative content idea about %s in the format of a %s. "+
							"Include a catchy title, a one-sentence hook, and three key points to cover.",
						args["topic"], args["format"])),
				}}
			},
		},
		{
			prompt: protocol.Prompt{
				Name:        "code-review",
				Description: "Ask for a review of a code snippet",
				Arguments: []protocol.PromptArgument{
					{Name: "code", Description: "The code to review", Required: true},
					{Name: "language", Description: "Programming language", Default: "unspecified language"},
				},
			},
			renderer: func(args map[string]string) []protocol.PromptMessage {
				return []protocol.PromptMessage{
					{
						Role:    protocol.RoleSystem,
						Content: protocol.TextContent("You are a careful senior engineer reviewing code."),
					},
					{
						Role: protocol.RoleUser,
						Content: protocol.TextContent(fmt.Sprintf(
							"Please review the following %s code and point out bugs, unclear naming, and missing tests:\n\n%s",
							args["language"], args["code"])),
					},
				}
			},
		},
	}
	for _, p := range prompts {
		if err := reg.RegisterPrompt(p.prompt, p.renderer); err != nil {
			return fmt.Errorf("register prompt %s: %w", p.prompt.Name, err)
		}
	}

	resources := []struct {
		resource protocol.Resource
		text     string
	}{
		{protocol.Resource{URI: BlogExampleURI, Name: "Blog Post Example", Description: "A sample blog post", MimeType: "text/markdown"}, blogExample},
		{protocol.Resource{URI: StyleGuideURI, Name: "Style Guide", Description: "House writing rules", MimeType: "text/markdown"}, styleGuide},
	}
	for _, r := range resources {
		text := r.text
		if err := reg.RegisterResource(r.resource, func(context.Context) (string, error) { return text, nil }); err != nil {
			return fmt.Errorf("register resource %s: %w", r.resource.URI, err)
		}
	}

	return reg.RegisterResourceTemplate(protocol.ResourceTemplate{
		URITemplate: IssueTemplate,
		Name:        "Issue",
		Description: "An issue created with create-issue",
		MimeType:    "application/json",
	}, readIssue(issues))
}

func createIssue(issues *Issues) registry.ToolHandler {
	return func(_ context.Context, args map[string]interface{}) (string, error) {
		title, _ := args["title"].(string)
		priority := 2
		switch p := args["priority"].(type) {
		case float64:
			priority = int(p)
		case int:
			priority = p
		}
		var labels []string
		if raw, _ := args["labels"].(string); raw != "" {
			for _, l := range strings.Split(raw, ",") {
				if l = strings.TrimSpace(l); l != "" {
					labels = append(labels, l)
				}
			}
		}
		issue := issues.Create(title, priority, labels)
		return fmt.Sprintf("Created issue #%d: %s (priority %d)", issue.ID, issue.Title, issue.Priority), nil
	}
}

func readIssue(issues *Issues) registry.TemplateReader {
	return func(_ context.Context, uri string, vars map[string]string) (string, error) {
		id, err := strconv.Atoi(vars["id"])
		if err != nil {
			return "", mcperrors.InvalidArgument("id", "must be a number")
		}
		issue, ok := issues.Get(id)
		if !ok {
			return "", mcperrors.ResourceNotFound(uri)
		}
		data, err := json.MarshalIndent(issue, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
