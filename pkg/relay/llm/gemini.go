package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
	"github.com/ajitpratap0/mcp-relay/pkg/relay"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Gemini streams replies from the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini completer.
func NewGemini(ctx context.Context, config Config) (*Gemini, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Gemini API")
	}
	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	model := config.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Stream(ctx context.Context, messages []Message) relay.Stream {
	contents, config := geminiRequest(messages)
	return relay.Pipe(ctx, func(ctx context.Context, emit relay.EmitFunc) error {
		for chunk, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, config) {
			if err != nil {
				return fmt.Errorf("streaming error: %w", err)
			}
			for _, text := range geminiText(chunk) {
				if err := emit(text); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// geminiText returns the reply text of one streamed chunk. Thought parts are
// the model's reasoning, not its answer, and are left out.
func geminiText(chunk *genai.GenerateContentResponse) []string {
	if chunk == nil {
		return nil
	}
	var out []string
	for _, candidate := range chunk.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought || part.Text == "" {
				continue
			}
			out = append(out, part.Text)
		}
	}
	return out
}

func geminiRequest(messages []Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, rest := splitSystem(messages)
	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := "user"
		if m.Role == protocol.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	return contents, config
}
