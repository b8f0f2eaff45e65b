package protocol

import "fmt"

// Role is the author of a prompt or chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Prompt represents a prompt in the MCP protocol
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes one template parameter. Default is substituted
// when an optional argument is omitted.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Default     string `json:"default,omitempty"`
}

// PromptMessage defines a message in a seeded conversation
type PromptMessage struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// ListPromptsParams defines parameters for listing prompts
type ListPromptsParams struct {
	PaginatedParams
}

// ListPromptsResult defines the response for listing prompts
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
	PaginatedResult
}

// Validate implements Validator.
func (r *ListPromptsResult) Validate() error {
	if r.Prompts == nil {
		return wrapMalformed("prompts/list result has no prompts array")
	}
	for i, p := range r.Prompts {
		if p.Name == "" {
			return fmt.Errorf("%w: prompt %d has no name", ErrMalformed, i)
		}
	}
	return nil
}

// GetPromptParams defines parameters for getting a prompt
type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// GetPromptResult defines the response for getting a prompt
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// Validate implements Validator.
func (r *GetPromptResult) Validate() error {
	if len(r.Messages) == 0 {
		return wrapMalformed("prompts/get result has no messages")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("%w: prompt message %d has role %q", ErrMalformed, i, m.Role)
		}
	}
	return nil
}
