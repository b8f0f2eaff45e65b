package errors

import (
	"fmt"
	"strings"
)

// NotFoundData identifies what could not be found.
type NotFoundData struct {
	Kind       string   `json:"kind"`
	Name       string   `json:"name"`
	Candidates []string `json:"candidates,omitempty"`
}

func notFound(kind, name string) MCPError {
	return NewError(
		CodeResourceNotFound,
		fmt.Sprintf("%s not found: %s", kind, name),
		CategoryNotFound,
		SeverityError,
	).WithData(&NotFoundData{Kind: kind, Name: name})
}

// ToolNotFound reports an unregistered tool name.
func ToolNotFound(name string) MCPError { return notFound("tool", name) }

// PromptNotFound reports an unregistered prompt name.
func PromptNotFound(name string) MCPError { return notFound("prompt", name) }

// ResourceNotFound reports a uri that matches no resource or template.
func ResourceNotFound(uri string) MCPError { return notFound("resource", uri) }

// MentionNotFound reports a resource name absent from the cache even after a refresh.
func MentionNotFound(name string) MCPError { return notFound("resource name", name) }

// CommandNotFound reports a /command naming neither a tool nor a prompt.
func CommandNotFound(name string) MCPError { return notFound("command", name) }

// AmbiguousResource reports a resource name shared by several uris. No uri
// is picked on the caller's behalf.
func AmbiguousResource(name string, uris []string) MCPError {
	return NewError(
		CodeAmbiguousResource,
		fmt.Sprintf("resource name %q is ambiguous: %s", name, strings.Join(uris, ", ")),
		CategoryNotFound,
		SeverityWarning,
	).WithData(&NotFoundData{Kind: "resource name", Name: name, Candidates: uris})
}
