package protocol

import "fmt"

// Resource represents a resource in the MCP protocol
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceTemplate describes a family of resources addressed by an RFC 6570
// URI template.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceContents contains the content of a resource
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

// ListResourcesParams defines parameters for listing resources
type ListResourcesParams struct {
	PaginatedParams
}

// ListResourcesResult defines the response for listing resources
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
	PaginatedResult
}

// Validate implements Validator.
func (r *ListResourcesResult) Validate() error {
	if r.Resources == nil {
		return wrapMalformed("resources/list result has no resources array")
	}
	for i, res := range r.Resources {
		if res.URI == "" {
			return fmt.Errorf("%w: resource %d has no uri", ErrMalformed, i)
		}
	}
	return nil
}

// ListResourceTemplatesParams defines parameters for listing templates
type ListResourceTemplatesParams struct {
	PaginatedParams
}

// ListResourceTemplatesResult defines the response for listing templates
type ListResourceTemplatesResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
	PaginatedResult
}

// Validate implements Validator.
func (r *ListResourceTemplatesResult) Validate() error {
	if r.ResourceTemplates == nil {
		return wrapMalformed("resources/templates/list result has no resourceTemplates array")
	}
	return nil
}

// ReadResourceParams defines parameters for reading a resource
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ReadResourceResult defines the response for reading a resource
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// Text returns the text of the first content entry.
func (r *ReadResourceResult) Text() string {
	if len(r.Contents) == 0 {
		return ""
	}
	return r.Contents[0].Text
}

// Validate implements Validator.
func (r *ReadResourceResult) Validate() error {
	if len(r.Contents) == 0 {
		return wrapMalformed("resources/read result has no contents")
	}
	for i, c := range r.Contents {
		if c.URI == "" {
			return fmt.Errorf("%w: resource contents %d has no uri", ErrMalformed, i)
		}
	}
	return nil
}
