package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContentType discriminates the variants of Content.
type ContentType string

const (
	// ContentTypeText is the only variant carried by this protocol revision.
	ContentTypeText ContentType = "text"
)

// Content is a tagged content block. Decoding rejects unknown tags so a
// malformed counterpart response fails at the boundary.
type Content struct {
	Type ContentType `json:"type"`
	Text string      `json:"text"`
}

// TextContent builds a text content block.
func TextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Content) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type *ContentType `json:"type"`
		Text *string      `json:"text"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: content: %v", ErrMalformed, err)
	}
	if raw.Type == nil {
		return wrapMalformed("content block has no type")
	}
	switch *raw.Type {
	case ContentTypeText:
		if raw.Text == nil {
			return wrapMalformed("text content block has no text")
		}
		c.Type = ContentTypeText
		c.Text = *raw.Text
		return nil
	default:
		return fmt.Errorf("%w: unsupported content type %q", ErrMalformed, *raw.Type)
	}
}

// JoinText concatenates the text of every block, separated by newlines.
func JoinText(blocks []Content) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, b.Text)
	}
	return strings.Join(parts, "\n")
}

func wrapMalformed(msg string) error {
	return fmt.Errorf("%w: %s", ErrMalformed, msg)
}
