package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCallToolResult(t *testing.T) {
	var res CallToolResult
	err := DecodeResult(json.RawMessage(`{"content":[{"type":"text","text":"done"}],"isError":true}`), &res)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "done", res.Text())
}

func TestDecodeResultRejectsMalformedShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		into Validator
	}{
		{"unknown content type", `{"content":[{"type":"image","data":"..."}]}`, &CallToolResult{}},
		{"text block without text", `{"content":[{"type":"text"}]}`, &CallToolResult{}},
		{"missing content", `{"isError":false}`, &CallToolResult{}},
		{"no prompt messages", `{"messages":[]}`, &GetPromptResult{}},
		{"bad prompt role", `{"messages":[{"role":"robot","content":{"type":"text","text":"x"}}]}`, &GetPromptResult{}},
		{"no resource contents", `{"contents":[]}`, &ReadResourceResult{}},
		{"nameless tool", `{"tools":[{"description":"x"}]}`, &ListToolsResult{}},
		{"null resources", `{"resources":null}`, &ListResourcesResult{}},
		{"wrong json type", `{"tools":"oops"}`, &ListToolsResult{}},
		{"empty", ``, &ListPromptsResult{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DecodeResult(json.RawMessage(tt.raw), tt.into)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestReadResourceResultText(t *testing.T) {
	var res ReadResourceResult
	require.NoError(t, DecodeResult(json.RawMessage(
		`{"contents":[{"uri":"content://blog-example","mimeType":"text/markdown","text":"# Title"}]}`), &res))
	assert.Equal(t, "# Title", res.Text())
	assert.Equal(t, "", (&ReadResourceResult{}).Text())
}

func TestToolResultConstructors(t *testing.T) {
	ok := NewToolResult("fine")
	assert.False(t, ok.IsError)
	assert.Equal(t, "fine", ok.Text())

	failed := NewToolErrorResult("boom")
	assert.True(t, failed.IsError)

	data, err := json.Marshal(failed)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"boom"}],"isError":true}`, string(data))
}
