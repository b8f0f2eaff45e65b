package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	req, err := NewRequest("req_1", MethodCallTool, CallToolParams{
		Name:      "create-issue",
		Arguments: map[string]interface{}{"title": "Bug"},
	})
	require.NoError(t, err)
	assert.Equal(t, JSONRPCVersion, req.JSONRPC)
	assert.Equal(t, "req_1", req.ID)
	assert.JSONEq(t, `{"name":"create-issue","arguments":{"title":"Bug"}}`, string(req.Params))

	req, err = NewRequest("req_2", MethodListTools, nil)
	require.NoError(t, err)
	assert.Empty(t, req.Params)
}

func TestNewResponseNilResult(t *testing.T) {
	resp, err := NewResponse("req_1", nil)
	require.NoError(t, err)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"req_1","result":{}}`, string(data))
}

func TestDecodeMessageKinds(t *testing.T) {
	tests := []struct {
		name string
		data string
		want MessageKind
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, KindRequest},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, KindNotification},
		{"result", `{"jsonrpc":"2.0","id":"req_3","result":{}}`, KindResponse},
		{"error", `{"jsonrpc":"2.0","id":"req_3","error":{"code":-32002,"message":"nope"}}`, KindResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Kind())
		})
	}
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	for _, data := range []string{
		`not json`,
		`{"jsonrpc":"1.0","id":1,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":1}`,
	} {
		_, err := DecodeMessage([]byte(data))
		assert.ErrorIs(t, err, ErrMalformed, data)
	}
}

func TestIDKey(t *testing.T) {
	var decoded Message
	require.NoError(t, json.Unmarshal([]byte(`{"id":7}`), &decoded))

	assert.Equal(t, IDKey(7), IDKey(decoded.ID))
	assert.NotEqual(t, IDKey("7"), IDKey(7))
	assert.Equal(t, IDKey("req_1"), IDKey("req_1"))
}

func TestErrorImplementsError(t *testing.T) {
	var err error = &Error{Code: ResourceNotFound, Message: "tool not found"}
	assert.Contains(t, err.Error(), "-32002")
	assert.Contains(t, err.Error(), "tool not found")
}
