package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/ajitpratap0/mcp-relay/pkg/errors"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())

	logger.Debug("hidden debug")
	logger.Info("Info message", Int("count", 42))
	logger.Warn("Warning message", Bool("flag", true))
	logger.Error("Error message", ErrorField(errors.New("test error")))

	output := buf.String()
	assert.NotContains(t, output, "hidden debug")
	assert.Contains(t, output, "[INFO] Info message | count=42")
	assert.Contains(t, output, "flag=true")
	assert.Contains(t, output, `error="test error"`)

	buf.Reset()
	logger.SetLevel(DebugLevel)
	logger.Debug("visible debug", String("key", "value"))
	assert.Contains(t, buf.String(), "key=value")
}

func TestDerivedLoggersShareLevelAndOutput(t *testing.T) {
	var buf bytes.Buffer
	root := New(&buf, NewTextFormatter())
	child := root.WithFields(String("component", "session"))

	root.SetLevel(ErrorLevel)
	child.Info("suppressed")
	assert.Empty(t, buf.String())

	child.Error("boom")
	assert.Contains(t, buf.String(), "session: boom")
}

func TestConcurrentWritesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	root := New(&buf, NewJSONFormatter())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			root.WithFields(Int("worker", i)).Info("tick")
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 20)
	for _, line := range lines {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		assert.Equal(t, "tick", entry["message"])
	}
}

func TestWithErrorExtractsTaxonomy(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewJSONFormatter())

	err := mcperrors.ToolNotFound("ghost").WithContext(&mcperrors.Context{Component: "registry"})
	logger.WithError(err).Error("call failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "not_found", entry["error_category"])
	assert.Equal(t, "registry", entry["component"])
	assert.Equal(t, "tool not found: ghost", entry["error"])
}

func TestWithContextRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())

	ctx, id := EnsureRequestID(context.Background())
	require.NotEmpty(t, id)
	again, sameID := EnsureRequestID(ctx)
	assert.Equal(t, id, sameID)
	assert.Equal(t, ctx, again)

	logger.WithContext(ctx).Info("hello")
	assert.Contains(t, buf.String(), "["+id+"] hello")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"debug": DebugLevel, "WARN": WarnLevel, "": InfoLevel, "off": OffLevel} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestHTTPMiddlewareKeepsFlusher(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())

	var flushed bool
	handler := HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, RequestIDFromContext(r.Context()))
		_, flushed = w.(http.Flusher)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	handler.ServeHTTP(rec, req)

	assert.True(t, flushed)
	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, buf.String(), "status=418")
}

func TestNopLoggerDiscards(t *testing.T) {
	l := Nop()
	l.Error("nothing to see")
	assert.Equal(t, OffLevel, l.GetLevel())
}
