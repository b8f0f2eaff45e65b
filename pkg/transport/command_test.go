package transport

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/ajitpratap0/mcp-relay/pkg/errors"
)

const helperEnv = "MCP_RELAY_TRANSPORT_HELPER"

// TestHelperProcess is not a real test. It is re-executed by the tests below
// as the child process of a CommandTransport.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		return
	}
	if mode == "stubborn" {
		// never reads stdin, never exits on its own
		time.Sleep(time.Hour)
	}

	tr := NewStdioServerTransport(DefaultConfig())
	tr.RegisterRequestHandler("echo", func(_ context.Context, params json.RawMessage) (interface{}, error) {
		return params, nil
	})
	tr.RegisterRequestHandler("hang", func(context.Context, json.RawMessage) (interface{}, error) {
		time.Sleep(time.Hour)
		return nil, nil
	})
	tr.RegisterRequestHandler("crash", func(context.Context, json.RawMessage) (interface{}, error) {
		os.Exit(3)
		return nil, nil
	})
	if err := tr.Start(context.Background()); err != nil {
		os.Exit(2)
	}
	<-tr.Done()
	os.Exit(0)
}

func newHelperTransport(t *testing.T, mode string) *CommandTransport {
	t.Helper()
	config := DefaultConfig()
	config.StopGracePeriod = 200 * time.Millisecond
	tr := NewCommandTransport(os.Args[0], []string{"-test.run=^TestHelperProcess$"}, config, WithEnv(helperEnv+"="+mode))
	t.Cleanup(func() { _ = tr.Stop(context.Background()) })
	return tr
}

func TestCommandTransportRoundTrip(t *testing.T) {
	tr := newHelperTransport(t, "server")
	require.NoError(t, tr.Start(context.Background()))
	assert.NotZero(t, tr.Pid())

	result, err := tr.SendRequest(context.Background(), "echo", map[string]string{"hello": "world"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, string(result))

	require.NoError(t, tr.Stop(context.Background()))
	select {
	case <-tr.Exited():
	case <-time.After(2 * time.Second):
		t.Fatal("child was not reaped")
	}
	assert.NoError(t, tr.ExitErr())
}

func TestCommandTransportKilledMidCall(t *testing.T) {
	tr := newHelperTransport(t, "server")
	require.NoError(t, tr.Start(context.Background()))

	errCh := make(chan error, 1)
	go func() {
		_, err := tr.SendRequest(context.Background(), "hang", nil)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return tr.current().PendingCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, tr.Kill())

	select {
	case err := <-errCh:
		assert.True(t, mcperrors.IsConnectionClosed(err), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight call not resolved after kill")
	}
	<-tr.Done()
	<-tr.Exited()

	_, err := tr.SendRequest(context.Background(), "echo", nil)
	assert.True(t, mcperrors.IsConnectionClosed(err))
}

func TestCommandTransportChildCrash(t *testing.T) {
	tr := newHelperTransport(t, "server")
	require.NoError(t, tr.Start(context.Background()))

	_, err := tr.SendRequest(context.Background(), "crash", nil)
	assert.True(t, mcperrors.IsConnectionClosed(err), "got %v", err)
	<-tr.Exited()
	assert.Error(t, tr.ExitErr())
}

func TestCommandTransportStopKillsStubbornChild(t *testing.T) {
	tr := newHelperTransport(t, "stubborn")
	require.NoError(t, tr.Start(context.Background()))

	start := time.Now()
	require.NoError(t, tr.Stop(context.Background()))
	assert.Less(t, time.Since(start), 2*time.Second)

	select {
	case <-tr.Exited():
	default:
		t.Fatal("Stop returned before the child was reaped")
	}
}

func TestCommandTransportWriteToStubbornChildTimesOut(t *testing.T) {
	config := DefaultConfig()
	config.StopGracePeriod = 200 * time.Millisecond
	config.RequestTimeout = 300 * time.Millisecond
	tr := NewCommandTransport(os.Args[0], []string{"-test.run=^TestHelperProcess$"}, config, WithEnv(helperEnv+"=stubborn"))
	t.Cleanup(func() { _ = tr.Stop(context.Background()) })
	require.NoError(t, tr.Start(context.Background()))

	start := time.Now()
	_, err := tr.SendRequest(context.Background(), "echo", map[string]string{"pad": strings.Repeat("x", 1<<20)})
	assert.True(t, mcperrors.IsTimeout(err), "got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("transport still open after a stalled write")
	}
}

func TestCommandTransportSpawnFailure(t *testing.T) {
	tr := NewCommandTransport("/nonexistent/mcp-demo-server", nil, DefaultConfig())
	err := tr.Start(context.Background())
	require.Error(t, err)
	assert.True(t, mcperrors.IsConnectionError(err))
	assert.Zero(t, tr.Pid())
	assert.NoError(t, tr.Stop(context.Background()))
}

func TestCommandTransportBeforeStart(t *testing.T) {
	tr := NewCommandTransport("true", nil, DefaultConfig())
	_, err := tr.SendRequest(context.Background(), "ping", nil)
	assert.True(t, mcperrors.IsConnectionClosed(err))
	assert.Nil(t, tr.Done())
}
