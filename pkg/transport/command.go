package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-relay/pkg/errors"
	"github.com/ajitpratap0/mcp-relay/pkg/logging"
)

// CommandTransport spawns the counterpart as a child process and talks to it
// over the child's stdin and stdout. The child's stderr is forwarded to the
// logger line by line.
type CommandTransport struct {
	command string
	args    []string
	env     []string
	config  Config
	logger  logging.Logger

	mu                   sync.Mutex
	cmd                  *exec.Cmd
	stdio                *StdioTransport
	requestHandlers      map[string]RequestHandler
	notificationHandlers map[string]NotificationHandler
	exited               chan struct{}
	waitErr              error
}

// CommandOption configures a CommandTransport.
type CommandOption func(*CommandTransport)

// WithEnv appends environment variables for the child process.
func WithEnv(env ...string) CommandOption {
	return func(t *CommandTransport) {
		t.env = append(t.env, env...)
	}
}

// NewCommandTransport prepares a transport that will run command with args
// when started.
func NewCommandTransport(command string, args []string, config Config, opts ...CommandOption) *CommandTransport {
	config = config.withDefaults()
	t := &CommandTransport{
		command:              command,
		args:                 args,
		config:               config,
		logger:               config.Logger.WithFields(logging.String("component", "transport.command")),
		requestHandlers:      make(map[string]RequestHandler),
		notificationHandlers: make(map[string]NotificationHandler),
		exited:               make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start spawns the process and starts the read loop on its stdout. A process
// that cannot be started is reported as ConnectionFailed.
func (t *CommandTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd != nil {
		return ErrAlreadyStarted
	}

	cmd := exec.Command(t.command, t.args...)
	if len(t.env) > 0 {
		cmd.Env = append(cmd.Environ(), t.env...)
	}
	cmd.Stderr = &lineLogger{logger: t.logger}
	cmd.WaitDelay = t.config.StopGracePeriod

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return mcperrors.ConnectionFailed(t.config.Name, t.command, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return mcperrors.ConnectionFailed(t.config.Name, t.command, err)
	}
	if err := cmd.Start(); err != nil {
		return mcperrors.ConnectionFailed(t.config.Name, t.command, err)
	}

	stdio := NewStdioTransport(stdout, stdin, t.config)
	for method, h := range t.requestHandlers {
		stdio.RegisterRequestHandler(method, h)
	}
	for method, h := range t.notificationHandlers {
		stdio.RegisterNotificationHandler(method, h)
	}

	t.cmd = cmd
	t.stdio = stdio
	t.logger.Info("process started", logging.String("command", t.command), logging.Int("pid", cmd.Process.Pid))

	// Wait may only run once stdout has been drained, which is when the read
	// loop ends.
	go func() {
		<-stdio.Done()
		_ = stdin.Close()
		err := cmd.Wait()
		t.mu.Lock()
		t.waitErr = err
		t.mu.Unlock()
		close(t.exited)
		t.logger.Debug("process exited", logging.ErrorField(err))
	}()

	return stdio.Start(ctx)
}

// Stop closes the child's stdin, waits up to the grace period for it to
// exit, kills it otherwise, and reaps it. Pending requests fail with
// ConnectionClosed.
func (t *CommandTransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	cmd, stdio := t.cmd, t.stdio
	t.mu.Unlock()
	if cmd == nil {
		return nil
	}

	stopErr := stdio.Stop(ctx)

	grace := time.NewTimer(t.config.StopGracePeriod)
	defer grace.Stop()

	select {
	case <-t.exited:
		return stopErr
	case <-grace.C:
	case <-ctx.Done():
	}

	t.logger.Warn("process did not exit, killing", logging.Int("pid", cmd.Process.Pid))
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		t.logger.Warn("kill failed", logging.ErrorField(err))
	}
	<-t.exited
	return stopErr
}

// SendRequest sends a request to the child. Before Start it fails with
// ConnectionClosed.
func (t *CommandTransport) SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	stdio := t.current()
	if stdio == nil {
		return nil, mcperrors.ConnectionClosed(t.config.Name, errNotStarted)
	}
	return stdio.SendRequest(ctx, method, params)
}

// SendNotification sends a notification to the child.
func (t *CommandTransport) SendNotification(ctx context.Context, method string, params interface{}) error {
	stdio := t.current()
	if stdio == nil {
		return mcperrors.ConnectionClosed(t.config.Name, errNotStarted)
	}
	return stdio.SendNotification(ctx, method, params)
}

// RegisterRequestHandler registers a handler for requests sent by the child.
func (t *CommandTransport) RegisterRequestHandler(method string, handler RequestHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requestHandlers[method] = handler
	if t.stdio != nil {
		t.stdio.RegisterRequestHandler(method, handler)
	}
}

// RegisterNotificationHandler registers a handler for notifications sent by
// the child.
func (t *CommandTransport) RegisterNotificationHandler(method string, handler NotificationHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notificationHandlers[method] = handler
	if t.stdio != nil {
		t.stdio.RegisterNotificationHandler(method, handler)
	}
}

// Done is closed once the connection to the child is gone, whether the child
// exited or the transport was stopped. Before Start it returns nil.
func (t *CommandTransport) Done() <-chan struct{} {
	stdio := t.current()
	if stdio == nil {
		return nil
	}
	return stdio.Done()
}

// Exited is closed once the child has been reaped.
func (t *CommandTransport) Exited() <-chan struct{} {
	return t.exited
}

// ExitErr returns the result of waiting for the child, once Exited is closed.
func (t *CommandTransport) ExitErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waitErr
}

// Pid returns the child's process id, or 0 before Start.
func (t *CommandTransport) Pid() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd == nil || t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// Kill terminates the child without closing the transport first, the way a
// crash would.
func (t *CommandTransport) Kill() error {
	t.mu.Lock()
	cmd := t.cmd
	t.mu.Unlock()
	if cmd == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func (t *CommandTransport) current() *StdioTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stdio
}

var errNotStarted = errors.New("transport not started")

// lineLogger forwards complete lines written to it as log entries.
type lineLogger struct {
	logger logging.Logger
	mu     sync.Mutex
	buf    bytes.Buffer
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Write(p)
	for {
		line, err := l.buf.ReadString('\n')
		if err != nil {
			// partial line, wait for the rest
			l.buf.WriteString(line)
			break
		}
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			l.logger.Info("stderr", logging.String("line", line))
		}
	}
	return len(p), nil
}
