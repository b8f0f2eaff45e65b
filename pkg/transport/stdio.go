package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	mcperrors "github.com/ajitpratap0/mcp-relay/pkg/errors"
	"github.com/ajitpratap0/mcp-relay/pkg/logging"
	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
)

// StdioTransport carries newline-framed JSON-RPC messages over a reader and
// a writer. It is used for both ends of a stdio connection: the server wraps
// its own stdin/stdout, the client wraps the pipes of a spawned process.
type StdioTransport struct {
	*BaseTransport
	config    Config
	logger    logging.Logger
	reader    io.Reader
	writer    io.Writer
	rawWriter *bufio.Writer
	writeMu   sync.Mutex

	startMu  sync.Mutex
	started  bool
	cancel   context.CancelFunc
	stopOnce sync.Once
}

var errWriteStalled = errors.New("peer stopped reading")

// NewStdioTransport creates a transport reading from reader and writing to
// writer.
func NewStdioTransport(reader io.Reader, writer io.Writer, config Config) *StdioTransport {
	config = config.withDefaults()
	return &StdioTransport{
		BaseTransport: NewBaseTransport(),
		config:        config,
		logger:        config.Logger.WithFields(logging.String("component", "transport."+config.Name)),
		reader:        reader,
		writer:        writer,
		rawWriter:     bufio.NewWriter(writer),
	}
}

// NewStdioServerTransport creates a transport over the process's own stdin
// and stdout.
func NewStdioServerTransport(config Config) *StdioTransport {
	return NewStdioTransport(os.Stdin, os.Stdout, config)
}

// Start launches the read loop and returns immediately.
func (t *StdioTransport) Start(ctx context.Context) error {
	t.startMu.Lock()
	defer t.startMu.Unlock()
	if t.started {
		return ErrAlreadyStarted
	}
	if err := t.Err(); err != nil {
		return err
	}
	t.started = true

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	go func() {
		err := t.readLoop(loopCtx, ctx)
		cancel()
		if err == nil {
			err = io.EOF
		}
		t.logger.Debug("read loop finished", logging.ErrorField(err))
		t.Cleanup(mcperrors.ConnectionClosed(t.config.Name, err))
	}()
	return nil
}

// readLoop reads lines until EOF, a read error, Stop, or cancellation of
// startCtx. Handlers run on loopCtx, which outlives startCtx until the loop
// itself ends.
func (t *StdioTransport) readLoop(loopCtx, startCtx context.Context) error {
	g, gctx := errgroup.WithContext(loopCtx)

	scanner := bufio.NewScanner(t.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), t.config.MaxMessageSize)
	scannerDone := make(chan struct{})

	g.Go(func() error {
		defer close(scannerDone)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			data := make([]byte, len(line))
			copy(data, line)
			t.processMessage(loopCtx, data)
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		return io.EOF
	})

	g.Go(func() error {
		select {
		case <-startCtx.Done():
			t.closeReader()
			return startCtx.Err()
		case <-t.Done():
			t.closeReader()
			return ErrTransportStopped
		case <-gctx.Done():
			return nil
		case <-scannerDone:
			return nil
		}
	})

	return g.Wait()
}

func (t *StdioTransport) closeReader() {
	if closer, ok := t.reader.(io.Closer); ok {
		_ = closer.Close()
	}
}

// Stop closes the transport. Pending requests fail with ConnectionClosed.
// The writer is closed first so a write blocked on a peer that stopped
// reading returns instead of holding Stop.
func (t *StdioTransport) Stop(ctx context.Context) error {
	var closeErr error
	t.stopOnce.Do(func() {
		t.Cleanup(mcperrors.ConnectionClosed(t.config.Name, ErrTransportStopped))
		closeErr = t.closeWriter()

		t.startMu.Lock()
		if t.cancel != nil {
			t.cancel()
		}
		t.startMu.Unlock()
		t.closeReader()
	})
	if closeErr != nil && !errors.Is(closeErr, io.ErrClosedPipe) && !errors.Is(closeErr, os.ErrClosed) {
		return fmt.Errorf("close writer on stop: %w", closeErr)
	}
	return nil
}

func (t *StdioTransport) closeWriter() error {
	if closer, ok := t.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Send writes one framed message. The write runs on its own goroutine so
// ctx bounds it: when ctx expires mid-write the peer is treated as stalled
// and the transport is closed.
func (t *StdioTransport) Send(ctx context.Context, data []byte) error {
	done := make(chan error, 1)
	go func() {
		done <- t.write(data)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		select {
		case err := <-done:
			return err
		default:
		}
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			// the write finishes in the background and keeps the framing intact
			return ctx.Err()
		}
		t.logger.Warn("write stalled, closing transport", logging.Int("bytes", len(data)))
		t.Cleanup(mcperrors.ConnectionClosed(t.config.Name, errWriteStalled))
		_ = t.closeWriter()
		return mcperrors.OperationTimeout("write", t.config.RequestTimeout)
	}
}

func (t *StdioTransport) write(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.rawWriter.Write(data); err != nil {
		return mcperrors.ConnectionClosed(t.config.Name, err)
	}
	if err := t.rawWriter.WriteByte('\n'); err != nil {
		return mcperrors.ConnectionClosed(t.config.Name, err)
	}
	if err := t.rawWriter.Flush(); err != nil {
		return mcperrors.ConnectionClosed(t.config.Name, err)
	}
	return nil
}

// SendRequest sends a request and waits for the response with the same id.
func (t *StdioTransport) SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := t.GenerateID()
	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, mcperrors.InvalidArgument("params", err.Error())
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, mcperrors.InvalidArgument("params", err.Error())
	}

	ch, err := t.AddPending(id)
	if err != nil {
		return nil, err
	}

	if t.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.RequestTimeout)
		defer cancel()
	}

	if err := t.Send(ctx, data); err != nil {
		t.RemovePending(id)
		return nil, err
	}

	resp, err := t.WaitForResponse(ctx, id, method, ch, t.config.RequestTimeout)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// SendNotification sends a notification (one-way message)
func (t *StdioTransport) SendNotification(ctx context.Context, method string, params interface{}) error {
	if err := t.Err(); err != nil {
		return err
	}
	notification, err := protocol.NewNotification(method, params)
	if err != nil {
		return mcperrors.InvalidArgument("params", err.Error())
	}
	data, err := json.Marshal(notification)
	if err != nil {
		return mcperrors.InvalidArgument("params", err.Error())
	}
	if t.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.RequestTimeout)
		defer cancel()
	}
	return t.Send(ctx, data)
}

// writeContext bounds a response write by RequestTimeout.
func (t *StdioTransport) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.config.RequestTimeout > 0 {
		return context.WithTimeout(ctx, t.config.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// processMessage routes one decoded line. Requests are handled on their own
// goroutine so a slow handler never blocks responses to our own requests.
func (t *StdioTransport) processMessage(ctx context.Context, data []byte) {
	msg, err := protocol.DecodeMessage(data)
	if err != nil {
		t.logger.Warn("dropping malformed message", logging.ErrorField(err), logging.Int("bytes", len(data)))
		return
	}

	switch msg.Kind() {
	case protocol.KindResponse:
		if !t.HandleResponse(msg.Response()) {
			t.logger.Debug("response for unknown request", logging.Any("id", msg.ID))
		}
	case protocol.KindRequest:
		req := msg.Request()
		go func() {
			reqCtx := logging.ContextWithRequestID(ctx, fmt.Sprint(req.ID))
			resp := t.HandleRequest(reqCtx, req, t.logger)
			out, err := json.Marshal(resp)
			if err != nil {
				t.logger.Error("failed to marshal response", logging.ErrorField(err), logging.String("method", req.Method))
				return
			}
			sendCtx, cancel := t.writeContext(ctx)
			defer cancel()
			if err := t.Send(sendCtx, out); err != nil {
				t.logger.Debug("failed to send response", logging.ErrorField(err), logging.String("method", req.Method))
			}
		}()
	case protocol.KindNotification:
		n := &protocol.Notification{
			JSONRPCMessage: protocol.JSONRPCMessage{JSONRPC: msg.JSONRPC},
			Method:         msg.Method,
			Params:         msg.Params,
		}
		if err := t.HandleNotification(ctx, n); err != nil {
			t.logger.Warn("notification handler failed", logging.ErrorField(err), logging.String("method", n.Method))
		}
	}
}
