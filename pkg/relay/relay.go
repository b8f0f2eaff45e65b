package relay

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ajitpratap0/mcp-relay/pkg/observability"
	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
)

// DefaultDelay is the pause between word chunks of FromString.
const DefaultDelay = 30 * time.Millisecond

// ErrClosed is returned by Recv after Close.
var ErrClosed = errors.New("relay: stream closed")

// Chunk is one incremental piece of a response.
type Chunk struct {
	Text string
}

// Stream is an ordered sequence of chunks. Recv returns io.EOF once every
// chunk has been delivered; that is the only completion signal. Close stops
// production and may be called at any time, more than once.
type Stream interface {
	Recv(ctx context.Context) (Chunk, error)
	Close() error
}

// EmitFunc hands one piece of text to the consumer. It blocks until the
// consumer takes it and fails once the stream is closed.
type EmitFunc func(text string) error

// ProduceFunc generates a stream's text by calling emit. Returning nil ends
// the stream normally; any other error is delivered to the consumer.
type ProduceFunc func(ctx context.Context, emit EmitFunc) error

type pipeStream struct {
	ch     chan Chunk
	cancel context.CancelFunc

	// err is written by the producer before ch is closed.
	err error

	closeOnce sync.Once
	closed    chan struct{}
}

// Pipe runs produce in its own goroutine and exposes what it emits as a
// Stream. Delivery is unbuffered, so the producer runs at the consumer's
// pace and stops as soon as the stream is closed or ctx ends.
func Pipe(ctx context.Context, produce ProduceFunc) Stream {
	pctx, cancel := context.WithCancel(ctx)
	s := &pipeStream{
		ch:     make(chan Chunk),
		cancel: cancel,
		closed: make(chan struct{}),
	}
	go func() {
		defer close(s.ch)
		s.err = produce(pctx, func(text string) error {
			if text == "" {
				return nil
			}
			select {
			case s.ch <- Chunk{Text: text}:
				return nil
			case <-pctx.Done():
				return pctx.Err()
			}
		})
	}()
	return s
}

func (s *pipeStream) Recv(ctx context.Context) (Chunk, error) {
	select {
	case <-s.closed:
		return Chunk{}, ErrClosed
	default:
	}
	select {
	case c, ok := <-s.ch:
		if ok {
			return c, nil
		}
		select {
		case <-s.closed:
			return Chunk{}, ErrClosed
		default:
		}
		if s.err != nil {
			return Chunk{}, s.err
		}
		return Chunk{}, io.EOF
	case <-s.closed:
		return Chunk{}, ErrClosed
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	}
}

func (s *pipeStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
	})
	return nil
}

var wordPattern = regexp.MustCompile(`\S+\s*`)

// Words splits text into word chunks. Each chunk keeps the whitespace that
// follows it and leading whitespace is attached to the first chunk, so the
// chunks concatenate back to text exactly.
func Words(text string) []string {
	words := wordPattern.FindAllString(text, -1)
	if len(words) == 0 {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	if lead := text[:len(text)-len(strings.TrimLeft(text, "\t\n\f\r "))]; lead != "" {
		words[0] = lead + words[0]
	}
	return words
}

// FromString streams text word by word, pausing delay between chunks.
func FromString(ctx context.Context, text string, delay time.Duration) Stream {
	words := Words(text)
	return Pipe(ctx, func(ctx context.Context, emit EmitFunc) error {
		for i, w := range words {
			if i > 0 && delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				}
			}
			if err := emit(w); err != nil {
				return err
			}
		}
		return nil
	})
}

// FromToolResult streams the text of a tool result.
func FromToolResult(ctx context.Context, result *protocol.CallToolResult, delay time.Duration) Stream {
	return FromString(ctx, result.Text(), delay)
}

// FromPromptResult streams the rendered prompt messages, separated by a
// blank line.
func FromPromptResult(ctx context.Context, result *protocol.GetPromptResult, delay time.Duration) Stream {
	parts := make([]string, 0, len(result.Messages))
	for _, m := range result.Messages {
		parts = append(parts, m.Content.Text)
	}
	return FromString(ctx, strings.Join(parts, "\n\n"), delay)
}

// Sink receives the chunks of a stream, then exactly one Done.
type Sink interface {
	Send(ctx context.Context, c Chunk) error
	Done(ctx context.Context) error
}

// Pump moves every chunk of stream into sink in order and then signals
// Done. The stream is closed on return. Done is not called if the stream or
// the sink fails, or ctx ends.
func Pump(ctx context.Context, stream Stream, sink Sink) error {
	defer stream.Close()
	for {
		c, err := stream.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return sink.Done(ctx)
		}
		if err != nil {
			return err
		}
		if err := sink.Send(ctx, c); err != nil {
			return err
		}
	}
}

// Collect reads stream to the end and returns the concatenated text.
func Collect(ctx context.Context, stream Stream) (string, error) {
	var c Collector
	if err := Pump(ctx, stream, &c); err != nil {
		return c.Text(), err
	}
	return c.Text(), nil
}

// Collector is a Sink that keeps every chunk.
type Collector struct {
	mu     sync.Mutex
	chunks []string
	done   bool
}

func (c *Collector) Send(_ context.Context, chunk Chunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, chunk.Text)
	return nil
}

func (c *Collector) Done(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done = true
	return nil
}

// Chunks returns the received chunks in order.
func (c *Collector) Chunks() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.chunks...)
}

// Text returns the received chunks joined.
func (c *Collector) Text() string {
	return strings.Join(c.Chunks(), "")
}

// IsDone reports whether Done was received.
func (c *Collector) IsDone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// SinkFunc adapts a function to a Sink whose Done does nothing.
type SinkFunc func(ctx context.Context, c Chunk) error

func (f SinkFunc) Send(ctx context.Context, c Chunk) error { return f(ctx, c) }
func (f SinkFunc) Done(context.Context) error              { return nil }

type multiSink []Sink

// MultiSink delivers every chunk to each sink in order. The first error
// stops delivery.
func MultiSink(sinks ...Sink) Sink {
	return multiSink(sinks)
}

func (m multiSink) Send(ctx context.Context, c Chunk) error {
	for _, s := range m {
		if err := s.Send(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (m multiSink) Done(ctx context.Context) error {
	for _, s := range m {
		if err := s.Done(ctx); err != nil {
			return err
		}
	}
	return nil
}

type observedStream struct {
	Stream
	metrics *observability.MetricsProvider
	source  string
}

// Observe counts the chunks received from stream under source.
func Observe(stream Stream, metrics *observability.MetricsProvider, source string) Stream {
	if metrics == nil {
		return stream
	}
	return &observedStream{Stream: stream, metrics: metrics, source: source}
}

func (o *observedStream) Recv(ctx context.Context) (Chunk, error) {
	c, err := o.Stream.Recv(ctx)
	if err == nil {
		o.metrics.RecordStreamChunk(o.source)
	}
	return c, err
}

type tappedStream struct {
	Stream
	fn func(Chunk)
}

// Tap calls fn with every chunk received from stream, before the consumer
// sees it.
func Tap(stream Stream, fn func(Chunk)) Stream {
	return &tappedStream{Stream: stream, fn: fn}
}

func (t *tappedStream) Recv(ctx context.Context) (Chunk, error) {
	c, err := t.Stream.Recv(ctx)
	if err == nil {
		t.fn(c)
	}
	return c, err
}
