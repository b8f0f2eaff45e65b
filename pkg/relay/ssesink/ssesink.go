// Package ssesink delivers relay streams to HTTP clients as Server-Sent Events.
//
// Each chunk is sent as a "chunk" event whose data is {"text": "..."}. A
// stream that finishes sends a final "done" event; a stream that fails sends
// an "error" event instead.
package ssesink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tmaxmax/go-sse"

	"github.com/ajitpratap0/mcp-relay/pkg/logging"
	"github.com/ajitpratap0/mcp-relay/pkg/relay"
)

// Event types written to the wire.
const (
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// ChunkData is the payload of a chunk event.
type ChunkData struct {
	Text string `json:"text"`
}

// Sink is a relay.Sink writing to an upgraded SSE session.
type Sink struct {
	sess *sse.Session
}

// New upgrades the request to an event stream.
func New(w http.ResponseWriter, r *http.Request) (*Sink, error) {
	sess, err := sse.Upgrade(w, r)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade session: %w", err)
	}
	return &Sink{sess: sess}, nil
}

func (s *Sink) Send(_ context.Context, c relay.Chunk) error {
	return s.send(EventChunk, ChunkData{Text: c.Text})
}

func (s *Sink) Done(context.Context) error {
	return s.send(EventDone, struct {
		Done bool `json:"done"`
	}{true})
}

// Fail reports a stream error to the client.
func (s *Sink) Fail(err error) error {
	return s.send(EventError, struct {
		Error string `json:"error"`
	}{err.Error()})
}

func (s *Sink) send(typ string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", typ, err)
	}
	msg := &sse.Message{Type: sse.Type(typ)}
	msg.AppendData(string(data))
	if err := s.sess.Send(msg); err != nil {
		return fmt.Errorf("failed to write %s event: %w", typ, err)
	}
	if err := s.sess.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s event: %w", typ, err)
	}
	return nil
}

// StreamFunc opens the stream to relay for a request.
type StreamFunc func(r *http.Request) (relay.Stream, error)

// Handler relays the stream returned by open to the client. The stream is
// cancelled when the client disconnects.
func Handler(open StreamFunc, logger logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stream, err := open(r)
		if err != nil {
			logger.Warn("failed to open stream", logging.ErrorField(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		Serve(w, r, stream, logger)
	})
}

// Serve relays stream to the client until it ends or the client disconnects.
// Chunks and the final done are also delivered to tee, after the client.
func Serve(w http.ResponseWriter, r *http.Request, stream relay.Stream, logger logging.Logger, tee ...relay.Sink) {
	sink, err := New(w, r)
	if err != nil {
		stream.Close()
		logger.Error("failed to upgrade session", logging.ErrorField(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var out relay.Sink = sink
	if len(tee) > 0 {
		out = relay.MultiSink(append([]relay.Sink{sink}, tee...)...)
	}
	if err := relay.Pump(r.Context(), stream, out); err != nil {
		if r.Context().Err() != nil {
			logger.Debug("client went away mid-stream")
			return
		}
		logger.Warn("stream failed", logging.ErrorField(err))
		if ferr := sink.Fail(err); ferr != nil {
			logger.Debug("failed to report stream error", logging.ErrorField(ferr))
		}
	}
}
