// Package chat holds the conversation model rendered by chat clients.
//
// A Conversation is append-only. The assistant's reply is created empty and
// loading, grows as relay chunks arrive, and is marked final when its stream
// completes. Only the most recently started assistant message accepts chunks;
// chunks addressed to an older message are dropped.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
	"github.com/ajitpratap0/mcp-relay/pkg/relay"
)

// ErrSuperseded is returned by Consume when a newer assistant message took
// over the conversation before the stream finished.
var ErrSuperseded = errors.New("chat: message superseded by a newer reply")

// ToolInvocation records a tool call made on behalf of a message.
type ToolInvocation struct {
	Tool    string                 `json:"tool"`
	Args    map[string]interface{} `json:"args,omitempty"`
	Result  string                 `json:"result,omitempty"`
	IsError bool                   `json:"isError,omitempty"`
}

// Message is one entry of a conversation.
type Message struct {
	ID              string           `json:"id"`
	Role            protocol.Role    `json:"role"`
	Content         string           `json:"content"`
	Loading         bool             `json:"loading,omitempty"`
	ToolInvocations []ToolInvocation `json:"toolInvocations,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

func (m Message) clone() Message {
	if m.ToolInvocations != nil {
		m.ToolInvocations = append([]ToolInvocation(nil), m.ToolInvocations...)
	}
	return m
}

// Conversation is safe for concurrent use.
type Conversation struct {
	mu       sync.Mutex
	messages []Message
	index    map[string]int
	active   string
	cancel   context.CancelFunc
}

// NewConversation creates a conversation seeded with history, which is
// typically loaded from a Store.
func NewConversation(history ...Message) *Conversation {
	c := &Conversation{index: make(map[string]int)}
	for _, m := range history {
		m.Loading = false
		c.push(m)
	}
	return c
}

func (c *Conversation) push(m Message) {
	c.index[m.ID] = len(c.messages)
	c.messages = append(c.messages, m)
}

// Append adds a finished message and returns it.
func (c *Conversation) Append(role protocol.Role, content string) Message {
	m := Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	c.mu.Lock()
	c.push(m)
	c.mu.Unlock()
	return m
}

// StartAssistant appends an empty loading assistant message and makes it the
// active one. Any stream feeding the previous active message is cancelled
// through its context. The returned context is cancelled when a newer
// message starts.
func (c *Conversation) StartAssistant(ctx context.Context) (string, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m := Message{
		ID:        uuid.New().String(),
		Role:      protocol.RoleAssistant,
		Loading:   true,
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	prev := c.cancel
	c.push(m)
	c.active = m.ID
	c.cancel = cancel
	c.mu.Unlock()

	if prev != nil {
		prev()
	}
	return m.ID, ctx
}

// Active returns the id of the message currently accepting chunks.
func (c *Conversation) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// ApplyChunk appends text to message id. It reports false, changing nothing,
// when id is not the active message.
func (c *Conversation) ApplyChunk(id, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == "" || id != c.active {
		return false
	}
	c.messages[c.index[id]].Content += text
	return true
}

// AddToolInvocation attaches inv to message id.
func (c *Conversation) AddToolInvocation(id string, inv ToolInvocation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return false
	}
	c.messages[i].ToolInvocations = append(c.messages[i].ToolInvocations, inv)
	return true
}

// Finish marks message id as no longer loading. If id is the active message
// the conversation has no active message afterwards.
func (c *Conversation) Finish(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return false
	}
	c.messages[i].Loading = false
	if c.active == id {
		c.active = ""
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
	}
	return true
}

// Message returns a copy of message id.
func (c *Conversation) Message(id string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return Message{}, false
	}
	return c.messages[i].clone(), true
}

// Messages returns a snapshot of the conversation in order.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.clone()
	}
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// NewSink returns a relay.Sink streaming into message id. Send fails with
// ErrSuperseded once id is no longer the active message; Done marks it final.
func NewSink(conv *Conversation, id string) relay.Sink {
	return messageSink{conv: conv, id: id}
}

type messageSink struct {
	conv *Conversation
	id   string
}

func (s messageSink) Send(_ context.Context, chunk relay.Chunk) error {
	if !s.conv.ApplyChunk(s.id, chunk.Text) {
		return ErrSuperseded
	}
	return nil
}

func (s messageSink) Done(context.Context) error {
	s.conv.Finish(s.id)
	return nil
}

// Consume pumps stream into message id until it is done, fails, or is
// superseded. The message is marked final in every case.
func Consume(ctx context.Context, conv *Conversation, id string, stream relay.Stream) error {
	err := relay.Pump(ctx, stream, NewSink(conv, id))
	if err == nil {
		return nil
	}
	superseded := conv.Active() != id
	conv.Finish(id)
	if superseded {
		return ErrSuperseded
	}
	return err
}

// Store persists conversations by id.
type Store interface {
	Save(conversationID string, m Message) error
	Load(conversationID string) ([]Message, error)
	Close() error
}
