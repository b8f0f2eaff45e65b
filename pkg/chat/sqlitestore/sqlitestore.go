// Package sqlitestore provides SQLite-based persistence for conversations.
package sqlitestore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ajitpratap0/mcp-relay/pkg/chat"
	"github.com/ajitpratap0/mcp-relay/pkg/protocol"
)

// SQLiteStore implements chat.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ chat.Store = (*SQLiteStore)(nil)

// New creates a new SQLite-based store at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS messages (
    seq               INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id   TEXT NOT NULL,
    id                TEXT NOT NULL,
    role              TEXT NOT NULL,
    content           TEXT NOT NULL,
    loading           BOOLEAN NOT NULL,
    tool_invocations  TEXT NOT NULL DEFAULT '[]',
    created_at        DATETIME NOT NULL,
    UNIQUE(conversation_id, id)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);
`
	_, err := s.db.Exec(schema)
	return err
}

func encodeInvocations(invs []chat.ToolInvocation) (string, error) {
	if len(invs) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(invs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeInvocations(src string, dest *[]chat.ToolInvocation) error {
	if src == "" || src == "[]" {
		*dest = nil
		return nil
	}
	return json.Unmarshal([]byte(src), dest)
}

// Save inserts m, or updates it in place if the conversation already holds a
// message with the same id. Updated messages keep their position.
func (s *SQLiteStore) Save(conversationID string, m chat.Message) error {
	invs, err := encodeInvocations(m.ToolInvocations)
	if err != nil {
		return fmt.Errorf("encode tool invocations: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO messages (conversation_id, id, role, content, loading, tool_invocations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, id) DO UPDATE SET
			content = excluded.content,
			loading = excluded.loading,
			tool_invocations = excluded.tool_invocations`,
		conversationID, m.ID, string(m.Role), m.Content, m.Loading, invs, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// Load returns the conversation's messages in the order they were first saved.
func (s *SQLiteStore) Load(conversationID string) ([]chat.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, role, content, loading, tool_invocations, created_at FROM messages WHERE conversation_id = ? ORDER BY seq`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var m chat.Message
		var role, invs string
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.Loading, &invs, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = protocol.Role(role)
		if err := decodeInvocations(invs, &m.ToolInvocations); err != nil {
			return nil, fmt.Errorf("decode tool invocations: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// ListConversations returns the ids of every stored conversation.
func (s *SQLiteStore) ListConversations() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT conversation_id FROM messages ORDER BY conversation_id`)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return ids, nil
}

// Clear deletes a conversation.
func (s *SQLiteStore) Clear(conversationID string) error {
	if _, err := s.db.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

// Close implements chat.Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
