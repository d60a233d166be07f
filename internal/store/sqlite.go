package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/samsaffron/roundtable/internal/chat"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    message_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
    content TEXT,
    body TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_conversation_position ON messages(conversation_id, position);

-- Metadata table for current conversation tracking
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT
);

-- Full-text search on message content
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    content,
    content='messages',
    content_rowid='id'
);

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.id, old.content);
    INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
END;
`

// NewSQLiteStore opens (creating if needed) the conversations database at
// path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Create inserts a new conversation.
func (s *SQLiteStore) Create(ctx context.Context, c *Conversation) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, provider, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, nullString(c.Title), c.Provider, c.Model, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// Get retrieves a conversation by id. Returns (nil, nil) when not found.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, provider, model, created_at, updated_at
		FROM conversations WHERE id = ?`, id)

	var c Conversation
	var title sql.NullString
	err := row.Scan(&c.ID, &title, &c.Provider, &c.Model, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	if title.Valid {
		c.Title = title.String
	}
	return &c, nil
}

// Delete removes a conversation; its messages cascade.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("conversation not found: %s", id)
	}
	return nil
}

// List returns conversations matching the options, newest first.
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	query := `
		SELECT c.id, c.title, c.provider, c.model, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM messages WHERE conversation_id = c.id) as message_count
		FROM conversations c
		WHERE 1=1`
	args := []any{}

	if opts.Provider != "" {
		query += " AND c.provider = ?"
		args = append(args, opts.Provider)
	}
	if opts.Model != "" {
		query += " AND c.model = ?"
		args = append(args, opts.Model)
	}

	query += " ORDER BY c.updated_at DESC"

	limit := opts.Limit
	if limit == 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT %d", limit)
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var results []Summary
	for rows.Next() {
		var sum Summary
		var title sql.NullString
		err := rows.Scan(&sum.ID, &title, &sum.Provider, &sum.Model,
			&sum.CreatedAt, &sum.UpdatedAt, &sum.MessageCount)
		if err != nil {
			return nil, fmt.Errorf("scan conversation summary: %w", err)
		}
		if title.Valid {
			sum.Title = title.String
		}
		results = append(results, sum)
	}
	return results, rows.Err()
}

// Search finds conversations containing the query text using FTS5.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit == 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.conversation_id, c.title, snippet(messages_fts, 0, '**', '**', '...', 32),
		       c.provider, c.model, m.created_at
		FROM messages_fts f
		JOIN messages m ON m.id = f.rowid
		JOIN conversations c ON c.id = m.conversation_id
		WHERE messages_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var title sql.NullString
		err := rows.Scan(&r.ConversationID, &title, &r.Snippet, &r.Provider, &r.Model, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		if title.Valid {
			r.Title = title.String
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// SaveMessages replaces the stored log for a conversation with the given
// snapshot. The full message is kept as JSON so edits, previous versions, and
// tool executions survive round trips exactly; content is duplicated into its
// own column for full-text search.
func (s *SQLiteStore) SaveMessages(ctx context.Context, conversationID string, messages []chat.ChatMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	for position, msg := range messages {
		body, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("serialize message: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (conversation_id, message_id, position, role, content, body, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			conversationID, msg.ID, position, string(msg.Role), msg.Content, string(body), msg.Timestamp)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ? WHERE id = ?",
		time.Now(), conversationID); err != nil {
		return fmt.Errorf("update conversation timestamp: %w", err)
	}

	// Derive a title from the first user message if none is set.
	if len(messages) > 0 {
		for _, msg := range messages {
			if msg.Role == chat.RoleUser && msg.Content != "" {
				if _, err := tx.ExecContext(ctx, `
					UPDATE conversations SET title = ?
					WHERE id = ? AND (title IS NULL OR title = '')`,
					TitleFromContent(msg.Content), conversationID); err != nil {
					return fmt.Errorf("update conversation title: %w", err)
				}
				break
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Messages retrieves the stored log for a conversation in order.
func (s *SQLiteStore) Messages(ctx context.Context, conversationID string) ([]chat.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM messages
		WHERE conversation_id = ?
		ORDER BY position ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []chat.ChatMessage
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var msg chat.ChatMessage
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			return nil, fmt.Errorf("deserialize message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// SetCurrent marks a conversation as the current one.
func (s *SQLiteStore) SetCurrent(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('current_conversation', ?)`,
		conversationID)
	return err
}

// GetCurrent retrieves the current conversation, or (nil, nil) if none.
func (s *SQLiteStore) GetCurrent(ctx context.Context) (*Conversation, error) {
	var conversationID string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM metadata WHERE key = 'current_conversation'").Scan(&conversationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, conversationID)
}

// ClearCurrent removes the current conversation marker.
func (s *SQLiteStore) ClearCurrent(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM metadata WHERE key = 'current_conversation'")
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullString converts an empty string to NULL for database storage.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
