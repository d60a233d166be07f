package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/samsaffron/roundtable/internal/chat"
)

// Store persists conversations. The message log is written as a whole after
// each finalized turn: edits and regenerations rewrite messages in place, so
// replace-on-save is the only shape that stays faithful to the in-memory log.
type Store interface {
	Create(ctx context.Context, c *Conversation) error
	Get(ctx context.Context, id string) (*Conversation, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOptions) ([]Summary, error)
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)

	SaveMessages(ctx context.Context, conversationID string, messages []chat.ChatMessage) error
	Messages(ctx context.Context, conversationID string) ([]chat.ChatMessage, error)

	// Current conversation tracking, used for resume.
	SetCurrent(ctx context.Context, conversationID string) error
	GetCurrent(ctx context.Context) (*Conversation, error)
	ClearCurrent(ctx context.Context) error

	Close() error
}

// Conversation is a persisted chat session.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary is a lightweight view for listing.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListOptions configures conversation listing.
type ListOptions struct {
	Provider string
	Model    string
	Limit    int // 0 = default
	Offset   int
}

// SearchResult is one full-text match.
type SearchResult struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title,omitempty"`
	Snippet        string    `json:"snippet"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewID returns a fresh conversation id.
func NewID() string {
	return uuid.NewString()
}

// TitleFromContent derives a conversation title from the first user message:
// first line, truncated to 100 chars.
func TitleFromContent(content string) string {
	for i, r := range content {
		if r == '\n' {
			content = content[:i]
			break
		}
	}
	if len(content) > 100 {
		content = content[:97] + "..."
	}
	return content
}

// DefaultDBPath returns the conversations database path under the XDG data
// directory. Uses $XDG_DATA_HOME if set, otherwise ~/.local/share.
func DefaultDBPath() (string, error) {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "roundtable", "conversations.db"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "roundtable", "conversations.db"), nil
}

// New creates a Store. Disabled persistence returns a no-op store; an empty
// path uses the default XDG location.
func New(disabled bool, path string) (Store, error) {
	if disabled {
		return &NoopStore{}, nil
	}
	if path == "" {
		var err error
		path, err = DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return NewSQLiteStore(path)
}
