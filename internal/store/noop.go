package store

import (
	"context"

	"github.com/samsaffron/roundtable/internal/chat"
)

// NoopStore is used when persistence is disabled. It silently discards all
// writes and returns empty results for reads.
type NoopStore struct{}

func (s *NoopStore) Create(ctx context.Context, c *Conversation) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	return nil
}

func (s *NoopStore) Get(ctx context.Context, id string) (*Conversation, error) {
	return nil, nil
}

func (s *NoopStore) Delete(ctx context.Context, id string) error {
	return nil
}

func (s *NoopStore) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	return nil, nil
}

func (s *NoopStore) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	return nil, nil
}

func (s *NoopStore) SaveMessages(ctx context.Context, conversationID string, messages []chat.ChatMessage) error {
	return nil
}

func (s *NoopStore) Messages(ctx context.Context, conversationID string) ([]chat.ChatMessage, error) {
	return nil, nil
}

func (s *NoopStore) SetCurrent(ctx context.Context, conversationID string) error {
	return nil
}

func (s *NoopStore) GetCurrent(ctx context.Context) (*Conversation, error) {
	return nil, nil
}

func (s *NoopStore) ClearCurrent(ctx context.Context) error {
	return nil
}

func (s *NoopStore) Close() error {
	return nil
}
