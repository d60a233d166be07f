package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/samsaffron/roundtable/internal/chat"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "conversations.db"))
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreConversationRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{
		Provider: "anthropic",
		Model:    "claude-sonnet-4-5",
	}
	if err := store.Create(ctx, conv); err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}
	if conv.ID == "" {
		t.Fatal("expected an id to be allocated")
	}

	loaded, err := store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("failed to load conversation: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected conversation to exist")
	}
	if loaded.Provider != "anthropic" || loaded.Model != "claude-sonnet-4-5" {
		t.Errorf("loaded = %+v, want provider and model preserved", loaded)
	}

	missing, err := store.Get(ctx, "no-such-id")
	if err != nil {
		t.Fatalf("unexpected error for missing conversation: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing conversation")
	}
}

func TestSQLiteStoreSaveMessagesPreservesFullMessage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{Provider: "openai", Model: "gpt-5-mini"}
	if err := store.Create(ctx, conv); err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}

	user := chat.NewUserMessage("original question")
	user.Edited = true
	user.PreviousVersions = []string{"first draft"}

	assistant := chat.NewAssistantMessage()
	assistant.Content = "the answer"
	assistant.Thinking = "let me think"
	assistant.InputTokens = 12
	assistant.OutputTokens = 34
	assistant.ToolExecutions = []chat.ToolExecution{{
		ID:     "t1",
		Name:   "read_file",
		Input:  json.RawMessage(`{"path":"main.go"}`),
		Status: chat.ToolComplete,
		Result: "contents",
	}}

	if err := store.SaveMessages(ctx, conv.ID, []chat.ChatMessage{user, assistant}); err != nil {
		t.Fatalf("failed to save messages: %v", err)
	}

	loaded, err := store.Messages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("failed to load messages: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(loaded))
	}
	if loaded[0].ID != user.ID || loaded[0].Content != "original question" {
		t.Errorf("user message = %+v, want round-tripped", loaded[0])
	}
	if !loaded[0].Edited || len(loaded[0].PreviousVersions) != 1 || loaded[0].PreviousVersions[0] != "first draft" {
		t.Errorf("edit history lost: %+v", loaded[0])
	}
	if loaded[1].Thinking != "let me think" || loaded[1].OutputTokens != 34 {
		t.Errorf("assistant metadata lost: %+v", loaded[1])
	}
	if len(loaded[1].ToolExecutions) != 1 || loaded[1].ToolExecutions[0].Result != "contents" {
		t.Errorf("tool executions lost: %+v", loaded[1].ToolExecutions)
	}
}

func TestSQLiteStoreSaveMessagesReplacesLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{Provider: "anthropic", Model: "claude-sonnet-4-5"}
	if err := store.Create(ctx, conv); err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}

	user := chat.NewUserMessage("question")
	assistant := chat.NewAssistantMessage()
	assistant.Content = "first answer"
	if err := store.SaveMessages(ctx, conv.ID, []chat.ChatMessage{user, assistant}); err != nil {
		t.Fatalf("failed to save messages: %v", err)
	}

	// Regeneration rewrites the same assistant message in place.
	assistant.Content = "second answer"
	if err := store.SaveMessages(ctx, conv.ID, []chat.ChatMessage{user, assistant}); err != nil {
		t.Fatalf("failed to re-save messages: %v", err)
	}

	loaded, err := store.Messages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("failed to load messages: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 messages after re-save, got %d", len(loaded))
	}
	if loaded[1].Content != "second answer" {
		t.Errorf("content = %q, want second answer", loaded[1].Content)
	}
}

func TestSQLiteStoreTitleFromFirstUserMessage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{Provider: "anthropic", Model: "claude-sonnet-4-5"}
	if err := store.Create(ctx, conv); err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}

	user := chat.NewUserMessage("How do I parse YAML in Go?\nmore detail here")
	if err := store.SaveMessages(ctx, conv.ID, []chat.ChatMessage{user}); err != nil {
		t.Fatalf("failed to save messages: %v", err)
	}

	loaded, err := store.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("failed to load conversation: %v", err)
	}
	if loaded.Title != "How do I parse YAML in Go?" {
		t.Errorf("title = %q, want first line of first user message", loaded.Title)
	}
}

func TestSQLiteStoreListAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &Conversation{Provider: "anthropic", Model: "claude-sonnet-4-5", CreatedAt: time.Now().Add(-time.Hour)}
	second := &Conversation{Provider: "openai", Model: "gpt-5-mini"}
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("failed to create first: %v", err)
	}
	if err := store.Create(ctx, second); err != nil {
		t.Fatalf("failed to create second: %v", err)
	}

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(all))
	}

	filtered, err := store.List(ctx, ListOptions{Provider: "openai"})
	if err != nil {
		t.Fatalf("failed to list filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != second.ID {
		t.Errorf("filtered = %+v, want only the openai conversation", filtered)
	}

	if err := store.Delete(ctx, first.ID); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if err := store.Delete(ctx, first.ID); err == nil {
		t.Error("deleting a missing conversation should fail")
	}
}

func TestSQLiteStoreSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{Provider: "anthropic", Model: "claude-sonnet-4-5"}
	if err := store.Create(ctx, conv); err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}
	user := chat.NewUserMessage("tell me about goroutine scheduling")
	if err := store.SaveMessages(ctx, conv.ID, []chat.ChatMessage{user}); err != nil {
		t.Fatalf("failed to save messages: %v", err)
	}

	results, err := store.Search(ctx, "goroutine", 10)
	if err != nil {
		t.Fatalf("failed to search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ConversationID != conv.ID {
		t.Errorf("result = %+v, want the matching conversation", results[0])
	}
}

func TestSQLiteStoreCurrentConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	current, err := store.GetCurrent(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if current != nil {
		t.Fatal("expected no current conversation initially")
	}

	conv := &Conversation{Provider: "anthropic", Model: "claude-sonnet-4-5"}
	if err := store.Create(ctx, conv); err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}
	if err := store.SetCurrent(ctx, conv.ID); err != nil {
		t.Fatalf("failed to set current: %v", err)
	}

	current, err = store.GetCurrent(ctx)
	if err != nil {
		t.Fatalf("failed to get current: %v", err)
	}
	if current == nil || current.ID != conv.ID {
		t.Errorf("current = %+v, want %s", current, conv.ID)
	}

	if err := store.ClearCurrent(ctx); err != nil {
		t.Fatalf("failed to clear current: %v", err)
	}
	current, err = store.GetCurrent(ctx)
	if err != nil {
		t.Fatalf("unexpected error after clear: %v", err)
	}
	if current != nil {
		t.Error("expected current to be cleared")
	}
}

func TestTitleFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"single line", "hello", "hello"},
		{"multiline keeps first line", "line one\nline two", "line one"},
		{"long line truncated", longLine(150), longLine(97) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TitleFromContent(tt.content); got != tt.want {
				t.Errorf("TitleFromContent(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}

func longLine(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
