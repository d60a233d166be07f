package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/samsaffron/roundtable/internal/store"
)

func TestShortID(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"abc", "abc"},
		{"12345678", "12345678"},
		{"123456789abcdef", "12345678"},
	}
	for _, tt := range tests {
		if got := shortID(tt.id); got != tt.want {
			t.Errorf("shortID(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestHumanTime(t *testing.T) {
	now := time.Now()
	tests := []struct {
		t    time.Time
		want string
	}{
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-49 * time.Hour), "2d ago"},
	}
	for _, tt := range tests {
		if got := humanTime(tt.t); got != tt.want {
			t.Errorf("humanTime(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func TestResolveConversationByPrefix(t *testing.T) {
	st, err := store.New(false, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	conv := &store.Conversation{ID: "deadbeef-0000-0000-0000-000000000000", Provider: "mock", Model: "mock-model"}
	if err := st.Create(ctx, conv); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := resolveConversation(ctx, st, "deadbeef")
	if err != nil {
		t.Fatalf("resolveConversation() error = %v", err)
	}
	if got.ID != conv.ID {
		t.Errorf("resolved ID = %q, want %q", got.ID, conv.ID)
	}

	if _, err := resolveConversation(ctx, st, "nope"); err == nil {
		t.Error("expected error for unknown id")
	}
}
