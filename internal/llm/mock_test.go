package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMockProviderPlaysTurnsInOrder(t *testing.T) {
	mock := NewMockProvider("test")
	mock.AddTextResponse("first")
	mock.AddTextResponse("second")

	for i, want := range []string{"first", "second"} {
		stream, err := mock.Stream(context.Background(), Request{Messages: []Message{UserText("hi")}})
		if err != nil {
			t.Fatalf("Stream() %d error: %v", i, err)
		}
		events := collectEvents(t, stream)

		var text strings.Builder
		for _, event := range events {
			if event.Type == EventTextDelta {
				text.WriteString(event.Text)
			}
		}
		if got := text.String(); got != want {
			t.Errorf("turn %d text = %q, want %q", i, got, want)
		}
	}

	if _, err := mock.Stream(context.Background(), Request{}); err == nil {
		t.Error("expected error after turns exhausted")
	}
	if len(mock.Requests) != 3 {
		t.Errorf("recorded requests = %d, want 3", len(mock.Requests))
	}
}

func TestMockProviderThinkingPrecedesText(t *testing.T) {
	mock := NewMockProvider("test")
	mock.AddTurn(MockTurn{Thinking: "hmm", Text: "answer"})

	stream, err := mock.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	events := collectEvents(t, stream)

	lastReasoning, firstText := -1, -1
	for i, event := range events {
		switch event.Type {
		case EventReasoningDelta:
			lastReasoning = i
		case EventTextDelta:
			if firstText == -1 {
				firstText = i
			}
		}
	}
	if lastReasoning == -1 || firstText == -1 {
		t.Fatalf("missing reasoning or text events: %+v", events)
	}
	if lastReasoning > firstText {
		t.Error("reasoning deltas should all arrive before text deltas")
	}
}

func TestMockProviderToolCall(t *testing.T) {
	mock := NewMockProvider("test")
	mock.AddToolCall("call-1", "read_file", json.RawMessage(`{"path":"main.go"}`))

	stream, err := mock.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	events := collectEvents(t, stream)

	var call *ToolCall
	for _, event := range events {
		if event.Type == EventToolCall {
			call = event.Tool
		}
	}
	if call == nil {
		t.Fatal("no tool call event emitted")
	}
	if call.ID != "call-1" || call.Name != "read_file" {
		t.Errorf("tool call = %+v, want call-1/read_file", call)
	}
}

func TestMockProviderError(t *testing.T) {
	mock := NewMockProvider("test")
	mock.AddError(errors.New("scripted failure"))

	stream, err := mock.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	var sawError bool
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !strings.Contains(err.Error(), "scripted failure") {
				t.Errorf("stream error = %v, want scripted failure", err)
			}
			break
		}
		if event.Type == EventError {
			sawError = true
		}
	}
	if !sawError {
		t.Error("expected an error event before the stream failed")
	}
}

func TestMockProviderReset(t *testing.T) {
	mock := NewMockProvider("test")
	mock.AddTextResponse("hello")

	stream, err := mock.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	collectEvents(t, stream)

	mock.Reset()
	if mock.CurrentTurn() != 0 {
		t.Errorf("CurrentTurn() after reset = %d, want 0", mock.CurrentTurn())
	}
	if len(mock.Requests) != 0 {
		t.Errorf("Requests after reset = %d, want 0", len(mock.Requests))
	}

	stream, err = mock.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream() after reset error: %v", err)
	}
	collectEvents(t, stream)
}

func TestMockProviderLoop(t *testing.T) {
	mock := NewMockProvider("test")
	mock.AddTextResponse("again")
	mock.SetLoop(true)

	for i := 0; i < 3; i++ {
		stream, err := mock.Stream(context.Background(), Request{})
		if err != nil {
			t.Fatalf("Stream() %d error: %v", i, err)
		}
		collectEvents(t, stream)
	}
}

func TestChunkText(t *testing.T) {
	tests := []struct {
		text string
		size int
		want int
	}{
		{"", 8, 0},
		{"short", 8, 1},
		{"exactly8", 8, 1},
		{"nine chars", 8, 2},
		{strings.Repeat("a", 25), 8, 4},
	}
	for _, tt := range tests {
		got := chunkText(tt.text, tt.size)
		if len(got) != tt.want {
			t.Errorf("chunkText(%q, %d) = %d chunks, want %d", tt.text, tt.size, len(got), tt.want)
		}
		if strings.Join(got, "") != tt.text {
			t.Errorf("chunkText(%q, %d) does not reassemble to input", tt.text, tt.size)
		}
	}
}
