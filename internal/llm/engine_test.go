package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

type sliceStream struct {
	events []Event
	index  int
}

func (s *sliceStream) Recv() (Event, error) {
	if s.index >= len(s.events) {
		return Event{}, io.EOF
	}
	event := s.events[s.index]
	s.index++
	return event, nil
}

func (s *sliceStream) Close() error {
	return nil
}

type fakeProvider struct {
	script          func(call int, req Request) []Event
	calls           []Request
	capabilities    Capabilities
	hasCapabilities bool
}

func (p *fakeProvider) Name() string {
	return "fake"
}

func (p *fakeProvider) Capabilities() Capabilities {
	if p.hasCapabilities {
		return p.capabilities
	}
	return Capabilities{ToolCalls: true}
}

func (p *fakeProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	p.calls = append(p.calls, req)
	call := len(p.calls) - 1
	events := p.script(call, req)
	return &sliceStream{events: events}, nil
}

type countingTool struct {
	calls int
}

func (t *countingTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "count_tool",
		Description: "Counts executions",
		Schema:      map[string]any{"type": "object"},
	}
}

func (t *countingTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	t.calls++
	return fmt.Sprintf("result %d", t.calls), nil
}

func (t *countingTool) Preview(args json.RawMessage) string {
	return ""
}

type failingTool struct{}

func (t *failingTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "failing_tool",
		Description: "Always fails",
		Schema:      map[string]any{"type": "object"},
	}
}

func (t *failingTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return "", errors.New("boom")
}

func (t *failingTool) Preview(args json.RawMessage) string {
	return ""
}

func collectEvents(t *testing.T, stream Stream) []Event {
	t.Helper()
	var events []Event
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		events = append(events, event)
	}
}

func TestEngineLoopsUntilNoToolCalls(t *testing.T) {
	tool := &countingTool{}
	registry := NewToolRegistry()
	registry.Register(tool)

	provider := &fakeProvider{
		script: func(call int, req Request) []Event {
			switch call {
			case 0:
				return []Event{
					{Type: EventToolCall, Tool: &ToolCall{ID: "call-1", Name: "count_tool", Arguments: json.RawMessage(`{}`)}},
					{Type: EventDone},
				}
			case 1:
				return []Event{
					{Type: EventToolCall, Tool: &ToolCall{ID: "call-2", Name: "count_tool", Arguments: json.RawMessage(`{}`)}},
					{Type: EventDone},
				}
			default:
				return []Event{
					{Type: EventTextDelta, Text: "final answer"},
					{Type: EventDone},
				}
			}
		},
	}

	engine := NewEngine(provider, registry)
	stream, err := engine.Stream(context.Background(), Request{Messages: []Message{UserText("go")}})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	events := collectEvents(t, stream)

	if tool.calls != 2 {
		t.Errorf("tool calls = %d, want 2", tool.calls)
	}
	if len(provider.calls) != 3 {
		t.Errorf("provider calls = %d, want 3", len(provider.calls))
	}

	var text strings.Builder
	starts, ends := 0, 0
	for _, event := range events {
		switch event.Type {
		case EventTextDelta:
			text.WriteString(event.Text)
		case EventToolExecStart:
			starts++
		case EventToolExecEnd:
			ends++
			if !event.ToolSuccess {
				t.Errorf("tool exec end reported failure: %s", event.ToolOutput)
			}
		}
	}
	if got := text.String(); got != "final answer" {
		t.Errorf("text = %q, want %q", got, "final answer")
	}
	if starts != 2 || ends != 2 {
		t.Errorf("tool exec events = %d/%d, want 2/2", starts, ends)
	}
}

func TestEngineFeedsToolResultsBack(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&countingTool{})

	provider := &fakeProvider{
		script: func(call int, req Request) []Event {
			if call == 0 {
				return []Event{
					{Type: EventToolCall, Tool: &ToolCall{ID: "call-1", Name: "count_tool", Arguments: json.RawMessage(`{}`)}},
					{Type: EventDone},
				}
			}
			return []Event{{Type: EventTextDelta, Text: "done"}, {Type: EventDone}}
		},
	}

	engine := NewEngine(provider, registry)
	stream, err := engine.Stream(context.Background(), Request{Messages: []Message{UserText("go")}})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	collectEvents(t, stream)

	if len(provider.calls) != 2 {
		t.Fatalf("provider calls = %d, want 2", len(provider.calls))
	}
	followUp := provider.calls[1].Messages
	if len(followUp) != 3 {
		t.Fatalf("follow-up messages = %d, want 3 (user, assistant, tool)", len(followUp))
	}
	if followUp[1].Role != RoleAssistant {
		t.Errorf("followUp[1].Role = %q, want assistant", followUp[1].Role)
	}
	if followUp[2].Role != RoleTool {
		t.Errorf("followUp[2].Role = %q, want tool", followUp[2].Role)
	}
	result := followUp[2].Parts[0].ToolResult
	if result == nil || result.Content != "result 1" {
		t.Errorf("tool result = %+v, want content %q", result, "result 1")
	}
}

func TestEngineUnregisteredToolBecomesErrorResult(t *testing.T) {
	provider := &fakeProvider{
		script: func(call int, req Request) []Event {
			if call == 0 {
				return []Event{
					{Type: EventToolCall, Tool: &ToolCall{ID: "call-1", Name: "no_such_tool", Arguments: json.RawMessage(`{}`)}},
					{Type: EventDone},
				}
			}
			return []Event{{Type: EventTextDelta, Text: "recovered"}, {Type: EventDone}}
		},
	}

	engine := NewEngine(provider, NewToolRegistry())
	// Without registered tools the engine would skip the loop, so name one
	// explicitly on the request.
	req := Request{
		Messages: []Message{UserText("go")},
		Tools:    []ToolSpec{{Name: "no_such_tool", Schema: map[string]any{"type": "object"}}},
	}
	stream, err := engine.Stream(context.Background(), req)
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	events := collectEvents(t, stream)

	var sawFailure bool
	for _, event := range events {
		if event.Type == EventToolExecEnd && !event.ToolSuccess {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Error("expected a failed tool exec end event")
	}

	followUp := provider.calls[1].Messages
	result := followUp[len(followUp)-1].Parts[0].ToolResult
	if result == nil || !result.IsError {
		t.Errorf("tool result = %+v, want IsError=true", result)
	}
}

func TestEngineToolErrorFedBackToModel(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&failingTool{})

	provider := &fakeProvider{
		script: func(call int, req Request) []Event {
			if call == 0 {
				return []Event{
					{Type: EventToolCall, Tool: &ToolCall{ID: "call-1", Name: "failing_tool", Arguments: json.RawMessage(`{}`)}},
					{Type: EventDone},
				}
			}
			return []Event{{Type: EventTextDelta, Text: "handled"}, {Type: EventDone}}
		},
	}

	engine := NewEngine(provider, registry)
	stream, err := engine.Stream(context.Background(), Request{Messages: []Message{UserText("go")}})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	collectEvents(t, stream)

	followUp := provider.calls[1].Messages
	result := followUp[len(followUp)-1].Parts[0].ToolResult
	if result == nil || !result.IsError {
		t.Fatalf("tool result = %+v, want IsError=true", result)
	}
	if !strings.Contains(result.Content, "boom") {
		t.Errorf("tool result content = %q, want it to mention the error", result.Content)
	}
}

func TestEngineTurnCallback(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&countingTool{})

	provider := &fakeProvider{
		script: func(call int, req Request) []Event {
			if call == 0 {
				return []Event{
					{Type: EventToolCall, Tool: &ToolCall{ID: "call-1", Name: "count_tool", Arguments: json.RawMessage(`{}`)}},
					{Type: EventDone},
				}
			}
			return []Event{{Type: EventTextDelta, Text: "done"}, {Type: EventDone}}
		},
	}

	engine := NewEngine(provider, registry)

	type turn struct {
		index    int
		messages int
		tools    int
	}
	var turns []turn
	engine.SetTurnCompletedCallback(func(ctx context.Context, turnIndex int, messages []Message, metrics TurnMetrics) error {
		turns = append(turns, turn{index: turnIndex, messages: len(messages), tools: metrics.ToolCalls})
		return nil
	})

	stream, err := engine.Stream(context.Background(), Request{Messages: []Message{UserText("go")}})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	collectEvents(t, stream)

	if len(turns) != 2 {
		t.Fatalf("callback fired %d times, want 2", len(turns))
	}
	if turns[0].index != 0 || turns[0].messages != 2 || turns[0].tools != 1 {
		t.Errorf("first turn = %+v, want index 0, 2 messages, 1 tool", turns[0])
	}
	if turns[1].index != 1 || turns[1].messages != 1 {
		t.Errorf("second turn = %+v, want index 1, 1 message", turns[1])
	}
}

func TestEnginePassThroughWithoutTools(t *testing.T) {
	provider := &fakeProvider{
		script: func(call int, req Request) []Event {
			return []Event{{Type: EventTextDelta, Text: "plain"}, {Type: EventDone}}
		},
	}

	engine := NewEngine(provider, NewToolRegistry())
	stream, err := engine.Stream(context.Background(), Request{Messages: []Message{UserText("hi")}})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	events := collectEvents(t, stream)

	if len(provider.calls) != 1 {
		t.Errorf("provider calls = %d, want 1", len(provider.calls))
	}
	if len(events) == 0 || events[0].Type != EventTextDelta || events[0].Text != "plain" {
		t.Errorf("events[0] = %+v, want plain text delta", events)
	}
}

func TestEngineStopsAtMaxTurns(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&countingTool{})

	provider := &fakeProvider{
		script: func(call int, req Request) []Event {
			// Never stops calling tools.
			return []Event{
				{Type: EventToolCall, Tool: &ToolCall{ID: fmt.Sprintf("call-%d", call), Name: "count_tool", Arguments: json.RawMessage(`{}`)}},
				{Type: EventDone},
			}
		},
	}

	engine := NewEngine(provider, registry)
	stream, err := engine.Stream(context.Background(), Request{Messages: []Message{UserText("go")}, MaxTurns: 3})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	for {
		_, err := stream.Recv()
		if err == io.EOF {
			t.Fatal("stream ended cleanly, want max turns error")
		}
		if err != nil {
			if !strings.Contains(err.Error(), "max turns") {
				t.Errorf("error = %v, want max turns error", err)
			}
			return
		}
	}
}

func TestDedupeToolCalls(t *testing.T) {
	calls := []ToolCall{
		{ID: "a", Name: "x"},
		{ID: "b", Name: "y"},
		{ID: "a", Name: "x"},
		{ID: "", Name: "z"},
	}
	got := dedupeToolCalls(calls)
	if len(got) != 3 {
		t.Fatalf("dedupeToolCalls returned %d calls, want 3", len(got))
	}
}

func TestEnsureToolCallIDs(t *testing.T) {
	calls := ensureToolCallIDs([]ToolCall{{Name: "x"}, {ID: "keep", Name: "y"}})
	if calls[0].ID == "" {
		t.Error("first call should get a generated ID")
	}
	if calls[1].ID != "keep" {
		t.Errorf("second call ID = %q, want keep", calls[1].ID)
	}
}
