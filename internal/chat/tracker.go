package chat

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// ToolCallTracker tracks tool invocations attached to the store's streaming
// target. Late or duplicate completion events from the transport are dropped
// rather than treated as fatal; Dropped reports how many were ignored.
type ToolCallTracker struct {
	store *MessageStore

	mu      sync.Mutex
	dropped int
}

func NewToolCallTracker(store *MessageStore) *ToolCallTracker {
	return &ToolCallTracker{store: store}
}

// Begin appends a running tool execution to the streaming target and returns
// its id. When the transport supplies its own call id it is kept so later
// complete/fail events correlate. No-op (empty id) when no target is active.
func (t *ToolCallTracker) Begin(id, name string, input json.RawMessage) string {
	if id == "" {
		id = uuid.NewString()
	}
	exec := ToolExecution{
		ID:     id,
		Name:   name,
		Input:  input,
		Status: ToolRunning,
	}
	ok := t.store.mutateTarget(func(msg *ChatMessage) {
		msg.ToolExecutions = append(msg.ToolExecutions, exec)
	})
	if !ok {
		t.drop()
		return ""
	}
	return id
}

// Complete marks the execution terminal with a result.
func (t *ToolCallTracker) Complete(id, result string) {
	t.finish(id, ToolComplete, result)
}

// Fail marks the execution terminal with an error description.
func (t *ToolCallTracker) Fail(id, errText string) {
	t.finish(id, ToolError, errText)
}

func (t *ToolCallTracker) finish(id string, status ToolExecStatus, result string) {
	applied := false
	ok := t.store.mutateTarget(func(msg *ChatMessage) {
		for i := range msg.ToolExecutions {
			exec := &msg.ToolExecutions[i]
			if exec.ID != id {
				continue
			}
			if exec.Status != ToolRunning {
				// Already terminal; duplicate event.
				return
			}
			exec.Status = status
			exec.Result = result
			applied = true
			return
		}
	})
	if !ok || !applied {
		t.drop()
	}
}

// Running reports the number of tool executions still running on the target.
func (t *ToolCallTracker) Running() int {
	count := 0
	t.store.mutateTarget(func(msg *ChatMessage) {
		for _, exec := range msg.ToolExecutions {
			if exec.Status == ToolRunning {
				count++
			}
		}
	})
	return count
}

// Dropped returns how many late, duplicate, or unmatched tool events were
// ignored.
func (t *ToolCallTracker) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

func (t *ToolCallTracker) drop() {
	t.mu.Lock()
	t.dropped++
	t.mu.Unlock()
}
