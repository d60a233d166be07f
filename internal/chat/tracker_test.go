package chat

import (
	"encoding/json"
	"testing"
)

func trackerWithTarget(t *testing.T) (*MessageStore, *ToolCallTracker) {
	t.Helper()
	store := NewMessageStore()
	if err := store.StartStreaming(NewAssistantMessage()); err != nil {
		t.Fatalf("StartStreaming error: %v", err)
	}
	return store, NewToolCallTracker(store)
}

func TestTrackerLifecycle(t *testing.T) {
	store, tracker := trackerWithTarget(t)

	id := tracker.Begin("call-1", "read_file", json.RawMessage(`{"path":"main.go"}`))
	if id != "call-1" {
		t.Errorf("Begin returned %q, want the supplied id", id)
	}
	if tracker.Running() != 1 {
		t.Errorf("Running() = %d, want 1", tracker.Running())
	}

	tracker.Complete(id, "file contents")

	execs := store.Messages()[0].ToolExecutions
	if len(execs) != 1 {
		t.Fatalf("executions = %d, want 1", len(execs))
	}
	if execs[0].Status != ToolComplete || execs[0].Result != "file contents" {
		t.Errorf("execution = %+v, want complete with result", execs[0])
	}
}

func TestTrackerFail(t *testing.T) {
	store, tracker := trackerWithTarget(t)

	id := tracker.Begin("", "run_command", nil)
	if id == "" {
		t.Fatal("Begin should generate an id when none is supplied")
	}
	tracker.Fail(id, "exit status 1")

	exec := store.Messages()[0].ToolExecutions[0]
	if exec.Status != ToolError || exec.Result != "exit status 1" {
		t.Errorf("execution = %+v, want error with message", exec)
	}
}

func TestTrackerTerminalTransitionsAreFinal(t *testing.T) {
	store, tracker := trackerWithTarget(t)

	id := tracker.Begin("call-1", "read_file", nil)
	tracker.Complete(id, "first")
	tracker.Complete(id, "second")
	tracker.Fail(id, "late failure")

	exec := store.Messages()[0].ToolExecutions[0]
	if exec.Status != ToolComplete || exec.Result != "first" {
		t.Errorf("execution = %+v, want first terminal result kept", exec)
	}
	if tracker.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", tracker.Dropped())
	}
}

func TestTrackerUnknownIDIsDroppedNotFatal(t *testing.T) {
	_, tracker := trackerWithTarget(t)

	tracker.Complete("never-began", "result")
	if tracker.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", tracker.Dropped())
	}
}

func TestTrackerPreservesBeginOrder(t *testing.T) {
	store, tracker := trackerWithTarget(t)

	tracker.Begin("a", "first_tool", nil)
	tracker.Begin("b", "second_tool", nil)
	tracker.Complete("b", "done")
	tracker.Complete("a", "done")

	execs := store.Messages()[0].ToolExecutions
	if execs[0].Name != "first_tool" || execs[1].Name != "second_tool" {
		t.Errorf("execution order = %s, %s; want begin order", execs[0].Name, execs[1].Name)
	}
}

func TestTrackerNoTargetDropsEvents(t *testing.T) {
	store := NewMessageStore()
	tracker := NewToolCallTracker(store)

	if id := tracker.Begin("call-1", "read_file", nil); id != "" {
		t.Errorf("Begin without target = %q, want empty id", id)
	}
	if tracker.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", tracker.Dropped())
	}
}
