package chat

import (
	"sync"
)

// Outcome is the terminal result of one streaming turn.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeErrored   Outcome = "errored"
)

// FinalizeInfo carries the metadata applied to the streaming target when a
// turn reaches a terminal outcome.
type FinalizeInfo struct {
	Outcome      Outcome
	InputTokens  int
	OutputTokens int
	Truncated    bool
}

// MessageStore is the ordered log of conversation turns. At most one message
// is the streaming target at a time; while a target is active, the only legal
// mutations are incremental updates to that target. All methods are safe for
// concurrent use.
type MessageStore struct {
	mu       sync.Mutex
	messages []ChatMessage
	// Index into messages of the streaming target, -1 when none.
	target int
}

func NewMessageStore() *MessageStore {
	return &MessageStore{target: -1}
}

// Append adds a finished message to the tail. It fails with
// InvalidStateError while a streaming target is active: mid-stream, only the
// target itself may change.
func (s *MessageStore) Append(msg ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target >= 0 {
		return &InvalidStateError{Op: "append", Status: StatusStreaming}
	}
	s.messages = append(s.messages, msg)
	return nil
}

// StartStreaming appends msg and marks it as the streaming target. It fails
// with InvalidStateError if a target is already active.
func (s *MessageStore) StartStreaming(msg ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target >= 0 {
		return &InvalidStateError{Op: "start streaming", Status: StatusStreaming}
	}
	s.messages = append(s.messages, msg)
	s.target = len(s.messages) - 1
	return nil
}

// RestartStreaming clears a finished assistant message and makes it the
// streaming target again. Used by regeneration, which replaces content in
// place rather than appending a new turn.
func (s *MessageStore) RestartStreaming(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target >= 0 {
		return &InvalidStateError{Op: "restart streaming", Status: StatusStreaming}
	}
	for i := range s.messages {
		if s.messages[i].ID != id {
			continue
		}
		if s.messages[i].Role != RoleAssistant {
			return &InvalidStateError{Op: "restart streaming", Status: StatusIdle}
		}
		msg := &s.messages[i]
		msg.Content = ""
		msg.Thinking = ""
		msg.ToolExecutions = nil
		msg.Cancelled = false
		msg.Truncated = false
		msg.InputTokens = 0
		msg.OutputTokens = 0
		s.target = i
		return nil
	}
	return ErrMessageNotFound
}

// AppendContent concatenates a content delta onto the streaming target.
// No-op when there is no target.
func (s *MessageStore) AppendContent(delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target < 0 || delta == "" {
		return
	}
	s.messages[s.target].Content += delta
}

// AppendThinking concatenates a reasoning delta onto the streaming target.
func (s *MessageStore) AppendThinking(delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target < 0 || delta == "" {
		return
	}
	s.messages[s.target].Thinking += delta
}

// mutateTarget runs fn on the streaming target. Returns false when there is
// no active target.
func (s *MessageStore) mutateTarget(fn func(*ChatMessage)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target < 0 {
		return false
	}
	fn(&s.messages[s.target])
	return true
}

// HasTarget reports whether a streaming target is active.
func (s *MessageStore) HasTarget() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target >= 0
}

// TargetContent returns the streaming target's accumulated content.
func (s *MessageStore) TargetContent() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target < 0 {
		return "", false
	}
	return s.messages[s.target].Content, true
}

// Finalize applies terminal flags to the streaming target and clears the
// target pointer. No-op when there is no target.
func (s *MessageStore) Finalize(info FinalizeInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target < 0 {
		return
	}
	msg := &s.messages[s.target]
	msg.Cancelled = info.Outcome == OutcomeCancelled
	msg.Truncated = info.Truncated
	if info.InputTokens > 0 {
		msg.InputTokens = info.InputTokens
	}
	if info.OutputTokens > 0 {
		msg.OutputTokens = info.OutputTokens
	}
	// Late tool events after finalize must not resurrect the turn.
	for i := range msg.ToolExecutions {
		if msg.ToolExecutions[i].Status == ToolRunning {
			msg.ToolExecutions[i].Status = ToolError
			msg.ToolExecutions[i].Result = string(info.Outcome)
		}
	}
	s.target = -1
}

// Edit replaces a user message's content, archiving the old value. Returns
// the new length of PreviousVersions. Only user messages can be edited, and
// never while a stream is active.
func (s *MessageStore) Edit(id, newContent string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target >= 0 {
		return 0, &InvalidStateError{Op: "edit", Status: StatusStreaming}
	}
	for i := range s.messages {
		if s.messages[i].ID != id {
			continue
		}
		msg := &s.messages[i]
		if msg.Role != RoleUser {
			return 0, &InvalidStateError{Op: "edit non-user message", Status: StatusIdle}
		}
		msg.PreviousVersions = append(msg.PreviousVersions, msg.Content)
		msg.Content = newContent
		msg.Edited = true
		return len(msg.PreviousVersions), nil
	}
	return 0, ErrMessageNotFound
}

// Clear resets the store to empty. Illegal while a stream is active.
func (s *MessageStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target >= 0 {
		return &InvalidStateError{Op: "clear", Status: StatusStreaming}
	}
	s.messages = nil
	s.target = -1
	return nil
}

// Messages returns a deep copy of the log in insertion order.
func (s *MessageStore) Messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.messages))
	for i := range s.messages {
		out[i] = s.messages[i].clone()
	}
	return out
}

// Len returns the number of messages.
func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Get returns a copy of the message with the given id.
func (s *MessageStore) Get(id string) (ChatMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			return s.messages[i].clone(), true
		}
	}
	return ChatMessage{}, false
}

// LastAssistant returns a copy of the most recent assistant message.
func (s *MessageStore) LastAssistant() (ChatMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleAssistant {
			return s.messages[i].clone(), true
		}
	}
	return ChatMessage{}, false
}

// Replace swaps the full message list. Used when loading a persisted
// session. Illegal while a stream is active.
func (s *MessageStore) Replace(messages []ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target >= 0 {
		return &InvalidStateError{Op: "replace", Status: StatusStreaming}
	}
	s.messages = make([]ChatMessage, len(messages))
	for i := range messages {
		s.messages[i] = messages[i].clone()
	}
	return nil
}
