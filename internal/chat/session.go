package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/samsaffron/roundtable/internal/llm"
)

// ErrNotLatestAssistant is returned by Regenerate when the id does not name
// the most recent assistant message.
var ErrNotLatestAssistant = errors.New("chat: only the most recent assistant message can be regenerated")

// Streamer is the transport a session drives. Both a bare llm.Provider and a
// tool-executing llm.Engine satisfy it.
type Streamer interface {
	Stream(ctx context.Context, req llm.Request) (llm.Stream, error)
}

// Options configure a session.
type Options struct {
	Model           string
	Instructions    string
	MaxOutputTokens int
	// ModelOutputLimit overrides the model's known output cap for truncation
	// detection. 0 = look it up from the model name.
	ModelOutputLimit int
	MaxTurns         int
	SessionID        string
	CancelTimeout    time.Duration

	// Stamped on assistant turns in multi-agent conversations.
	AgentName     string
	AgentProvider string

	// OnTurnSaved, when set, receives a copy of the full message log after
	// each turn finalizes. Used for incremental persistence.
	OnTurnSaved func(messages []ChatMessage)
}

// Snapshot is the reactive view handed to the UI.
type Snapshot struct {
	Messages []ChatMessage
	Status   Status
	Error    string
}

// Session turns one outgoing user message at a time into an incrementally
// filled assistant reply. All mutations of the message log are serialized
// through the session mutex: stream events, cancellation, and caller intents
// never touch the store from unserialized paths.
type Session struct {
	transport  Streamer
	opts       Options
	store      *MessageStore
	tracker    *ToolCallTracker
	cancelCtrl *CancellationController

	mu      sync.Mutex
	status  Status
	errText string
	// gen identifies the current turn; every finalize bumps it so exactly
	// one terminal path wins when completion, cancellation, and the cancel
	// timeout race.
	gen       int
	turnIn    int
	turnOut   int
	subs      map[int]chan Snapshot
	nextSubID int
	closed    bool

	wg sync.WaitGroup
}

func NewSession(transport Streamer, opts Options) *Session {
	store := NewMessageStore()
	return &Session{
		transport:  transport,
		opts:       opts,
		store:      store,
		tracker:    NewToolCallTracker(store),
		cancelCtrl: NewCancellationController(),
		status:     StatusIdle,
		subs:       make(map[int]chan Snapshot),
	}
}

// Store exposes the message log for read access.
func (s *Session) Store() *MessageStore {
	return s.store
}

// Status returns the current stream status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the current error text, empty unless status is error.
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errText
}

// Snapshot returns a consistent copy of messages, status, and error.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers for snapshots after every state change. Slow consumers
// miss intermediate snapshots rather than blocking the session. The returned
// func unsubscribes.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Snapshot, 8)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

// Send appends a user turn and starts streaming the reply. The user message
// is in the store before any network activity begins. Legal from idle and
// error; any other status returns InvalidStateError.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("chat: session closed")
	}
	if s.status != StatusIdle && s.status != StatusError {
		return &InvalidStateError{Op: "send", Status: s.status}
	}
	if err := s.store.Append(NewUserMessage(text)); err != nil {
		return err
	}
	s.beginTurnLocked()
	return nil
}

// Regenerate re-issues the request behind the most recent assistant message,
// replacing its content in place. The message keeps its id; prior content is
// discarded, not archived. Legal from idle and error.
func (s *Session) Regenerate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("chat: session closed")
	}
	if s.status != StatusIdle && s.status != StatusError {
		return &InvalidStateError{Op: "regenerate", Status: s.status}
	}
	last, ok := s.store.LastAssistant()
	if !ok {
		return ErrMessageNotFound
	}
	if last.ID != id {
		return ErrNotLatestAssistant
	}
	if err := s.store.RestartStreaming(id); err != nil {
		return err
	}
	s.startStreamLocked()
	return nil
}

// beginTurnLocked appends the assistant placeholder and starts the stream.
func (s *Session) beginTurnLocked() {
	assistant := NewAssistantMessage()
	assistant.AgentName = s.opts.AgentName
	assistant.AgentProvider = s.opts.AgentProvider
	// Cannot fail: no target is active in the states that reach here.
	_ = s.store.StartStreaming(assistant)
	s.startStreamLocked()
}

func (s *Session) startStreamLocked() {
	s.status = StatusConnecting
	s.errText = ""
	s.turnIn = 0
	s.turnOut = 0
	s.gen++
	gen := s.gen
	req := s.buildRequestLocked()
	ctx := s.cancelCtrl.Begin(context.Background())
	s.wg.Add(1)
	go s.pump(ctx, gen, req)
	s.notifyLocked()
}

// buildRequestLocked converts the visible log into a transport request. The
// streaming target is excluded (it is empty) and so are empty assistant
// turns.
func (s *Session) buildRequestLocked() llm.Request {
	var msgs []llm.Message
	if s.opts.Instructions != "" {
		msgs = append(msgs, llm.SystemText(s.opts.Instructions))
	}
	for _, m := range s.store.Messages() {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, llm.SystemText(m.Content))
		case RoleUser:
			msgs = append(msgs, llm.UserText(m.Content))
		case RoleAssistant:
			if m.Content == "" {
				continue
			}
			msgs = append(msgs, llm.AssistantText(m.Content))
		}
	}
	return llm.Request{
		Model:             s.opts.Model,
		Messages:          msgs,
		MaxOutputTokens:   s.opts.MaxOutputTokens,
		MaxTurns:          s.opts.MaxTurns,
		SessionID:         s.opts.SessionID,
		ParallelToolCalls: true,
	}
}

// pump reads stream events and applies them under the session lock. It is
// the only goroutine touching the store for this turn; a stale generation
// check makes it drop out silently once another path finalized.
func (s *Session) pump(ctx context.Context, gen int, req llm.Request) {
	defer s.wg.Done()

	stream, err := s.transport.Stream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			s.finalize(gen, OutcomeCancelled, "")
		} else {
			s.finalize(gen, OutcomeErrored, err.Error())
		}
		return
	}
	defer stream.Close()

	for {
		event, err := stream.Recv()
		if err == io.EOF {
			s.finalize(gen, OutcomeCompleted, "")
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				s.finalize(gen, OutcomeCancelled, "")
			} else {
				s.finalize(gen, OutcomeErrored, err.Error())
			}
			return
		}
		if !s.apply(gen, event) {
			return
		}
	}
}

// apply merges one stream event into session state. Returns false when the
// event belongs to a turn that already finalized.
func (s *Session) apply(gen int, event llm.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}

	switch event.Type {
	case llm.EventReasoningDelta:
		s.store.AppendThinking(event.Text)
		if s.status == StatusConnecting || s.status == StatusCallingTool {
			s.status = StatusThinking
		}
	case llm.EventTextDelta:
		s.store.AppendContent(event.Text)
		if s.status != StatusCancelling {
			s.status = StatusStreaming
		}
	case llm.EventToolExecStart:
		var input []byte
		if event.Tool != nil {
			input = event.Tool.Arguments
		}
		s.tracker.Begin(event.ToolCallID, event.ToolName, input)
		if s.status != StatusCancelling {
			s.status = StatusCallingTool
		}
	case llm.EventToolExecEnd:
		if event.ToolSuccess {
			s.tracker.Complete(event.ToolCallID, event.ToolOutput)
		} else {
			s.tracker.Fail(event.ToolCallID, event.ToolOutput)
		}
		if s.status == StatusCallingTool {
			if content, _ := s.store.TargetContent(); content != "" {
				s.status = StatusStreaming
			} else {
				s.status = StatusThinking
			}
		}
	case llm.EventUsage:
		if event.Use != nil {
			s.turnIn += event.Use.InputTokens
			s.turnOut += event.Use.OutputTokens
		}
		return true // no visible change
	case llm.EventRetry, llm.EventDone, llm.EventError, llm.EventToolCall:
		// Retries keep the current status; errors surface through the
		// stream's terminal error, and raw tool call events are handled by
		// the engine before they reach the session.
		return true
	}

	s.notifyLocked()
	return true
}

// finalize applies the terminal outcome for generation gen. Exactly one
// caller wins: completion from the pump, cancellation from the pump after
// abort, or the cancel timeout.
func (s *Session) finalize(gen int, outcome Outcome, errText string) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.gen++

	truncated := false
	if outcome == OutcomeCompleted {
		limit := s.opts.ModelOutputLimit
		if limit == 0 {
			limit = llm.OutputLimitForModel(s.opts.Model)
		}
		truncated = IsTruncated(s.turnOut, s.opts.MaxOutputTokens, limit)
	}
	s.store.Finalize(FinalizeInfo{
		Outcome:      outcome,
		InputTokens:  s.turnIn,
		OutputTokens: s.turnOut,
		Truncated:    truncated,
	})

	if outcome == OutcomeErrored {
		s.status = StatusError
		s.errText = errText
	} else {
		s.status = StatusIdle
		s.errText = ""
	}
	s.cancelCtrl.Finish()

	saver := s.opts.OnTurnSaved
	var saved []ChatMessage
	if saver != nil {
		saved = s.store.Messages()
	}
	s.notifyLocked()
	s.mu.Unlock()

	if saver != nil {
		saver(saved)
	}
}

// Cancel aborts the in-flight stream. Repeated calls while already
// cancelling are no-ops; calling it with no stream outstanding is an
// InvalidStateError. The turn reaches idle even if the transport never
// acknowledges: a bounded timer force-finalizes it as cancelled.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.status == StatusCancelling {
		s.mu.Unlock()
		return nil
	}
	if !s.status.Active() {
		status := s.status
		s.mu.Unlock()
		return &InvalidStateError{Op: "cancel", Status: status}
	}
	s.status = StatusCancelling
	gen := s.gen
	timeout := s.opts.CancelTimeout
	s.notifyLocked()
	s.mu.Unlock()

	s.cancelCtrl.Signal(timeout, func() {
		s.finalize(gen, OutcomeCancelled, "")
	})
	return nil
}

// Edit replaces a user message's content, archiving the old value into
// PreviousVersions, and returns the new version count. Messages after the
// edited one are now stale; deciding whether to drop and resubmit them is
// the caller's call. Legal only while idle.
func (s *Session) Edit(id, newContent string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusIdle {
		return 0, &InvalidStateError{Op: "edit", Status: s.status}
	}
	versions, err := s.store.Edit(id, newContent)
	if err != nil {
		return 0, err
	}
	s.notifyLocked()
	return versions, nil
}

// Clear resets the conversation. Legal only while idle.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusIdle {
		return &InvalidStateError{Op: "clear", Status: s.status}
	}
	if err := s.store.Clear(); err != nil {
		return err
	}
	s.errText = ""
	s.notifyLocked()
	return nil
}

// Messages returns a copy of the conversation log.
func (s *Session) Messages() []ChatMessage {
	return s.store.Messages()
}

// Tracker exposes the tool call tracker, mainly for diagnostics.
func (s *Session) Tracker() *ToolCallTracker {
	return s.tracker
}

// Close aborts any in-flight stream, waits for the pump to exit, and closes
// all subscriber channels. The session cannot be reused afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// Dropping the request context makes an active pump finalize as
	// cancelled and exit.
	s.cancelCtrl.Finish()
	s.wg.Wait()

	s.mu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Messages: s.store.Messages(),
		Status:   s.status,
		Error:    s.errText,
	}
}

func (s *Session) notifyLocked() {
	if s.closed {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
