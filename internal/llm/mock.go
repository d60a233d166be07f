package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MockTurn is one scripted response from a MockProvider.
type MockTurn struct {
	Thinking  string        // Emitted as reasoning deltas before content
	Text      string        // Emitted as text deltas, chunked
	ToolCalls []ToolCall    // Emitted after text
	Usage     *Usage        // Emitted before done if set
	Err       error         // Emitted as an error event instead of content
	Delay     time.Duration // Wait before emitting anything (cancellable)
	ChunkSize int           // Text chunk size (0 = default 8)
}

// MockProvider is a scriptable Provider for tests and offline demos.
// Each Stream call consumes the next configured turn in order.
type MockProvider struct {
	name string
	caps Capabilities

	mu       sync.Mutex
	turns    []MockTurn
	turn     int
	loop     bool
	Requests []Request
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name: name,
		caps: Capabilities{ToolCalls: true, Thinking: true},
	}
}

// WithCapabilities overrides the default capabilities.
func (p *MockProvider) WithCapabilities(caps Capabilities) *MockProvider {
	p.caps = caps
	return p
}

// SetLoop makes the provider replay its turns instead of failing once they
// are exhausted.
func (p *MockProvider) SetLoop(loop bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loop = loop
}

// AddTurn appends a scripted turn.
func (p *MockProvider) AddTurn(turn MockTurn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, turn)
}

// AddTextResponse appends a turn that streams the given text.
func (p *MockProvider) AddTextResponse(text string) {
	p.AddTurn(MockTurn{Text: text})
}

// AddToolCall appends a turn that requests a single tool call.
func (p *MockProvider) AddToolCall(id, name string, args json.RawMessage) {
	p.AddTurn(MockTurn{ToolCalls: []ToolCall{{ID: id, Name: name, Arguments: args}}})
}

// AddError appends a turn that fails with err.
func (p *MockProvider) AddError(err error) {
	p.AddTurn(MockTurn{Err: err})
}

// Reset clears recorded requests and rewinds the turn index.
func (p *MockProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = nil
	p.turn = 0
}

// CurrentTurn returns the index of the next turn to be played.
func (p *MockProvider) CurrentTurn() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.turn
}

func (p *MockProvider) Name() string {
	return p.name
}

func (p *MockProvider) Capabilities() Capabilities {
	return p.caps
}

func (p *MockProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	index := p.turn
	if index >= len(p.turns) {
		if !p.loop || len(p.turns) == 0 {
			p.mu.Unlock()
			return nil, fmt.Errorf("mock provider %s: no more turns configured (played %d)", p.name, p.turn)
		}
		index = p.turn % len(p.turns)
	}
	turn := p.turns[index]
	p.turn++
	p.mu.Unlock()

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		if turn.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(turn.Delay):
			}
		}

		if turn.Err != nil {
			events <- Event{Type: EventError, Err: turn.Err}
			return turn.Err
		}

		if turn.Thinking != "" {
			for _, chunk := range chunkText(turn.Thinking, turn.chunkSize()) {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case events <- Event{Type: EventReasoningDelta, Text: chunk}:
				}
			}
		}

		for _, chunk := range chunkText(turn.Text, turn.chunkSize()) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case events <- Event{Type: EventTextDelta, Text: chunk}:
			}
		}

		for i := range turn.ToolCalls {
			call := turn.ToolCalls[i]
			select {
			case <-ctx.Done():
				return ctx.Err()
			case events <- Event{Type: EventToolCall, Tool: &call}:
			}
		}

		use := turn.Usage
		if use == nil {
			use = &Usage{InputTokens: len(req.Messages), OutputTokens: len(turn.Text) / 4}
		}
		events <- Event{Type: EventUsage, Use: use}
		events <- Event{Type: EventDone}
		return nil
	}), nil
}

func (t MockTurn) chunkSize() int {
	if t.ChunkSize > 0 {
		return t.ChunkSize
	}
	return 8
}

// chunkText splits text into chunks of at most size bytes.
func chunkText(text string, size int) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	for len(text) > size {
		chunks = append(chunks, text[:size])
		text = text[size:]
	}
	chunks = append(chunks, text)
	return chunks
}
