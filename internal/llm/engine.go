package llm

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/samsaffron/roundtable/internal/usage"
)

const defaultMaxTurns = 12

func getMaxTurns(req Request) int {
	if req.MaxTurns > 0 {
		return req.MaxTurns
	}
	return defaultMaxTurns
}

// TurnMetrics contains metrics collected during a turn.
type TurnMetrics struct {
	InputTokens  int // Tokens consumed as input this turn
	OutputTokens int // Tokens generated as output this turn
	ToolCalls    int // Number of tools executed this turn
}

// TurnCompletedCallback is called after each agentic turn with the messages
// generated during that turn (assistant message plus tool results) and
// metrics about the turn. turnIndex is 0-based.
type TurnCompletedCallback func(ctx context.Context, turnIndex int, messages []Message, metrics TurnMetrics) error

// Engine orchestrates provider calls and external tool execution.
// It satisfies the same Stream contract as a Provider, so callers can treat
// an Engine-wrapped provider and a bare provider interchangeably.
type Engine struct {
	provider Provider
	tools    *ToolRegistry

	// onTurnCompleted is called after each turn with messages generated.
	// Used for incremental session saving. Protected by callbackMu.
	onTurnCompleted TurnCompletedCallback
	callbackMu      sync.RWMutex
}

func NewEngine(provider Provider, tools *ToolRegistry) *Engine {
	if tools == nil {
		tools = NewToolRegistry()
	}
	return &Engine{
		provider: provider,
		tools:    tools,
	}
}

// RegisterTool adds a tool to the engine's registry.
func (e *Engine) RegisterTool(tool Tool) {
	e.tools.Register(tool)
}

// Tools returns the engine's tool registry.
func (e *Engine) Tools() *ToolRegistry {
	return e.tools
}

// Provider returns the wrapped provider.
func (e *Engine) Provider() Provider {
	return e.provider
}

// SetTurnCompletedCallback sets the callback for incremental turn completion.
// Thread-safe: can be called while streaming is in progress.
func (e *Engine) SetTurnCompletedCallback(cb TurnCompletedCallback) {
	e.callbackMu.Lock()
	e.onTurnCompleted = cb
	e.callbackMu.Unlock()
}

func (e *Engine) getCallback() TurnCompletedCallback {
	e.callbackMu.RLock()
	cb := e.onTurnCompleted
	e.callbackMu.RUnlock()
	return cb
}

// Stream returns a stream, applying external tools when needed.
func (e *Engine) Stream(ctx context.Context, req Request) (Stream, error) {
	caps := e.provider.Capabilities()

	// Advertise registered tools unless the request already names its own.
	if len(req.Tools) == 0 {
		req.Tools = e.tools.AllSpecs()
	}

	useLoop := len(req.Tools) > 0 && caps.ToolCalls

	if useLoop {
		stream := newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
			return e.runLoop(ctx, req, events)
		})
		return wrapUsageStream(stream, e.provider.Name(), req.Model), nil
	}

	stream, err := e.provider.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	// Wrap to call the turn callback even for simple streams.
	if cb := e.getCallback(); cb != nil {
		stream = wrapCallbackStream(ctx, stream, cb)
	}

	return wrapUsageStream(stream, e.provider.Name(), req.Model), nil
}

func (e *Engine) runLoop(ctx context.Context, req Request, events chan<- Event) error {
	maxTurns := getMaxTurns(req)
	callback := e.getCallback()

	for attempt := 0; attempt < maxTurns; attempt++ {
		if attempt > 0 {
			// Follow-up turns always let the model decide whether to keep
			// calling tools.
			req.ToolChoice = ToolChoice{Mode: ToolChoiceAuto}
		}

		stream, err := e.provider.Stream(ctx, req)
		if err != nil {
			return err
		}

		var toolCalls []ToolCall
		var textBuilder strings.Builder
		var reasoningBuilder strings.Builder
		var turnMetrics TurnMetrics
		for {
			event, err := stream.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				stream.Close()
				return err
			}
			if event.Type == EventError && event.Err != nil {
				stream.Close()
				return event.Err
			}
			switch event.Type {
			case EventUsage:
				if event.Use != nil {
					turnMetrics.InputTokens += event.Use.InputTokens
					turnMetrics.OutputTokens += event.Use.OutputTokens
				}
			case EventTextDelta:
				textBuilder.WriteString(event.Text)
			case EventReasoningDelta:
				reasoningBuilder.WriteString(event.Text)
			case EventToolCall:
				if event.Tool != nil {
					toolCalls = append(toolCalls, *event.Tool)
					continue
				}
			case EventDone:
				continue
			}
			events <- event
		}
		stream.Close()

		if len(toolCalls) == 0 {
			// Final text-only response.
			if callback != nil && textBuilder.Len() > 0 {
				finalMsg := buildAssistantMessage(textBuilder.String(), nil, reasoningBuilder.String())
				_ = callback(ctx, attempt, []Message{finalMsg}, turnMetrics)
			}
			events <- Event{Type: EventDone}
			return nil
		}

		if attempt == maxTurns-1 {
			return fmt.Errorf("agentic loop exceeded max turns (%d)", maxTurns)
		}

		toolCalls = ensureToolCallIDs(toolCalls)
		toolCalls = dedupeToolCalls(toolCalls)

		for i := range toolCalls {
			call := toolCalls[i]
			events <- Event{Type: EventToolExecStart, ToolCallID: call.ID, ToolName: call.Name, ToolInfo: e.getToolPreview(call), Tool: &call}
		}

		toolResults := e.executeToolCalls(ctx, toolCalls, events)

		assistantMsg := buildAssistantMessage(textBuilder.String(), toolCalls, reasoningBuilder.String())
		req.Messages = append(req.Messages, assistantMsg)
		req.Messages = append(req.Messages, toolResults...)

		if callback != nil {
			turnMetrics.ToolCalls = len(toolCalls)
			turnMessages := []Message{assistantMsg}
			turnMessages = append(turnMessages, toolResults...)
			_ = callback(ctx, attempt, turnMessages, turnMetrics)
		}
	}

	return fmt.Errorf("agentic loop ended unexpectedly")
}

// buildAssistantMessage creates an assistant message with text, tool calls,
// and optional reasoning content.
func buildAssistantMessage(text string, toolCalls []ToolCall, reasoning string) Message {
	var parts []Part
	if text != "" || reasoning != "" {
		parts = append(parts, Part{Type: PartText, Text: text, ReasoningContent: reasoning})
	}
	for i := range toolCalls {
		call := toolCalls[i]
		parts = append(parts, Part{Type: PartToolCall, ToolCall: &call})
	}
	return Message{Role: RoleAssistant, Parts: parts}
}

// executeToolCalls executes multiple tool calls, potentially in parallel.
// EventToolExecEnd events from concurrent executions may arrive in
// non-deterministic order; consumers should correlate by ToolCallID.
func (e *Engine) executeToolCalls(ctx context.Context, calls []ToolCall, events chan<- Event) []Message {
	if len(calls) == 1 {
		return []Message{e.executeSingleToolCall(ctx, calls[0], events)}
	}

	type toolResult struct {
		index   int
		message Message
	}

	var wg sync.WaitGroup
	resultChan := make(chan toolResult, len(calls))

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c ToolCall) {
			defer wg.Done()
			resultChan <- toolResult{index: idx, message: e.executeSingleToolCall(ctx, c, events)}
		}(i, call)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]Message, len(calls))
	for r := range resultChan {
		results[r.index] = r.message
	}

	return results
}

// executeSingleToolCall executes a single tool call and returns the result message.
func (e *Engine) executeSingleToolCall(ctx context.Context, call ToolCall, events chan<- Event) Message {
	info := e.getToolPreview(call)

	tool, ok := e.tools.Get(call.Name)
	if !ok {
		errMsg := fmt.Sprintf("Error: tool not registered: %s", call.Name)
		events <- Event{Type: EventToolExecEnd, ToolCallID: call.ID, ToolName: call.Name, ToolInfo: info, ToolSuccess: false, ToolOutput: errMsg}
		return ToolErrorMessage(call.ID, call.Name, errMsg)
	}

	output, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		errMsg := fmt.Sprintf("Error: %v", err)
		events <- Event{Type: EventToolExecEnd, ToolCallID: call.ID, ToolName: call.Name, ToolInfo: info, ToolSuccess: false, ToolOutput: errMsg}
		return ToolErrorMessage(call.ID, call.Name, errMsg)
	}

	events <- Event{Type: EventToolExecEnd, ToolCallID: call.ID, ToolName: call.Name, ToolInfo: info, ToolSuccess: true, ToolOutput: output}
	return ToolResultMessage(call.ID, call.Name, output)
}

// getToolPreview returns a preview string for a tool call.
func (e *Engine) getToolPreview(call ToolCall) string {
	if tool, ok := e.tools.Get(call.Name); ok {
		if preview := tool.Preview(call.Arguments); preview != "" {
			if !strings.HasPrefix(preview, "(") {
				return "(" + preview + ")"
			}
			return preview
		}
	}
	return ExtractToolInfo(call)
}

func ensureToolCallIDs(calls []ToolCall) []ToolCall {
	for i := range calls {
		if strings.TrimSpace(calls[i].ID) == "" {
			calls[i].ID = fmt.Sprintf("toolcall-%d", i+1)
		}
	}
	return calls
}

func dedupeToolCalls(calls []ToolCall) []ToolCall {
	if len(calls) < 2 {
		return calls
	}
	seen := make(map[string]struct{}, len(calls))
	out := make([]ToolCall, 0, len(calls))
	for _, call := range calls {
		id := strings.TrimSpace(call.ID)
		if id == "" {
			out = append(out, call)
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, call)
	}
	return out
}

// wrapCallbackStream wraps a stream to call the turn callback on completion.
// Used for simple (non-agentic) streams to enable incremental session saving.
func wrapCallbackStream(ctx context.Context, inner Stream, cb TurnCompletedCallback) Stream {
	return &callbackStream{
		inner:    inner,
		ctx:      ctx,
		text:     &strings.Builder{},
		callback: cb,
	}
}

// callbackStream accumulates text/usage and fires the callback once on EOF,
// error, or close.
type callbackStream struct {
	inner    Stream
	ctx      context.Context
	text     *strings.Builder
	metrics  TurnMetrics
	callback TurnCompletedCallback
	done     bool
}

func (s *callbackStream) Recv() (Event, error) {
	event, err := s.inner.Recv()
	if err != nil {
		// Fires on io.EOF and on error (best-effort save of partial output).
		s.fireCallback()
		return event, err
	}

	if event.Type == EventTextDelta && event.Text != "" {
		s.text.WriteString(event.Text)
	}
	if event.Type == EventUsage && event.Use != nil {
		s.metrics.InputTokens += event.Use.InputTokens
		s.metrics.OutputTokens += event.Use.OutputTokens
	}

	return event, nil
}

func (s *callbackStream) fireCallback() {
	if s.callback != nil && !s.done && s.text.Len() > 0 {
		s.done = true
		msg := AssistantText(s.text.String())
		_ = s.callback(s.ctx, 0, []Message{msg}, s.metrics)
	}
}

func (s *callbackStream) Close() error {
	s.fireCallback()
	return s.inner.Close()
}

// usageStream wraps a stream to accumulate token usage and log it on completion.
type usageStream struct {
	inner        Stream
	logger       *usage.Logger
	providerName string
	model        string

	totalInput  int
	totalOutput int
	logged      bool
}

func (s *usageStream) Recv() (Event, error) {
	event, err := s.inner.Recv()

	if err == nil && event.Type == EventUsage && event.Use != nil {
		s.totalInput += event.Use.InputTokens
		s.totalOutput += event.Use.OutputTokens
	}

	if (err == io.EOF || (err == nil && event.Type == EventDone)) && !s.logged {
		s.flush()
	}

	return event, err
}

func (s *usageStream) Close() error {
	if !s.logged {
		s.flush()
	}
	return s.inner.Close()
}

func (s *usageStream) flush() {
	if s.totalInput == 0 && s.totalOutput == 0 {
		return
	}
	s.logged = true
	_ = s.logger.Log(usage.LogEntry{
		Timestamp:    time.Now(),
		Provider:     s.providerName,
		Model:        s.model,
		InputTokens:  s.totalInput,
		OutputTokens: s.totalOutput,
	})
}

func wrapUsageStream(inner Stream, providerName, model string) Stream {
	if model == "" {
		model = providerName
	}
	return &usageStream{
		inner:        inner,
		logger:       usage.DefaultLogger(),
		providerName: providerName,
		model:        model,
	}
}
