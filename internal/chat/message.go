// Package chat implements the streaming chat session controller: an ordered
// message log with edit history, tool call lifecycle tracking, truncation
// detection, and a cancellable streaming state machine on top.
package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one conversation turn. Content is mutated in place while the
// message is the streaming target and frozen once the turn finalizes.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Edit history, oldest first. Populated only for edited user turns.
	Edited           bool     `json:"edited,omitempty"`
	PreviousVersions []string `json:"previous_versions,omitempty"`

	Cancelled bool `json:"cancelled,omitempty"`
	Truncated bool `json:"truncated,omitempty"`

	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`

	Thinking       string `json:"thinking,omitempty"`
	ThinkingTokens int    `json:"thinking_tokens,omitempty"`

	ToolExecutions []ToolExecution `json:"tool_executions,omitempty"`

	// Set for assistant turns produced in a multi-agent roundtable.
	AgentName     string `json:"agent_name,omitempty"`
	AgentProvider string `json:"agent_provider,omitempty"`
}

// ToolExecStatus is the lifecycle state of one tool invocation.
type ToolExecStatus string

const (
	ToolRunning  ToolExecStatus = "running"
	ToolComplete ToolExecStatus = "complete"
	ToolError    ToolExecStatus = "error"
)

// ToolExecution records one tool invocation attached to an assistant turn.
// Transitions running->complete and running->error are terminal.
type ToolExecution struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Input  json.RawMessage `json:"input,omitempty"`
	Status ToolExecStatus  `json:"status"`
	Result string          `json:"result,omitempty"`
}

// NewUserMessage creates a user turn with a fresh id.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an empty assistant turn to stream into.
func NewAssistantMessage() ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Timestamp: time.Now(),
	}
}

func (m ChatMessage) clone() ChatMessage {
	out := m
	if m.PreviousVersions != nil {
		out.PreviousVersions = append([]string(nil), m.PreviousVersions...)
	}
	if m.ToolExecutions != nil {
		out.ToolExecutions = append([]ToolExecution(nil), m.ToolExecutions...)
	}
	return out
}
