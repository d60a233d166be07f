// Package tools provides the local tools exposed to the model during chat.
package tools

import (
	"fmt"

	"github.com/samsaffron/roundtable/internal/llm"
)

// ToolErrorType provides structured errors for model retry logic.
type ToolErrorType string

const (
	ErrFileNotFound    ToolErrorType = "FILE_NOT_FOUND"
	ErrInvalidParams   ToolErrorType = "INVALID_PARAMS"
	ErrExecutionFailed ToolErrorType = "EXECUTION_FAILED"
	ErrBinaryFile      ToolErrorType = "BINARY_FILE"
	ErrTimeout         ToolErrorType = "TIMEOUT"
)

// ToolError carries a typed failure back to the model as text.
type ToolError struct {
	Type    ToolErrorType `json:"type"`
	Message string        `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func NewToolError(errType ToolErrorType, message string) *ToolError {
	return &ToolError{Type: errType, Message: message}
}

func NewToolErrorf(errType ToolErrorType, format string, args ...interface{}) *ToolError {
	return &ToolError{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// formatToolError formats a ToolError for LLM consumption.
func formatToolError(err *ToolError) string {
	return fmt.Sprintf("Error [%s]: %s", err.Type, err.Message)
}

// Tool spec names.
const (
	ReadFileToolName   = "read_file"
	RunCommandToolName = "run_command"
)

// OutputLimits bound tool output fed back to the model.
type OutputLimits struct {
	MaxLines int   // Max lines for read_file
	MaxBytes int64 // Max bytes per tool output
}

// DefaultOutputLimits returns the default output limits.
func DefaultOutputLimits() OutputLimits {
	return OutputLimits{
		MaxLines: 2000,
		MaxBytes: 50 * 1024,
	}
}

// DefaultRegistry returns a registry with the standard local tools.
func DefaultRegistry() *llm.ToolRegistry {
	limits := DefaultOutputLimits()
	registry := llm.NewToolRegistry()
	registry.Register(NewReadFileTool(limits))
	registry.Register(NewRunCommandTool(limits))
	return registry
}
