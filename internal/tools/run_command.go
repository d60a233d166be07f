package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/samsaffron/roundtable/internal/llm"
)

// RunCommandTool implements the run_command tool.
type RunCommandTool struct {
	limits OutputLimits
}

// NewRunCommandTool creates a new RunCommandTool.
func NewRunCommandTool(limits OutputLimits) *RunCommandTool {
	return &RunCommandTool{limits: limits}
}

// RunCommandArgs are the arguments for run_command.
type RunCommandArgs struct {
	Command        string `json:"command"`
	WorkingDir     string `json:"working_dir,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// CommandResult contains the result of a command.
type CommandResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

func (t *RunCommandTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        RunCommandToolName,
		Description: "Execute a shell command. Returns stdout, stderr, and exit code.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command": map[string]interface{}{
					"type":        "string",
					"description": "Shell command to execute",
				},
				"working_dir": map[string]interface{}{
					"type":        "string",
					"description": "Working directory (defaults to current directory)",
				},
				"timeout_seconds": map[string]interface{}{
					"type":        "integer",
					"description": "Command timeout in seconds (default: 30, max: 300)",
					"default":     30,
				},
			},
			"required":             []string{"command"},
			"additionalProperties": false,
		},
	}
}

func (t *RunCommandTool) Preview(args json.RawMessage) string {
	var a RunCommandArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Command == "" {
		return ""
	}
	cmd := a.Command
	if len(cmd) > 50 {
		cmd = cmd[:47] + "..."
	}
	return cmd
}

func (t *RunCommandTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a RunCommandArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return formatToolError(NewToolError(ErrInvalidParams, err.Error())), nil
	}

	if a.Command == "" {
		return formatToolError(NewToolError(ErrInvalidParams, "command is required")), nil
	}

	timeout := 30
	if a.TimeoutSeconds > 0 {
		timeout = a.TimeoutSeconds
	}
	if timeout > 300 {
		timeout = 300
	}

	workDir := a.WorkingDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return formatToolError(NewToolErrorf(ErrExecutionFailed, "cannot get working directory: %v", err)), nil
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(execCtx, detectShell(), "-c", a.Command)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if execCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		return formatCommandResult(result, t.limits), nil
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return formatToolError(NewToolErrorf(ErrExecutionFailed, "command error: %v", err)), nil
		}
	}

	return formatCommandResult(result, t.limits), nil
}

// detectShell returns the user's shell, falling back to /bin/sh.
func detectShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/sh"
}

// formatCommandResult formats the command result for the LLM.
func formatCommandResult(result CommandResult, limits OutputLimits) string {
	stdout := result.Stdout
	stderr := result.Stderr
	truncated := false

	if int64(len(stdout)) > limits.MaxBytes {
		stdout = stdout[:limits.MaxBytes]
		truncated = true
	}
	if int64(len(stderr)) > limits.MaxBytes {
		stderr = stderr[:limits.MaxBytes]
		truncated = true
	}

	var sb strings.Builder
	if result.TimedOut {
		sb.WriteString(formatToolError(NewToolError(ErrTimeout, "command timed out")))
		sb.WriteString("\n")
	}
	if stdout != "" {
		sb.WriteString(stdout)
	}
	if stderr != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("stderr:\n")
		sb.WriteString(stderr)
	}
	if result.ExitCode != 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("exit code: %d", result.ExitCode))
	}
	if truncated {
		sb.WriteString("\n[Output truncated.]")
	}
	if sb.Len() == 0 {
		return "(no output)"
	}
	return sb.String()
}
