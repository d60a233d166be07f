package chat

import (
	"fmt"
	"strings"

	"github.com/muesli/reflow/wordwrap"

	ctl "github.com/samsaffron/roundtable/internal/chat"
	"github.com/samsaffron/roundtable/internal/ui"
)

// renderHistory renders the conversation log, clipped to the viewport with
// scrollOffset counting lines up from the bottom.
func (m *Model) renderHistory() string {
	var blocks []string
	for _, msg := range m.snapshot.Messages {
		blocks = append(blocks, m.renderMessage(msg))
	}
	content := strings.Join(blocks, "\n\n")

	lines := strings.Split(content, "\n")
	rows := m.viewportRows()
	if len(lines) <= rows {
		return content
	}

	end := len(lines) - m.scrollOffset
	if end > len(lines) {
		end = len(lines)
	}
	if end < rows {
		end = rows
	}
	return strings.Join(lines[end-rows:end], "\n")
}

func (m *Model) renderMessage(msg ctl.ChatMessage) string {
	switch msg.Role {
	case ctl.RoleUser:
		return m.renderUserMessage(msg)
	case ctl.RoleAssistant:
		return m.renderAssistantMessage(msg)
	default:
		return m.styles.Muted.Render(msg.Content)
	}
}

func (m *Model) renderUserMessage(msg ctl.ChatMessage) string {
	text := "❯ " + msg.Content
	if msg.Edited {
		text += m.styles.Muted.Render(fmt.Sprintf(" (edited, %d earlier versions)", len(msg.PreviousVersions)))
	}
	return m.styles.UserMsg.Render(wordwrap.String(text, m.width))
}

func (m *Model) renderAssistantMessage(msg ctl.ChatMessage) string {
	var parts []string

	if msg.AgentName != "" {
		parts = append(parts, m.styles.AgentTag.Render(msg.AgentName))
	}

	if msg.Thinking != "" && msg.Content == "" {
		// Show reasoning only until real content arrives.
		parts = append(parts, m.styles.Thinking.Render(wordwrap.String(ui.Truncate(msg.Thinking, 500), m.width)))
	}

	for _, exec := range msg.ToolExecutions {
		parts = append(parts, m.renderToolExecution(exec))
	}

	if msg.Content != "" {
		parts = append(parts, ui.RenderMarkdown(msg.Content, m.width))
	}

	if msg.Cancelled {
		parts = append(parts, m.styles.Muted.Render("⏹ cancelled"))
	}
	if msg.Truncated {
		parts = append(parts, m.styles.Warning.Render(ctl.TruncationWarning(msg.OutputTokens)))
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n")
}

func (m *Model) renderToolExecution(exec ctl.ToolExecution) string {
	preview := ""
	if len(exec.Input) > 0 {
		preview = " " + m.styles.Muted.Render(ui.Truncate(string(exec.Input), 60))
	}
	switch exec.Status {
	case ctl.ToolComplete:
		return m.styles.Success.Render(ui.SuccessIcon+" "+exec.Name) + preview
	case ctl.ToolError:
		return m.styles.Error.Render(ui.FailIcon+" "+exec.Name) + preview
	default:
		return m.spinner.View() + " " + exec.Name + preview
	}
}

func (m *Model) renderStatusLine() string {
	if m.snapshot.Status == ctl.StatusError && m.snapshot.Error != "" {
		return m.styles.Error.Render(ui.FailIcon + " " + m.snapshot.Error)
	}
	if m.notice != "" {
		return m.styles.Warning.Render(m.notice)
	}
	if m.editingID != "" {
		return m.styles.Warning.Render("editing message, enter to save, esc to abort")
	}
	if label := statusLabel(m.snapshot.Status); label != "" {
		return m.spinner.View() + " " + m.styles.Muted.Render(label)
	}
	return ""
}

// statusLabel maps an active status to its display verb.
func statusLabel(status ctl.Status) string {
	switch status {
	case ctl.StatusConnecting:
		return "Connecting..."
	case ctl.StatusThinking:
		return "Thinking..."
	case ctl.StatusCallingTool:
		return "Running tools..."
	case ctl.StatusStreaming:
		return "Responding..."
	case ctl.StatusCancelling:
		return "Cancelling..."
	default:
		return ""
	}
}

func (m *Model) renderFooter() string {
	help := "enter send · esc cancel · ctrl+r regenerate · ctrl+e edit · ctrl+k clear · ctrl+c quit"
	tag := fmt.Sprintf("%s/%s", m.providerName, m.modelName)
	return m.styles.Footer.Render(ui.Truncate(tag+" · "+help, m.width))
}
