// Package chat implements the interactive chat TUI on top of a stream
// session.
package chat

import (
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	ctl "github.com/samsaffron/roundtable/internal/chat"
	"github.com/samsaffron/roundtable/internal/ui"
)

// Model is the chat TUI model. All conversation state lives in the session;
// the model renders snapshots and translates keys into session calls.
type Model struct {
	width  int
	height int

	textarea textarea.Model
	spinner  spinner.Model
	styles   *ui.Styles
	keyMap   KeyMap

	session     *ctl.Session
	snapshot    ctl.Snapshot
	updates     <-chan ctl.Snapshot
	unsubscribe func()

	providerName string
	modelName    string

	// Editing state: when set, enter submits an edit of this message
	// instead of a new send.
	editingID string

	scrollOffset int
	notice       string
	quitting     bool
}

type snapshotMsg struct {
	snapshot ctl.Snapshot
}

type snapshotsClosedMsg struct{}

// New creates a chat model bound to the given session.
func New(session *ctl.Session, providerName, modelName string) *Model {
	width, height := 80, 24
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width, height = w, h
	}

	styles := ui.DefaultStyles()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.Prompt = "❯ "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetWidth(width)
	ta.SetHeight(1)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle()
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(styles.Theme().Muted)
	ta.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(styles.Theme().Primary).Bold(true)
	ta.BlurredStyle = ta.FocusedStyle
	ta.Focus()

	updates, unsubscribe := session.Subscribe()

	return &Model{
		width:        width,
		height:       height,
		textarea:     ta,
		spinner:      s,
		styles:       styles,
		keyMap:       DefaultKeyMap(),
		session:      session,
		snapshot:     session.Snapshot(),
		updates:      updates,
		unsubscribe:  unsubscribe,
		providerName: providerName,
		modelName:    modelName,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, waitForSnapshot(m.updates))
}

func waitForSnapshot(updates <-chan ctl.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snapshot, ok := <-updates
		if !ok {
			return snapshotsClosedMsg{}
		}
		return snapshotMsg{snapshot: snapshot}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textarea.SetWidth(msg.Width)
		return m, nil

	case snapshotMsg:
		m.snapshot = msg.snapshot
		m.scrollOffset = 0
		return m, waitForSnapshot(m.updates)

	case snapshotsClosedMsg:
		return m, nil

	case spinner.TickMsg:
		if !m.snapshot.Status.Active() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""

	switch {
	case key.Matches(msg, m.keyMap.Quit):
		m.quitting = true
		m.unsubscribe()
		m.session.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.Cancel):
		if m.editingID != "" {
			m.editingID = ""
			m.textarea.Reset()
			return m, nil
		}
		if err := m.session.Cancel(); err != nil {
			if !ctl.IsInvalidState(err) {
				m.notice = err.Error()
			}
		}
		return m, m.spinner.Tick

	case key.Matches(msg, m.keyMap.Send):
		return m.submit()

	case key.Matches(msg, m.keyMap.Newline):
		m.textarea.InsertString("\n")
		return m, nil

	case key.Matches(msg, m.keyMap.Clear):
		if err := m.session.Clear(); err != nil {
			m.notice = err.Error()
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Regenerate):
		last, ok := m.session.Store().LastAssistant()
		if !ok {
			m.notice = "nothing to regenerate"
			return m, nil
		}
		if err := m.session.Regenerate(last.ID); err != nil {
			m.notice = err.Error()
			return m, nil
		}
		return m, m.spinner.Tick

	case key.Matches(msg, m.keyMap.Edit):
		return m.beginEdit()

	case key.Matches(msg, m.keyMap.PageUp):
		m.scrollOffset += m.viewportRows() / 2
		return m, nil

	case key.Matches(msg, m.keyMap.PageDown):
		m.scrollOffset -= m.viewportRows() / 2
		if m.scrollOffset < 0 {
			m.scrollOffset = 0
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m *Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.textarea.Value())
	if text == "" {
		return m, nil
	}

	if m.editingID != "" {
		if _, err := m.session.Edit(m.editingID, text); err != nil {
			m.notice = err.Error()
			return m, nil
		}
		m.editingID = ""
		m.textarea.Reset()
		m.snapshot = m.session.Snapshot()
		return m, nil
	}

	if err := m.session.Send(text); err != nil {
		m.notice = err.Error()
		return m, nil
	}
	m.textarea.Reset()
	m.snapshot = m.session.Snapshot()
	return m, m.spinner.Tick
}

func (m *Model) beginEdit() (tea.Model, tea.Cmd) {
	if m.snapshot.Status != ctl.StatusIdle {
		m.notice = "finish the current turn before editing"
		return m, nil
	}
	messages := m.snapshot.Messages
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == ctl.RoleUser {
			m.editingID = messages[i].ID
			m.textarea.SetValue(messages[i].Content)
			m.textarea.CursorEnd()
			return m, nil
		}
	}
	m.notice = "no user message to edit"
	return m, nil
}

func (m *Model) viewportRows() int {
	// History area: total height minus input, status, and footer.
	rows := m.height - m.textarea.Height() - 3
	if rows < 1 {
		rows = 1
	}
	return rows
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(m.renderHistory())
	sb.WriteString("\n")
	sb.WriteString(m.renderStatusLine())
	sb.WriteString("\n")
	sb.WriteString(m.textarea.View())
	sb.WriteString("\n")
	sb.WriteString(m.renderFooter())
	return sb.String()
}
