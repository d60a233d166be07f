// Package ui holds shared terminal styling for the chat TUI.
package ui

import (
	"os"

	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color palette for the UI.
type Theme struct {
	Primary   lipgloss.Color // main accent color
	Secondary lipgloss.Color // headers, borders
	Success   lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Muted     lipgloss.Color // dimmed/secondary text
	Text      lipgloss.Color
	Spinner   lipgloss.Color
	UserMsgBg lipgloss.Color // background for user messages
}

// DefaultTheme returns the default color theme (gruvbox).
func DefaultTheme() *Theme {
	return &Theme{
		Primary:   lipgloss.Color("#b8bb26"), // gruvbox green
		Secondary: lipgloss.Color("#83a598"), // gruvbox aqua
		Success:   lipgloss.Color("#b8bb26"),
		Error:     lipgloss.Color("#fb4934"), // gruvbox red
		Warning:   lipgloss.Color("#fabd2f"), // gruvbox yellow
		Muted:     lipgloss.Color("#928374"), // gruvbox gray
		Text:      lipgloss.Color("#ebdbb2"), // gruvbox foreground
		Spinner:   lipgloss.Color("#d3869b"), // gruvbox purple
		UserMsgBg: lipgloss.Color("#3c3836"), // subtle dark gray
	}
}

// Status indicators.
const (
	SuccessIcon = "✓"
	FailIcon    = "✗"
)

// Styles are styled text helpers bound to a renderer.
type Styles struct {
	renderer *lipgloss.Renderer
	theme    *Theme

	Title       lipgloss.Style
	Success     lipgloss.Style
	Error       lipgloss.Style
	Warning     lipgloss.Style
	Muted       lipgloss.Style
	Bold        lipgloss.Style
	Highlighted lipgloss.Style

	Spinner  lipgloss.Style
	Footer   lipgloss.Style
	UserMsg  lipgloss.Style
	AgentTag lipgloss.Style
	Thinking lipgloss.Style
}

// NewStyles creates a Styles instance for the given output.
func NewStyles(output *os.File) *Styles {
	return NewStylesWithTheme(output, DefaultTheme())
}

// NewStylesWithTheme creates styles with a specific theme.
func NewStylesWithTheme(output *os.File, theme *Theme) *Styles {
	r := lipgloss.NewRenderer(output)

	return &Styles{
		renderer: r,
		theme:    theme,

		Title: r.NewStyle().
			Bold(true).
			Foreground(theme.Text),

		Success: r.NewStyle().
			Foreground(theme.Success),

		Error: r.NewStyle().
			Foreground(theme.Error),

		Warning: r.NewStyle().
			Foreground(theme.Warning),

		Muted: r.NewStyle().
			Foreground(theme.Muted),

		Bold: r.NewStyle().
			Bold(true),

		Highlighted: r.NewStyle().
			Bold(true).
			Foreground(theme.Primary),

		Spinner: r.NewStyle().
			Foreground(theme.Spinner),

		Footer: r.NewStyle().
			Foreground(theme.Muted),

		UserMsg: r.NewStyle().
			Background(theme.UserMsgBg).
			Foreground(theme.Text),

		AgentTag: r.NewStyle().
			Bold(true).
			Foreground(theme.Secondary),

		Thinking: r.NewStyle().
			Foreground(theme.Muted).
			Italic(true),
	}
}

// DefaultStyles returns styles for stderr (default TUI output).
func DefaultStyles() *Styles {
	return NewStyles(os.Stderr)
}

// Theme returns the theme used by these styles.
func (s *Styles) Theme() *Theme {
	return s.theme
}

// Truncate shortens a string to maxLen with ellipsis.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// GlamourStyle returns a glamour StyleConfig matching the default theme.
func GlamourStyle() ansi.StyleConfig {
	return GlamourStyleFromTheme(DefaultTheme())
}

// GlamourStyleFromTheme creates a glamour StyleConfig from the given theme.
func GlamourStyleFromTheme(theme *Theme) ansi.StyleConfig {
	primary := string(theme.Primary)
	secondary := string(theme.Secondary)
	warning := string(theme.Warning)
	muted := string(theme.Muted)
	text := string(theme.Text)

	return ansi.StyleConfig{
		Document: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				BlockPrefix: "\n",
				BlockSuffix: "\n",
				Color:       &text,
			},
			Margin: uintPtr(2),
		},
		BlockQuote: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color:  &warning,
				Italic: boolPtr(true),
			},
			Indent: uintPtr(2),
		},
		List: ansi.StyleList{
			LevelIndent: 2,
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{
					Color: &text,
				},
			},
		},
		Heading: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				BlockPrefix: "\n",
				Color:       &secondary,
				Bold:        boolPtr(true),
			},
		},
		H1: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Prefix: "# ",
			},
		},
		H2: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Prefix: "## ",
			},
		},
		H3: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Prefix: "### ",
			},
		},
		Emph: ansi.StylePrimitive{
			Color:  &warning,
			Italic: boolPtr(true),
		},
		Strong: ansi.StylePrimitive{
			Bold:  boolPtr(true),
			Color: &primary,
		},
		HorizontalRule: ansi.StylePrimitive{
			Color:  &muted,
			Format: "\n--------\n",
		},
		Item: ansi.StylePrimitive{
			BlockPrefix: "• ",
		},
		Enumeration: ansi.StylePrimitive{
			BlockPrefix: ". ",
			Color:       &secondary,
		},
		Link: ansi.StylePrimitive{
			Color:     &secondary,
			Underline: boolPtr(true),
		},
		LinkText: ansi.StylePrimitive{
			Color: &primary,
		},
		Code: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: &primary,
			},
		},
		CodeBlock: ansi.StyleCodeBlock{
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{
					Color: &text,
				},
				Margin: uintPtr(2),
			},
			Chroma: &ansi.Chroma{
				Text: ansi.StylePrimitive{
					Color: &text,
				},
				Comment: ansi.StylePrimitive{
					Color: &muted,
				},
				Keyword: ansi.StylePrimitive{
					Color: &primary,
				},
				KeywordType: ansi.StylePrimitive{
					Color: &secondary,
				},
				Name: ansi.StylePrimitive{
					Color: &text,
				},
				NameFunction: ansi.StylePrimitive{
					Color: &warning,
				},
				LiteralNumber: ansi.StylePrimitive{
					Color: &secondary,
				},
				LiteralString: ansi.StylePrimitive{
					Color: &warning,
				},
			},
		},
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func uintPtr(u uint) *uint {
	return &u
}
