package ui

import (
	"sort"

	"github.com/charmbracelet/lipgloss"

	"github.com/mcao2/inbox-triage/internal/triage"
)

// Theme is a named color palette.
type Theme struct {
	Primary    string
	Secondary  string
	Background string
	Text       string
	Subtle     string
	Error      string
	Success    string
	High       string
	Medium     string
	Low        string
}

// Themes lists the built-in palettes by name.
var Themes = map[string]Theme{
	"default": {
		Primary: "#7D56F4", Secondary: "#04B575", Background: "#1A1A1A", Text: "#FAFAFA",
		Subtle: "#737373", Error: "#FF5F5F", Success: "#04B575",
		High: "#FF4B4B", Medium: "#FFA500", Low: "#00C853",
	},
	"catppuccin": {
		Primary: "#CBA6F7", Secondary: "#A6E3A1", Background: "#1E1E2E", Text: "#CDD6F4",
		Subtle: "#6C7086", Error: "#F38BA8", Success: "#A6E3A1",
		High: "#F38BA8", Medium: "#FAB387", Low: "#A6E3A1",
	},
	"dracula": {
		Primary: "#BD93F9", Secondary: "#50FA7B", Background: "#282A36", Text: "#F8F8F2",
		Subtle: "#6272A4", Error: "#FF5555", Success: "#50FA7B",
		High: "#FF5555", Medium: "#FFB86C", Low: "#50FA7B",
	},
	"nord": {
		Primary: "#88C0D0", Secondary: "#A3BE8C", Background: "#2E3440", Text: "#ECEFF4",
		Subtle: "#4C566A", Error: "#BF616A", Success: "#A3BE8C",
		High: "#BF616A", Medium: "#D08770", Low: "#A3BE8C",
	},
	"gruvbox": {
		Primary: "#FABD2F", Secondary: "#B8BB26", Background: "#282828", Text: "#EBDBB2",
		Subtle: "#928374", Error: "#FB4934", Success: "#B8BB26",
		High: "#FB4934", Medium: "#FE8019", Low: "#B8BB26",
	},
}

// GetThemeNames returns theme names with "default" first.
func GetThemeNames() []string {
	names := make([]string, 0, len(Themes))
	for name := range Themes {
		if name != "default" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return append([]string{"default"}, names...)
}

// Styles holds all the UI styles
type Styles struct {
	theme Theme

	Title     lipgloss.Style
	Normal    lipgloss.Style
	Help      lipgloss.Style
	HelpKey   lipgloss.Style
	HelpDesc  lipgloss.Style
	HelpSep   lipgloss.Style
	Highlight lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Border    lipgloss.Style
	Card      lipgloss.Style
	HeaderBar lipgloss.Style
	FooterBar lipgloss.Style

	PriorityHigh   lipgloss.Style
	PriorityMedium lipgloss.Style
	PriorityLow    lipgloss.Style
}

// NewStyles builds the style set for theme.
func NewStyles(theme Theme) Styles {
	return Styles{
		theme: theme,

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(theme.Primary)).
			PaddingTop(1).
			PaddingBottom(1),

		Normal: lipgloss.NewStyle().
			Foreground(lipgloss.Color(theme.Text)),

		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color(theme.Subtle)).
			Italic(true),

		HelpKey: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(theme.Primary)),

		HelpDesc: lipgloss.NewStyle().
			Foreground(lipgloss.Color(theme.Subtle)),

		HelpSep: lipgloss.NewStyle().
			Foreground(lipgloss.Color(theme.Subtle)),

		Highlight: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(theme.Secondary)),

		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color(theme.Error)),

		Success: lipgloss.NewStyle().
			Foreground(lipgloss.Color(theme.Success)),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(theme.Primary)).
			Padding(1, 4),

		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(theme.Subtle)).
			Padding(0, 2),

		HeaderBar: lipgloss.NewStyle().
			Padding(0, 1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color(theme.Subtle)),

		FooterBar: lipgloss.NewStyle().
			Padding(0, 1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(lipgloss.Color(theme.Subtle)),

		PriorityHigh:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(theme.High)),
		PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Medium)),
		PriorityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Low)),
	}
}

// DefaultStyles returns the default style set
func DefaultStyles() Styles {
	return NewStyles(Themes["default"])
}

// Priority returns the style used to paint p.
func (s Styles) Priority(p triage.Priority) lipgloss.Style {
	switch p {
	case triage.PriorityHigh:
		return s.PriorityHigh
	case triage.PriorityLow:
		return s.PriorityLow
	default:
		return s.PriorityMedium
	}
}
