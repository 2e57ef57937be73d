package tui

import "github.com/charmbracelet/lipgloss"

// Styles contains the lipgloss styles used by the screen.
type Styles struct {
	Title       lipgloss.Style
	Label       lipgloss.Style
	ActiveLabel lipgloss.Style
	Suggestion  lipgloss.Style
	Selected    lipgloss.Style
	Muted       lipgloss.Style
	Route       lipgloss.Style
	Error       lipgloss.Style
	Panel       lipgloss.Style
}

// DefaultStyles returns the default styles.
func DefaultStyles() Styles {
	var (
		primary = lipgloss.Color("#7C3AED")
		accent  = lipgloss.Color("#06B6D4")
		muted   = lipgloss.Color("#6C7086")
		success = lipgloss.Color("#A6E3A1")
		failure = lipgloss.Color("#F38BA8")
		border  = lipgloss.Color("#45475A")
	)
	return Styles{
		Title:       lipgloss.NewStyle().Bold(true).Foreground(primary).MarginBottom(1),
		Label:       lipgloss.NewStyle().Width(6).Foreground(muted),
		ActiveLabel: lipgloss.NewStyle().Width(6).Bold(true).Foreground(accent),
		Suggestion:  lipgloss.NewStyle().PaddingLeft(8),
		Selected:    lipgloss.NewStyle().PaddingLeft(6).Bold(true).Foreground(accent),
		Muted:       lipgloss.NewStyle().Foreground(muted),
		Route:       lipgloss.NewStyle().Bold(true).Foreground(success),
		Error:       lipgloss.NewStyle().Foreground(failure),
		Panel:       lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(border).Padding(0, 1).MarginTop(1),
	}
}
