// Package tui renders SchoolQuest in the terminal with bubbletea.
//
// The runner game and the mission picker are separate tea.Models. Neither
// blocks on the network: persistence runs as a tea.Cmd and its outcome
// arrives later as a message that raises a toast.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	Primary     = lipgloss.Color("#8BC34A")
	Muted       = lipgloss.Color("#6b7280")
	Destructive = lipgloss.Color("#e53935")
	Ground      = lipgloss.Color("#a16207")
	Obstacle    = lipgloss.Color("#94a3b8")
)

// Styles groups the lipgloss styles shared by the models.
type Styles struct {
	Title    lipgloss.Style
	Hint     lipgloss.Style
	Selected lipgloss.Style
	Score    lipgloss.Style
	Toast    lipgloss.Style
	ErrToast lipgloss.Style
	Frame    lipgloss.Style
	Ground   lipgloss.Style
	Obstacle lipgloss.Style
	Player   lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(Primary),
		Hint:     lipgloss.NewStyle().Foreground(Muted),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(Primary),
		Score:    lipgloss.NewStyle().Bold(true),
		Toast:    lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder()).BorderForeground(Primary),
		ErrToast: lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder()).BorderForeground(Destructive),
		Frame:    lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(Muted),
		Ground:   lipgloss.NewStyle().Foreground(Ground),
		Obstacle: lipgloss.NewStyle().Foreground(Obstacle),
		Player:   lipgloss.NewStyle().Bold(true).Foreground(Primary),
	}
}
