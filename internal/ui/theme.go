package ui

import "github.com/charmbracelet/lipgloss"

var (
	hnOrange = lipgloss.Color("#FF6600")

	HelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#828282")).
			Padding(0, 1)

	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(hnOrange).
			Bold(true)
)
