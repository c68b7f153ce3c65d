package ui

import "github.com/charmbracelet/lipgloss"

const progressFillHex = "#2684FF"

var (
	panelBorder     = lipgloss.RoundedBorder()
	panelStyle      = lipgloss.NewStyle().Border(panelBorder)
	panelTitleStyle = lipgloss.NewStyle().Bold(true)

	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(progressFillHex)).Bold(true)
	versionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)
