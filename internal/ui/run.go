package ui

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"

	"github.com/tugasky/jira-installer/internal/dispatch"
)

// Run binds h to the dispatcher and drives the bubbletea program until
// the user quits. h is the model itself, or the model wrapped by the
// log recorder; the model drains either way.
func Run(q *dispatch.Queue, m *Model, h dispatch.Handler) error {
	if h == nil {
		h = m
	}
	m.bind(q.Bind(h))

	// Seed an initial size so the first frame renders even in
	// environments where WindowSizeMsg never arrives.
	if w, h, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 && h > 0 {
		m.width = w
		m.height = h
	}
	m.reflow()

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
