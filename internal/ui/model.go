// Package ui is the bubbletea presentation loop. The model is the
// dispatcher's handler: every ~100ms it drains the queue, so all
// engine traffic lands on the Update goroutine.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tugasky/jira-installer/internal/dispatch"
	"github.com/tugasky/jira-installer/internal/domain"
	"github.com/tugasky/jira-installer/internal/pipeline"
)

const maxLogEntries = 1000

type drainMsg struct{}

func drainTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg { return drainMsg{} })
}

type Params struct {
	Title   string
	Version string
	// Done is closed when the worker goroutine finishes.
	Done <-chan struct{}
	// Cancel stops the worker context; may be nil.
	Cancel func()
}

type Model struct {
	params Params
	tok    dispatch.Token

	width  int
	height int

	snap pipeline.Snapshot

	logs     []domain.LogEntry
	logVP    viewport.Model
	logDirty bool
	follow   bool

	overall progress.Model
	spin    spinner.Model

	progressLabel string
	progressPct   int

	pending *dispatch.Confirmation
	notice  *domain.Notice

	cancelling bool
	done       bool
}

func NewModel(p Params) *Model {
	spin := spinner.New()
	spin.Spinner = spinner.Line
	return &Model{
		params:  p,
		overall: progress.New(progress.WithSolidFill(progressFillHex), progress.WithoutPercentage()),
		spin:    spin,
		follow:  true,
		width:   80,
		height:  24,
	}
}

// ObserveSnapshot is the pipeline's render callback. It runs on the
// Update goroutine, inside Drain.
func (m *Model) ObserveSnapshot(s pipeline.Snapshot) {
	m.snap = s
}

func (m *Model) bind(tok dispatch.Token) { m.tok = tok }

// dispatch.Handler

func (m *Model) HandleLog(e domain.LogEntry) {
	m.logs = append(m.logs, e)
	if len(m.logs) > maxLogEntries {
		m.logs = m.logs[len(m.logs)-maxLogEntries:]
	}
	m.logDirty = true
}

func (m *Model) HandleNotify(n domain.Notice) {
	m.notice = &n
}

func (m *Model) HandleProgress(label string, pct int) {
	m.progressLabel = label
	m.progressPct = pct
}

func (m *Model) HandleConfirm(c *dispatch.Confirmation) {
	// The worker stays blocked until the user answers; the loop keeps
	// rendering meanwhile.
	m.pending = c
}

// tea.Model

func (m *Model) Init() tea.Cmd {
	return tea.Batch(drainTick(), m.spin.Tick)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.reflow()
		return m, nil

	case drainMsg:
		m.tok.Drain()
		if !m.done && m.params.Done != nil {
			select {
			case <-m.params.Done:
				m.done = true
				m.tok.Drain()
			default:
			}
		}
		if m.logDirty {
			m.logDirty = false
			m.refreshLog()
		}
		return m, drainTick()

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := strings.ToLower(msg.String())

	if m.pending != nil {
		switch key {
		case "y", "enter":
			m.pending.Answer(true)
			m.pending = nil
		case "n", "esc":
			m.pending.Answer(false)
			m.pending = nil
		}
		return m, nil
	}

	if m.notice != nil {
		switch key {
		case "enter", "esc", " ":
			m.notice = nil
		}
		return m, nil
	}

	switch key {
	case "q":
		if m.done {
			return m, tea.Quit
		}
	case "ctrl+c":
		if m.done || m.cancelling {
			return m, tea.Quit
		}
		m.cancelling = true
		if m.params.Cancel != nil {
			m.params.Cancel()
		}
	case "f":
		m.follow = !m.follow
		if m.follow {
			m.logVP.GotoBottom()
		}
	case "up", "k":
		m.follow = false
		m.logVP.LineUp(1)
	case "down", "j":
		m.logVP.LineDown(1)
		if m.logVP.AtBottom() {
			m.follow = true
		}
	case "pgup":
		m.follow = false
		m.logVP.LineUp(m.logVP.Height)
	case "pgdown":
		m.logVP.LineDown(m.logVP.Height)
		if m.logVP.AtBottom() {
			m.follow = true
		}
	}
	return m, nil
}

func (m *Model) reflow() {
	w, h := m.logPanelSize()
	m.logVP.Width = w
	m.logVP.Height = h
	m.overall.Width = max(10, m.width-24)
	m.refreshLog()
}

func (m *Model) refreshLog() {
	lines := make([]string, 0, len(m.logs))
	for _, e := range m.logs {
		lines = append(lines, renderLogLine(e))
	}
	m.logVP.SetContent(strings.Join(lines, "\n"))
	if m.follow {
		m.logVP.GotoBottom()
	}
}

func renderLogLine(e domain.LogEntry) string {
	ts := mutedStyle.Render(e.TS.Format("15:04:05"))
	switch e.Severity {
	case domain.SeverityError:
		return fmt.Sprintf("%s %s", ts, errStyle.Render(e.Message))
	case domain.SeverityWarn:
		return fmt.Sprintf("%s %s", ts, warnStyle.Render(e.Message))
	default:
		return fmt.Sprintf("%s %s", ts, e.Message)
	}
}
