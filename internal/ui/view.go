package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tugasky/jira-installer/internal/domain"
	"github.com/tugasky/jira-installer/internal/pipeline"
)

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	if len(m.snap.Steps) > 0 {
		b.WriteString(m.renderSteps())
		b.WriteString("\n")
		b.WriteString(m.renderProgress())
		b.WriteString("\n")
	}
	b.WriteString(m.renderLogPanel())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	return b.String()
}

func (m *Model) renderHeader() string {
	left := titleStyle.Render(m.params.Title)
	right := versionStyle.Render("v" + m.params.Version)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m *Model) renderSteps() string {
	var lines []string
	for _, st := range m.snap.Steps {
		lines = append(lines, renderStepLine(st, m.snap, m.spin.View()))
	}
	body := strings.Join(lines, "\n")
	return panelWithTitle("Steps", body, m.width)
}

func renderStepLine(st pipeline.Step, snap pipeline.Snapshot, spinView string) string {
	var marker, suffix string
	switch st.Status {
	case pipeline.StatusRunning:
		marker = runningStyle.Render("[" + spinView + " RUNNING]")
		suffix = mutedStyle.Render(" (" + domain.FormatDuration(snap.StepElapsed()) + ")")
	case pipeline.StatusDone:
		marker = okStyle.Render("[DONE]")
		if st.Duration > 0 {
			suffix = mutedStyle.Render(" (" + domain.FormatDuration(st.Duration) + ")")
		}
	case pipeline.StatusError:
		marker = errStyle.Render("[ERROR]")
	default:
		marker = mutedStyle.Render("[      ]")
	}
	return fmt.Sprintf(" %-2d %s %s%s", st.Index+1, marker, st.Title, suffix)
}

func (m *Model) renderProgress() string {
	pct := m.snap.Progress()
	bar := m.overall.ViewAs(float64(pct) / 100)
	line := fmt.Sprintf(" %s %3d%%  elapsed %s", bar, pct, domain.FormatDuration(m.snap.RunElapsed))
	if m.progressLabel != "" && m.progressPct < 100 {
		line += "\n " + mutedStyle.Render(fmt.Sprintf("%s: %d%%", m.progressLabel, m.progressPct))
	}
	return line
}

func (m *Model) renderLogPanel() string {
	title := "Installation log"
	if !m.follow {
		title += " (scrolling, f to follow)"
	}
	return panelWithTitle(title, m.logVP.View(), m.width)
}

func (m *Model) renderFooter() string {
	if m.pending != nil {
		return promptStyle.Render(fmt.Sprintf(" %s — %s  [y]es / [n]o", m.pending.Title, m.pending.Text))
	}
	if m.notice != nil {
		style := okStyle
		switch m.notice.Severity {
		case domain.SeverityError:
			style = errStyle
		case domain.SeverityWarn:
			style = warnStyle
		}
		return style.Render(fmt.Sprintf(" %s: %s", m.notice.Title, m.notice.Text)) +
			mutedStyle.Render("  (enter to dismiss)")
	}
	if m.cancelling && !m.done {
		return warnStyle.Render(" Cancelling... (ctrl+c again to force quit)")
	}
	if m.done {
		return mutedStyle.Render(" Finished. Press q to quit.")
	}
	return mutedStyle.Render(" ctrl+c cancel · f follow log · ↑/↓ scroll")
}

// panelWithTitle draws body inside a rounded border with the title
// embedded in the top edge.
func panelWithTitle(title, body string, width int) string {
	if width < 4 {
		return body
	}
	top := titledTop(width, title, panelBorder)
	inner := panelStyle.
		BorderTop(false).
		Width(width - 2).
		Render(body)
	return top + "\n" + inner
}

func (m *Model) logPanelSize() (w, h int) {
	w = max(10, m.width-4)
	reserved := 6 // header, progress, footer, borders
	reserved += len(m.snap.Steps) + 2
	h = max(3, m.height-reserved)
	return w, h
}
