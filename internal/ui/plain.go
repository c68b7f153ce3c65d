package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tugasky/jira-installer/internal/dispatch"
	"github.com/tugasky/jira-installer/internal/domain"
	"github.com/tugasky/jira-installer/internal/pipeline"
)

// PlainHandler writes dispatcher traffic straight to a writer and
// answers confirmations from a reader. Used for non-interactive-UI
// commands and --plain runs.
type PlainHandler struct {
	out io.Writer
	in  *bufio.Reader

	lastLabel  string
	lastStatus []pipeline.Status
}

func NewPlainHandler(out io.Writer, in io.Reader) *PlainHandler {
	return &PlainHandler{out: out, in: bufio.NewReader(in)}
}

func (h *PlainHandler) HandleLog(e domain.LogEntry) {
	switch e.Severity {
	case domain.SeverityError:
		fmt.Fprintf(h.out, "ERROR: %s\n", e.Message)
	case domain.SeverityWarn:
		fmt.Fprintf(h.out, "WARN: %s\n", e.Message)
	default:
		fmt.Fprintln(h.out, e.Message)
	}
}

func (h *PlainHandler) HandleNotify(n domain.Notice) {
	fmt.Fprintf(h.out, "%s: %s\n", n.Title, n.Text)
}

func (h *PlainHandler) HandleProgress(label string, pct int) {
	// One line per label, not one per percent.
	if label != h.lastLabel || pct == 100 {
		fmt.Fprintf(h.out, "%s: %d%%\n", label, pct)
		h.lastLabel = label
	}
}

// ObserveSnapshot is the pipeline render callback for plain runs: one
// line per step status transition.
func (h *PlainHandler) ObserveSnapshot(s pipeline.Snapshot) {
	if len(h.lastStatus) != len(s.Steps) {
		h.lastStatus = make([]pipeline.Status, len(s.Steps))
	}
	for i, st := range s.Steps {
		if h.lastStatus[i] == st.Status {
			continue
		}
		h.lastStatus[i] = st.Status
		switch st.Status {
		case pipeline.StatusRunning:
			fmt.Fprintf(h.out, "[%d/%d] %s...\n", i+1, s.Total, st.Title)
		case pipeline.StatusDone:
			fmt.Fprintf(h.out, "[%d/%d] %s [DONE] (%s)\n", i+1, s.Total, st.Title, domain.FormatDuration(st.Duration))
		case pipeline.StatusError:
			fmt.Fprintf(h.out, "[%d/%d] %s [ERROR]\n", i+1, s.Total, st.Title)
		}
	}
}

func (h *PlainHandler) HandleConfirm(c *dispatch.Confirmation) {
	fmt.Fprintf(h.out, "%s\n%s [y/N]: ", c.Title, c.Text)
	line, err := h.in.ReadString('\n')
	if err != nil {
		c.Answer(false)
		return
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	c.Answer(answer == "y" || answer == "yes")
}

// RunPlain drains the queue on a fixed cadence until done closes, then
// drains one final time. h is usually a PlainHandler, possibly wrapped
// by the log recorder.
func RunPlain(q *dispatch.Queue, h dispatch.Handler, done <-chan struct{}) {
	tok := q.Bind(h)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		tok.Drain()
		select {
		case <-done:
			tok.Drain()
			return
		case <-ticker.C:
		}
	}
}
