package logging

import (
	"github.com/tugasky/jira-installer/internal/dispatch"
	"github.com/tugasky/jira-installer/internal/domain"
	"github.com/tugasky/jira-installer/internal/pipeline"
)

type teeHandler struct {
	next dispatch.Handler
	rec  *Recorder
}

// Tee records dispatcher traffic to rec before forwarding it to next.
func Tee(next dispatch.Handler, rec *Recorder) dispatch.Handler {
	return &teeHandler{next: next, rec: rec}
}

func (t *teeHandler) HandleLog(e domain.LogEntry) {
	t.rec.Entry(e)
	t.next.HandleLog(e)
}

func (t *teeHandler) HandleNotify(n domain.Notice) {
	t.rec.Notice(n)
	t.next.HandleNotify(n)
}

func (t *teeHandler) HandleProgress(label string, pct int) {
	t.next.HandleProgress(label, pct)
}

func (t *teeHandler) HandleConfirm(c *dispatch.Confirmation) {
	t.rec.Question(c.Title)
	t.next.HandleConfirm(c)
}

// StepObserver wraps a pipeline render callback, recording every step
// status transition before forwarding the snapshot.
func (r *Recorder) StepObserver(next func(pipeline.Snapshot)) func(pipeline.Snapshot) {
	var last []pipeline.Status
	return func(s pipeline.Snapshot) {
		if len(last) != len(s.Steps) {
			last = make([]pipeline.Status, len(s.Steps))
		}
		for i, st := range s.Steps {
			if last[i] != st.Status {
				last[i] = st.Status
				r.Step(st.Index, st.Title, string(st.Status))
			}
		}
		if next != nil {
			next(s)
		}
	}
}
