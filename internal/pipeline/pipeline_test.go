package pipeline

import (
	"testing"

	"github.com/tugasky/jira-installer/internal/dispatch"
	"github.com/tugasky/jira-installer/internal/domain"
)

// nopHandler satisfies dispatch.Handler; pipeline traffic is all Invoke.
type nopHandler struct{}

func (nopHandler) HandleLog(domain.LogEntry)              {}
func (nopHandler) HandleNotify(domain.Notice)             {}
func (nopHandler) HandleProgress(string, int)             {}
func (nopHandler) HandleConfirm(c *dispatch.Confirmation) { c.Answer(false) }

func newTestPipeline(t *testing.T) (*Pipeline, dispatch.Token) {
	t.Helper()
	q := dispatch.New()
	tok := q.Bind(nopHandler{})
	return New(q, nil), tok
}

func TestBeginResetsRun(t *testing.T) {
	t.Parallel()

	p, tok := newTestPipeline(t)
	p.Begin([]string{"a", "b", "c"})
	p.StartStep(0)
	p.CompleteStep(0)
	tok.Drain()
	p.EndRun()

	p.Begin([]string{"x", "y"})
	tok.Drain()

	s := p.Snapshot()
	if s.Total != 2 || s.Completed != 0 || s.Running != -1 || !s.Active {
		t.Fatalf("unexpected state after second begin: %+v", s)
	}
	for _, st := range s.Steps {
		if st.Status != StatusPending {
			t.Fatalf("step %d status = %q, want pending", st.Index, st.Status)
		}
	}
}

func TestSingleRunningStep(t *testing.T) {
	t.Parallel()

	p, tok := newTestPipeline(t)
	p.Begin([]string{"a", "b", "c"})
	p.StartStep(0)
	p.StartStep(2)
	tok.Drain()

	s := p.Snapshot()
	if s.Running != 2 {
		t.Fatalf("running index = %d, want 2", s.Running)
	}
	if got := s.Steps[0].Status; got != StatusPending {
		t.Fatalf("demoted step status = %q, want pending", got)
	}
	running := 0
	for _, st := range s.Steps {
		if st.Status == StatusRunning {
			running++
		}
	}
	if running != 1 {
		t.Fatalf("running steps = %d, want 1", running)
	}
}

func TestCompletedCountsAndProgress(t *testing.T) {
	t.Parallel()

	p, tok := newTestPipeline(t)
	p.Begin([]string{"a", "b", "c", "d"})
	p.StartStep(0)
	p.CompleteStep(0)
	p.StartStep(1)
	p.FailStep(1)
	p.StartStep(2)
	p.CompleteStep(2)
	tok.Drain()

	s := p.Snapshot()
	if s.Completed != 2 {
		t.Fatalf("completed = %d, want 2 (failed step must not count)", s.Completed)
	}
	if got := s.Progress(); got != 50 {
		t.Fatalf("progress = %d, want 50", got)
	}
	if s.Steps[0].Duration <= 0 {
		t.Fatalf("completed step duration = %v, want > 0", s.Steps[0].Duration)
	}
}

func TestTerminalStatusesStick(t *testing.T) {
	t.Parallel()

	p, tok := newTestPipeline(t)
	p.Begin([]string{"a", "b"})
	p.StartStep(0)
	p.CompleteStep(0)
	p.CompleteStep(0)
	p.StartStep(1)
	p.FailStep(1)
	p.CompleteStep(1)
	p.FailStep(1)
	tok.Drain()

	s := p.Snapshot()
	if s.Completed != 1 {
		t.Fatalf("completed = %d, want 1", s.Completed)
	}
	if s.Steps[0].Status != StatusDone || s.Steps[1].Status != StatusError {
		t.Fatalf("statuses = %q/%q, want done/error", s.Steps[0].Status, s.Steps[1].Status)
	}
}

func TestOutOfRangeIsNoOp(t *testing.T) {
	t.Parallel()

	p, tok := newTestPipeline(t)
	p.Begin([]string{"a"})
	p.StartStep(-1)
	p.StartStep(5)
	p.CompleteStep(3)
	p.FailStep(-2)
	tok.Drain()

	s := p.Snapshot()
	if s.Completed != 0 || s.Running != -1 {
		t.Fatalf("out-of-range ops changed state: %+v", s)
	}
	if s.Steps[0].Status != StatusPending {
		t.Fatalf("step status = %q, want pending", s.Steps[0].Status)
	}
}

func TestEndRunFreezesElapsedAndState(t *testing.T) {
	t.Parallel()

	p, tok := newTestPipeline(t)
	p.Begin([]string{"a", "b"})
	p.StartStep(0)
	p.CompleteStep(0)
	p.StartStep(1)
	p.FailStep(1)
	p.EndRun()
	tok.Drain()

	s := p.Snapshot()
	if s.Active {
		t.Fatal("run still active after end")
	}
	first := s.RunElapsed
	second := p.Snapshot().RunElapsed
	if first != second {
		t.Fatalf("elapsed kept moving after end: %v then %v", first, second)
	}
	if s.Steps[1].Status != StatusError {
		t.Fatalf("final step status = %q, want error", s.Steps[1].Status)
	}
}

func TestProgressGuardsEmptyRun(t *testing.T) {
	t.Parallel()

	var s Snapshot
	if got := s.Progress(); got != 0 {
		t.Fatalf("progress of empty run = %d, want 0", got)
	}
}

func TestRenderObserverSeesSnapshots(t *testing.T) {
	t.Parallel()

	q := dispatch.New()
	tok := q.Bind(nopHandler{})
	var seen []Snapshot
	p := New(q, func(s Snapshot) { seen = append(seen, s) })

	p.Begin([]string{"a"})
	p.StartStep(0)
	p.CompleteStep(0)
	p.EndRun()
	tok.Drain()

	if len(seen) != 4 {
		t.Fatalf("render calls = %d, want 4", len(seen))
	}
	last := seen[len(seen)-1]
	if last.Completed != 1 || last.Active {
		t.Fatalf("final snapshot = %+v", last)
	}
}
