// Package pipeline models one linear run of named provisioning steps
// with per-step and aggregate status. The pipeline itself never touches
// presentation state: workers call the exported methods, which route
// every mutation through the dispatcher so that all writes happen on
// the presentation loop (single writer), and an observer callback
// receives immutable snapshots to render.
package pipeline

import (
	"time"

	"github.com/tugasky/jira-installer/internal/dispatch"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Step is one unit of work in a run. Identity is the index within the run.
type Step struct {
	Index     int
	Title     string
	Status    Status
	StartedAt time.Time
	Duration  time.Duration
}

// Snapshot is a copy of the run state, safe to hand to a renderer.
type Snapshot struct {
	Steps      []Step
	Total      int
	Completed  int
	Running    int // index of the running step, -1 when none
	Active     bool
	RunStarted time.Time
	RunElapsed time.Duration
}

// Progress is the aggregate percentage: floor(completed/total*100).
func (s Snapshot) Progress() int {
	total := s.Total
	if total < 1 {
		total = 1
	}
	return s.Completed * 100 / total
}

// StepElapsed reports how long the running step has been running, or 0.
func (s Snapshot) StepElapsed() time.Duration {
	if s.Running < 0 || s.Running >= len(s.Steps) {
		return 0
	}
	st := s.Steps[s.Running]
	if st.StartedAt.IsZero() {
		return 0
	}
	return time.Since(st.StartedAt)
}

type Pipeline struct {
	q      *dispatch.Queue
	render func(Snapshot)

	// Everything below is mutated exclusively on the presentation loop,
	// inside dispatcher-delivered callbacks.
	steps      []Step
	completed  int
	running    int
	active     bool
	runStart   time.Time
	runElapsed time.Duration
	stopTick   chan struct{}
}

// New creates a pipeline bound to q. render may be nil; when set it is
// invoked on the presentation loop after every state change and on the
// one-second elapsed tick.
func New(q *dispatch.Queue, render func(Snapshot)) *Pipeline {
	return &Pipeline{q: q, render: render, running: -1}
}

// Begin resets the run: one Pending step per title, zeroed counters,
// run timer started. Safe to call from a worker.
func (p *Pipeline) Begin(titles []string) {
	ts := append([]string(nil), titles...)
	p.q.Invoke(func() { p.applyBegin(ts) })
}

// StartStep marks step i Running and demotes any previously running
// step. Out-of-range indexes are ignored.
func (p *Pipeline) StartStep(i int) {
	p.q.Invoke(func() { p.applyStart(i) })
}

// CompleteStep marks step i Done, records its duration and advances the
// aggregate counter. Terminal steps are left untouched.
func (p *Pipeline) CompleteStep(i int) {
	p.q.Invoke(func() { p.applyComplete(i) })
}

// FailStep marks step i Error. The run does not auto-advance; the
// caller decides what happens next.
func (p *Pipeline) FailStep(i int) {
	p.q.Invoke(func() { p.applyFail(i) })
}

// EndRun stops the run and step timer bookkeeping. Step statuses are
// left as-is so the last recorded state stays visible.
func (p *Pipeline) EndRun() {
	p.q.Invoke(func() { p.applyEnd() })
}

// Snapshot copies the current state. Loop-affine: call it only from the
// presentation loop (render callbacks, dispatcher invokes, tests that
// drain on the same goroutine).
func (p *Pipeline) Snapshot() Snapshot {
	s := Snapshot{
		Steps:      append([]Step(nil), p.steps...),
		Total:      len(p.steps),
		Completed:  p.completed,
		Running:    p.running,
		Active:     p.active,
		RunStarted: p.runStart,
		RunElapsed: p.runElapsed,
	}
	if p.active && !p.runStart.IsZero() {
		s.RunElapsed = time.Since(p.runStart)
	}
	return s
}

func (p *Pipeline) applyBegin(titles []string) {
	p.cancelTick()
	p.steps = make([]Step, len(titles))
	for i, title := range titles {
		p.steps[i] = Step{Index: i, Title: title, Status: StatusPending}
	}
	p.completed = 0
	p.running = -1
	p.active = true
	p.runStart = time.Now()
	p.runElapsed = 0
	p.startTick()
	p.emit()
}

func (p *Pipeline) applyStart(i int) {
	if i < 0 || i >= len(p.steps) {
		return
	}
	// One running step system-wide per run.
	if p.running >= 0 && p.running != i && p.steps[p.running].Status == StatusRunning {
		p.steps[p.running].Status = StatusPending
	}
	p.steps[i].Status = StatusRunning
	p.steps[i].StartedAt = time.Now()
	p.running = i
	p.emit()
}

func (p *Pipeline) applyComplete(i int) {
	if i < 0 || i >= len(p.steps) {
		return
	}
	st := &p.steps[i]
	if st.Status == StatusDone || st.Status == StatusError {
		return
	}
	st.Status = StatusDone
	if !st.StartedAt.IsZero() {
		st.Duration = time.Since(st.StartedAt)
	}
	p.completed++
	if p.running == i {
		p.running = -1
	}
	p.emit()
}

func (p *Pipeline) applyFail(i int) {
	if i < 0 || i >= len(p.steps) {
		return
	}
	st := &p.steps[i]
	if st.Status == StatusDone || st.Status == StatusError {
		return
	}
	st.Status = StatusError
	if p.running == i {
		p.running = -1
	}
	p.emit()
}

func (p *Pipeline) applyEnd() {
	if p.active && !p.runStart.IsZero() {
		p.runElapsed = time.Since(p.runStart)
	}
	p.active = false
	p.cancelTick()
	p.emit()
}

func (p *Pipeline) emit() {
	if p.render != nil {
		p.render(p.Snapshot())
	}
}

// startTick launches the one-second elapsed refresher. It reschedules
// itself through the dispatcher so the render stays on the loop, and
// stops when the run ends.
func (p *Pipeline) startTick() {
	stop := make(chan struct{})
	p.stopTick = stop
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				p.q.Invoke(func() {
					if p.active {
						p.emit()
					}
				})
			}
		}
	}()
}

func (p *Pipeline) cancelTick() {
	if p.stopTick != nil {
		close(p.stopTick)
		p.stopTick = nil
	}
}
