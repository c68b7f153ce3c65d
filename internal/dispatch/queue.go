// Package dispatch is the cross-thread substrate between background
// workers and the single presentation loop. Workers enqueue messages
// through Queue from any goroutine; the loop owner binds a Handler,
// receives a Token, and drains the queue on a fixed tick. The Token is
// the only loop-affine surface, so "am I on the presentation thread?"
// never needs a runtime check.
package dispatch

import (
	"sync"
	"time"

	"github.com/tugasky/jira-installer/internal/domain"
)

// Handler consumes drained messages. All methods are invoked on the
// presentation loop, one message at a time, in FIFO order.
type Handler interface {
	HandleLog(entry domain.LogEntry)
	HandleNotify(n domain.Notice)
	HandleProgress(label string, pct int)

	// HandleConfirm must arrange for c.Answer to be called exactly once.
	// When reached via Token.Confirm the caller is the loop itself, so
	// the answer must be produced before returning.
	HandleConfirm(c *Confirmation)
}

// Confirmation is a blocking question in flight: one worker waits on the
// single-use reply channel until the loop answers.
type Confirmation struct {
	Title string
	Text  string

	once  sync.Once
	reply chan bool
}

func newConfirmation(title, text string) *Confirmation {
	return &Confirmation{Title: title, Text: text, reply: make(chan bool, 1)}
}

// Answer resolves the confirmation. Later calls are no-ops.
func (c *Confirmation) Answer(yes bool) {
	c.once.Do(func() { c.reply <- yes })
}

type kind uint8

const (
	kindLog kind = iota
	kindInvoke
	kindNotify
	kindProgress
	kindConfirm
)

type message struct {
	kind    kind
	entry   domain.LogEntry
	fn      func()
	notice  domain.Notice
	label   string
	pct     int
	confirm *Confirmation
}

// Queue is the producer surface, safe for any number of goroutines.
type Queue struct {
	mu      sync.Mutex
	msgs    []message
	handler Handler
}

func New() *Queue { return &Queue{} }

// Bind registers the consuming handler and hands back the loop token.
// It must be called before the first Drain.
func (q *Queue) Bind(h Handler) Token {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = h
	return Token{q: q}
}

func (q *Queue) push(m message) {
	q.mu.Lock()
	q.msgs = append(q.msgs, m)
	q.mu.Unlock()
}

func (q *Queue) log(sev domain.Severity, text string) {
	q.push(message{kind: kindLog, entry: domain.LogEntry{
		TS:       time.Now(),
		Severity: sev,
		Message:  text,
	}})
}

// Log appends an info line for display. Non-blocking.
func (q *Queue) Log(text string) { q.log(domain.SeverityInfo, text) }

// Warn appends a warning line for display. Non-blocking.
func (q *Queue) Warn(text string) { q.log(domain.SeverityWarn, text) }

// Error appends an error line for display. Non-blocking.
func (q *Queue) Error(text string) { q.log(domain.SeverityError, text) }

// Invoke schedules fn to run on the presentation loop. The caller does
// not observe a result; a panic inside fn is contained by Drain.
func (q *Queue) Invoke(fn func()) {
	if fn == nil {
		return
	}
	q.push(message{kind: kindInvoke, fn: fn})
}

// Notify shows a one-way alert.
func (q *Queue) Notify(title, text string, sev domain.Severity) {
	q.push(message{kind: kindNotify, notice: domain.Notice{Title: title, Text: text, Severity: sev}})
}

// Progress reports a labelled percentage (download streaming and the like).
func (q *Queue) Progress(label string, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	q.push(message{kind: kindProgress, label: label, pct: pct})
}

// Confirm enqueues a question and blocks the calling worker until the
// presentation loop answers. Must not be called from the loop itself;
// the loop uses Token.Confirm. Calling this after the loop has stopped
// draining blocks forever, so workflows never confirm during teardown.
func (q *Queue) Confirm(title, text string) bool {
	c := newConfirmation(title, text)
	q.push(message{kind: kindConfirm, confirm: c})
	return <-c.reply
}

// Token is the loop-affine surface. Only the goroutine that runs the
// presentation loop may use it.
type Token struct {
	q *Queue
}

// Drain pops and handles every currently queued message without
// blocking, then returns. Messages enqueued concurrently are picked up
// by the next tick. A panic while handling one message never takes the
// loop down, and never skips the messages behind it.
func (t Token) Drain() {
	if t.q == nil {
		return
	}
	t.q.mu.Lock()
	msgs := t.q.msgs
	t.q.msgs = nil
	h := t.q.handler
	t.q.mu.Unlock()

	for _, m := range msgs {
		t.handle(h, m)
	}
}

func (t Token) handle(h Handler, m message) {
	defer func() { _ = recover() }()

	switch m.kind {
	case kindLog:
		if h != nil {
			h.HandleLog(m.entry)
		}
	case kindInvoke:
		m.fn()
	case kindNotify:
		if h != nil {
			h.HandleNotify(m.notice)
		}
	case kindProgress:
		if h != nil {
			h.HandleProgress(m.label, m.pct)
		}
	case kindConfirm:
		if h == nil {
			// Nobody left to ask; unblock the worker with a refusal.
			m.confirm.Answer(false)
			return
		}
		h.HandleConfirm(m.confirm)
	}
}

// Confirm resolves a question synchronously on the loop, bypassing the
// queue entirely so the loop cannot deadlock on itself.
func (t Token) Confirm(title, text string) bool {
	if t.q == nil {
		return false
	}
	t.q.mu.Lock()
	h := t.q.handler
	t.q.mu.Unlock()
	if h == nil {
		return false
	}
	c := newConfirmation(title, text)
	h.HandleConfirm(c)
	return <-c.reply
}

// Len reports how many messages are waiting. Intended for tests and
// idle detection, not for flow control.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}
