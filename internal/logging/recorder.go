// Package logging records a run to a structured log file. The terminal
// UI is the primary surface; the file exists so a failed run can be
// attached to a support ticket.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tugasky/jira-installer/internal/domain"
)

type Recorder struct {
	l *zap.Logger
}

// Open appends to path, creating it if needed.
func Open(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(f), zapcore.InfoLevel)
	return &Recorder{l: zap.New(core)}, nil
}

// Nop records nothing; used when --log is not set.
func Nop() *Recorder {
	return &Recorder{l: zap.NewNop()}
}

func (r *Recorder) Entry(e domain.LogEntry) {
	switch e.Severity {
	case domain.SeverityError:
		r.l.Error(e.Message)
	case domain.SeverityWarn:
		r.l.Warn(e.Message)
	default:
		r.l.Info(e.Message)
	}
}

func (r *Recorder) Notice(n domain.Notice) {
	r.l.Info("notice",
		zap.String("title", n.Title),
		zap.String("text", n.Text),
		zap.String("severity", string(n.Severity)),
	)
}

func (r *Recorder) Question(title string) {
	r.l.Info("confirmation asked", zap.String("title", title))
}

func (r *Recorder) Step(index int, title, status string) {
	r.l.Info("step",
		zap.Int("index", index),
		zap.String("title", title),
		zap.String("status", status),
	)
}

func (r *Recorder) Close() {
	_ = r.l.Sync()
}
