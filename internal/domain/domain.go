package domain

import (
	"fmt"
	"time"
)

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// LogEntry is one line of the run log as shown to the user and recorded
// to the log file.
type LogEntry struct {
	TS       time.Time
	Severity Severity
	Message  string
}

// Notice is a one-way alert: a human-readable summary shown outside the
// log stream (dialog box in the original, banner in the TUI).
type Notice struct {
	Title    string
	Text     string
	Severity Severity
}

// FormatDuration renders elapsed times the way the step panel shows them:
// "3s", "2m 3s", "1h 2m 3s".
func FormatDuration(d time.Duration) string {
	s := int(d.Seconds())
	if s < 0 {
		s = 0
	}
	m, s := s/60, s%60
	h, m := m/60, m%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
