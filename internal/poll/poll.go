// Package poll implements bounded-deadline readiness polling for
// services that come up asynchronously.
package poll

import (
	"context"
	"time"
)

// Probe reports whether the dependency answered. A non-nil error means
// the probe ran and the dependency is not ready yet; probes must not
// block past their own transport timeouts.
type Probe func(ctx context.Context) error

// WaitReady runs probe every interval until it succeeds or deadline
// elapses. The first attempt fires immediately. Returns true on the
// first successful probe, false when the deadline passes or ctx is
// cancelled; probe errors are swallowed, not propagated.
func WaitReady(ctx context.Context, probe Probe, deadline, interval time.Duration) bool {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := probe(ctx); err == nil {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
