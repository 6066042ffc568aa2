package runner

import (
	"time"

	"notesync/internal/syncer"
)

// StatusSummary is a point-in-time view of the runner.
type StatusSummary struct {
	Running    bool
	SessionID  string
	Step       string
	Progress   string
	StartedAt  time.Time
	LastResult *syncer.Result
}

// Status returns the latest runner information.
func (r *Runner) Status() StatusSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary := StatusSummary{
		Running:   r.running,
		SessionID: r.sessionID,
		Step:      r.step,
		Progress:  r.progress,
		StartedAt: r.startedAt,
	}
	if r.lastResult != nil {
		copy := *r.lastResult
		summary.LastResult = &copy
	}
	return summary
}
