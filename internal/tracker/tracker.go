// Package tracker holds the in-memory progress snapshot served by the
// daemon's /status endpoint.
package tracker

import (
	"fmt"
	"sync"

	"github.com/kvantos/patchbay/internal/domain"
)

// Tracker is the single mutable record of the current update run. The
// update engine writes to it, the /status handler reads deep copies from
// it. Logs only ever grow within a run; Reset starts a fresh run.
type Tracker struct {
	mu         sync.RWMutex
	data       domain.ProgressData
	lastDecile int
}

func New() *Tracker {
	return &Tracker{data: empty(), lastDecile: -1}
}

func empty() domain.ProgressData {
	return domain.ProgressData{Logs: []domain.LogEntry{}}
}

// Reset clears the snapshot for a new run.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = empty()
	t.lastDecile = -1
}

// SetProgress records how many manifest entries have been processed and
// logs a line at every new 10% decile. It never marks the run completed;
// that is Complete's and Fail's job, so a poller can never observe a
// terminal snapshot without its report or error attached.
func (t *Tracker) SetProgress(progress, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.Progress = progress
	t.data.Total = total

	if total <= 0 {
		return
	}
	decile := progress * 100 / total / 10
	if decile > t.lastDecile {
		t.lastDecile = decile
		t.appendLocked(domain.LogEntry{
			Message: fmt.Sprintf("Progress: %d%%", decile*10),
			Type:    domain.LogInfo,
		})
	}
}

// Log appends one entry to the run's log stream.
func (t *Tracker) Log(message, logType string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendLocked(domain.LogEntry{Message: message, Type: logType})
}

// Complete marks the run terminal with its final report.
func (t *Tracker) Complete(report *domain.StatusReport) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.StatusReport = report
	t.data.Completed = true

	if n := len(report.Failed); n > 0 {
		t.appendLocked(domain.LogEntry{
			Message: fmt.Sprintf("Warning: %d files failed to update", n),
			Type:    domain.LogError,
		})
	}
	t.appendLocked(domain.LogEntry{
		Message: fmt.Sprintf("Final result: %d updated, %d skipped", len(report.Updated), len(report.Skipped)),
		Type:    domain.LogSuccess,
	})
}

// Fail marks the run terminal with an error.
func (t *Tracker) Fail(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.Error = msg
	t.data.Completed = true
	t.appendLocked(domain.LogEntry{
		Message: "Error during update: " + msg,
		Type:    domain.LogError,
	})
}

// Snapshot returns a copy the caller may hold across further writes.
func (t *Tracker) Snapshot() domain.ProgressData {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := t.data
	out.Logs = make([]domain.LogEntry, len(t.data.Logs))
	copy(out.Logs, t.data.Logs)
	if t.data.StatusReport != nil {
		report := *t.data.StatusReport
		out.StatusReport = &report
	}
	return out
}

func (t *Tracker) appendLocked(entry domain.LogEntry) {
	t.data.Logs = append(t.data.Logs, entry)
}
