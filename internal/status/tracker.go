// Package status holds the live job status and its bounded progress log.
package status

import (
	"sync"

	"github.com/feedforge/harvester/internal/harvest"
)

const defaultLogCapacity = 50

// Tracker is the process-wide status record for the single scrape job.
// Writers (the job controller) and readers (pollers) never block each
// other beyond the lock hold of a field copy; Snapshot never waits on the
// job itself.
type Tracker struct {
	mu       sync.RWMutex
	state    harvest.JobState
	message  string
	logs     []string
	capacity int
}

// NewTracker returns a Tracker in the IDLE state. capacity bounds the log;
// once exceeded the oldest lines are evicted. Zero or negative capacity
// falls back to the default.
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &Tracker{
		state:    harvest.StateIdle,
		message:  "Ready",
		capacity: capacity,
	}
}

// SetState transitions the tracked state. A non-empty message also becomes
// the current message and is appended to the log.
func (t *Tracker) SetState(state harvest.JobState, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
	if message != "" {
		t.message = message
		t.appendLocked(message)
	}
}

// Append adds a progress line and updates the current message.
func (t *Tracker) Append(line string) {
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.message = line
	t.appendLocked(line)
}

// Reset returns the tracker to IDLE with an empty log. Called when a new
// job starts or a terminal state is acknowledged.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = harvest.StateIdle
	t.message = "Ready"
	t.logs = nil
}

// Snapshot returns a consistent copy of the current status. The returned
// log slice is owned by the caller.
func (t *Tracker) Snapshot() harvest.StatusSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	logs := make([]string, len(t.logs))
	copy(logs, t.logs)
	return harvest.StatusSnapshot{
		State:   t.state,
		Message: t.message,
		Logs:    logs,
	}
}

// State returns just the current state.
func (t *Tracker) State() harvest.JobState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Tracker) appendLocked(line string) {
	t.logs = append(t.logs, line)
	if len(t.logs) > t.capacity {
		t.logs = t.logs[len(t.logs)-t.capacity:]
	}
}
