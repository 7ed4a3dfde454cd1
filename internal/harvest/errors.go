package harvest

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is at the API boundary.
var (
	// ErrAlreadyRunning rejects Start while a job is active.
	ErrAlreadyRunning = errors.New("a scrape job is already running")
	// ErrNoChallenge rejects an OTP submission with no outstanding challenge.
	ErrNoChallenge = errors.New("no passcode challenge is pending")
	// ErrNotFound reports an unknown session or post reference.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports an internal invariant violation, e.g. a duplicate
	// session timestamp. It is a bug, not a user-facing condition.
	ErrConflict = errors.New("conflict")
	// ErrNotRunning rejects Cancel when no job is active.
	ErrNotRunning = errors.New("no scrape job is running")
)

// EngineError wraps an unrecoverable failure reported by the external
// engine. The message is surfaced verbatim through the status feed.
type EngineError struct {
	Stage string
	Err   error
}

func (e *EngineError) Error() string {
	if e.Stage == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}
