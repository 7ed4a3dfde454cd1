// Package otp mediates the one-time-passcode pause/resume protocol between
// the running job and the client that supplies the code.
package otp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/feedforge/harvester/internal/harvest"
)

// Challenge is one outstanding passcode request. The engine goroutine waits
// on it; a client resolves it through the Handler.
type Challenge struct {
	issuedAt time.Time
	code     chan string
}

// IssuedAt reports when the challenge was raised.
func (c *Challenge) IssuedAt() time.Time {
	return c.issuedAt
}

// Wait blocks until a code is submitted or ctx finishes.
func (c *Challenge) Wait(ctx context.Context) (string, error) {
	select {
	case code := <-c.code:
		return code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("challenge wait: %w", ctx.Err())
	}
}

// Handler owns the at-most-one outstanding challenge. It holds no opinion
// on code correctness; codes are forwarded opaquely to the engine, which
// re-raises the challenge if the code is rejected.
type Handler struct {
	mu      sync.Mutex
	pending *Challenge
	clock   harvest.Clock
}

// NewHandler builds a Handler using clock for challenge timestamps.
func NewHandler(clock harvest.Clock) *Handler {
	return &Handler{clock: clock}
}

// Issue registers a new challenge. Only the job controller calls this;
// a second outstanding challenge is an invariant violation (ErrConflict).
func (h *Handler) Issue() (*Challenge, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending != nil {
		return nil, fmt.Errorf("passcode challenge already outstanding: %w", harvest.ErrConflict)
	}
	ch := &Challenge{
		issuedAt: h.clock.Now(),
		code:     make(chan string, 1),
	}
	h.pending = ch
	return ch, nil
}

// Resolve routes the code to the waiting challenge and clears it. Returns
// ErrNoChallenge when nothing is outstanding (stale client state).
func (h *Handler) Resolve(code string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return harvest.ErrNoChallenge
	}
	h.pending.code <- code
	h.pending = nil
	return nil
}

// Pending reports whether a challenge is outstanding.
func (h *Handler) Pending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending != nil
}

// Clear drops any outstanding challenge. Called when the job is canceled
// or errors out; the waiting goroutine is released by its own context.
func (h *Handler) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = nil
}
