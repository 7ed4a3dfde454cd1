// Package scrape implements the job controller: the state machine that owns
// the at-most-one-job invariant and drives the external harvest engine.
package scrape

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feedforge/harvester/internal/harvest"
	"github.com/feedforge/harvester/internal/metrics"
	"github.com/feedforge/harvester/internal/otp"
	"github.com/feedforge/harvester/internal/status"
)

const defaultCommitTimeout = 30 * time.Second

// Config controls Controller behavior.
//   - PublishTopic: Pub/Sub topic notified on session commit (empty disables).
//   - CommitTimeout: budget for the session commit after a successful run.
//   - BaseContext: parent context for the background run (defaults to
//     context.Background()); canceling it aborts an in-flight job.
type Config struct {
	PublishTopic  string
	CommitTimeout time.Duration
	BaseContext   context.Context
}

// Controller owns the singleton job lifecycle. All state transitions happen
// here; pollers read through the tracker without touching the job.
type Controller struct {
	engine    harvest.Engine
	registry  harvest.SessionStore
	tracker   *status.Tracker
	otp       *otp.Handler
	publisher harvest.Publisher
	clock     harvest.Clock
	cfg       Config
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewController wires the state machine to its collaborators. publisher may
// be nil; logger nil falls back to a Nop logger.
func NewController(
	engine harvest.Engine,
	registry harvest.SessionStore,
	tracker *status.Tracker,
	otpHandler *otp.Handler,
	publisher harvest.Publisher,
	clock harvest.Clock,
	cfg Config,
	logger *zap.Logger,
) *Controller {
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = defaultCommitTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		engine:    engine,
		registry:  registry,
		tracker:   tracker,
		otp:       otpHandler,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start launches a new job. It is allowed only from IDLE or a terminal
// state; while a job is RUNNING or WAITING_FOR_OTP it fails with
// ErrAlreadyRunning. Starting resets the log buffer and implicitly
// acknowledges a previous COMPLETED/ERROR state.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return harvest.ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(c.cfg.BaseContext)
	done := make(chan struct{})
	c.running = true
	c.cancel = cancel
	c.done = done
	c.tracker.Reset()
	c.tracker.SetState(harvest.StateRunning, "Starting scrape job...")
	c.mu.Unlock()

	go c.run(runCtx, done)
	return nil
}

// SubmitOTP forwards a human-supplied passcode to the waiting engine. The
// code is opaque here; the engine alone judges validity and re-raises the
// challenge if it is rejected.
func (c *Controller) SubmitOTP(code string) error {
	return c.otp.Resolve(code)
}

// Cancel aborts the active job and returns the controller to IDLE,
// discarding partial results. It waits for the background run to unwind or
// for ctx to expire. ErrNotRunning when no job is active.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return harvest.ErrNotRunning
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cancel wait: %w", ctx.Err())
	}
}

// Status returns the current status snapshot.
func (c *Controller) Status() harvest.StatusSnapshot {
	return c.tracker.Snapshot()
}

func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	result, err := c.engine.Run(ctx, &reporter{c: c})
	if ctx.Err() != nil {
		c.otp.Clear()
		c.finish(harvest.StateIdle, "Job canceled. Partial results discarded.", "canceled")
		c.logger.Info("scrape job canceled")
		return
	}
	if err != nil {
		c.otp.Clear()
		c.finish(harvest.StateError, err.Error(), "error")
		c.logger.Error("scrape job failed", zap.Error(err))
		return
	}

	// Commit the session before publishing COMPLETED so no poller can
	// observe a completed run whose session is not yet queryable.
	commitCtx, cancelCommit := context.WithTimeout(c.cfg.BaseContext, c.cfg.CommitTimeout)
	defer cancelCommit()
	session, err := c.registry.CreateSession(commitCtx, result.Label, result.Posts)
	if err != nil {
		c.finish(harvest.StateError, fmt.Sprintf("failed to record session: %v", err), "error")
		c.logger.Error("session commit failed", zap.Error(err))
		return
	}

	metrics.ObservePosts(session.PostCount)
	c.finish(
		harvest.StateCompleted,
		fmt.Sprintf("Harvest complete! Collected %d posts.", session.PostCount),
		"completed",
	)
	c.logger.Info("scrape job completed",
		zap.Int64("session_timestamp", session.Timestamp),
		zap.Int("post_count", session.PostCount),
	)
	c.notify(commitCtx, session)
}

// finish publishes the terminal (or reset) state before releasing the run
// slot, so a racing Start cannot interleave with the final transition.
func (c *Controller) finish(state harvest.JobState, message, outcome string) {
	c.tracker.SetState(state, message)
	metrics.ObserveJob(outcome)
	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.mu.Unlock()
}

func (c *Controller) notify(ctx context.Context, session harvest.Session) {
	if c.publisher == nil || c.cfg.PublishTopic == "" {
		return
	}
	payload := map[string]any{
		"session_timestamp": session.Timestamp,
		"label":             session.Label,
		"post_count":        session.PostCount,
		"avg_likes":         session.AvgLikes,
		"completed_at":      c.clock.Now().Format(time.RFC3339),
	}
	if _, err := c.publisher.Publish(ctx, c.cfg.PublishTopic, payload); err != nil {
		c.logger.Warn("session notification failed", zap.Error(err))
	}
}

// reporter routes engine callbacks into the tracker and the challenge
// handler. It is scoped to a single run.
type reporter struct {
	c *Controller
}

// Progress appends a line to the status feed.
func (r *reporter) Progress(message string) {
	r.c.tracker.Append(message)
	r.c.logger.Debug("engine progress", zap.String("message", message))
}

// Challenge parks the run in WAITING_FOR_OTP until a code arrives, then
// resumes RUNNING and hands the code back to the engine.
func (r *reporter) Challenge(ctx context.Context) (string, error) {
	challenge, err := r.c.otp.Issue()
	if err != nil {
		return "", err
	}
	metrics.ObserveChallenge()
	r.c.tracker.SetState(
		harvest.StateWaitingOTP,
		"Security challenge raised. Enter the one-time passcode to continue.",
	)
	code, err := challenge.Wait(ctx)
	if err != nil {
		return "", err
	}
	r.c.tracker.SetState(harvest.StateRunning, "Passcode received. Resuming...")
	return code, nil
}
