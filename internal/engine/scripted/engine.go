// Package scripted provides a deterministic in-memory harvest engine for
// development and tests. It plays back a fixed sequence of progress lines
// and challenge pauses, then returns a canned result or error.
package scripted

import (
	"context"
	"fmt"
	"time"

	"github.com/feedforge/harvester/internal/harvest"
)

// Step is one playback action. Exactly one field should be set; a zero
// Step is skipped.
type Step struct {
	// Progress emits a progress line.
	Progress string
	// Challenge pauses the run for a passcode when true.
	Challenge bool
	// Delay sleeps before the next step (canceled with the run context).
	Delay time.Duration
}

// Engine implements harvest.Engine from a step script.
type Engine struct {
	// Steps are executed in order.
	Steps []Step
	// Result is returned after the final step when Err is nil.
	Result harvest.HarvestResult
	// Err, when set, fails the run after the final step.
	Err error
	// AcceptCode, when non-empty, re-raises each challenge until the
	// submitted code matches, mirroring an upstream rejection.
	AcceptCode string
}

// Run plays the script against the reporter.
func (e *Engine) Run(ctx context.Context, reporter harvest.Reporter) (harvest.HarvestResult, error) {
	for _, step := range e.Steps {
		if err := ctx.Err(); err != nil {
			return harvest.HarvestResult{}, fmt.Errorf("scripted run aborted: %w", err)
		}
		switch {
		case step.Progress != "":
			reporter.Progress(step.Progress)
		case step.Challenge:
			if err := e.awaitCode(ctx, reporter); err != nil {
				return harvest.HarvestResult{}, err
			}
		case step.Delay > 0:
			select {
			case <-time.After(step.Delay):
			case <-ctx.Done():
				return harvest.HarvestResult{}, fmt.Errorf("scripted run aborted: %w", ctx.Err())
			}
		}
	}
	if e.Err != nil {
		return harvest.HarvestResult{}, e.Err
	}
	return e.Result, nil
}

func (e *Engine) awaitCode(ctx context.Context, reporter harvest.Reporter) error {
	for {
		code, err := reporter.Challenge(ctx)
		if err != nil {
			return err
		}
		if e.AcceptCode == "" || code == e.AcceptCode {
			return nil
		}
		reporter.Progress("Passcode rejected. A new challenge was raised.")
	}
}

// NewDemo returns an engine that mimics a short feed harvest: a handful of
// progress lines and a twelve-post batch. Used by the service's dev mode.
func NewDemo() *Engine {
	posts := make([]harvest.Post, 0, 12)
	for i := 0; i < 12; i++ {
		posts = append(posts, harvest.Post{
			Author:  fmt.Sprintf("Demo Author %d", i+1),
			Content: fmt.Sprintf("Demo post %d: short punchy insight about shipping software.", i+1),
			Likes:   25 * (i + 1),
		})
	}
	return &Engine{
		Steps: []Step{
			{Progress: "Starting browser..."},
			{Progress: "Logging in..."},
			{Progress: "Login successful."},
			{Progress: "Loading feed..."},
			{Delay: 250 * time.Millisecond},
			{Progress: "Scanning... (6/12)"},
			{Delay: 250 * time.Millisecond},
			{Progress: "Scanning... (12/12)"},
		},
		Result: harvest.HarvestResult{Label: "Demo Feed", Posts: posts},
	}
}
