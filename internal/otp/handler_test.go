package otp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/feedforge/harvester/internal/harvest"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestResolveWithoutChallenge(t *testing.T) {
	t.Parallel()

	h := NewHandler(fixedClock{now: time.Unix(100, 0)})
	err := h.Resolve("482913")
	require.ErrorIs(t, err, harvest.ErrNoChallenge)
}

func TestIssueThenResolveDeliversCode(t *testing.T) {
	t.Parallel()

	h := NewHandler(fixedClock{now: time.Unix(100, 0)})
	ch, err := h.Issue()
	require.NoError(t, err)
	require.True(t, h.Pending())
	require.Equal(t, time.Unix(100, 0), ch.IssuedAt())

	require.NoError(t, h.Resolve("482913"))
	require.False(t, h.Pending())

	code, err := ch.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "482913", code)

	// Challenge cleared: a second submission is stale.
	require.ErrorIs(t, h.Resolve("000000"), harvest.ErrNoChallenge)
}

func TestDoubleIssueConflicts(t *testing.T) {
	t.Parallel()

	h := NewHandler(fixedClock{now: time.Unix(100, 0)})
	_, err := h.Issue()
	require.NoError(t, err)
	_, err = h.Issue()
	require.ErrorIs(t, err, harvest.ErrConflict)
}

func TestWaitAbortsWithContext(t *testing.T) {
	t.Parallel()

	h := NewHandler(fixedClock{now: time.Unix(100, 0)})
	ch, err := h.Issue()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ch.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClearDropsChallenge(t *testing.T) {
	t.Parallel()

	h := NewHandler(fixedClock{now: time.Unix(100, 0)})
	_, err := h.Issue()
	require.NoError(t, err)
	h.Clear()
	require.False(t, h.Pending())
	require.ErrorIs(t, h.Resolve("482913"), harvest.ErrNoChallenge)

	// A fresh challenge can be issued after clearing.
	_, err = h.Issue()
	require.NoError(t, err)
}
