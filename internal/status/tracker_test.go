package status

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feedforge/harvester/internal/harvest"
)

func TestTrackerStartsIdle(t *testing.T) {
	t.Parallel()

	tr := NewTracker(10)
	snap := tr.Snapshot()
	require.Equal(t, harvest.StateIdle, snap.State)
	require.Equal(t, "Ready", snap.Message)
	require.Empty(t, snap.Logs)
}

func TestTrackerSetStateAppendsMessage(t *testing.T) {
	t.Parallel()

	tr := NewTracker(10)
	tr.SetState(harvest.StateRunning, "Starting browser...")
	snap := tr.Snapshot()
	require.Equal(t, harvest.StateRunning, snap.State)
	require.Equal(t, "Starting browser...", snap.Message)
	require.Equal(t, []string{"Starting browser..."}, snap.Logs)
}

func TestTrackerSetStateWithoutMessageKeepsLog(t *testing.T) {
	t.Parallel()

	tr := NewTracker(10)
	tr.Append("line one")
	tr.SetState(harvest.StateWaitingOTP, "")
	snap := tr.Snapshot()
	require.Equal(t, harvest.StateWaitingOTP, snap.State)
	require.Equal(t, "line one", snap.Message)
	require.Equal(t, []string{"line one"}, snap.Logs)
}

func TestTrackerLogBoundedAndOrdered(t *testing.T) {
	t.Parallel()

	tr := NewTracker(3)
	for i := 0; i < 7; i++ {
		tr.Append(fmt.Sprintf("line %d", i))
	}
	snap := tr.Snapshot()
	require.Equal(t, []string{"line 4", "line 5", "line 6"}, snap.Logs)
	require.Equal(t, "line 6", snap.Message)
}

func TestTrackerReset(t *testing.T) {
	t.Parallel()

	tr := NewTracker(10)
	tr.SetState(harvest.StateError, "login failed")
	tr.Reset()
	snap := tr.Snapshot()
	require.Equal(t, harvest.StateIdle, snap.State)
	require.Equal(t, "Ready", snap.Message)
	require.Empty(t, snap.Logs)
}

func TestTrackerSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	tr := NewTracker(10)
	tr.Append("original")
	snap := tr.Snapshot()
	snap.Logs[0] = "mutated"
	require.Equal(t, []string{"original"}, tr.Snapshot().Logs)
}

func TestTrackerConcurrentReadersAndWriter(t *testing.T) {
	t.Parallel()

	tr := NewTracker(20)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			tr.Append(fmt.Sprintf("line %d", i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			snap := tr.Snapshot()
			require.LessOrEqual(t, len(snap.Logs), 20)
		}
	}()
	wg.Wait()
}
