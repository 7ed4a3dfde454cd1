package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Reset collectors for testing purposes.
	harvestJobsTotal = nil
	harvestPostsTotal = nil
	otpChallengesTotal = nil
	generationsTotal = nil
	httpRequestsTotal = nil
	httpRequestDurationSeconds = nil

	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if harvestJobsTotal == nil || harvestPostsTotal == nil ||
		otpChallengesTotal == nil || generationsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveJob("completed")
	if val := testutil.ToFloat64(harvestJobsTotal.WithLabelValues("completed")); val != 1 {
		t.Errorf("Expected harvestJobsTotal{completed} to be 1, got %f", val)
	}

	ObservePosts(12)
	ObservePosts(0)
	if val := testutil.ToFloat64(harvestPostsTotal); val != 12 {
		t.Errorf("Expected harvestPostsTotal to be 12, got %f", val)
	}

	ObserveChallenge()
	if val := testutil.ToFloat64(otpChallengesTotal); val != 1 {
		t.Errorf("Expected otpChallengesTotal to be 1, got %f", val)
	}
}
