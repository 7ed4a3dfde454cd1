// Package metrics exposes Prometheus collectors for the harvester service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvestJobsTotal           *prometheus.CounterVec
	harvestPostsTotal          prometheus.Counter
	otpChallengesTotal         prometheus.Counter
	generationsTotal           *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvestJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_jobs_total",
				Help: "Total number of scrape jobs finished, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		harvestPostsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_posts_total",
				Help: "Total number of posts captured across all sessions.",
			},
		)

		otpChallengesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_otp_challenges_total",
				Help: "Total number of passcode challenges raised by the engine.",
			},
		)

		generationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_generations_total",
				Help: "Total number of content generations, labeled by mode.",
			},
			[]string{"mode"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for the given terminal outcome.
func ObserveJob(outcome string) {
	harvestJobsTotal.WithLabelValues(outcome).Inc()
}

// ObservePosts adds captured posts to the running total.
func ObservePosts(count int) {
	if count > 0 {
		harvestPostsTotal.Add(float64(count))
	}
}

// ObserveChallenge increments the passcode challenge counter.
func ObserveChallenge() {
	otpChallengesTotal.Inc()
}

// ObserveGeneration increments the generation counter for the given mode.
func ObserveGeneration(mode string) {
	generationsTotal.WithLabelValues(mode).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
