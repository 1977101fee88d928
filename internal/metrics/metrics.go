// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// ActiveConnections tracks current active connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "Number of active connections",
		},
	)

	// AdmissionsTotal counts admission decisions by policy and outcome.
	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_admissions_total",
			Help: "Total number of admission decisions",
		},
		[]string{"policy", "outcome"},
	)

	// BlocksTotal counts lockouts applied after a budget was exhausted.
	BlocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_blocks_total",
			Help: "Total number of lockouts applied",
		},
		[]string{"policy"},
	)

	// RefundsTotal counts admissions refunded after their outcome was reported.
	RefundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_refunds_total",
			Help: "Total number of refunded admissions",
		},
		[]string{"policy", "outcome"},
	)

	// EvictionsTotal counts entries removed by the sweeper.
	EvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratelimit_evictions_total",
			Help: "Total number of idle entries evicted",
		},
	)

	// TrackedEntries reports the number of entries held after the last sweep.
	TrackedEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ratelimit_tracked_entries",
			Help: "Number of rate limit entries held in memory",
		},
	)

	// ThrottleDelay measures the delay imposed by the throttle in seconds.
	ThrottleDelay = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ratelimit_throttle_delay_seconds",
			Help:    "Delay imposed on throttled calls in seconds",
			Buckets: []float64{0, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// RateLimitedTotal counts HTTP requests rejected by the middleware.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Total number of rate-limited requests",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records an HTTP request metric.
func RecordRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAdmission records an admission decision.
func RecordAdmission(policy string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	AdmissionsTotal.WithLabelValues(policy, outcome).Inc()
}

// RecordBlock records a lockout.
func RecordBlock(policy string) {
	BlocksTotal.WithLabelValues(policy).Inc()
}

// RecordRefund records a refunded admission. outcome is "success" or "failure".
func RecordRefund(policy, outcome string) {
	RefundsTotal.WithLabelValues(policy, outcome).Inc()
}

// RecordSweep records a sweeper pass.
func RecordSweep(evicted, remaining int) {
	EvictionsTotal.Add(float64(evicted))
	TrackedEntries.Set(float64(remaining))
}

// RecordThrottleDelay records the delay imposed on a throttled call.
func RecordThrottleDelay(delay time.Duration) {
	ThrottleDelay.Observe(delay.Seconds())
}

// RecordRateLimited records a rate-limited request.
func RecordRateLimited() {
	RateLimitedTotal.Inc()
}
