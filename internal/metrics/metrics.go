// Package metrics exposes Prometheus collectors for the HTTP layer and the
// note engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	NoteOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "note_operations_total",
			Help: "Total number of successful note operations",
		},
		[]string{"operation"}, // created, updated, deleted, restored, purged
	)

	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"status", "type"},
	)
)

// TrackNoteOperation increments the per-operation note counter.
func TrackNoteOperation(operation string) {
	NoteOperationsTotal.WithLabelValues(operation).Inc()
}

// TrackAuthAttempt records a sign-in/refresh attempt outcome.
func TrackAuthAttempt(status, authType string) {
	AuthAttemptsTotal.WithLabelValues(status, authType).Inc()
}
