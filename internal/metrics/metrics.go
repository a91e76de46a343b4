package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apisync_runs_total",
			Help: "Sync runs by job and final status",
		},
		[]string{"job", "status"},
	)

	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apisync_run_duration_seconds",
			Help:    "Duration of sync runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"job"},
	)

	SyncItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apisync_items_total",
			Help: "Items processed by outcome (new, updated, skipped, deleted, error)",
		},
		[]string{"job", "outcome"},
	)

	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apisync_fetch_requests_total",
			Help: "Remote list fetches by result (success, failure, rejected)",
		},
		[]string{"result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "apisync_circuit_breaker_state",
			Help: "Circuit breaker state per remote host (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	ImageFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apisync_image_fetches_total",
			Help: "Image downloads by result (stored, cached, failed)",
		},
		[]string{"result"},
	)

	TriggerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apisync_trigger_requests_total",
			Help: "External trigger calls by result",
		},
		[]string{"result"},
	)
)
