// Package metrics holds the Prometheus collectors exported by the relay
// server and the chi middleware that records HTTP request metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "searchrelay"

// Relay metrics.
var (
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently connected sessions",
		},
	)

	SessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions opened",
		},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of search queries by outcome",
		},
		[]string{"outcome"}, // completed / failed / cancelled / rejected
	)

	ItemsEmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_emitted_total",
			Help:      "Total number of result items emitted to clients",
		},
	)

	SearchErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_errors_total",
			Help:      "Total number of failed collaborator lookups",
		},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Collaborator lookup duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	UpstreamCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_cache_total",
			Help:      "Upstream response cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

// Query outcomes used as QueriesTotal label values.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeRejected  = "rejected"
)

var registerOnce sync.Once

// Register registers all relay collectors with reg. Must be called once from main;
// later calls are no-ops.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			SessionsActive,
			SessionsTotal,
			QueriesTotal,
			ItemsEmittedTotal,
			SearchErrorsTotal,
			SearchDuration,
			UpstreamCacheTotal,
			httpRequestDuration,
			httpRequestsTotal,
		)
	})
}
