package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Action metrics
	ActionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miniswap_action_transitions_total",
			Help: "Total number of action state transitions",
		},
		[]string{"kind", "state"},
	)

	ActionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miniswap_actions_rejected_total",
			Help: "Total number of actions rejected before reaching the ledger",
		},
		[]string{"kind", "reason"},
	)

	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "miniswap_action_duration_seconds",
			Help:    "Time from acceptance to terminal state",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"kind", "state"},
	)

	// Session metrics
	Reloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miniswap_reloads_total",
			Help: "Total number of mirror reloads by outcome",
		},
		[]string{"outcome"},
	)

	ReloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "miniswap_reload_duration_seconds",
		Help:    "Mirror reload duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	SnapshotBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "miniswap_snapshot_block",
		Help: "Block number of the last committed pool snapshot",
	})

	// Quote metrics
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "miniswap_quote_requests_total",
			Help: "Total number of quote requests",
		},
		[]string{"kind", "status"},
	)
)

// Reload outcomes.
const (
	ReloadCommitted = "committed"
	ReloadStale     = "stale"
	ReloadFailed    = "failed"
	ReloadCleared   = "cleared"
)
