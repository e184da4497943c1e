// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_cycles_completed_total",
			Help: "Total number of refresh cycles that committed a snapshot",
		},
		[]string{"trigger"},
	)

	CyclesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_cycles_failed_total",
			Help: "Total number of refresh cycles that aborted without a commit",
		},
		[]string{"trigger", "error_code"},
	)

	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregator_cycle_duration_seconds",
			Help:    "Duration of one refresh cycle",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"state"},
	)

	SourceFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_source_fetch_failures_total",
			Help: "Source adapter fetches that failed or timed out",
		},
		[]string{"source"},
	)

	ItemsNormalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_items_normalized_total",
			Help: "Raw items successfully normalized per source",
		},
		[]string{"source"},
	)

	ItemsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_items_dropped_total",
			Help: "Raw items dropped during normalization per source",
		},
		[]string{"source"},
	)

	ScoreCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scorer_cache_hits_total",
			Help: "Items whose cached score was reused without an external call",
		},
	)

	ScoreCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scorer_cache_misses_total",
			Help: "Items that required an external scoring call",
		},
	)

	ScoringFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scorer_failures_total",
			Help: "Items that could not be scored after exhausting retries",
		},
		[]string{"error_code"},
	)

	TriggersDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_triggers_dropped_total",
			Help: "Refresh triggers ignored because a cycle was already running",
		},
	)
)
