// Package metrics provides centralized Prometheus metrics for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics track batch processing outcomes
var (
	// ItemsProcessedTotal counts processed work items by outcome
	ItemsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_items_processed_total",
			Help: "Total number of work items processed",
		},
		[]string{"outcome"}, // outcome: success, cached, quarantined, failed
	)

	// StageDuration measures per-stage processing duration
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Time taken by one annotation stage for one item",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"stage"},
	)

	// BatchDuration measures end-to-end batch duration
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_batch_duration_seconds",
			Help:    "End-to-end duration of one batch run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// QuarantineSize tracks the current number of quarantined items
	QuarantineSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_quarantine_size",
			Help: "Current number of quarantined work items",
		},
	)

	// FlashcardsTotal tracks the total number of stored flashcards
	FlashcardsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_flashcards_total",
			Help: "Total number of flashcards in the database",
		},
	)
)

// Cache metrics track tiered cache effectiveness
var (
	// CacheLookupsTotal counts cache lookups by tier outcome
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_cache_lookups_total",
			Help: "Total cache lookups by result tier",
		},
		[]string{"result"}, // result: fast_hit, persistent_hit, miss
	)

	// CacheWriteFailuresTotal counts persistent cache write failures
	CacheWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_cache_write_failures_total",
			Help: "Total persistent cache write failures",
		},
	)
)

// Circuit breaker metrics track breaker health
var (
	// BreakerState exposes the current breaker state as a labeled gauge
	// (1 for the active state, 0 otherwise).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_breaker_state",
			Help: "Circuit breaker state (1 = active state)",
		},
		[]string{"circuit", "state"},
	)
)
