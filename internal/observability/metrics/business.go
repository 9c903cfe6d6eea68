package metrics

import (
	"time"
)

// RecordItemProcessed records the outcome of one processed work item.
// Outcome should be one of "success", "cached", "quarantined", "failed".
func RecordItemProcessed(outcome string) {
	ItemsProcessedTotal.WithLabelValues(outcome).Inc()
}

// RecordStageDuration records the time taken by one annotation stage.
func RecordStageDuration(stage string, duration time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordBatchDuration records the end-to-end duration of a batch run.
func RecordBatchDuration(duration time.Duration) {
	BatchDuration.Observe(duration.Seconds())
}

// UpdateQuarantineSize updates the quarantine size gauge.
// This gauge should be updated after every batch and reprocessing run.
func UpdateQuarantineSize(count int) {
	QuarantineSize.Set(float64(count))
}

// UpdateFlashcardsTotal updates the total count of stored flashcards.
func UpdateFlashcardsTotal(count int64) {
	FlashcardsTotal.Set(float64(count))
}

// RecordCacheLookup records one cache lookup by result tier.
// Result should be one of "fast_hit", "persistent_hit", "miss".
func RecordCacheLookup(result string) {
	CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordCacheWriteFailure increments the persistent cache write failure counter.
func RecordCacheWriteFailure() {
	CacheWriteFailuresTotal.Inc()
}

// UpdateBreakerState sets the state gauge for a circuit: the active state
// reads 1 and all others 0, so dashboards can group by state label.
func UpdateBreakerState(circuit, active string) {
	for _, state := range []string{"closed", "open", "half-open", "isolated"} {
		v := 0.0
		if state == active {
			v = 1.0
		}
		BreakerState.WithLabelValues(circuit, state).Set(v)
	}
}
