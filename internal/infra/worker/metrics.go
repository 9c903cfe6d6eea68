package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"flashcard-pipeline/internal/pkg/config"
)

// WorkerMetrics tracks scheduled reprocessing runs. It embeds the shared
// ConfigMetrics so configuration fallbacks in the worker binary surface under
// the worker_config_* prefix.
type WorkerMetrics struct {
	*config.ConfigMetrics

	// ReprocessRunsTotal counts reprocessing runs by status (success/failure).
	ReprocessRunsTotal *prometheus.CounterVec

	// ReprocessDurationSeconds measures end-to-end run duration.
	ReprocessDurationSeconds prometheus.Histogram

	// ReprocessRecoveredTotal counts items recovered out of quarantine
	// across all runs.
	ReprocessRecoveredTotal prometheus.Counter

	// ReprocessLastSuccessTimestamp is the Unix timestamp of the last
	// successful run. A stale value here is the primary alerting signal
	// for a wedged worker.
	ReprocessLastSuccessTimestamp prometheus.Gauge
}

// NewWorkerMetrics creates the worker metric set. Metrics register with the
// default Prometheus registry via promauto on creation.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		ReprocessRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_reprocess_runs_total",
			Help: "Total number of quarantine reprocessing runs by status",
		}, []string{"status"}),

		ReprocessDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_reprocess_duration_seconds",
			Help:    "Duration of quarantine reprocessing runs in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800},
		}),

		ReprocessRecoveredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worker_reprocess_recovered_total",
			Help: "Total number of items recovered from quarantine",
		}),

		ReprocessLastSuccessTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_reprocess_last_success_timestamp",
			Help: "Unix timestamp of the last successful reprocessing run",
		}),
	}
}

// RecordRun increments the run counter; status is "success" or "failure".
func (m *WorkerMetrics) RecordRun(status string) {
	m.ReprocessRunsTotal.WithLabelValues(status).Inc()
}

// RecordRunDuration observes one run's duration in seconds.
func (m *WorkerMetrics) RecordRunDuration(seconds float64) {
	m.ReprocessDurationSeconds.Observe(seconds)
}

// RecordRecovered adds the number of items a run pulled out of quarantine.
func (m *WorkerMetrics) RecordRecovered(count int64) {
	m.ReprocessRecoveredTotal.Add(float64(count))
}

// RecordLastSuccess marks the current time as the last successful run.
func (m *WorkerMetrics) RecordLastSuccess() {
	m.ReprocessLastSuccessTimestamp.SetToCurrentTime()
}
