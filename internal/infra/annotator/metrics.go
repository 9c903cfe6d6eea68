package annotator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AnnotationMetricsRecorder records per-stage annotation call metrics.
// The interface keeps the backends testable without a Prometheus registry
// and reusable across providers.
type AnnotationMetricsRecorder interface {
	// RecordDuration records the time taken by one annotation API call.
	RecordDuration(stage string, duration time.Duration)

	// RecordSuccess increments the success counter for a stage.
	RecordSuccess(stage string)

	// RecordFailure increments the failure counter for a stage.
	RecordFailure(stage string)
}

// PrometheusAnnotationMetrics is the production AnnotationMetricsRecorder.
type PrometheusAnnotationMetrics struct {
	durationHistogram *prometheus.HistogramVec
	successCounter    *prometheus.CounterVec
	failureCounter    *prometheus.CounterVec
}

var (
	prometheusMetricsInstance *PrometheusAnnotationMetrics
	prometheusMetricsOnce     sync.Once
)

// NewPrometheusAnnotationMetrics creates the Prometheus-based recorder.
// Uses a singleton to avoid duplicate metric registration in tests.
func NewPrometheusAnnotationMetrics() *PrometheusAnnotationMetrics {
	prometheusMetricsOnce.Do(func() {
		prometheusMetricsInstance = &PrometheusAnnotationMetrics{
			durationHistogram: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "annotation_call_duration_seconds",
				Help:    "Time taken by one annotation API call",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			}, []string{"stage"}),
			successCounter: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "annotation_calls_total",
				Help: "Total successful annotation API calls per stage",
			}, []string{"stage"}),
			failureCounter: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "annotation_call_failures_total",
				Help: "Total failed annotation API calls per stage",
			}, []string{"stage"}),
		}
	})
	return prometheusMetricsInstance
}

// RecordDuration implements AnnotationMetricsRecorder.
func (p *PrometheusAnnotationMetrics) RecordDuration(stage string, duration time.Duration) {
	p.durationHistogram.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordSuccess implements AnnotationMetricsRecorder.
func (p *PrometheusAnnotationMetrics) RecordSuccess(stage string) {
	p.successCounter.WithLabelValues(stage).Inc()
}

// RecordFailure implements AnnotationMetricsRecorder.
func (p *PrometheusAnnotationMetrics) RecordFailure(stage string) {
	p.failureCounter.WithLabelValues(stage).Inc()
}

// nopMetrics discards all recordings; used by tests and the noop annotator.
type nopMetrics struct{}

func (nopMetrics) RecordDuration(string, time.Duration) {}
func (nopMetrics) RecordSuccess(string)                 {}
func (nopMetrics) RecordFailure(string)                 {}
