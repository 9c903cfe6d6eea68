package config

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// One shared instance: promauto registers with the default registry, so a
// second NewConfigMetrics with the same component name would panic.
var testMetrics = NewConfigMetrics("config_test")

func TestConfigMetricsRecording(t *testing.T) {
	testMetrics.RecordValidationError("cron_schedule")
	testMetrics.RecordValidationError("cron_schedule")
	testMetrics.RecordValidationError("timezone")
	assert.Equal(t, 2.0, testutil.ToFloat64(testMetrics.ValidationErrorsTotal.WithLabelValues("cron_schedule")))
	assert.Equal(t, 1.0, testutil.ToFloat64(testMetrics.ValidationErrorsTotal.WithLabelValues("timezone")))

	testMetrics.RecordFallback("cron_schedule", "default")
	assert.Equal(t, 1.0, testutil.ToFloat64(testMetrics.FallbacksTotal.WithLabelValues("cron_schedule")))
}

func TestConfigMetricsFallbackActive(t *testing.T) {
	testMetrics.SetFallbackActive("", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(testMetrics.FallbackActive))

	testMetrics.SetFallbackActive("", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(testMetrics.FallbackActive))
}

func TestConfigMetricsLoadTimestamp(t *testing.T) {
	testMetrics.RecordLoadTimestamp()
	assert.Greater(t, testutil.ToFloat64(testMetrics.LoadTimestamp), 0.0)
}
