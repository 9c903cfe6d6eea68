package worker

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRun(t *testing.T) {
	before := testutil.ToFloat64(sharedMetrics.ReprocessRunsTotal.WithLabelValues("success"))

	sharedMetrics.RecordRun("success")
	sharedMetrics.RecordRun("success")
	sharedMetrics.RecordRun("failure")

	assert.Equal(t, before+2, testutil.ToFloat64(sharedMetrics.ReprocessRunsTotal.WithLabelValues("success")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(sharedMetrics.ReprocessRunsTotal.WithLabelValues("failure")), 1.0)
}

func TestRecordRecovered(t *testing.T) {
	before := testutil.ToFloat64(sharedMetrics.ReprocessRecoveredTotal)
	sharedMetrics.RecordRecovered(3)
	assert.Equal(t, before+3, testutil.ToFloat64(sharedMetrics.ReprocessRecoveredTotal))
}

func TestRecordLastSuccess(t *testing.T) {
	sharedMetrics.RecordLastSuccess()
	assert.Greater(t, testutil.ToFloat64(sharedMetrics.ReprocessLastSuccessTimestamp), 0.0)
}
