package ratelimit

// NoopMetrics is a Metrics implementation that discards all measurements.
// It is the default when no metrics backend is configured and keeps tests
// free of Prometheus registry state.
type NoopMetrics struct{}

// RecordAllowed does nothing.
func (m *NoopMetrics) RecordAllowed(shard int) {}

// RecordDenied does nothing.
func (m *NoopMetrics) RecordDenied() {}

// RecordReservationCreated does nothing.
func (m *NoopMetrics) RecordReservationCreated() {}

// RecordReservationExpired does nothing.
func (m *NoopMetrics) RecordReservationExpired() {}

// SetShardTokens does nothing.
func (m *NoopMetrics) SetShardTokens(shard int, tokens float64) {}
