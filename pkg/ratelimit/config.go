package ratelimit

import (
	"fmt"
	"time"
)

// minShardCapacity is the minimum viable token capacity per shard. Shards
// smaller than this degenerate: a single request can drain them and the
// two-choice fallback stops helping.
const minShardCapacity = 10

// Config contains the configuration for a sharded rate limiter.
type Config struct {
	// RatePerSecond is the target aggregate refill rate across all shards.
	RatePerSecond float64

	// Burst is the aggregate token capacity across all shards.
	Burst int

	// Shards is the requested shard count. The effective count is derived
	// from Burst so every shard keeps at least minShardCapacity tokens,
	// rounded down to a power of two for cheap index masking.
	// Zero requests automatic sizing from Burst alone.
	Shards int

	// ReservationGrace is how long past its scheduled execute-at time a
	// reservation remains consumable before it expires.
	ReservationGrace time.Duration

	// Clock provides time operations for testing. Default: SystemClock.
	Clock Clock

	// Metrics records limiter activity. Default: NoopMetrics.
	Metrics Metrics
}

// DefaultConfig returns a Config with safe default values, sized for a
// typical per-minute inference API quota.
func DefaultConfig() Config {
	return Config{
		RatePerSecond:    1.0,
		Burst:            60,
		Shards:           4,
		ReservationGrace: 30 * time.Second,
	}
}

// Validate checks the configuration and fails fast on invalid values.
func (c Config) Validate() error {
	if c.RatePerSecond <= 0 {
		return fmt.Errorf("RatePerSecond must be positive, got %f", c.RatePerSecond)
	}
	if c.Burst < 1 {
		return fmt.Errorf("Burst must be >= 1, got %d", c.Burst)
	}
	if c.Shards < 0 {
		return fmt.Errorf("Shards must be non-negative, got %d", c.Shards)
	}
	if c.ReservationGrace < 0 {
		return fmt.Errorf("ReservationGrace must be non-negative, got %s", c.ReservationGrace)
	}
	return nil
}

// ApplyDefaults sets safe default values for any missing configuration values.
func (c *Config) ApplyDefaults() {
	if c.ReservationGrace == 0 {
		c.ReservationGrace = 30 * time.Second
	}
	if c.Clock == nil {
		c.Clock = &SystemClock{}
	}
	if c.Metrics == nil {
		c.Metrics = &NoopMetrics{}
	}
}

// effectiveShards derives the shard count from capacity and the requested
// count. More shards reduce lock contention at high QPS, but each shard must
// retain a minimum viable capacity to avoid degenerate behavior.
func (c Config) effectiveShards() int {
	maxShards := c.Burst / minShardCapacity
	if maxShards < 1 {
		maxShards = 1
	}

	requested := c.Shards
	if requested <= 0 {
		requested = maxShards
	}
	if requested > maxShards {
		requested = maxShards
	}

	// Round down to a power of two.
	shards := 1
	for shards*2 <= requested {
		shards *= 2
	}
	return shards
}
