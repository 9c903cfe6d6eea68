package cache

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// EvictionPolicy selects how the fast tier evicts entries at capacity.
type EvictionPolicy string

const (
	// EvictLRU evicts the least recently used entry.
	EvictLRU EvictionPolicy = "lru"

	// EvictLFU evicts the least frequently used entry.
	EvictLFU EvictionPolicy = "lfu"

	// EvictTTL gives every entry a jittered lifetime and evicts the entry
	// closest to expiry when the tier is full.
	EvictTTL EvictionPolicy = "ttl"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock uses the real time.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Config holds tiered cache settings.
type Config struct {
	// FastCapacity is the maximum number of entries in the fast tier.
	FastCapacity int

	// Eviction selects the fast-tier eviction policy.
	Eviction EvictionPolicy

	// TTL is the base entry lifetime for the ttl policy. Ignored by lru/lfu.
	TTL time.Duration

	// TTLJitterPct spreads actual lifetimes in [TTL*(1-p), TTL*(1+p)] so
	// entries written together do not expire together. Range [0, 1).
	TTLJitterPct float64

	// CompressionThreshold is the minimum payload size in bytes before the
	// persistent tier attempts gzip compression. Zero disables compression.
	CompressionThreshold int

	// Clock supplies time; defaults to SystemClock.
	Clock Clock

	// Logger receives warnings for non-fatal persistence failures.
	// Defaults to slog.Default().
	Logger *slog.Logger

	// rand yields jitter samples in [0, 1); injectable for tests.
	rand func() float64
}

// DefaultConfig returns production cache settings: a 1000-entry LRU fast
// tier with compression for payloads over 1 KiB.
func DefaultConfig() Config {
	return Config{
		FastCapacity:         1000,
		Eviction:             EvictLRU,
		TTL:                  time.Hour,
		TTLJitterPct:         0.1,
		CompressionThreshold: 1024,
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.FastCapacity <= 0 {
		return fmt.Errorf("fast capacity must be positive, got %d", c.FastCapacity)
	}
	switch c.Eviction {
	case EvictLRU, EvictLFU:
	case EvictTTL:
		if c.TTL <= 0 {
			return fmt.Errorf("ttl policy requires a positive ttl, got %s", c.TTL)
		}
		if c.TTLJitterPct < 0 || c.TTLJitterPct >= 1 {
			return fmt.Errorf("ttl jitter must be in [0, 1), got %f", c.TTLJitterPct)
		}
	default:
		return fmt.Errorf("unknown eviction policy %q", c.Eviction)
	}
	if c.CompressionThreshold < 0 {
		return fmt.Errorf("compression threshold must not be negative, got %d", c.CompressionThreshold)
	}
	return nil
}

// ApplyDefaults fills optional fields.
func (c *Config) ApplyDefaults() {
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.rand == nil {
		c.rand = rand.Float64 // #nosec G404 -- jitter, not security
	}
}

// jitteredTTL returns the base TTL spread by the configured jitter.
func (c *Config) jitteredTTL() time.Duration {
	if c.TTLJitterPct == 0 {
		return c.TTL
	}
	// Sample uniformly in [1-p, 1+p].
	factor := 1 + c.TTLJitterPct*(2*c.rand()-1)
	return time.Duration(float64(c.TTL) * factor)
}
