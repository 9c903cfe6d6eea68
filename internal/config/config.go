// Package config loads the application configuration for the pipeline and
// worker binaries. Settings come from an optional YAML file with environment
// variable overrides for the deployment-specific values (database URL,
// provider selection, API keys).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"flashcard-pipeline/internal/cache"
	"flashcard-pipeline/internal/resilience/circuitbreaker"
	"flashcard-pipeline/internal/resilience/retry"
	"flashcard-pipeline/internal/usecase/orchestrate"
	"flashcard-pipeline/internal/usecase/pipeline"
	"flashcard-pipeline/pkg/ratelimit"
)

// Duration wraps time.Duration so YAML values can be written as "30s" or
// "5m" instead of nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// AppConfig is the full configuration surface of the pipeline binaries.
type AppConfig struct {
	// DatabaseURL selects the persistent store: postgres:// DSNs open pgx,
	// anything else opens an embedded sqlite file.
	DatabaseURL string `yaml:"database_url"`

	// Provider selects the annotation backend: "claude", "openai" or "noop".
	Provider string `yaml:"provider"`

	// Parallelism bounds concurrent item processing in a batch.
	Parallelism int `yaml:"parallelism"`

	// MetricsPort serves /metrics and /healthz for the pipeline binary.
	MetricsPort int `yaml:"metrics_port"`

	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Breaker      BreakerConfig      `yaml:"breaker"`
	Retry        RetryConfig        `yaml:"retry"`
	Cache        CacheConfig        `yaml:"cache"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

// RateLimitConfig configures the sharded token bucket limiter.
type RateLimitConfig struct {
	RatePerSecond    float64  `yaml:"rate_per_second"`
	Burst            int      `yaml:"burst"`
	Shards           int      `yaml:"shards"`
	ReservationGrace Duration `yaml:"reservation_grace"`
}

// ToLimiter converts to the limiter package's configuration.
func (c RateLimitConfig) ToLimiter() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	cfg.RatePerSecond = c.RatePerSecond
	cfg.Burst = c.Burst
	cfg.Shards = c.Shards
	if c.ReservationGrace > 0 {
		cfg.ReservationGrace = c.ReservationGrace.Std()
	}
	return cfg
}

// BreakerConfig configures the annotation-call circuit breaker.
type BreakerConfig struct {
	WindowSize        int      `yaml:"window_size"`
	FailureThreshold  float64  `yaml:"failure_threshold"`
	MinThroughput     int      `yaml:"min_throughput"`
	HalfOpenMaxProbes int      `yaml:"half_open_max_probes"`
	HalfOpenSuccesses int      `yaml:"half_open_successes"`
	BreakInitial      Duration `yaml:"break_initial"`
	BreakMax          Duration `yaml:"break_max"`
}

// ToBreaker converts to the circuit breaker package's configuration.
func (c BreakerConfig) ToBreaker(name string) circuitbreaker.Config {
	cfg := circuitbreaker.InferenceConfig(name)
	cfg.WindowSize = c.WindowSize
	cfg.FailureThreshold = c.FailureThreshold
	cfg.MinThroughput = c.MinThroughput
	cfg.HalfOpenMaxProbes = c.HalfOpenMaxProbes
	cfg.HalfOpenSuccesses = c.HalfOpenSuccesses
	cfg.Break = circuitbreaker.ExponentialBreak(c.BreakInitial.Std(), c.BreakMax.Std())
	return cfg
}

// RetryConfig configures the retry backoff policy.
type RetryConfig struct {
	MaxAttempts  int      `yaml:"max_attempts"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
	Multiplier   float64  `yaml:"multiplier"`
}

// ToRetry converts to the retry package's configuration, keeping the
// inference retry classes (transient and rate-limited).
func (c RetryConfig) ToRetry() retry.Config {
	cfg := retry.InferenceConfig()
	cfg.MaxAttempts = c.MaxAttempts
	cfg.InitialDelay = c.InitialDelay.Std()
	cfg.MaxDelay = c.MaxDelay.Std()
	cfg.Multiplier = c.Multiplier
	return cfg
}

// CacheConfig configures the fast tier of the result cache.
type CacheConfig struct {
	FastCapacity         int      `yaml:"fast_capacity"`
	Eviction             string   `yaml:"eviction"` // lru, lfu or ttl
	TTL                  Duration `yaml:"ttl"`
	TTLJitterPct         float64  `yaml:"ttl_jitter_pct"`
	CompressionThreshold int      `yaml:"compression_threshold"`
}

// ToCache converts to the cache package's configuration.
func (c CacheConfig) ToCache() (cache.Config, error) {
	cfg := cache.DefaultConfig()
	cfg.FastCapacity = c.FastCapacity
	cfg.TTL = c.TTL.Std()
	cfg.TTLJitterPct = c.TTLJitterPct
	cfg.CompressionThreshold = c.CompressionThreshold

	switch c.Eviction {
	case "lru":
		cfg.Eviction = cache.EvictLRU
	case "lfu":
		cfg.Eviction = cache.EvictLFU
	case "ttl":
		cfg.Eviction = cache.EvictTTL
	default:
		return cache.Config{}, fmt.Errorf("unknown eviction policy %q (want lru, lfu or ttl)", c.Eviction)
	}
	return cfg, nil
}

// OrchestratorConfig configures per-call timeouts and admission waits.
type OrchestratorConfig struct {
	CallTimeout      Duration `yaml:"call_timeout"`
	MaxAdmissionWait Duration `yaml:"max_admission_wait"`
}

// ToOrchestrator converts to the orchestrator package's configuration.
func (c OrchestratorConfig) ToOrchestrator(name string) orchestrate.Config {
	cfg := orchestrate.DefaultConfig(name)
	cfg.CallTimeout = c.CallTimeout.Std()
	cfg.MaxAdmissionWait = c.MaxAdmissionWait.Std()
	return cfg
}

// ToPipeline converts to the pipeline service's configuration.
func (c *AppConfig) ToPipeline() pipeline.Config {
	return pipeline.Config{Parallelism: c.Parallelism}
}

// Default returns the production defaults; Load starts from these so a
// missing file or sparse YAML still yields a runnable configuration.
func Default() *AppConfig {
	return &AppConfig{
		DatabaseURL: "flashcards.db",
		Provider:    "claude",
		Parallelism: 5,
		MetricsPort: 9090,
		RateLimit: RateLimitConfig{
			RatePerSecond:    1.0,
			Burst:            60,
			Shards:           4,
			ReservationGrace: Duration(30 * time.Second),
		},
		Breaker: BreakerConfig{
			WindowSize:        10,
			FailureThreshold:  0.5,
			MinThroughput:     3,
			HalfOpenMaxProbes: 1,
			HalfOpenSuccesses: 2,
			BreakInitial:      Duration(10 * time.Second),
			BreakMax:          Duration(2 * time.Minute),
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: Duration(2 * time.Second),
			MaxDelay:     Duration(10 * time.Second),
			Multiplier:   2.0,
		},
		Cache: CacheConfig{
			FastCapacity:         1000,
			Eviction:             "lru",
			TTL:                  Duration(time.Hour),
			TTLJitterPct:         0.1,
			CompressionThreshold: 1024,
		},
		Orchestrator: OrchestratorConfig{
			CallTimeout:      Duration(60 * time.Second),
			MaxAdmissionWait: Duration(30 * time.Second),
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment overrides, in that order of precedence (env wins).
//
// Environment overrides:
//   - DATABASE_URL: database DSN
//   - ANNOTATION_PROVIDER: claude, openai or noop
//   - PIPELINE_PARALLELISM: integer >= 1
//   - METRICS_PORT: integer 1024-65535
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("ANNOTATION_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("PIPELINE_PARALLELISM"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return nil, fmt.Errorf("invalid PIPELINE_PARALLELISM %q", v)
		}
		cfg.Parallelism = n
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return nil, fmt.Errorf("invalid METRICS_PORT %q", v)
		}
		cfg.MetricsPort = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the top-level fields; section configs are validated again
// by their owning packages at construction time.
func (c *AppConfig) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url must not be empty")
	}
	switch c.Provider {
	case "claude", "openai", "noop":
	default:
		return fmt.Errorf("unknown provider %q (want claude, openai or noop)", c.Provider)
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be >= 1, got %d", c.Parallelism)
	}
	if c.MetricsPort < 1024 || c.MetricsPort > 65535 {
		return fmt.Errorf("metrics_port must be in 1024-65535, got %d", c.MetricsPort)
	}
	return nil
}
