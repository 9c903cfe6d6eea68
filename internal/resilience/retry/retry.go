// Package retry provides retry backoff policies with exponential growth and jitter.
// It computes delay sequences for the request orchestrator; the orchestrator owns
// the retry loop itself because each attempt must re-acquire rate limiter admission.
package retry

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"flashcard-pipeline/internal/domain/entity"
)

// Config holds the configuration for a retry policy.
type Config struct {
	// MaxAttempts is the maximum number of call attempts (including the first).
	MaxAttempts int

	// InitialDelay is the base delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the pre-jitter delay between retries.
	MaxDelay time.Duration

	// Multiplier is the exponential backoff base.
	Multiplier float64

	// RetryClasses lists the error classes that are worth retrying.
	// Classes not listed short-circuit to failure without consuming attempts.
	RetryClasses []entity.ErrorClass
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		RetryClasses: []entity.ErrorClass{entity.ClassTransient},
	}
}

// InferenceConfig returns configuration optimized for AI inference API calls.
// Moderate retry due to cost considerations; rate-limit backpressure is also
// retried because the API supplies an explicit retry-after hint.
func InferenceConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		RetryClasses: []entity.ErrorClass{entity.ClassTransient, entity.ClassRateLimited},
	}
}

// DBConfig returns configuration optimized for database operations.
// Fast retry for transient connection issues.
func DBConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		RetryClasses: []entity.ErrorClass{entity.ClassTransient},
	}
}

// Validate checks the configuration and fails fast on invalid values.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("MaxAttempts must be >= 1, got %d", c.MaxAttempts)
	}
	if c.InitialDelay <= 0 {
		return fmt.Errorf("InitialDelay must be positive, got %s", c.InitialDelay)
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("MaxDelay %s must be >= InitialDelay %s", c.MaxDelay, c.InitialDelay)
	}
	if c.Multiplier < 1.0 {
		return fmt.Errorf("Multiplier must be >= 1.0, got %f", c.Multiplier)
	}
	return nil
}

// Policy computes backoff delays for a sequence of failed attempts.
// A Policy is stateless apart from its configuration and is safe for
// concurrent use by many workers.
type Policy struct {
	cfg Config
	// rand returns a uniform float64 in [0, 1); injectable for tests.
	rand func() float64
}

// NewPolicy creates a retry policy from the given configuration.
func NewPolicy(cfg Config) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("retry config: %w", err)
	}
	return &Policy{cfg: cfg, rand: rand.Float64}, nil
}

// InferencePolicy returns a ready-made policy for inference API calls.
func InferencePolicy() *Policy {
	p, _ := NewPolicy(InferenceConfig())
	return p
}

// MaxAttempts returns the configured attempt budget.
func (p *Policy) MaxAttempts() int {
	return p.cfg.MaxAttempts
}

// ShouldRetry reports whether the given error class is enabled for retry.
func (p *Policy) ShouldRetry(class entity.ErrorClass) bool {
	for _, c := range p.cfg.RetryClasses {
		if c == class {
			return true
		}
	}
	return false
}

// BaseDelay returns the pre-jitter delay for the given 0-based attempt index:
// min(initial * multiplier^attempt, max). The sequence is non-decreasing and
// bounded by MaxDelay.
func (p *Policy) BaseDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.cfg.InitialDelay) * math.Pow(p.cfg.Multiplier, float64(attempt))
	if d > float64(p.cfg.MaxDelay) {
		return p.cfg.MaxDelay
	}
	return time.Duration(d)
}

// Delay returns the jittered delay before the retry following the given
// 0-based attempt. The base delay is scaled by a factor drawn uniformly from
// [0.5, 1.0]; multiplicative jitter desynchronizes retry storms across many
// concurrent callers.
func (p *Policy) Delay(attempt int) time.Duration {
	base := p.BaseDelay(attempt)
	// #nosec G404 -- math/rand is acceptable for backoff jitter;
	// cryptographic randomness is not required.
	factor := 0.5 + 0.5*p.rand()
	return time.Duration(float64(base) * factor)
}
