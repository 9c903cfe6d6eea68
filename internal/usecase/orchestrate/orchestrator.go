// Package orchestrate coordinates a single external API call through the
// full resilience stack: cache lookup, circuit breaker admission, rate
// limiter admission, the call itself with a per-call timeout, and classified
// retries with jittered backoff. It is the only place these layers compose;
// each layer stays unaware of the others.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"flashcard-pipeline/internal/cache"
	"flashcard-pipeline/internal/domain/entity"
	"flashcard-pipeline/internal/resilience/circuitbreaker"
	"flashcard-pipeline/internal/resilience/retry"
	"flashcard-pipeline/pkg/ratelimit"
)

// CallFunc performs one raw API call. The returned bytes must be the
// canonical serialization of the result, suitable for cache storage.
type CallFunc func(ctx context.Context) ([]byte, error)

// Config holds orchestrator settings.
type Config struct {
	// Name labels the orchestrator in logs.
	Name string

	// CallTimeout bounds each individual call attempt.
	CallTimeout time.Duration

	// MaxAdmissionWait bounds how long one attempt may wait for rate
	// limiter capacity via a reservation before the attempt counts as
	// rate-limited.
	MaxAdmissionWait time.Duration

	// Clock provides time; defaults to the system clock.
	Clock ratelimit.Clock

	// Sleep waits for a backoff or reservation delay, honoring context
	// cancellation. Injectable for tests; defaults to a timer-based wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns production orchestrator settings.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		CallTimeout:      60 * time.Second,
		MaxAdmissionWait: 30 * time.Second,
	}
}

// Validate checks the configuration and fails fast on invalid values.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("Name must not be empty")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("CallTimeout must be positive, got %s", c.CallTimeout)
	}
	if c.MaxAdmissionWait < 0 {
		return fmt.Errorf("MaxAdmissionWait must not be negative, got %s", c.MaxAdmissionWait)
	}
	return nil
}

// ApplyDefaults fills optional fields.
func (c *Config) ApplyDefaults() {
	if c.Clock == nil {
		c.Clock = &ratelimit.SystemClock{}
	}
	if c.Sleep == nil {
		c.Sleep = sleepWithContext
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Orchestrator drives calls through cache, breaker, limiter, and retry.
type Orchestrator struct {
	cfg     Config
	cache   *cache.TieredCache
	breaker *circuitbreaker.Breaker
	limiter *ratelimit.ShardedLimiter
	policy  *retry.Policy
}

// New creates an orchestrator over the given resilience components.
func New(cfg Config, c *cache.TieredCache, b *circuitbreaker.Breaker, l *ratelimit.ShardedLimiter, p *retry.Policy) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator config: %w", err)
	}
	cfg.ApplyDefaults()

	return &Orchestrator{
		cfg:     cfg,
		cache:   c,
		breaker: b,
		limiter: l,
		policy:  p,
	}, nil
}

// Do returns the result for key, from cache when possible. On a cache miss
// the call is attempted under the resilience stack; concurrent misses for
// the same key share one attempt sequence. The cached flag reports whether
// the value was served from cache.
//
// When retries were attempted and every one failed, the returned error is a
// RetriesExhaustedError carrying the per-attempt history for quarantine
// storage. A non-retryable failure on the first attempt is returned
// classified as-is, since no retry budget was spent.
func (o *Orchestrator) Do(ctx context.Context, key cache.Key, limitKey string, call CallFunc) ([]byte, bool, error) {
	return o.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		return o.callWithRetry(ctx, key, limitKey, call)
	})
}

// callWithRetry runs the admission-call-classify loop up to the attempt
// budget.
func (o *Orchestrator) callWithRetry(ctx context.Context, key cache.Key, limitKey string, call CallFunc) ([]byte, error) {
	var (
		attempts []entity.AttemptRecord
		lastErr  error
	)

	for attempt := 0; attempt < o.policy.MaxAttempts(); attempt++ {
		var delay time.Duration
		if attempt > 0 {
			delay = o.backoffDelay(attempt, lastErr)
			slog.InfoContext(ctx, "retrying call",
				slog.String("orchestrator", o.cfg.Name),
				slog.String("key", key.String()),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			if err := o.cfg.Sleep(ctx, delay); err != nil {
				return nil, entity.NewPermanent(err)
			}
		}

		value, err := o.attempt(ctx, limitKey, call)
		if err == nil {
			return value, nil
		}
		lastErr = err
		attempts = append(attempts, entity.AttemptRecord{Attempt: attempt, Delay: delay, Err: err})

		class := entity.Classify(err)
		if !o.policy.ShouldRetry(class) {
			slog.WarnContext(ctx, "call failed terminally",
				slog.String("orchestrator", o.cfg.Name),
				slog.String("key", key.String()),
				slog.String("class", class.String()),
				slog.String("error", err.Error()))
			if attempt == 0 {
				// No retry budget was spent; surface the classified error
				// as-is instead of wrapping it in an exhaustion report.
				return nil, err
			}
			return nil, &entity.RetriesExhaustedError{Attempts: attempts, LastErr: err}
		}
	}

	slog.WarnContext(ctx, "retry budget exhausted",
		slog.String("orchestrator", o.cfg.Name),
		slog.String("key", key.String()),
		slog.Int("attempts", len(attempts)))
	return nil, &entity.RetriesExhaustedError{Attempts: attempts, LastErr: lastErr}
}

// attempt performs one admission-guarded call.
//
// Order matters: the breaker is consulted before the limiter so an open
// circuit rejects without consuming tokens, but the probe-claiming admission
// happens inside Execute, after tokens are committed, so a limiter denial
// can never leak a half-open probe slot.
func (o *Orchestrator) attempt(ctx context.Context, limitKey string, call CallFunc) ([]byte, error) {
	if err := o.precheckBreaker(); err != nil {
		return nil, err
	}

	if err := o.acquireAdmission(ctx, limitKey); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	var value []byte
	err := o.breaker.Execute(func() error {
		v, callErr := call(callCtx)
		value = v
		return callErr
	})
	if err != nil {
		switch {
		case errors.Is(err, circuitbreaker.ErrOpen),
			errors.Is(err, circuitbreaker.ErrIsolated),
			errors.Is(err, circuitbreaker.ErrTooManyProbes):
			return nil, entity.NewUnavailable(err)
		}
		return nil, err
	}
	return value, nil
}

// precheckBreaker rejects fast while the circuit is open or isolated,
// without claiming a probe slot or consuming limiter tokens. A circuit whose
// break has elapsed passes the precheck and transitions inside Execute.
func (o *Orchestrator) precheckBreaker() error {
	snap := o.breaker.Snapshot()
	switch {
	case snap.State == circuitbreaker.StateIsolated:
		return entity.NewUnavailable(circuitbreaker.ErrIsolated)
	case snap.State == circuitbreaker.StateOpen && snap.TimeInState < snap.BreakDuration:
		return entity.NewUnavailable(circuitbreaker.ErrOpen)
	}
	return nil
}

// acquireAdmission obtains one rate limiter token, falling back to a
// reservation bounded by MaxAdmissionWait when immediate capacity is gone.
func (o *Orchestrator) acquireAdmission(ctx context.Context, limitKey string) error {
	decision := o.limiter.TryAcquire(limitKey, 1)
	if decision.Allowed {
		return nil
	}

	r, err := o.limiter.Reserve(limitKey, 1, o.cfg.MaxAdmissionWait)
	if err != nil {
		if errors.Is(err, ratelimit.ErrWaitTooLong) {
			return entity.NewRateLimited(err, decision.RetryAfter)
		}
		return entity.NewRateLimited(err, 0)
	}

	wait := r.Wait(o.cfg.Clock.Now())
	if err := o.cfg.Sleep(ctx, wait); err != nil {
		_ = o.limiter.Cancel(r.ID)
		return entity.NewPermanent(err)
	}
	if err := o.limiter.Execute(r.ID); err != nil {
		return entity.NewRateLimited(fmt.Errorf("consume reservation: %w", err), 0)
	}
	return nil
}

// backoffDelay combines the policy's jittered backoff for the previous
// attempt with any server-provided retry-after hint, taking the larger.
func (o *Orchestrator) backoffDelay(attempt int, lastErr error) time.Duration {
	delay := o.policy.Delay(attempt - 1)
	if hint := entity.RetryAfterHint(lastErr); hint > delay {
		delay = hint
	}
	return delay
}

// BreakerSnapshot exposes the breaker state for status reporting.
func (o *Orchestrator) BreakerSnapshot() circuitbreaker.Snapshot {
	return o.breaker.Snapshot()
}

// CacheStats exposes the cache counters for status reporting.
func (o *Orchestrator) CacheStats() cache.Stats {
	return o.cache.Stats()
}
