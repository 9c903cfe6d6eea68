package orchestrate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashcard-pipeline/internal/cache"
	"flashcard-pipeline/internal/domain/entity"
	"flashcard-pipeline/internal/repository"
	"flashcard-pipeline/internal/resilience/circuitbreaker"
	"flashcard-pipeline/internal/resilience/retry"
	"flashcard-pipeline/pkg/ratelimit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memStore struct {
	mu      sync.Mutex
	records map[string]*repository.CacheRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*repository.CacheRecord)}
}

func (s *memStore) Read(_ context.Context, key string) (*repository.CacheRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return rec, nil
}

func (s *memStore) Write(_ context.Context, rec *repository.CacheRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Key] = rec
	return nil
}

// harness wires an orchestrator with deterministic time: Sleep records the
// requested delays and advances the shared fake clock instead of blocking.
type harness struct {
	orch   *Orchestrator
	clock  *fakeClock
	sleeps []time.Duration
}

type harnessOpts struct {
	retryCfg   retry.Config
	breakerCfg *circuitbreaker.Config
	limiterCfg *ratelimit.Config
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	h := &harness{clock: clock}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Clock = clock
	tiered, err := cache.New(cacheCfg, newMemStore())
	require.NoError(t, err)

	// The default breaker needs more samples than one retry budget can
	// produce, so retry-focused tests exercise the full attempt sequence.
	// Breaker-focused tests pass a tighter config explicitly.
	bCfg := circuitbreaker.Config{
		Name:              "test-api",
		WindowSize:        20,
		FailureThreshold:  0.5,
		MinThroughput:     10,
		HalfOpenMaxProbes: 1,
		HalfOpenSuccesses: 1,
		Break:             circuitbreaker.FixedBreak(10 * time.Second),
		Clock:             clock,
	}
	if opts.breakerCfg != nil {
		bCfg = *opts.breakerCfg
		bCfg.Clock = clock
	}
	breaker, err := circuitbreaker.New(bCfg)
	require.NoError(t, err)

	lCfg := ratelimit.Config{RatePerSecond: 100, Burst: 100, Shards: 1, ReservationGrace: 10 * time.Second}
	if opts.limiterCfg != nil {
		lCfg = *opts.limiterCfg
	}
	lCfg.Clock = clock
	limiter, err := ratelimit.New(lCfg)
	require.NoError(t, err)

	rCfg := opts.retryCfg
	if rCfg.MaxAttempts == 0 {
		rCfg = retry.Config{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
			RetryClasses: []entity.ErrorClass{entity.ClassTransient, entity.ClassRateLimited},
		}
	}
	policy, err := retry.NewPolicy(rCfg)
	require.NoError(t, err)

	oCfg := DefaultConfig("test")
	oCfg.Clock = clock
	oCfg.Sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		clock.advance(d)
		return nil
	}

	h.orch, err = New(oCfg, tiered, breaker, limiter, policy)
	require.NoError(t, err)
	return h
}

func key(s string) cache.Key {
	return cache.Key{Stage: "analysis", Digest: s}
}

func TestDo_SuccessIsCached(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	calls := 0
	call := func(context.Context) ([]byte, error) {
		calls++
		return []byte("result"), nil
	}

	v, cached, err := h.orch.Do(context.Background(), key("a"), "caller", call)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []byte("result"), v)
	assert.Equal(t, 1, calls)

	v, cached, err = h.orch.Do(context.Background(), key("a"), "caller", call)
	require.NoError(t, err)
	assert.True(t, cached, "second lookup must come from cache")
	assert.Equal(t, []byte("result"), v)
	assert.Equal(t, 1, calls, "cached result must not trigger another call")
}

func TestDo_TransientFailureRetriesThenSucceeds(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	calls := 0
	call := func(context.Context) ([]byte, error) {
		calls++
		if calls < 3 {
			return nil, entity.NewTransient(errors.New("503"))
		}
		return []byte("ok"), nil
	}

	v, cached, err := h.orch.Do(context.Background(), key("b"), "caller", call)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []byte("ok"), v)
	assert.Equal(t, 3, calls)

	// Two retries, each with a jittered exponential backoff in
	// [base/2, base] for bases of 100ms and 200ms.
	require.Len(t, h.sleeps, 2)
	assert.GreaterOrEqual(t, h.sleeps[0], 50*time.Millisecond)
	assert.LessOrEqual(t, h.sleeps[0], 100*time.Millisecond)
	assert.GreaterOrEqual(t, h.sleeps[1], 100*time.Millisecond)
	assert.LessOrEqual(t, h.sleeps[1], 200*time.Millisecond)
}

func TestDo_PermanentFailureDoesNotRetry(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	calls := 0
	call := func(context.Context) ([]byte, error) {
		calls++
		return nil, entity.NewPermanent(errors.New("400 bad request"))
	}

	_, _, err := h.orch.Do(context.Background(), key("c"), "caller", call)
	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors must not be retried")

	// No retry budget was spent, so the classified error surfaces directly
	// rather than as an exhaustion report.
	assert.Equal(t, entity.ClassPermanent, entity.Classify(err))
	var exhausted *entity.RetriesExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestDo_PermanentAfterRetryCarriesHistory(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	calls := 0
	call := func(context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, entity.NewTransient(errors.New("503"))
		}
		return nil, entity.NewPermanent(errors.New("400 bad request"))
	}

	_, _, err := h.orch.Do(context.Background(), key("c2"), "caller", call)
	require.Error(t, err)
	assert.Equal(t, 2, calls)

	// A retry was spent before the terminal failure, so the error carries
	// the full attempt history.
	var exhausted *entity.RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Attempts, 2)
	assert.Equal(t, entity.ClassPermanent, entity.Classify(exhausted.LastErr))
}

func TestDo_ExhaustsAttemptBudget(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	calls := 0
	call := func(context.Context) ([]byte, error) {
		calls++
		return nil, entity.NewTransient(errors.New("always failing"))
	}

	_, _, err := h.orch.Do(context.Background(), key("d"), "caller", call)
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var exhausted *entity.RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Attempts, 3)
	for i, rec := range exhausted.Attempts {
		assert.Equal(t, i, rec.Attempt)
		assert.Error(t, rec.Err)
	}
	// The first attempt has no backoff; later ones do.
	assert.Equal(t, time.Duration(0), exhausted.Attempts[0].Delay)
	assert.Greater(t, exhausted.Attempts[1].Delay, time.Duration(0))

	// One exhausted retry budget must not trip the breaker.
	assert.Equal(t, circuitbreaker.StateClosed, h.orch.BreakerSnapshot().State)
}

func TestDo_RetryAfterHintOverridesBackoff(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	calls := 0
	call := func(context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, entity.NewRateLimited(errors.New("429"), 5*time.Second)
		}
		return []byte("ok"), nil
	}

	_, _, err := h.orch.Do(context.Background(), key("e"), "caller", call)
	require.NoError(t, err)
	require.Len(t, h.sleeps, 1)
	assert.Equal(t, 5*time.Second, h.sleeps[0], "server retry-after hint must win over shorter backoff")
}

func TestDo_BreakerOpensAndFailsFast(t *testing.T) {
	bCfg := &circuitbreaker.Config{
		Name:              "storm-api",
		WindowSize:        4,
		FailureThreshold:  0.5,
		MinThroughput:     2,
		HalfOpenMaxProbes: 1,
		HalfOpenSuccesses: 1,
		Break:             circuitbreaker.FixedBreak(10 * time.Second),
	}
	h := newHarness(t, harnessOpts{breakerCfg: bCfg})

	calls := 0
	failing := func(context.Context) ([]byte, error) {
		calls++
		return nil, entity.NewTransient(errors.New("outage"))
	}

	// The second recorded failure trips the breaker mid-loop, so the final
	// retry is rejected at the precheck without reaching the API.
	_, _, err := h.orch.Do(context.Background(), key("storm"), "caller", failing)
	require.Error(t, err)
	require.Equal(t, circuitbreaker.StateOpen, h.orch.BreakerSnapshot().State)
	assert.Equal(t, 2, calls)

	// While open, new work is rejected before reaching the API with zero
	// attempts spent, so the rejection surfaces classified and unwrapped.
	_, _, err = h.orch.Do(context.Background(), key("rejected"), "caller", failing)
	require.Error(t, err)
	assert.Equal(t, 2, calls, "open circuit must reject without calling the API")
	assert.Equal(t, entity.ClassUnavailable, entity.Classify(err))
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)

	// After the break elapses, a successful probe closes the circuit.
	h.clock.advance(11 * time.Second)
	healthy := func(context.Context) ([]byte, error) { return []byte("recovered"), nil }
	v, _, err := h.orch.Do(context.Background(), key("probe"), "caller", healthy)
	require.NoError(t, err)
	assert.Equal(t, []byte("recovered"), v)
	assert.Equal(t, circuitbreaker.StateClosed, h.orch.BreakerSnapshot().State)
}

func TestDo_DrainedLimiterUsesReservation(t *testing.T) {
	lCfg := ratelimit.Config{RatePerSecond: 10, Burst: 10, Shards: 1, ReservationGrace: 10 * time.Second}
	h := newHarness(t, harnessOpts{limiterCfg: &lCfg})

	// Drain the bucket out of band.
	for i := 0; i < 10; i++ {
		require.True(t, h.orch.limiter.TryAcquire("caller", 1).Allowed)
	}

	call := func(context.Context) ([]byte, error) { return []byte("ok"), nil }
	v, _, err := h.orch.Do(context.Background(), key("f"), "caller", call)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), v)

	// The attempt waited for a reservation instead of failing.
	require.NotEmpty(t, h.sleeps)
	assert.Greater(t, h.sleeps[0], time.Duration(0))
}

func TestDo_ReservationBeyondBudgetIsRateLimited(t *testing.T) {
	// 1 token/s with a drained 10-token bucket projects a 1s+ wait per
	// token; an admission budget of 200ms cannot be met.
	lCfg := ratelimit.Config{RatePerSecond: 1, Burst: 10, Shards: 1, ReservationGrace: 10 * time.Second}
	h := newHarness(t, harnessOpts{
		retryCfg: retry.Config{
			MaxAttempts:  1,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     100 * time.Millisecond,
			Multiplier:   2.0,
			RetryClasses: []entity.ErrorClass{entity.ClassTransient},
		},
		limiterCfg: &lCfg,
	})
	h.orch.cfg.MaxAdmissionWait = 200 * time.Millisecond

	for i := 0; i < 10; i++ {
		require.True(t, h.orch.limiter.TryAcquire("caller", 1).Allowed)
	}

	calls := 0
	call := func(context.Context) ([]byte, error) {
		calls++
		return []byte("ok"), nil
	}

	_, _, err := h.orch.Do(context.Background(), key("g"), "caller", call)
	require.Error(t, err)
	assert.Equal(t, 0, calls, "admission failure must not reach the API")
	assert.Equal(t, entity.ClassRateLimited, entity.Classify(err))
	assert.ErrorIs(t, err, ratelimit.ErrWaitTooLong)
}
