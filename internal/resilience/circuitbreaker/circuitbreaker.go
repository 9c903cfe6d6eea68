// Package circuitbreaker provides circuit breaker implementations for external service calls.
// The Breaker type implements a four-state machine (closed, open, half-open, isolated)
// with a sliding outcome window and pluggable break-duration strategies. A separate
// gobreaker-based wrapper protects database operations (see db.go).
package circuitbreaker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed allows all calls; outcomes feed the sliding window.
	StateClosed State = iota

	// StateOpen rejects all calls until the break duration elapses.
	StateOpen

	// StateHalfOpen allows a limited number of probe calls.
	StateHalfOpen

	// StateIsolated rejects all calls until an explicit manual reset.
	// It is entered only via Isolate and never via statistics.
	StateIsolated
)

// String returns the state name used in logs and metrics labels.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	case StateIsolated:
		return "isolated"
	default:
		return "unknown"
	}
}

// Rejection errors returned by Allow and Execute.
var (
	// ErrOpen is returned when the circuit is open and the break has not elapsed.
	ErrOpen = errors.New("circuit breaker open")

	// ErrIsolated is returned when the circuit has been manually isolated.
	ErrIsolated = errors.New("circuit breaker isolated")

	// ErrTooManyProbes is returned in half-open state once the probe budget
	// is in flight. Callers should treat it like an open circuit.
	ErrTooManyProbes = errors.New("circuit breaker half-open probe limit reached")
)

// BreakStrategy computes the open-state break duration from the number of
// consecutive trips. It is a pure function injected as configuration so the
// state machine stays free of strategy-specific branching.
type BreakStrategy func(consecutiveTrips int) time.Duration

// FixedBreak returns a strategy with a constant break duration.
func FixedBreak(d time.Duration) BreakStrategy {
	return func(int) time.Duration { return d }
}

// ExponentialBreak returns a strategy that doubles the break duration with
// each consecutive trip, capped at max. Quick recovery is rewarded with short
// breaks while persistent outages back off up to the cap.
func ExponentialBreak(initial, max time.Duration) BreakStrategy {
	return func(consecutiveTrips int) time.Duration {
		d := initial
		for i := 1; i < consecutiveTrips; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			return max
		}
		return d
	}
}

// Clock provides an abstraction for time operations to enable testing.
type Clock interface {
	Now() time.Time
}

// SystemClock is a Clock implementation that uses the system time.
type SystemClock struct{}

// Now returns the current system time.
func (c *SystemClock) Now() time.Time { return time.Now() }

// Config holds the configuration for a circuit breaker.
type Config struct {
	// Name is the circuit breaker name for logging and metrics
	Name string

	// WindowSize is the number of recent outcomes kept in the sliding window
	WindowSize int

	// FailureThreshold is the failure ratio over the window that trips the
	// circuit. For example, 0.6 means 60% failure rate.
	FailureThreshold float64

	// MinThroughput is the minimum number of outcomes in the window before
	// the failure ratio is evaluated, to avoid tripping on statistically
	// insignificant samples.
	MinThroughput int

	// HalfOpenMaxProbes is the maximum number of concurrent probe calls
	// allowed in half-open state.
	HalfOpenMaxProbes int

	// HalfOpenSuccesses is the number of consecutive probe successes
	// required to close the circuit.
	HalfOpenSuccesses int

	// Break computes the open-state duration from consecutive trips.
	Break BreakStrategy

	// Clock provides time operations; defaults to SystemClock.
	Clock Clock
}

// DefaultConfig returns a default configuration for circuit breakers.
func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		WindowSize:        20,
		FailureThreshold:  0.6,
		MinThroughput:     5,
		HalfOpenMaxProbes: 1,
		HalfOpenSuccesses: 2,
		Break:             ExponentialBreak(30*time.Second, 5*time.Minute),
	}
}

// InferenceConfig returns configuration optimized for AI inference API calls.
// The growing break duration penalizes persistent API outages without
// hammering a recovering endpoint.
func InferenceConfig(name string) Config {
	return Config{
		Name:              name,
		WindowSize:        20,
		FailureThreshold:  0.5,
		MinThroughput:     5,
		HalfOpenMaxProbes: 1,
		HalfOpenSuccesses: 2,
		Break:             ExponentialBreak(15*time.Second, 2*time.Minute),
	}
}

// Validate checks the configuration and fails fast on invalid values.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("Name must not be empty")
	}
	if c.WindowSize < 1 {
		return fmt.Errorf("WindowSize must be >= 1, got %d", c.WindowSize)
	}
	if c.FailureThreshold <= 0 || c.FailureThreshold > 1 {
		return fmt.Errorf("FailureThreshold must be in (0, 1], got %f", c.FailureThreshold)
	}
	if c.MinThroughput < 1 {
		return fmt.Errorf("MinThroughput must be >= 1, got %d", c.MinThroughput)
	}
	if c.MinThroughput > c.WindowSize {
		return fmt.Errorf("MinThroughput %d must not exceed WindowSize %d", c.MinThroughput, c.WindowSize)
	}
	if c.HalfOpenMaxProbes < 1 {
		return fmt.Errorf("HalfOpenMaxProbes must be >= 1, got %d", c.HalfOpenMaxProbes)
	}
	if c.HalfOpenSuccesses < 1 {
		return fmt.Errorf("HalfOpenSuccesses must be >= 1, got %d", c.HalfOpenSuccesses)
	}
	if c.Break == nil {
		return fmt.Errorf("Break strategy must not be nil")
	}
	return nil
}

// Breaker is a per-dependency circuit breaker. All state is owned by the
// breaker and mutated under its own lock; contention stays local to the
// dependency the breaker guards.
type Breaker struct {
	cfg Config

	mu sync.Mutex

	state        State
	transitionAt time.Time

	// Sliding window of recent outcomes, ring-buffered. Only closed-state
	// outcomes feed the window; probes are tracked separately.
	window         []bool
	windowNext     int
	windowCount    int
	windowFailures int

	// consecutiveTrips counts transitions to open without an intervening
	// close; it drives the break strategy.
	consecutiveTrips int
	breakDuration    time.Duration

	probesInFlight int
	probeSuccesses int

	lastFailure   error
	isolateReason string
}

// New creates a new circuit breaker with the given configuration.
func New(cfg Config) (*Breaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("circuit breaker config: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = &SystemClock{}
	}

	return &Breaker{
		cfg:          cfg,
		state:        StateClosed,
		transitionAt: cfg.Clock.Now(),
		window:       make([]bool, cfg.WindowSize),
	}, nil
}

// Name returns the name of the circuit breaker.
func (b *Breaker) Name() string { return b.cfg.Name }

// Allow reports whether a call may proceed. In half-open state a successful
// Allow claims one probe slot, which must be released by a matching Record
// call. Open circuits transition to half-open once the break has elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateIsolated:
		return ErrIsolated

	case StateOpen:
		if b.cfg.Clock.Now().Sub(b.transitionAt) < b.breakDuration {
			return ErrOpen
		}
		b.transition(StateHalfOpen)
		b.probesInFlight = 1
		return nil

	case StateHalfOpen:
		if b.probesInFlight >= b.cfg.HalfOpenMaxProbes {
			return ErrTooManyProbes
		}
		b.probesInFlight++
		return nil

	default: // StateClosed
		return nil
	}
}

// Record reports the outcome of a call previously admitted by Allow.
func (b *Breaker) Record(success bool) {
	b.RecordResult(success, nil)
}

// RecordResult reports the outcome of a call along with the failure detail.
func (b *Breaker) RecordResult(success bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !success && err != nil {
		b.lastFailure = err
	}

	switch b.state {
	case StateClosed:
		b.observe(success)
		if b.shouldTrip() {
			b.trip()
		}

	case StateHalfOpen:
		if b.probesInFlight > 0 {
			b.probesInFlight--
		}
		if !success {
			// Any probe failure reopens the circuit and lengthens the break.
			b.trip()
			return
		}
		b.probeSuccesses++
		if b.probeSuccesses >= b.cfg.HalfOpenSuccesses {
			b.close()
		}

	default:
		// Outcomes reported after isolation or while open (in-flight calls
		// finishing late) do not affect the statistics.
	}
}

// Execute runs fn through the circuit breaker, combining Allow and Record.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.RecordResult(err == nil, err)
	return err
}

// Isolate manually forces the breaker into the isolated state. All calls are
// rejected until Reset is called; statistics are bypassed entirely.
func (b *Breaker) Isolate(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.isolateReason = reason
	b.transition(StateIsolated)
	slog.Warn("circuit breaker manually isolated",
		slog.String("circuit", b.cfg.Name),
		slog.String("reason", reason))
}

// Reset manually returns the breaker to the closed state and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.isolateReason = ""
	b.consecutiveTrips = 0
	b.close()
	slog.Warn("circuit breaker manually reset",
		slog.String("circuit", b.cfg.Name))
}

// ForceHalfOpen manually moves the breaker to half-open, allowing probe
// traffic immediately regardless of the remaining break duration.
func (b *Breaker) ForceHalfOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.isolateReason = ""
	b.probesInFlight = 0
	b.probeSuccesses = 0
	b.transition(StateHalfOpen)
	slog.Warn("circuit breaker manually forced half-open",
		slog.String("circuit", b.cfg.Name))
}

// Snapshot is a read-only view of the breaker for external monitoring.
type Snapshot struct {
	Name             string
	State            State
	TimeInState      time.Duration
	Requests         int
	Failures         int
	FailureRatio     float64
	ConsecutiveTrips int
	BreakDuration    time.Duration
	LastFailure      string
	IsolateReason    string
}

// Snapshot returns the current state and rolling statistics without mutating
// the breaker.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		Name:             b.cfg.Name,
		State:            b.state,
		TimeInState:      b.cfg.Clock.Now().Sub(b.transitionAt),
		Requests:         b.windowCount,
		Failures:         b.windowFailures,
		ConsecutiveTrips: b.consecutiveTrips,
		BreakDuration:    b.breakDuration,
		IsolateReason:    b.isolateReason,
	}
	if b.windowCount > 0 {
		snap.FailureRatio = float64(b.windowFailures) / float64(b.windowCount)
	}
	if b.lastFailure != nil {
		snap.LastFailure = b.lastFailure.Error()
	}
	return snap
}

// State returns the current state of the circuit breaker.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// observe records one closed-state outcome into the sliding window.
// Caller must hold b.mu.
func (b *Breaker) observe(success bool) {
	if b.windowCount == len(b.window) {
		// Evict the oldest outcome.
		if !b.window[b.windowNext] {
			b.windowFailures--
		}
	} else {
		b.windowCount++
	}
	b.window[b.windowNext] = success
	if !success {
		b.windowFailures++
	}
	b.windowNext = (b.windowNext + 1) % len(b.window)
}

// shouldTrip evaluates the trip rule over the sliding window.
// Caller must hold b.mu.
func (b *Breaker) shouldTrip() bool {
	if b.windowCount < b.cfg.MinThroughput {
		return false
	}
	ratio := float64(b.windowFailures) / float64(b.windowCount)
	return ratio >= b.cfg.FailureThreshold
}

// trip opens the circuit and computes the next break duration.
// Caller must hold b.mu.
func (b *Breaker) trip() {
	b.consecutiveTrips++
	b.breakDuration = b.cfg.Break(b.consecutiveTrips)
	b.probesInFlight = 0
	b.probeSuccesses = 0
	b.resetWindow()
	b.transition(StateOpen)
}

// close returns the circuit to the closed state and resets counters.
// Caller must hold b.mu.
func (b *Breaker) close() {
	b.consecutiveTrips = 0
	b.breakDuration = 0
	b.probesInFlight = 0
	b.probeSuccesses = 0
	b.lastFailure = nil
	b.resetWindow()
	b.transition(StateClosed)
}

// resetWindow clears the sliding window. Caller must hold b.mu.
func (b *Breaker) resetWindow() {
	b.windowNext = 0
	b.windowCount = 0
	b.windowFailures = 0
}

// transition moves to the target state and logs the change.
// Caller must hold b.mu.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.transitionAt = b.cfg.Clock.Now()
	slog.Warn("circuit breaker state changed",
		slog.String("circuit", b.cfg.Name),
		slog.String("from", from.String()),
		slog.String("to", to.String()))
}
