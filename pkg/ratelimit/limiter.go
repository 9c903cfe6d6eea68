package ratelimit

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Errors returned by reservation operations.
var (
	// ErrReservationNotFound is returned when the reservation id is unknown
	// (never created, already consumed, or canceled).
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrReservationNotReady is returned when Execute is called before the
	// reservation's scheduled execute-at time.
	ErrReservationNotReady = errors.New("reservation not ready")

	// ErrReservationExpired is returned when Execute is called after the
	// reservation's expiry. Unused tokens are refunded to the shard where
	// the bucket still permits it.
	ErrReservationExpired = errors.New("reservation expired")

	// ErrWaitTooLong is returned by Reserve when the projected wait on both
	// candidate shards exceeds the caller's maxWait budget.
	ErrWaitTooLong = errors.New("projected wait exceeds max wait")
)

// shard is one independent token bucket. Each shard has its own limiter (and
// therefore its own internal lock), so admission on one shard never contends
// with another.
type shard struct {
	limiter *rate.Limiter
}

// ShardedLimiter is an admission controller composed of independent
// token-bucket shards with power-of-two shard selection per caller key.
//
// The two-choice strategy significantly reduces hot-key starvation compared
// to single-shard hashing, at the cost of slightly looser global accuracy:
// a single key can momentarily draw on two shards' capacity.
type ShardedLimiter struct {
	cfg    Config
	shards []*shard

	mu           sync.Mutex
	reservations map[string]*Reservation
}

// New creates a sharded limiter from the given configuration.
// The aggregate rate and burst are distributed evenly across the effective
// shard count, with remainder tokens going to the lowest-index shards.
func New(cfg Config) (*ShardedLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ratelimit config: %w", err)
	}
	cfg.ApplyDefaults()

	n := cfg.effectiveShards()
	shards := make([]*shard, n)

	baseBurst := cfg.Burst / n
	extraBurst := cfg.Burst % n
	perShardRate := cfg.RatePerSecond / float64(n)

	for i := range shards {
		burst := baseBurst
		if i < extraBurst {
			burst++
		}
		shards[i] = &shard{
			limiter: rate.NewLimiter(rate.Limit(perShardRate), burst),
		}
	}

	return &ShardedLimiter{
		cfg:          cfg,
		shards:       shards,
		reservations: make(map[string]*Reservation),
	}, nil
}

// Shards returns the effective shard count.
func (l *ShardedLimiter) Shards() int {
	return len(l.shards)
}

// shardIndices returns the primary and secondary shard for a caller key,
// using two distinct hash functions. The secondary is forced distinct from
// the primary whenever more than one shard exists.
func (l *ShardedLimiter) shardIndices(key string) (int, int) {
	n := len(l.shards)
	if n == 1 {
		return 0, 0
	}

	h1 := fnv.New64a()
	_, _ = h1.Write([]byte(key))
	primary := int(h1.Sum64() % uint64(n))

	h2 := fnv.New64a()
	_, _ = h2.Write([]byte(key))
	_, _ = h2.Write([]byte{0xff})
	secondary := int(h2.Sum64() % uint64(n))

	if secondary == primary {
		secondary = (primary + 1) % n
	}
	return primary, secondary
}

// TryAcquire attempts to admit count tokens for the caller key immediately.
// The primary shard is tried first, then the secondary. A denial carries the
// remaining-token estimate and a retry-after projection from the primary.
func (l *ShardedLimiter) TryAcquire(key string, count int) *Decision {
	now := l.cfg.Clock.Now()
	primary, secondary := l.shardIndices(key)

	if l.shards[primary].limiter.AllowN(now, count) {
		l.cfg.Metrics.RecordAllowed(primary)
		return &Decision{
			Key:       key,
			Allowed:   true,
			Shard:     primary,
			Remaining: l.shards[primary].limiter.TokensAt(now),
		}
	}

	if secondary != primary && l.shards[secondary].limiter.AllowN(now, count) {
		l.cfg.Metrics.RecordAllowed(secondary)
		return &Decision{
			Key:       key,
			Allowed:   true,
			Shard:     secondary,
			Remaining: l.shards[secondary].limiter.TokensAt(now),
		}
	}

	l.cfg.Metrics.RecordDenied()
	return &Decision{
		Key:        key,
		Allowed:    false,
		Remaining:  l.shards[primary].limiter.TokensAt(now),
		RetryAfter: l.projectWait(primary, now, count),
	}
}

// projectWait estimates how long until count tokens are available on the
// given shard, without committing them.
func (l *ShardedLimiter) projectWait(shardIdx int, now time.Time, count int) time.Duration {
	res := l.shards[shardIdx].limiter.ReserveN(now, count)
	if !res.OK() {
		return rate.InfDuration
	}
	delay := res.DelayFrom(now)
	res.CancelAt(now)
	return delay
}

// Reserve creates a time-scheduled reservation of count tokens for the
// caller key. The candidate shard with the shorter projected wait is chosen;
// if the shorter wait still exceeds maxWait, no tokens are committed and
// ErrWaitTooLong is returned.
func (l *ShardedLimiter) Reserve(key string, count int, maxWait time.Duration) (*Reservation, error) {
	now := l.cfg.Clock.Now()
	primary, secondary := l.shardIndices(key)

	l.cleanupExpired(now)

	chosenShard := primary
	res := l.shards[primary].limiter.ReserveN(now, count)
	if !res.OK() {
		return nil, fmt.Errorf("reserve %d tokens: count exceeds shard capacity", count)
	}
	delay := res.DelayFrom(now)

	if delay > 0 && secondary != primary {
		alt := l.shards[secondary].limiter.ReserveN(now, count)
		if alt.OK() && alt.DelayFrom(now) < delay {
			res.CancelAt(now)
			res = alt
			delay = alt.DelayFrom(now)
			chosenShard = secondary
		} else if alt.OK() {
			alt.CancelAt(now)
		}
	}

	if delay > maxWait {
		res.CancelAt(now)
		l.cfg.Metrics.RecordDenied()
		return nil, fmt.Errorf("%w: projected %s, budget %s", ErrWaitTooLong, delay, maxWait)
	}

	r := &Reservation{
		ID:         uuid.New().String(),
		Key:        key,
		Count:      count,
		ReservedAt: now,
		ExecuteAt:  now.Add(delay),
		ExpiresAt:  now.Add(delay).Add(l.cfg.ReservationGrace),
		Shard:      chosenShard,
		inner:      res,
	}

	l.mu.Lock()
	l.reservations[r.ID] = r
	l.mu.Unlock()

	l.cfg.Metrics.RecordReservationCreated()
	return r, nil
}

// Execute consumes a reservation. It fails if called before the scheduled
// execute-at time or after expiry; expired reservations return their tokens
// to the shard they were drawn from.
func (l *ShardedLimiter) Execute(reservationID string) error {
	now := l.cfg.Clock.Now()

	l.mu.Lock()
	r, ok := l.reservations[reservationID]
	if !ok {
		l.mu.Unlock()
		return ErrReservationNotFound
	}

	if r.Expired(now) {
		delete(l.reservations, reservationID)
		l.mu.Unlock()
		r.inner.CancelAt(now)
		l.cfg.Metrics.RecordReservationExpired()
		return ErrReservationExpired
	}

	if !r.Ready(now) {
		l.mu.Unlock()
		return fmt.Errorf("%w: executable at %s", ErrReservationNotReady, r.ExecuteAt.Format(time.RFC3339))
	}

	delete(l.reservations, reservationID)
	l.mu.Unlock()

	l.cfg.Metrics.RecordAllowed(r.Shard)
	return nil
}

// Cancel invalidates a pending reservation and returns its tokens.
func (l *ShardedLimiter) Cancel(reservationID string) error {
	now := l.cfg.Clock.Now()

	l.mu.Lock()
	r, ok := l.reservations[reservationID]
	if !ok {
		l.mu.Unlock()
		return ErrReservationNotFound
	}
	delete(l.reservations, reservationID)
	l.mu.Unlock()

	r.inner.CancelAt(now)
	return nil
}

// cleanupExpired drops lapsed reservations and refunds their tokens where
// the underlying bucket still permits it. It takes and releases l.mu itself.
func (l *ShardedLimiter) cleanupExpired(now time.Time) {
	var expired []*Reservation

	l.mu.Lock()
	for id, r := range l.reservations {
		if r.Expired(now) {
			delete(l.reservations, id)
			expired = append(expired, r)
		}
	}
	l.mu.Unlock()

	for _, r := range expired {
		r.inner.CancelAt(now)
		l.cfg.Metrics.RecordReservationExpired()
	}
}

// ShardSnapshot is a read-only view of one shard for external monitoring.
type ShardSnapshot struct {
	Index  int
	Tokens float64
	Limit  float64
	Burst  int
}

// Snapshot returns per-shard token state and the count of pending
// reservations, without mutating the limiter.
func (l *ShardedLimiter) Snapshot() ([]ShardSnapshot, int) {
	now := l.cfg.Clock.Now()

	snaps := make([]ShardSnapshot, len(l.shards))
	for i, s := range l.shards {
		tokens := s.limiter.TokensAt(now)
		snaps[i] = ShardSnapshot{
			Index:  i,
			Tokens: tokens,
			Limit:  float64(s.limiter.Limit()),
			Burst:  s.limiter.Burst(),
		}
		l.cfg.Metrics.SetShardTokens(i, tokens)
	}

	l.mu.Lock()
	pending := len(l.reservations)
	l.mu.Unlock()

	return snaps, pending
}
