// Package ratelimit provides framework-agnostic admission control for outbound calls.
//
// The limiter is sharded: a caller key hashes to two candidate shards and the
// less-loaded one admits the request (power-of-two choice). Each shard is an
// independent token bucket built on golang.org/x/time/rate, so contention
// stays local to the shard in play. The package also supports time-scheduled
// reservations of future capacity for batch-fairness use cases.
package ratelimit

import "time"

// Clock provides an abstraction for time operations to enable testing.
//
// This interface allows for dependency injection of time functions,
// making it easy to test time-dependent behavior with fake clocks.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// SystemClock is a Clock implementation that uses the system time.
type SystemClock struct{}

// Now returns the current system time.
func (c *SystemClock) Now() time.Time {
	return time.Now()
}

// Metrics defines the interface for recording rate limiting metrics.
//
// Implementations can use Prometheus or custom metrics systems; a noop
// implementation is provided for tests and metric-free deployments.
type Metrics interface {
	// RecordAllowed records an admitted request on the given shard.
	RecordAllowed(shard int)

	// RecordDenied records a denied request.
	RecordDenied()

	// RecordReservationCreated records a successfully created reservation.
	RecordReservationCreated()

	// RecordReservationExpired records a reservation that lapsed unconsumed.
	RecordReservationExpired()

	// SetShardTokens records the current token count of a shard.
	SetShardTokens(shard int, tokens float64)
}
