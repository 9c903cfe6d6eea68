package ratelimit

import (
	"fmt"
	"time"
)

// Decision represents the result of an admission check.
//
// It encapsulates the verdict along with metadata the caller needs to
// schedule a later attempt when the request is denied.
type Decision struct {
	// Key is the caller identity used for shard selection.
	Key string

	// Allowed indicates whether the request was admitted.
	Allowed bool

	// Shard is the index of the shard that admitted the request (primary or
	// secondary). Undefined when the request was denied.
	Shard int

	// Remaining is the approximate number of tokens left on the admitting
	// shard after this request, or on the primary shard when denied.
	Remaining float64

	// RetryAfter estimates how long the caller should wait before retrying.
	// Zero when the request was admitted.
	RetryAfter time.Duration
}

// String returns a human-readable representation of the decision.
func (d *Decision) String() string {
	if d.Allowed {
		return fmt.Sprintf("Decision{Allowed: true, Key: %s, Shard: %d, Remaining: %.1f}",
			d.Key, d.Shard, d.Remaining)
	}
	return fmt.Sprintf("Decision{Allowed: false, Key: %s, RetryAfter: %s}",
		d.Key, d.RetryAfter)
}

// IsDenied returns true if the request was denied.
func (d *Decision) IsDenied() bool {
	return !d.Allowed
}

// RetryAfterSeconds returns the retry delay in whole seconds, rounded up.
// This mirrors the Retry-After convention used by HTTP APIs.
func (d *Decision) RetryAfterSeconds() int64 {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int64(d.RetryAfter / time.Second)
	if d.RetryAfter%time.Second > 0 {
		secs++
	}
	return secs
}
