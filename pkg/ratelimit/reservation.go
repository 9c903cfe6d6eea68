package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// Reservation is a pre-allocated, time-scheduled grant of limiter capacity.
//
// A reservation is created by Reserve, consumed exactly once by Execute, or
// invalidated by Cancel or expiry. It is owned by the caller that created it
// until consumed or expired. ExecuteAt is always >= ReservedAt.
type Reservation struct {
	// ID uniquely identifies the reservation for Execute/Cancel calls.
	ID string

	// Key is the caller identity the reservation was created for.
	Key string

	// Count is the number of tokens reserved.
	Count int

	// ReservedAt is when the reservation was created.
	ReservedAt time.Time

	// ExecuteAt is when the reserved tokens are projected to be available.
	// Execute fails if called before this time.
	ExecuteAt time.Time

	// ExpiresAt is when the reservation lapses if not consumed.
	ExpiresAt time.Time

	// Shard is the index of the shard the tokens were reserved on.
	Shard int

	// inner holds the underlying bucket reservation so expired or canceled
	// grants can return their tokens to the shard.
	inner *rate.Reservation
}

// Ready reports whether the reservation can be executed at the given time.
func (r *Reservation) Ready(now time.Time) bool {
	return !now.Before(r.ExecuteAt)
}

// Expired reports whether the reservation has lapsed at the given time.
func (r *Reservation) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Wait returns how long the caller must wait from now until ExecuteAt.
// Returns zero if the reservation is already executable.
func (r *Reservation) Wait(now time.Time) time.Duration {
	if r.Ready(now) {
		return 0
	}
	return r.ExecuteAt.Sub(now)
}
