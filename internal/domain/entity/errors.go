package entity

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for domain layer operations.
var (
	// ErrNotFound indicates that a requested entity was not found
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError represents a validation error with detailed field information.
// It implements the error interface and provides context about which field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ErrorClass is the closed classification of external call failures.
// Every error surfaced by an annotator backend is triaged into exactly one
// class, and the orchestrator handles each class exhaustively.
type ErrorClass int

const (
	// ClassTransient covers network failures, timeouts, and 5xx-equivalent
	// responses. Retried with backoff.
	ClassTransient ErrorClass = iota

	// ClassRateLimited covers 429-equivalent backpressure. Not retried
	// inside the orchestrator in try-acquire mode; propagated with a
	// retry-after hint.
	ClassRateLimited

	// ClassUnavailable covers fail-fast rejections: circuit open or
	// dependency isolated. No call was attempted.
	ClassUnavailable

	// ClassPermanent covers validation, auth, and malformed-request
	// failures. Never retried.
	ClassPermanent
)

// String returns the class name used in logs and metrics labels.
func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRateLimited:
		return "rate_limited"
	case ClassUnavailable:
		return "unavailable"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an underlying external call error with its class
// and an optional retry-after hint from the dependency.
type ClassifiedError struct {
	Class      ErrorClass
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s): %v", e.Class, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// NewTransient wraps err as a transient, retryable failure.
func NewTransient(err error) *ClassifiedError {
	return &ClassifiedError{Class: ClassTransient, Err: err}
}

// NewRateLimited wraps err as API-level backpressure with a retry-after hint.
func NewRateLimited(err error, retryAfter time.Duration) *ClassifiedError {
	return &ClassifiedError{Class: ClassRateLimited, RetryAfter: retryAfter, Err: err}
}

// NewUnavailable wraps err as a fail-fast dependency rejection.
func NewUnavailable(err error) *ClassifiedError {
	return &ClassifiedError{Class: ClassUnavailable, Err: err}
}

// NewPermanent wraps err as a non-retryable failure.
func NewPermanent(err error) *ClassifiedError {
	return &ClassifiedError{Class: ClassPermanent, Err: err}
}

// Classify extracts the class from err. Unclassified errors default to
// ClassPermanent so that unknown failure kinds are never silently retried.
func Classify(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassPermanent
}

// RetryAfterHint returns the dependency's retry-after hint, or zero if none.
func RetryAfterHint(err error) time.Duration {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.RetryAfter
	}
	return 0
}

// RetriesExhaustedError is the terminal failure surfaced when an orchestrated
// call runs out of attempts. It is distinct from the causal error and carries
// the full attempt history for quarantine diagnostics.
type RetriesExhaustedError struct {
	Attempts []AttemptRecord
	LastErr  error
}

// Error implements the error interface.
func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", len(e.Attempts), e.LastErr)
}

// Unwrap returns the last causal error.
func (e *RetriesExhaustedError) Unwrap() error {
	return e.LastErr
}
