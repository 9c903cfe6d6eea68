// Package repository defines the persistence interfaces consumed by the
// cache, pipeline, and quarantine layers. Implementations live under
// internal/infra/adapter/persistence.
package repository

import (
	"context"
	"database/sql"
	"time"
)

// Querier is the subset of *sql.DB used by the persistence adapters.
// It is also satisfied by circuitbreaker.DBCircuitBreaker, which lets the
// stores run behind database circuit breaker protection without knowing it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CacheRecord is one persisted cache entry. Values may be stored compressed;
// the Compressed flag tells the cache layer whether to inflate on read.
type CacheRecord struct {
	// Key is the content-addressed cache key ("stage:digest").
	Key string

	// Value is the stored payload, possibly gzip-compressed.
	Value []byte

	// Compressed indicates whether Value is gzip-compressed.
	Compressed bool

	// CreatedAt is when the entry was first written.
	CreatedAt time.Time
}

// CacheStore is the persistent cache tier contract. Entries are permanent
// (no TTL) and writes must be atomic per key: a concurrent reader sees either
// the full entry or nothing.
type CacheStore interface {
	// Read returns the record for key, or entity.ErrNotFound if absent.
	Read(ctx context.Context, key string) (*CacheRecord, error)

	// Write stores the record. Writes for an existing key are idempotent:
	// the same deterministic input always maps to identical content, so a
	// second write may be silently ignored.
	Write(ctx context.Context, rec *CacheRecord) error
}
