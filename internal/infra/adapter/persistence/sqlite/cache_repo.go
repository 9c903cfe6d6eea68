// Package sqlite provides the SQLite-backed stores. It targets the pure-Go
// modernc.org/sqlite driver, so single-binary deployments need no cgo.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"flashcard-pipeline/internal/domain/entity"
	"flashcard-pipeline/internal/repository"
)

type CacheRepo struct{ db repository.Querier }

// NewCacheRepo creates the SQLite persistent cache tier. The Querier may be
// a plain *sql.DB or a circuit-breaker wrapped one.
func NewCacheRepo(db repository.Querier) repository.CacheStore {
	return &CacheRepo{db: db}
}

func (repo *CacheRepo) Read(ctx context.Context, key string) (*repository.CacheRecord, error) {
	const query = `
SELECT key, value, compressed, created_at
FROM cache_entries
WHERE key = ?
LIMIT 1`
	var rec repository.CacheRecord
	err := repo.db.QueryRowContext(ctx, query, key).Scan(
		&rec.Key, &rec.Value, &rec.Compressed, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Read: QueryRowContext: %w", err)
	}
	return &rec, nil
}

// Write inserts the entry. Keys are content addressed, so a conflicting row
// already holds identical bytes and the insert is skipped.
func (repo *CacheRepo) Write(ctx context.Context, rec *repository.CacheRecord) error {
	const query = `
INSERT INTO cache_entries (key, value, compressed, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO NOTHING`

	_, err := repo.db.ExecContext(ctx, query,
		rec.Key, rec.Value, rec.Compressed, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Write: ExecContext: %w", err)
	}
	return nil
}
