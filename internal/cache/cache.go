package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"flashcard-pipeline/internal/domain/entity"
	"flashcard-pipeline/internal/observability/metrics"
	"flashcard-pipeline/internal/repository"
)

// ComputeFunc produces the value for a key on a full cache miss. The returned
// bytes must be the canonical serialization of the result: the cache stores
// them verbatim and replays them on later hits.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Stats is a point-in-time view of cache effectiveness counters.
type Stats struct {
	FastHits       int64
	PersistentHits int64
	Misses         int64
	Coalesced      int64
	WriteFailures  int64
}

// TieredCache layers a bounded in-process fast tier over a permanent
// persistent tier. Reads check fast, then persistent (promoting hits), then
// compute. Concurrent lookups of the same key share a single computation.
type TieredCache struct {
	cfg   Config
	fast  *fastTier
	store repository.CacheStore
	group singleflight.Group

	fastHits       atomic.Int64
	persistentHits atomic.Int64
	misses         atomic.Int64
	coalesced      atomic.Int64
	writeFailures  atomic.Int64
}

// New creates a tiered cache over the given persistent store.
func New(cfg Config, store repository.CacheStore) (*TieredCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cache config: %w", err)
	}
	cfg.ApplyDefaults()

	return &TieredCache{
		cfg:   cfg,
		fast:  newFastTier(cfg),
		store: store,
	}, nil
}

// GetOrCompute returns the value for key, computing it at most once across
// concurrent callers on a full miss. The cached flag reports whether the
// value came from either cache tier rather than a fresh computation.
//
// A persistent-tier write failure does not fail the call: the computed value
// is returned and the failure is logged, since the fast tier still holds it.
func (c *TieredCache) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) ([]byte, bool, error) {
	ks := key.String()

	if v, ok := c.fast.get(ks); ok {
		c.fastHits.Add(1)
		metrics.RecordCacheLookup("fast_hit")
		return v, true, nil
	}

	type result struct {
		value  []byte
		cached bool
	}

	v, err, shared := c.group.Do(ks, func() (interface{}, error) {
		// Re-check the fast tier: another flight may have filled it between
		// our miss and acquiring the flight.
		if v, ok := c.fast.get(ks); ok {
			c.fastHits.Add(1)
			metrics.RecordCacheLookup("fast_hit")
			return result{value: v, cached: true}, nil
		}

		if v, err := c.readPersistent(ctx, ks); err == nil {
			c.persistentHits.Add(1)
			metrics.RecordCacheLookup("persistent_hit")
			c.fast.set(ks, v)
			return result{value: v, cached: true}, nil
		} else if !errors.Is(err, entity.ErrNotFound) {
			return nil, err
		}

		c.misses.Add(1)
		metrics.RecordCacheLookup("miss")
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		c.fast.set(ks, value)
		c.writePersistent(ctx, ks, value)
		return result{value: value, cached: false}, nil
	})
	if err != nil {
		return nil, false, err
	}
	if shared {
		c.coalesced.Add(1)
	}

	r := v.(result)
	return r.value, r.cached, nil
}

// readPersistent loads and, if needed, inflates a persistent-tier entry.
func (c *TieredCache) readPersistent(ctx context.Context, key string) ([]byte, error) {
	rec, err := c.store.Read(ctx, key)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("read persistent cache %s: %w", key, err)
	}
	if rec.Compressed {
		return decompress(rec.Value)
	}
	return rec.Value, nil
}

// writePersistent stores a computed value in the persistent tier.
// Failures are logged and counted but never surfaced to the caller.
func (c *TieredCache) writePersistent(ctx context.Context, key string, value []byte) {
	stored, compressed, err := maybeCompress(value, c.cfg.CompressionThreshold)
	if err == nil {
		err = c.store.Write(ctx, &repository.CacheRecord{
			Key:        key,
			Value:      stored,
			Compressed: compressed,
			CreatedAt:  c.cfg.Clock.Now(),
		})
	}
	if err != nil {
		c.writeFailures.Add(1)
		metrics.RecordCacheWriteFailure()
		c.cfg.Logger.Warn("persistent cache write failed",
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
}

// Stats returns a snapshot of the cache counters.
func (c *TieredCache) Stats() Stats {
	return Stats{
		FastHits:       c.fastHits.Load(),
		PersistentHits: c.persistentHits.Load(),
		Misses:         c.misses.Load(),
		Coalesced:      c.coalesced.Load(),
		WriteFailures:  c.writeFailures.Load(),
	}
}
