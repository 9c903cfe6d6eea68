package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashcard-pipeline/internal/domain/entity"
	"flashcard-pipeline/internal/repository"
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

// memStore is an in-memory CacheStore for tests.
type memStore struct {
	mu       sync.Mutex
	records  map[string]*repository.CacheRecord
	writeErr error
	reads    int
	writes   int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*repository.CacheRecord)}
}

func (s *memStore) Read(_ context.Context, key string) (*repository.CacheRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	rec, ok := s.records[key]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return rec, nil
}

func (s *memStore) Write(_ context.Context, rec *repository.CacheRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.writeErr != nil {
		return s.writeErr
	}
	s.records[rec.Key] = rec
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Clock = &fakeClock{now: time.Unix(1000, 0)}
	return cfg
}

func TestAnalysisKey_Deterministic(t *testing.T) {
	a, err := entity.NewWorkItem(1, "먹다", "verb")
	require.NoError(t, err)
	b, err := entity.NewWorkItem(7, "먹다", "verb")
	require.NoError(t, err)

	assert.Equal(t, AnalysisKey(a), AnalysisKey(b), "batch position must not affect the key")
	assert.Equal(t, StageAnalysis, AnalysisKey(a).Stage)
	assert.Contains(t, AnalysisKey(a).String(), StageAnalysis+":")

	c, err := entity.NewWorkItem(1, "먹다", "noun")
	require.NoError(t, err)
	assert.NotEqual(t, AnalysisKey(a), AnalysisKey(c), "type must affect the key")
}

func TestCardKey_DependsOnAnalysis(t *testing.T) {
	item, err := entity.NewWorkItem(1, "먹다", "verb")
	require.NoError(t, err)

	a1 := &entity.Analysis{Term: "먹다", Type: "verb", PartOfSpeech: "verb", Romanization: "meokda"}
	a2 := &entity.Analysis{Term: "먹다", Type: "verb", PartOfSpeech: "verb", Romanization: "meokkda"}

	k1, err := CardKey(item, a1)
	require.NoError(t, err)
	k1again, err := CardKey(item, a1)
	require.NoError(t, err)
	k2, err := CardKey(item, a2)
	require.NoError(t, err)

	assert.Equal(t, k1, k1again)
	assert.NotEqual(t, k1, k2, "a changed analysis must change the card key")
	assert.Equal(t, StageCard, k1.Stage)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default is valid", func(c *Config) {}, false},
		{"zero capacity", func(c *Config) { c.FastCapacity = 0 }, true},
		{"unknown policy", func(c *Config) { c.Eviction = "random" }, true},
		{"ttl policy without ttl", func(c *Config) { c.Eviction = EvictTTL; c.TTL = 0 }, true},
		{"ttl jitter out of range", func(c *Config) { c.Eviction = EvictTTL; c.TTLJitterPct = 1.0 }, true},
		{"lfu is valid", func(c *Config) { c.Eviction = EvictLFU }, false},
		{"negative compression threshold", func(c *Config) { c.CompressionThreshold = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFastTier_LRUEviction(t *testing.T) {
	cfg := testConfig()
	cfg.FastCapacity = 2
	cfg.ApplyDefaults()
	tier := newFastTier(cfg)

	tier.set("a", []byte("1"))
	tier.set("b", []byte("2"))

	// Touch "a" so "b" becomes the least recently used.
	_, ok := tier.get("a")
	require.True(t, ok)

	tier.set("c", []byte("3"))

	_, ok = tier.get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = tier.get("a")
	assert.True(t, ok)
	_, ok = tier.get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, tier.len())
}

func TestFastTier_LFUEviction(t *testing.T) {
	cfg := testConfig()
	cfg.FastCapacity = 2
	cfg.Eviction = EvictLFU
	cfg.ApplyDefaults()
	tier := newFastTier(cfg)

	tier.set("hot", []byte("1"))
	tier.set("cold", []byte("2"))
	for i := 0; i < 5; i++ {
		_, ok := tier.get("hot")
		require.True(t, ok)
	}

	tier.set("new", []byte("3"))

	_, ok := tier.get("cold")
	assert.False(t, ok, "least frequently used entry should be evicted")
	_, ok = tier.get("hot")
	assert.True(t, ok)
}

func TestFastTier_TTLExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	cfg := Config{
		FastCapacity: 10,
		Eviction:     EvictTTL,
		TTL:          time.Minute,
		TTLJitterPct: 0,
		Clock:        clock,
	}
	require.NoError(t, cfg.Validate())
	cfg.ApplyDefaults()
	tier := newFastTier(cfg)

	tier.set("k", []byte("v"))
	_, ok := tier.get("k")
	require.True(t, ok)

	clock.advance(time.Minute + time.Second)
	_, ok = tier.get("k")
	assert.False(t, ok, "entry past its ttl must not be served")
}

func TestFastTier_TTLJitterSpread(t *testing.T) {
	cfg := Config{
		FastCapacity: 10,
		Eviction:     EvictTTL,
		TTL:          time.Minute,
		TTLJitterPct: 0.5,
		Clock:        &fakeClock{now: time.Unix(1000, 0)},
	}
	cfg.ApplyDefaults()

	cfg.rand = func() float64 { return 0 } // lowest sample
	assert.Equal(t, 30*time.Second, cfg.jitteredTTL())

	cfg.rand = func() float64 { return 0.999999 } // highest sample
	got := cfg.jitteredTTL()
	assert.Greater(t, got, 89*time.Second)
	assert.LessOrEqual(t, got, 90*time.Second)
}

func TestMaybeCompress(t *testing.T) {
	small := []byte("short")
	out, compressed, err := maybeCompress(small, 1024)
	require.NoError(t, err)
	assert.False(t, compressed)
	assert.Equal(t, small, out)

	big := bytes.Repeat([]byte("definitions and example sentences "), 200)
	out, compressed, err = maybeCompress(big, 1024)
	require.NoError(t, err)
	require.True(t, compressed, "repetitive payload over threshold should compress")
	assert.Less(t, len(out), len(big))

	back, err := decompress(out)
	require.NoError(t, err)
	assert.Equal(t, big, back)
}

func TestTieredCache_MissComputesOnceThenHits(t *testing.T) {
	store := newMemStore()
	c, err := New(testConfig(), store)
	require.NoError(t, err)

	key := Key{Stage: StageAnalysis, Digest: "abc"}
	calls := 0
	compute := func(context.Context) ([]byte, error) {
		calls++
		return []byte(`{"term":"먹다"}`), nil
	}

	v, cached, err := c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []byte(`{"term":"먹다"}`), v)
	assert.Equal(t, 1, calls)

	v, cached, err = c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	assert.True(t, cached, "second lookup must be a fast-tier hit")
	assert.Equal(t, []byte(`{"term":"먹다"}`), v)
	assert.Equal(t, 1, calls, "cached lookup must not recompute")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.FastHits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestTieredCache_PersistentHitPromotes(t *testing.T) {
	store := newMemStore()

	// First cache instance populates the persistent tier.
	c1, err := New(testConfig(), store)
	require.NoError(t, err)
	key := Key{Stage: StageCard, Digest: "def"}
	_, _, err = c1.GetOrCompute(context.Background(), key, func(context.Context) ([]byte, error) {
		return []byte("card"), nil
	})
	require.NoError(t, err)

	// A fresh instance has a cold fast tier but must hit persistent.
	c2, err := New(testConfig(), store)
	require.NoError(t, err)
	v, cached, err := c2.GetOrCompute(context.Background(), key, func(context.Context) ([]byte, error) {
		t.Fatal("compute must not run on a persistent hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, []byte("card"), v)
	assert.Equal(t, int64(1), c2.Stats().PersistentHits)

	// The hit was promoted: the next lookup stays in-process.
	readsBefore := store.reads
	_, cached, err = c2.GetOrCompute(context.Background(), key, nil)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, readsBefore, store.reads, "promoted entry must not touch the store again")
}

func TestTieredCache_CompressionRoundTrip(t *testing.T) {
	store := newMemStore()
	cfg := testConfig()
	cfg.CompressionThreshold = 64
	c1, err := New(cfg, store)
	require.NoError(t, err)

	big := bytes.Repeat([]byte("nuances of politeness levels "), 100)
	key := Key{Stage: StageAnalysis, Digest: "big"}
	_, _, err = c1.GetOrCompute(context.Background(), key, func(context.Context) ([]byte, error) {
		return big, nil
	})
	require.NoError(t, err)

	rec := store.records[key.String()]
	require.NotNil(t, rec)
	assert.True(t, rec.Compressed)
	assert.Less(t, len(rec.Value), len(big))

	// A cold instance must transparently inflate on read.
	c2, err := New(cfg, store)
	require.NoError(t, err)
	v, cached, err := c2.GetOrCompute(context.Background(), key, nil)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, big, v)
}

func TestTieredCache_StampedeCoalesced(t *testing.T) {
	store := newMemStore()
	c, err := New(testConfig(), store)
	require.NoError(t, err)

	key := Key{Stage: StageAnalysis, Digest: "hot"}

	var calls atomic.Int64
	gate := make(chan struct{})
	compute := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-gate
		return []byte("shared"), nil
	}

	const workers = 50
	var wg sync.WaitGroup
	results := make([][]byte, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = c.GetOrCompute(context.Background(), key, compute)
		}(i)
	}

	// Let the flights pile up behind the in-progress computation.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int64(2), "concurrent lookups must coalesce into at most a straggler plus one computation")
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []byte("shared"), results[i])
	}
}

func TestTieredCache_WriteFailureDoesNotFailCall(t *testing.T) {
	store := newMemStore()
	store.writeErr = errors.New("disk full")
	c, err := New(testConfig(), store)
	require.NoError(t, err)

	key := Key{Stage: StageAnalysis, Digest: "w"}
	v, cached, err := c.GetOrCompute(context.Background(), key, func(context.Context) ([]byte, error) {
		return []byte("value"), nil
	})
	require.NoError(t, err, "persistence failure must not fail the computation")
	assert.False(t, cached)
	assert.Equal(t, []byte("value"), v)
	assert.Equal(t, int64(1), c.Stats().WriteFailures)

	// The fast tier still serves the value.
	v, cached, err = c.GetOrCompute(context.Background(), key, nil)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, []byte("value"), v)
}

func TestTieredCache_StoreReadErrorSurfaces(t *testing.T) {
	store := newMemStore()
	c, err := New(testConfig(), store)
	require.NoError(t, err)

	// Populate persistent with a record that is flagged compressed but is
	// not valid gzip; the read path must surface the decode failure.
	key := Key{Stage: StageAnalysis, Digest: "corrupt"}
	store.records[key.String()] = &repository.CacheRecord{
		Key:        key.String(),
		Value:      []byte("not gzip"),
		Compressed: true,
	}

	_, _, err = c.GetOrCompute(context.Background(), key, func(context.Context) ([]byte, error) {
		return []byte("fresh"), nil
	})
	assert.Error(t, err)
}

func TestFastTier_ConcurrentAccess(t *testing.T) {
	cfg := testConfig()
	cfg.FastCapacity = 64
	cfg.ApplyDefaults()
	tier := newFastTier(cfg)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k-%d", i%100)
				tier.set(key, []byte("v"))
				tier.get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, tier.len(), 64, "tier must never exceed capacity")
}
