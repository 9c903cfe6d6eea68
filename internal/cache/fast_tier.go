package cache

import (
	"container/list"
	"sync"
	"time"
)

// fastEntry is one fast-tier slot.
type fastEntry struct {
	key       string
	value     []byte
	hits      int64
	expiresAt time.Time // zero for lru/lfu
	elem      *list.Element
}

// fastTier is the bounded in-process tier. All policies share one map; the
// lru policy additionally maintains a recency list. Values are treated as
// immutable by callers.
type fastTier struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*fastEntry
	lruList *list.List // front = most recently used
}

func newFastTier(cfg Config) *fastTier {
	return &fastTier{
		cfg:     cfg,
		entries: make(map[string]*fastEntry, cfg.FastCapacity),
		lruList: list.New(),
	}
}

// get returns the cached value and whether it was present and live.
func (t *fastTier) get(key string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		return nil, false
	}

	if t.cfg.Eviction == EvictTTL && t.cfg.Clock.Now().After(e.expiresAt) {
		t.removeLocked(e)
		return nil, false
	}

	e.hits++
	if t.cfg.Eviction == EvictLRU {
		t.lruList.MoveToFront(e.elem)
	}
	return e.value, true
}

// set stores a value, evicting per policy when at capacity. Re-setting an
// existing key refreshes its value, recency, and expiry.
func (t *fastTier) set(key string, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[key]; ok {
		e.value = value
		if t.cfg.Eviction == EvictLRU {
			t.lruList.MoveToFront(e.elem)
		}
		if t.cfg.Eviction == EvictTTL {
			e.expiresAt = t.cfg.Clock.Now().Add(t.cfg.jitteredTTL())
		}
		return
	}

	if len(t.entries) >= t.cfg.FastCapacity {
		t.evictLocked()
	}

	e := &fastEntry{key: key, value: value}
	if t.cfg.Eviction == EvictTTL {
		e.expiresAt = t.cfg.Clock.Now().Add(t.cfg.jitteredTTL())
	}
	if t.cfg.Eviction == EvictLRU {
		e.elem = t.lruList.PushFront(e)
	}
	t.entries[key] = e
}

// len reports the live entry count. TTL-expired entries still resident are
// counted; they are dropped lazily on access or eviction.
func (t *fastTier) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// evictLocked removes one entry according to the configured policy.
// Caller must hold t.mu.
func (t *fastTier) evictLocked() {
	switch t.cfg.Eviction {
	case EvictLRU:
		back := t.lruList.Back()
		if back != nil {
			t.removeLocked(back.Value.(*fastEntry))
		}
	case EvictLFU:
		var victim *fastEntry
		for _, e := range t.entries {
			if victim == nil || e.hits < victim.hits {
				victim = e
			}
		}
		if victim != nil {
			t.removeLocked(victim)
		}
	case EvictTTL:
		now := t.cfg.Clock.Now()
		var victim *fastEntry
		for _, e := range t.entries {
			// Prefer anything already expired; otherwise the soonest to expire.
			if now.After(e.expiresAt) {
				victim = e
				break
			}
			if victim == nil || e.expiresAt.Before(victim.expiresAt) {
				victim = e
			}
		}
		if victim != nil {
			t.removeLocked(victim)
		}
	}
}

// removeLocked unlinks an entry from the map and, for lru, the recency list.
// Caller must hold t.mu.
func (t *fastTier) removeLocked(e *fastEntry) {
	delete(t.entries, e.key)
	if e.elem != nil {
		t.lruList.Remove(e.elem)
		e.elem = nil
	}
}
