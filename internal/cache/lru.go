// Package cache bounds resident model memory with byte-capacity LRU
// eviction. At most one live instance exists per cache key, and every
// eviction releases the instance's native resources through the owning
// adapter before the entry disappears.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"idgaf/internal/fault"
	"idgaf/pkg/types"
)

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "idgaf", Subsystem: "cache", Name: "hits_total",
		Help: "Cache lookups that found a resident model",
	})
	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "idgaf", Subsystem: "cache", Name: "misses_total",
		Help: "Cache lookups that missed",
	})
	cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "idgaf", Subsystem: "cache", Name: "evictions_total",
		Help: "Entries evicted to free capacity",
	})
	cacheResidentBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "idgaf", Subsystem: "cache", Name: "resident_bytes",
		Help: "Sum of declared sizes of resident models",
	})
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMisses, cacheEvictions, cacheResidentBytes)
}

type entry struct {
	key      string
	model    *types.LoadedModel
	size     int64
	lastUsed time.Time
	hits     uint64
}

// LRU is the bounded pool of loaded models. Mutating calls are expected to
// be issued sequentially by a single logical caller; the internal mutex
// protects bookkeeping, not cross-call atomicity of overlapping Sets on the
// same key.
type LRU struct {
	mu        sync.Mutex
	max       int64
	cur       int64
	entries   map[string]*entry
	hits      uint64
	misses    uint64
	evictions uint64
	onRemove  func(modelID string)
	meta      map[string]metaRecord
}

// NewLRU returns a cache bounded to maxBytes of declared model size.
func NewLRU(maxBytes int64) *LRU {
	return &LRU{max: maxBytes, entries: make(map[string]*entry)}
}

// SetOnRemove installs a hook invoked (outside the lock) with the model id
// of every entry removed by eviction, deletion, overwrite, or clear. The
// engine uses it to drop registry tracking.
func (c *LRU) SetOnRemove(fn func(modelID string)) {
	c.mu.Lock()
	c.onRemove = fn
	c.mu.Unlock()
}

// Get returns the cached model for key, refreshing its recency and hit
// count. Returns nil on miss.
func (c *LRU) Get(key string) *types.LoadedModel {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		cacheMisses.Inc()
		return nil
	}
	e.lastUsed = time.Now()
	e.hits++
	c.hits++
	cacheHits.Inc()
	return e.model
}

// Set installs model under key, evicting least-recently-used entries one at
// a time until the insert fits. An entry larger than total capacity fails
// with a resource-exhaustion error instead of violating the bound. If key
// already exists, the prior instance is unloaded and its size subtracted
// before the new entry is added.
func (c *LRU) Set(ctx context.Context, key string, model *types.LoadedModel) error {
	size := model.Info.Size
	if size > c.max {
		return fault.New(fault.KindResourceExhaustion,
			"model size %d exceeds cache capacity %d", size, c.max).
			WithBudget(size, c.max).WithModel(model.ID)
	}

	// Overwrite: release the existing instance first so exactly one live
	// instance exists per key.
	c.mu.Lock()
	if old, ok := c.entries[key]; ok {
		c.mu.Unlock()
		if err := old.model.Adapter.Unload(ctx, old.model.ID); err != nil {
			return fault.Wrap(fault.KindLoadFailure, err, "unload prior entry for key %q", key).WithModel(old.model.ID)
		}
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur == old {
			delete(c.entries, key)
			c.cur -= old.size
			c.mu.Unlock()
			c.notify(old.model.ID)
			c.mu.Lock()
		}
	}
	c.mu.Unlock()

	// Evict until the insert fits, one LRU entry at a time.
	for {
		c.mu.Lock()
		if c.cur+size <= c.max || len(c.entries) == 0 {
			c.mu.Unlock()
			break
		}
		victim := c.lruLocked()
		c.mu.Unlock()
		if victim == nil {
			break
		}
		if err := c.remove(ctx, victim.key, true); err != nil {
			return err
		}
	}

	c.mu.Lock()
	e := &entry{key: key, model: model, size: size, lastUsed: time.Now()}
	c.applyMetaLocked(e)
	c.entries[key] = e
	c.cur += size
	cacheResidentBytes.Set(float64(c.cur))
	c.mu.Unlock()
	return nil
}

// Delete unloads and removes the entry for key. No-op when absent.
func (c *LRU) Delete(ctx context.Context, key string) error {
	return c.remove(ctx, key, false)
}

// remove unloads the entry's model via its adapter and then drops the
// bookkeeping. Size accounting is exact integers and never goes negative.
func (c *LRU) remove(ctx context.Context, key string, evicting bool) error {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if err := e.model.Adapter.Unload(ctx, e.model.ID); err != nil {
		return fault.Wrap(fault.KindLoadFailure, err, "unload cached model").WithModel(e.model.ID)
	}
	c.mu.Lock()
	removed := false
	if cur, ok := c.entries[key]; ok && cur == e {
		delete(c.entries, key)
		c.cur -= e.size
		if c.cur < 0 {
			c.cur = 0
		}
		if evicting {
			c.evictions++
			cacheEvictions.Inc()
		}
		cacheResidentBytes.Set(float64(c.cur))
		removed = true
	}
	c.mu.Unlock()
	if removed {
		c.notify(e.model.ID)
	}
	return nil
}

// Clear unloads all entries concurrently, tolerating individual failures,
// then resets bookkeeping unconditionally.
func (c *LRU) Clear(ctx context.Context) {
	c.mu.Lock()
	victims := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		victims = append(victims, e)
	}
	c.entries = make(map[string]*entry)
	c.cur = 0
	cacheResidentBytes.Set(0)
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range victims {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			// Best effort: a failed unload must not keep the cache dirty.
			_ = e.model.Adapter.Unload(ctx, e.model.ID)
			c.notify(e.model.ID)
		}(e)
	}
	wg.Wait()
}

// Prune deletes every entry idle longer than maxAge and returns the count
// removed. Goes through Delete so adapters are unloaded.
func (c *LRU) Prune(ctx context.Context, maxAge time.Duration) int {
	now := time.Now()
	c.mu.Lock()
	var stale []string
	for key, e := range c.entries {
		if now.Sub(e.lastUsed) > maxAge {
			stale = append(stale, key)
		}
	}
	c.mu.Unlock()
	removed := 0
	for _, key := range stale {
		if err := c.Delete(ctx, key); err == nil {
			removed++
		}
	}
	return removed
}

// Stats reports occupancy. HitRate is hits/(hits+misses); the source this
// derives from degenerated to 1.0 whenever any hit existed, which is kept
// out deliberately (see DESIGN.md).
func (c *LRU) Stats() types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return types.CacheStats{
		SizeBytes: c.cur,
		Entries:   len(c.entries),
		HitRate:   rate,
		Evictions: c.evictions,
	}
}

// KeyOf returns the cache key holding the given model instance id.
func (c *LRU) KeyOf(modelID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.model.ID == modelID {
			return k, true
		}
	}
	return "", false
}

// Keys returns resident cache keys (unordered).
func (c *LRU) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	return out
}

// lruLocked picks the entry with the oldest lastUsed; ties go to the first
// found. Caller holds the lock.
func (c *LRU) lruLocked() *entry {
	var lru *entry
	for _, e := range c.entries {
		if lru == nil || e.lastUsed.Before(lru.lastUsed) {
			lru = e
		}
	}
	return lru
}

func (c *LRU) notify(modelID string) {
	c.mu.Lock()
	fn := c.onRemove
	c.mu.Unlock()
	if fn != nil {
		fn(modelID)
	}
}
