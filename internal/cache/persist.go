package cache

import (
	"encoding/json"
	"os"
	"time"
)

type metaRecord struct {
	LastUsedUnix int64  `json:"last_used_unix"`
	SizeBytes    int64  `json:"size_bytes"`
	Hits         uint64 `json:"hits"`
}

// LoadMetadata reads per-key recency metadata written by SaveMetadata.
// Records are applied once, when a matching key is next inserted, so a
// restarted process warm-starts its LRU ordering. Missing or unreadable
// files are ignored.
func (c *LRU) LoadMetadata(path string) {
	if path == "" {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	var data map[string]metaRecord
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		return
	}
	c.mu.Lock()
	c.meta = data
	c.mu.Unlock()
}

// SaveMetadata snapshots per-key recency metadata to path.
func (c *LRU) SaveMetadata(path string) {
	if path == "" {
		return
	}
	c.mu.Lock()
	snap := make(map[string]metaRecord, len(c.entries))
	for key, e := range c.entries {
		snap[key] = metaRecord{LastUsedUnix: e.lastUsed.Unix(), SizeBytes: e.size, Hits: e.hits}
	}
	c.mu.Unlock()
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, b, 0o644)
}

// applyMetaLocked seeds a fresh entry from persisted metadata, if present.
// Caller holds the lock.
func (c *LRU) applyMetaLocked(e *entry) {
	rec, ok := c.meta[e.key]
	if !ok {
		return
	}
	delete(c.meta, e.key)
	if t := time.Unix(rec.LastUsedUnix, 0); rec.LastUsedUnix > 0 && t.Before(e.lastUsed) {
		e.lastUsed = t
	}
	e.hits = rec.Hits
}
