package resolver

import (
	"sync"
	"time"

	"github.com/xcobe/cnx-waterlevel-monitor/internal/store"
)

// memoCache is a small per-station TTL memo over resolved "current" readings.
// It exists so a burst of dashboard reads does not replay the whole fallback
// chain; expiry is swept by an explicit call, not an ambient timer.
type memoCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoEntry
}

type memoEntry struct {
	entry    *store.Entry
	storedAt time.Time
}

func newMemoCache(ttl time.Duration, now func() time.Time) *memoCache {
	return &memoCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]memoEntry),
	}
}

func (c *memoCache) get(stationID string) *store.Entry {
	if c.ttl <= 0 {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	m, exists := c.entries[stationID]
	if !exists || c.now().Sub(m.storedAt) >= c.ttl {
		return nil
	}

	copy := *m.entry
	return &copy
}

func (c *memoCache) set(stationID string, e *store.Entry) {
	if c.ttl <= 0 || e == nil {
		return
	}

	copy := *e

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[stationID] = memoEntry{entry: &copy, storedAt: c.now()}
}

// sweepExpired drops every expired entry and returns how many were removed.
func (c *memoCache) sweepExpired() int {
	if c.ttl <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := c.now()
	for id, m := range c.entries {
		if now.Sub(m.storedAt) >= c.ttl {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}
