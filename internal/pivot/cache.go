package pivot

import (
	"container/list"
	"sync"
	"time"

	v1 "github.com/crosstab-lab/crosstab/internal/api/v1"
)

// CacheEntry is one cached materialization. Owned exclusively by the
// cache; lifetime is governed by TTL and capacity, never by callers.
type CacheEntry struct {
	Fingerprint   string
	Structure     *v1.PivotStructure
	Request       v1.PivotRequest
	HasMore       bool
	TotalDataRows int
	CreatedAt     time.Time
}

// ResultCache holds materialized pivots keyed by fingerprint.
//
// Entries expire after the TTL and are reaped by Sweep; at capacity the
// least-recently-created entry is evicted first. All access is guarded
// by one map-wide lock, but computing a pivot while holding it is
// forbidden: compute first, then lock briefly to insert.
type ResultCache struct {
	mu       sync.RWMutex
	ttl      time.Duration
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently created
	nowFn    func() time.Time
}

// NewResultCache creates a cache with the given TTL and maximum entry
// count.
func NewResultCache(ttl time.Duration, capacity int) *ResultCache {
	return &ResultCache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Get retrieves an entry by fingerprint. Expired entries are a miss;
// their removal is left to the sweeper.
func (c *ResultCache) Get(fingerprint string) (*CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	elem, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*CacheEntry)
	if c.expired(entry, c.nowFn()) {
		return nil, false
	}
	return entry, true
}

// Put inserts an entry, evicting the least-recently-created entries if
// the capacity would be exceeded. Re-inserting a fingerprint refreshes
// its creation time.
func (c *ResultCache) Put(entry *CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry.CreatedAt = c.nowFn()

	if elem, ok := c.entries[entry.Fingerprint]; ok {
		c.order.MoveToFront(elem)
		elem.Value = entry
		return
	}

	for c.capacity > 0 && c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		evicted := oldest.Value.(*CacheEntry)
		delete(c.entries, evicted.Fingerprint)
		c.order.Remove(oldest)
	}

	c.entries[entry.Fingerprint] = c.order.PushFront(entry)
}

// Invalidate removes one entry explicitly.
func (c *ResultCache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[fingerprint]; ok {
		delete(c.entries, fingerprint)
		c.order.Remove(elem)
	}
}

// Sweep removes all expired entries and reports how many were removed.
// Keys are snapshotted under the read lock first so the write lock is
// never held across a full scan of a large cache.
func (c *ResultCache) Sweep() int {
	now := c.nowFn()

	c.mu.RLock()
	expired := make([]string, 0)
	for fp, elem := range c.entries {
		if c.expired(elem.Value.(*CacheEntry), now) {
			expired = append(expired, fp)
		}
	}
	c.mu.RUnlock()

	if len(expired) == 0 {
		return 0
	}

	removed := 0
	c.mu.Lock()
	for _, fp := range expired {
		elem, ok := c.entries[fp]
		if !ok {
			continue
		}
		// Re-check: the entry may have been refreshed since the snapshot.
		if !c.expired(elem.Value.(*CacheEntry), now) {
			continue
		}
		delete(c.entries, fp)
		c.order.Remove(elem)
		removed++
	}
	c.mu.Unlock()

	return removed
}

// Len reports the current entry count.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

func (c *ResultCache) expired(entry *CacheEntry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(entry.CreatedAt) > c.ttl
}
