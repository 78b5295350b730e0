package user

import (
	"sync"
	"time"
)

type tierEntry struct {
	tier      string
	expiresAt time.Time
}

// tierCache keeps recently resolved VIP tiers so the daily status page does not
// hit the subscriptions table on every refresh.
type tierCache struct {
	mu    sync.RWMutex
	items map[int64]tierEntry
	ttl   time.Duration
	limit int
}

func newTierCache(limit int, ttl time.Duration) *tierCache {
	if limit <= 0 || ttl <= 0 {
		return &tierCache{}
	}
	return &tierCache{
		items: make(map[int64]tierEntry, limit),
		ttl:   ttl,
		limit: limit,
	}
}

func (c *tierCache) get(userID int64, now time.Time) (string, bool) {
	if c.items == nil {
		return "", false
	}

	c.mu.RLock()
	entry, ok := c.items[userID]
	c.mu.RUnlock()

	if !ok || now.After(entry.expiresAt) {
		if ok {
			c.mu.Lock()
			delete(c.items, userID)
			c.mu.Unlock()
		}
		return "", false
	}
	return entry.tier, true
}

func (c *tierCache) set(userID int64, tier string, now time.Time) {
	if c.items == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Over the limit the whole map is dropped.
	if len(c.items) >= c.limit {
		c.items = make(map[int64]tierEntry, c.limit)
	}
	c.items[userID] = tierEntry{tier: tier, expiresAt: now.Add(c.ttl)}
}
