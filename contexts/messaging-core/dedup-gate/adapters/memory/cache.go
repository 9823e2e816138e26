package memory

import (
	"sync"
	"time"

	"porter/contexts/messaging-core/dedup-gate/ports"
)

type cacheEntry struct {
	record    ports.Record
	expiresAt time.Time
}

// Cache is the in-process TTL fast path of the dedup gate. Expired entries
// are dropped lazily on Get and swept opportunistically on Put.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

func (c *Cache) Get(messageID string, now time.Time) (ports.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[messageID]
	if !ok {
		return ports.Record{}, false
	}
	if now.After(entry.expiresAt) {
		delete(c.entries, messageID)
		return ports.Record{}, false
	}
	return entry.record, true
}

func (c *Cache) Put(record ports.Record, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Piggyback a bounded sweep so the map cannot grow without Get traffic.
	swept := 0
	for id, entry := range c.entries {
		if expiresAt.After(entry.expiresAt) && record.LastSeenAt.After(entry.expiresAt) {
			delete(c.entries, id)
		}
		swept++
		if swept >= 64 {
			break
		}
	}

	c.entries[record.MessageID] = cacheEntry{record: record, expiresAt: expiresAt}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
