package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sachinecin/AHS-Agentic/internal/domain"
)

// LocalDormantCache is the fallback warm-tier cache used when no external
// cache is configured. Entries expire lazily on read.
type LocalDormantCache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]cacheEntry
}

type cacheEntry struct {
	fact      *domain.FactNode
	expiresAt time.Time
}

func NewLocalDormantCache() *LocalDormantCache {
	return &LocalDormantCache{entries: make(map[uuid.UUID]cacheEntry)}
}

func (c *LocalDormantCache) Get(id uuid.UUID) (*domain.FactNode, bool) {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.Delete(id)
		return nil, false
	}
	return entry.fact.Clone(), true
}

// Set stores a copy of the fact. A non-positive ttl means no expiry, which
// is the documented degraded mode for the in-process cache.
func (c *LocalDormantCache) Set(id uuid.UUID, fact *domain.FactNode, ttl time.Duration) {
	entry := cacheEntry{fact: fact.Clone()}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[id] = entry
	c.mu.Unlock()
}

func (c *LocalDormantCache) Delete(id uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

func (c *LocalDormantCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
