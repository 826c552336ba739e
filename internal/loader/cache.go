package loader

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long a cached document stays fresh.
const DefaultTTL = 15 * time.Minute

// Entry is one cached document: the raw JSON and when it was stored.
type Entry struct {
	Data      []byte    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Fresh reports whether the entry is younger than ttl at now.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.Timestamp) < ttl
}

// Cache stores raw documents by key. Get reports ok=false for a missing key.
// Implementations do not interpret the data. The Loader ignores and deletes
// stale entries it reads, so a backend only has to reclaim keys nobody asks
// for again.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
}

// MemoryCache is an in-process Cache. With a TTL, Set sweeps out expired
// entries at most once per TTL and Get hides them.
type MemoryCache struct {
	mu        sync.RWMutex
	entries   map[string]Entry
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

type MemoryOption func(*MemoryCache)

// WithMemoryTTL expires entries older than ttl. Zero keeps them forever.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(c *MemoryCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{entries: map[string]Entry{}, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if ok && c.ttl > 0 && !e.Fresh(c.now(), c.ttl) {
		return Entry{}, false, nil
	}
	return e, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, entry Entry) error {
	data := append([]byte(nil), entry.Data...)
	c.mu.Lock()
	c.entries[key] = Entry{Data: data, Timestamp: entry.Timestamp}
	c.sweepLocked()
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// sweepLocked drops expired entries. Callers hold the write lock.
func (c *MemoryCache) sweepLocked() {
	if c.ttl <= 0 {
		return
	}
	now := c.now()
	if !c.lastSweep.IsZero() && now.Sub(c.lastSweep) < c.ttl {
		return
	}
	c.lastSweep = now
	for key, e := range c.entries {
		if !e.Fresh(now, c.ttl) {
			delete(c.entries, key)
		}
	}
}

// Len is the number of stored entries, including expired ones the next
// sweep has not reached yet.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
