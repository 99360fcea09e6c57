package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryCache is the in-process fallback used when Redis is unreachable.
// Entries expire lazily on read; Sweep drops expired entries in bulk and
// is meant to run from a periodic job.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	ttl   time.Duration
}

// NewMemoryCache creates an in-memory translation cache. A zero ttl
// disables expiry.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		items: make(map[string]memoryEntry),
		ttl:   ttl,
	}
}

// Get fetches a cached translation, honoring expiry.
func (c *MemoryCache) Get(_ context.Context, text, sourceLang, targetLang, modelType string) (*Entry, error) {
	c.mu.RLock()
	item, ok := c.items[cacheKey(text, sourceLang, targetLang, modelType)]
	c.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		return nil, nil
	}
	entry := item.entry
	return &entry, nil
}

// Set stores a translation with the configured TTL.
func (c *MemoryCache) Set(_ context.Context, text, sourceLang, targetLang, modelType, translatedText string) error {
	var expires time.Time
	if c.ttl > 0 {
		expires = time.Now().Add(c.ttl)
	}

	c.mu.Lock()
	c.items[cacheKey(text, sourceLang, targetLang, modelType)] = memoryEntry{
		entry: Entry{
			TranslatedText: translatedText,
			SourceLanguage: sourceLang,
			ModelType:      modelType,
		},
		expiresAt: expires,
	}
	c.mu.Unlock()
	return nil
}

// Sweep removes expired entries and reports how many were dropped.
func (c *MemoryCache) Sweep() int {
	now := time.Now()
	removed := 0

	c.mu.Lock()
	for key, item := range c.items {
		if !item.expiresAt.IsZero() && now.After(item.expiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	c.mu.Unlock()
	return removed
}

// Len reports the number of live and expired entries still held.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
