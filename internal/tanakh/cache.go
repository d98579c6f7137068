package tanakh

import (
	"context"
	"sync"
)

type cacheKey struct {
	book    string
	chapter int
}

// Cache holds fetched chapters for the duration of a run. Entries are
// written once on first fetch and read-only afterward.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey][]Verse
}

func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey][]Verse)}
}

func (c *Cache) get(book string, chapter int) ([]Verse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	verses, ok := c.entries[cacheKey{book, chapter}]
	return verses, ok
}

func (c *Cache) put(book string, chapter int, verses []Verse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{book, chapter}
	if _, exists := c.entries[key]; exists {
		return
	}
	c.entries[key] = verses
}

// Len reports the number of cached chapters.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CachedProvider serves chapters from an injected cache, delegating to the
// inner provider on miss. Retried jobs never re-fetch text they already
// have.
type CachedProvider struct {
	inner Provider
	cache *Cache
}

func NewCachedProvider(inner Provider, cache *Cache) *CachedProvider {
	return &CachedProvider{inner: inner, cache: cache}
}

func (p *CachedProvider) FetchChapter(ctx context.Context, book string, chapter int) ([]Verse, error) {
	if verses, ok := p.cache.get(book, chapter); ok {
		return verses, nil
	}

	verses, err := p.inner.FetchChapter(ctx, book, chapter)
	if err != nil {
		return nil, err
	}
	p.cache.put(book, chapter, verses)
	return verses, nil
}
