package embed

import (
	"container/list"
	"context"
	"sync"
)

// CachedProvider wraps a Provider with an LRU cache keyed by input text.
// Repeated queries and re-ingested documents skip the network round trip.
type CachedProvider struct {
	inner Provider

	mu      sync.Mutex
	maxSize int
	order   *list.List // front = most recent, values are cache keys
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	vector  []float32
	element *list.Element
}

// WithCache wraps a Provider with an LRU cache of at most maxSize entries.
func WithCache(p Provider, maxSize int) Provider {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &CachedProvider{
		inner:   p,
		maxSize: maxSize,
		order:   list.New(),
		entries: make(map[string]*cacheEntry),
	}
}

// Embed returns the cached embedding for text when present, otherwise
// delegates to the wrapped provider and caches the result.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.get(text); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(text, vec)
	return vec, nil
}

// EmbedBatch embeds texts, serving cached entries and batching only the misses.
func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if vec, ok := c.get(text); ok {
			results[i] = vec
		} else {
			missing = append(missing, text)
			missingIdx = append(missingIdx, i)
		}
	}

	if len(missing) == 0 {
		return results, nil
	}

	embedded, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for i, vec := range embedded {
		c.put(missing[i], vec)
		results[missingIdx[i]] = vec
	}

	return results, nil
}

func (c *CachedProvider) Model() string {
	return c.inner.Model()
}

func (c *CachedProvider) Dimensions() int {
	return c.inner.Dimensions()
}

func (c *CachedProvider) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx)
}

func (c *CachedProvider) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(entry.element)
	return entry.vector, true
}

func (c *CachedProvider) put(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		entry.vector = vec
		c.order.MoveToFront(entry.element)
		return
	}

	for len(c.entries) >= c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(string))
	}

	c.entries[key] = &cacheEntry{
		vector:  vec,
		element: c.order.PushFront(key),
	}
}

// Len reports the number of cached embeddings.
func (c *CachedProvider) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
