package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/capitalize-ai/support-agent/internal/cache"
	"github.com/capitalize-ai/support-agent/internal/llm"
	"github.com/capitalize-ai/support-agent/internal/model"
)

// Cache is an in-memory semantic cache with the same tenant scoping and
// similarity rule as the Redis one.
type Cache struct {
	mu        sync.Mutex
	embedder  llm.Embedder
	threshold float64
	tenants   map[string]map[string]model.CacheEntry
	writes    []model.CacheEntry
	now       func() time.Time
}

// NewCache creates an empty cache.
func NewCache(embedder llm.Embedder, threshold float64) *Cache {
	return &Cache{
		embedder:  embedder,
		threshold: threshold,
		tenants:   make(map[string]map[string]model.CacheEntry),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Lookup returns the best entry at or above the threshold, or nil.
func (c *Cache) Lookup(ctx context.Context, tenantID, query string) (*model.CacheEntry, error) {
	vector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCacheUnavailable, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var best *model.CacheEntry
	for fp, entry := range c.tenants[tenantID] {
		if entry.Expired(now) {
			delete(c.tenants[tenantID], fp)
			continue
		}
		entry.Similarity = cache.Cosine(vector, entry.SimilarityVector)
		if entry.Similarity >= c.threshold && (best == nil || entry.Similarity > best.Similarity) {
			e := entry
			best = &e
		}
	}
	return best, nil
}

// Write inserts or overwrites the entry for query's fingerprint.
func (c *Cache) Write(ctx context.Context, tenantID, query, answer string, ttl time.Duration) error {
	vector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrCacheUnavailable, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := model.CacheEntry{
		TenantID:         tenantID,
		QueryFingerprint: cache.Fingerprint(query),
		QueryText:        query,
		SimilarityVector: vector,
		Answer:           answer,
		WrittenAt:        c.now(),
		TTL:              ttl,
	}
	if c.tenants[tenantID] == nil {
		c.tenants[tenantID] = make(map[string]model.CacheEntry)
	}
	c.tenants[tenantID][entry.QueryFingerprint] = entry
	c.writes = append(c.writes, entry)
	return nil
}

// Writes returns every write in order, including overwrites.
func (c *Cache) Writes() []model.CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.CacheEntry, len(c.writes))
	copy(out, c.writes)
	return out
}
