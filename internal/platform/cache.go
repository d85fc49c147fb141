package platform

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"DealPilot/internal/deal"
)

// QuoteCache stores successful search quotes so repeated research of the
// same item on the same platform does not drive the device again.
type QuoteCache interface {
	Get(ctx context.Context, key string) (deal.Quote, bool)
	Set(ctx context.Context, key string, q deal.Quote) error
}

// MemoryCache is an in-process LRU with per-entry expiry.
type MemoryCache struct {
	lru *expirable.LRU[string, deal.Quote]
}

// NewMemoryCache creates a cache holding at most size quotes for ttl.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 256
	}
	return &MemoryCache{lru: expirable.NewLRU[string, deal.Quote](size, nil, ttl)}
}

// Get implements QuoteCache.
func (c *MemoryCache) Get(_ context.Context, key string) (deal.Quote, bool) {
	return c.lru.Get(key)
}

// Set implements QuoteCache.
func (c *MemoryCache) Set(_ context.Context, key string, q deal.Quote) error {
	c.lru.Add(key, q)
	return nil
}

// Len reports the number of live entries.
func (c *MemoryCache) Len() int { return c.lru.Len() }

// CacheKey builds the key for platform and q.
func CacheKey(platform string, q Query) string {
	return platform + "|" + q.Key()
}
