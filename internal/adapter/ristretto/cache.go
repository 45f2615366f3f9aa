// Package ristretto implements the cache port on dgraph-io/ristretto, used as
// the in-process L1 for crew config documents.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// avgEntryBytes is the expected size of one cached config document.
const avgEntryBytes = 2048

// Cache is an in-process L1 cache with a byte budget.
type Cache struct {
	c          *ristretto.Cache[string, []byte]
	defaultTTL time.Duration
}

// New creates a cache holding at most maxCostBytes of values. Entries set
// with a zero TTL live for defaultTTL; zero means no expiry.
func New(maxCostBytes int64, defaultTTL time.Duration) (*Cache, error) {
	if maxCostBytes < avgEntryBytes {
		maxCostBytes = avgEntryBytes
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(maxCostBytes/avgEntryBytes*10, 100),
		MaxCost:     maxCostBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c, defaultTTL: defaultTTL}, nil
}

// Get returns a copy of the cached value.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return append([]byte(nil), val...), true, nil
}

// Set stores a copy of value. Writes are visible to the next Get.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.c.SetWithTTL(key, append([]byte(nil), value...), int64(len(value)), ttl)
	c.c.Wait()
	return nil
}

// Delete removes a value from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.c.Clear()
}

// HitRatio reports the fraction of Gets served from the cache.
func (c *Cache) HitRatio() float64 {
	return c.c.Metrics.Ratio()
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
