// Package cache defines the key-value cache port used for crew config documents
// and other read-mostly data.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Loader produces a value on a cache miss.
type Loader func(ctx context.Context) ([]byte, error)

// GetOrLoad returns the cached value for key, calling load and storing its
// result on a miss. Cache read and write failures are treated as misses so a
// broken cache never blocks the caller.
func GetOrLoad(ctx context.Context, c Cache, key string, ttl time.Duration, load Loader) ([]byte, error) {
	if c != nil {
		if val, found, err := c.Get(ctx, key); err == nil && found {
			return val, nil
		}
	}
	val, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if c != nil {
		_ = c.Set(ctx, key, val, ttl)
	}
	return val, nil
}
