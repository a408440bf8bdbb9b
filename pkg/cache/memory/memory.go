package memory

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nicktill/starcast/pkg/cache"
)

// Cache keeps entries in a bounded LRU. Data is lost on restart.
// Useful for testing and when no data directory is configured.
type Cache struct {
	lru *expirable.LRU[string, []byte]
}

var (
	_ cache.Cache    = (*Cache)(nil)
	_ cache.Reporter = (*Cache)(nil)
)

// New creates an in-memory cache holding at most size entries, each expiring after ttl (0 = never).
func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 1
	}
	return &Cache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Get returns a copy of the cached value.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set stores a copy of value under key.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.lru.Add(key, append([]byte(nil), value...))
	return nil
}

// Stats reports the number of live entries and their total value size.
func (c *Cache) Stats(ctx context.Context) (cache.Stats, error) {
	if err := ctx.Err(); err != nil {
		return cache.Stats{}, err
	}
	var size uint64
	for _, v := range c.lru.Values() {
		size += uint64(len(v))
	}
	return cache.Stats{
		Entries:   uint64(c.lru.Len()),
		SizeBytes: size,
		CheckedAt: time.Now(),
	}, nil
}

// Close drops all entries.
func (c *Cache) Close() error {
	c.lru.Purge()
	return nil
}
