package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store for upstream responses.
// Implementations: memory (tests, no data dir), badger (persistent)
type Cache interface {
	// Get returns the value for key and whether it was found
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key string, value []byte) error

	// Close releases resources held by the cache
	Close() error
}

// Stats describes the cache contents.
type Stats struct {
	Entries   uint64    `json:"entries"`
	SizeBytes uint64    `json:"size_bytes"`
	CheckedAt time.Time `json:"checked_at"`
}

// Reporter is implemented by caches that can describe their contents.
type Reporter interface {
	Stats(ctx context.Context) (Stats, error)
}
