package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/klauspost/compress/zstd"

	"github.com/nicktill/starcast/pkg/cache"
)

// keyPrefix namespaces cache entries inside the database.
var keyPrefix = []byte("c:")

// Cache implements cache.Cache using BadgerDB (LSM tree).
// Values are zstd-compressed and expire after the configured TTL.
type Cache struct {
	db      *badger.DB
	ttl     time.Duration
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

var (
	_ cache.Cache    = (*Cache)(nil)
	_ cache.Reporter = (*Cache)(nil)
)

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = laptop-friendly default)
	MaxMemoryMB int64

	// TTL expires entries after this duration (0 = never)
	TTL time.Duration
}

// New opens a BadgerDB-backed cache.
func New(cfg Config) (*Cache, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// BadgerDB defaults to a 64 MB memtable x 5; keep it well under 100 MB
	memTableSize := int64(16 << 20)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB << 20 / 3
	}
	blockCacheSize := memTableSize / 2
	indexCacheSize := memTableSize / 4

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(blockCacheSize).
		WithIndexCacheSize(indexCacheSize).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(1).
		WithValueLogMaxEntries(5000).
		WithValueLogFileSize(64 << 20)

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	db, err := badger.Open(opts)
	if err != nil {
		encoder.Close()
		decoder.Close()
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Cache{db: db, ttl: cfg.TTL, encoder: encoder, decoder: decoder}, nil
}

// Get returns the value stored under key.
// Enforces context cancellation so a stalled read cannot block a request.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	type getResult struct {
		value []byte
		found bool
		err   error
	}
	done := make(chan getResult, 1)

	go func() {
		var res getResult
		res.err = c.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get(makeKey(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				storedKey, value, err := c.decode(val)
				if err != nil {
					return err
				}
				// hash collision: treat as a miss
				if storedKey != key {
					return nil
				}
				res.value, res.found = value, true
				return nil
			})
		})
		done <- res
	}()

	select {
	case res := <-done:
		return res.value, res.found, res.err
	case <-ctx.Done():
		return nil, false, fmt.Errorf("cache read cancelled: %w", ctx.Err())
	}
}

// Set stores value under key with the cache TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded := c.encode(key, value)
	done := make(chan error, 1)
	go func() {
		done <- c.db.Update(func(txn *badger.Txn) error {
			entry := badger.NewEntry(makeKey(key), encoded)
			if c.ttl > 0 {
				entry = entry.WithTTL(c.ttl)
			}
			return txn.SetEntry(entry)
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to write cache entry: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cache write cancelled: %w", ctx.Err())
	}
}

// Stats counts live entries and reports the on-disk size.
func (c *Cache) Stats(ctx context.Context) (cache.Stats, error) {
	if err := ctx.Err(); err != nil {
		return cache.Stats{}, err
	}

	type statsResult struct {
		entries uint64
		err     error
	}
	done := make(chan statsResult, 1)

	go func() {
		var res statsResult
		res.err = c.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = keyPrefix

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				res.entries++
				if res.entries%1000 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}
			}
			return nil
		})
		done <- res
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return cache.Stats{}, res.err
		}
		lsm, vlog := c.db.Size()
		return cache.Stats{
			Entries:   res.entries,
			SizeBytes: uint64(lsm + vlog),
			CheckedAt: time.Now(),
		}, nil
	case <-ctx.Done():
		return cache.Stats{}, fmt.Errorf("stats cancelled: %w", ctx.Err())
	}
}

// RunGC runs BadgerDB's value log garbage collection.
// discardRatio: rewrite a file if this fraction of it can be discarded (0.5 = 50%).
// Returns badger.ErrNoRewrite when there was nothing to collect.
func (c *Cache) RunGC(discardRatio float64) error {
	return c.db.RunValueLogGC(discardRatio)
}

// Close shuts down BadgerDB cleanly
func (c *Cache) Close() error {
	c.encoder.Close()
	c.decoder.Close()
	return c.db.Close()
}

// makeKey hashes arbitrary-length cache keys to a fixed 10-byte key.
func makeKey(key string) []byte {
	k := make([]byte, len(keyPrefix)+8)
	copy(k, keyPrefix)
	binary.BigEndian.PutUint64(k[len(keyPrefix):], xxhash.Sum64String(key))
	return k
}

// encode lays out uvarint(len(key)) | key | value and compresses it.
func (c *Cache) encode(key string, value []byte) []byte {
	raw := binary.AppendUvarint(nil, uint64(len(key)))
	raw = append(raw, key...)
	raw = append(raw, value...)
	return c.encoder.EncodeAll(raw, nil)
}

func (c *Cache) decode(compressed []byte) (string, []byte, error) {
	raw, err := c.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decompress cache entry: %w", err)
	}
	n, size := binary.Uvarint(raw)
	if size <= 0 || uint64(len(raw)-size) < n {
		return "", nil, errors.New("corrupt cache entry")
	}
	key := string(raw[size : size+int(n)])
	return key, raw[size+int(n):], nil
}
