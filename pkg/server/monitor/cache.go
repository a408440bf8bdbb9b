package monitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nicktill/starcast/pkg/cache"
	"github.com/nicktill/starcast/pkg/config"
)

// CacheUsage is the response of the cache usage endpoint.
type CacheUsage struct {
	// DiskBytes is the actual disk usage of the data directory (0 for in-memory caches)
	DiskBytes int64 `json:"disk_bytes"`

	cache.Stats
}

// CacheMonitor reports cache usage, caching the result to avoid expensive filesystem walks.
type CacheMonitor struct {
	dataDir       string
	reporter      cache.Reporter
	cached        CacheUsage
	lastCheck     time.Time
	cacheDuration time.Duration
	mu            sync.Mutex
}

// NewCacheMonitor creates a monitor for the cache stored in dataDir.
// Either argument may be empty/nil.
func NewCacheMonitor(dataDir string, reporter cache.Reporter) *CacheMonitor {
	return &CacheMonitor{
		dataDir:       dataDir,
		reporter:      reporter,
		cacheDuration: config.CacheUsageRefresh,
	}
}

// Usage returns current cache usage, refreshed at most every CacheUsageRefresh.
func (cm *CacheMonitor) Usage(ctx context.Context) (CacheUsage, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.lastCheck.IsZero() && time.Since(cm.lastCheck) < cm.cacheDuration {
		return cm.cached, nil
	}

	var usage CacheUsage
	if cm.dataDir != "" {
		size, err := calculateDirSize(cm.dataDir)
		if err != nil {
			return CacheUsage{}, err
		}
		usage.DiskBytes = size
	}
	if cm.reporter != nil {
		stats, err := cm.reporter.Stats(ctx)
		if err != nil {
			return CacheUsage{}, err
		}
		usage.Stats = stats
	}

	cm.cached = usage
	cm.lastCheck = time.Now()
	return usage, nil
}

// calculateDirSize recursively calculates directory size in bytes.
// Uses actual disk usage (not logical size) to handle sparse files correctly.
func calculateDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			actualSize, err := getActualFileSize(filePath, info)
			if err != nil {
				size += info.Size()
			} else {
				size += actualSize
			}
		}
		return nil
	})
	return size, err
}

// getActualFileSize is implemented in platform-specific files:
// - filesize_unix.go (Linux/Mac): Uses syscall.Stat_t.Blocks
// - filesize_windows.go (Windows): Uses GetCompressedFileSizeW API
