package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/starcast/pkg/cache/memory"
)

func TestCacheMonitor_Usage(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "000001.vlog"), []byte("test data"), 0644))

	c := memory.New(16, time.Hour)
	require.NoError(t, c.Set(context.Background(), "k", []byte("abcd")))

	cm := NewCacheMonitor(tmpDir, c)
	usage, err := cm.Usage(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, usage.DiskBytes, int64(9))
	assert.Equal(t, uint64(1), usage.Entries)
	assert.Equal(t, uint64(4), usage.SizeBytes)
}

func TestCacheMonitor_Caching(t *testing.T) {
	c := memory.New(16, time.Hour)
	cm := NewCacheMonitor("", c)

	first, err := cm.Usage(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.Set(context.Background(), "k", []byte("v")))
	second, err := cm.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second, "usage is cached between refreshes")

	cm.mu.Lock()
	cm.lastCheck = time.Now().Add(-time.Minute)
	cm.mu.Unlock()

	third, err := cm.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), third.Entries)
}

func TestCacheMonitor_MissingDir(t *testing.T) {
	cm := NewCacheMonitor(filepath.Join(t.TempDir(), "nope"), nil)
	_, err := cm.Usage(context.Background())
	assert.Error(t, err)
}
