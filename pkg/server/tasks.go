package server

import (
	"errors"
	"log"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/nicktill/starcast/pkg/cache"
	"github.com/nicktill/starcast/pkg/cache/badger"
	"github.com/nicktill/starcast/pkg/config"
)

// RunBadgerGC runs BadgerDB value log garbage collection periodically to
// reclaim disk space from expired and overwritten pages.
func RunBadgerGC(c cache.Cache, stop chan bool, wg *sync.WaitGroup) {
	defer wg.Done()

	badgerCache, ok := c.(*badger.Cache)
	if !ok {
		log.Println("Cache is not BadgerDB, skipping GC")
		return
	}

	ticker := time.NewTicker(config.BadgerGCInterval)
	defer ticker.Stop()

	log.Printf("BadgerDB GC scheduler started (runs every %v)", config.BadgerGCInterval)

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			rewrites := 0
			// RunGC rewrites at most one file per call; loop until nothing is left
			for {
				err := badgerCache.RunGC(config.BadgerGCDiscardRatio)
				if err == nil {
					rewrites++
					continue
				}
				if !errors.Is(err, badgerdb.ErrNoRewrite) {
					log.Printf("BadgerDB GC failed: %v", err)
				}
				break
			}
			log.Printf("GC completed in %v (%d value log files rewritten)", time.Since(start).Round(time.Millisecond), rewrites)
		case <-stop:
			log.Println("Stopping BadgerDB GC scheduler")
			return
		}
	}
}
