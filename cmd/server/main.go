package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/starcast/pkg/cache"
	"github.com/nicktill/starcast/pkg/config"
	"github.com/nicktill/starcast/pkg/server"
	"github.com/nicktill/starcast/pkg/server/hub"
	"github.com/nicktill/starcast/pkg/server/monitor"
)

func main() {
	log.Println("🚀 Starting Starcast Server...")

	cfg := server.LoadConfig()
	if cfg.MaxMemoryMB > 0 {
		log.Printf("⚙️  Configuration: port = %s, cache TTL = %v, memory limit = %d MB", cfg.Port, cfg.CacheTTL, cfg.MaxMemoryMB)
	} else {
		log.Printf("⚙️  Configuration: port = %s, cache TTL = %v, memory limit = auto-detect", cfg.Port, cfg.CacheTTL)
	}

	pages, err := server.InitializeCache(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize page cache: %v", err)
	}
	defer pages.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	updates := hub.New()
	wg.Add(1)
	go func() {
		defer wg.Done()
		updates.Run(ctx)
	}()
	log.Println("📡 WebSocket hub started for live series updates")

	svc, gh, err := server.InitializeService(cfg, pages, updates)
	if err != nil {
		log.Fatalf("❌ Failed to initialize history service: %v", err)
	}

	proxies, err := server.InitializeProxies(cfg, gh)
	if err != nil {
		log.Fatalf("❌ Failed to initialize upstream proxies: %v", err)
	}

	dataDir := cfg.DataDir
	if cfg.MemoryCache {
		dataDir = ""
	}
	reporter, _ := pages.(cache.Reporter)
	handler := server.NewHandler(svc, gh, &monitor.FetchMonitor{}, monitor.NewCacheMonitor(dataDir, reporter))

	stopGC := make(chan bool)
	wg.Add(1)
	go server.RunBadgerGC(pages, stopGC, &wg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.SetupRoutes(mux.NewRouter(), handler, updates, proxies, cfg.Port),
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
	}

	go func() {
		log.Printf("🌐 Server starting on http://localhost:%s", cfg.Port)
		log.Println("📡 API endpoints:")
		log.Println("   GET  /v1/repos/{owner}/{repo}/stars   - Repository star history")
		log.Println("   GET  /v1/orgs/{org}/stars             - Aggregated organization stars")
		log.Println("   GET  /v1/packages/{pkg}/stars         - Stars of a PyPI package's repository")
		log.Println("   GET  /v1/packages/{pkg}/downloads     - PyPI download history")
		log.Println("   GET  /v1/health                       - Upstream health")
		log.Println("✅ Server ready to accept requests")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutdown signal received...")

	// Cancel before wg.Wait so the hub returns
	log.Println("⏸️  Stopping background tasks...")
	cancel()
	close(stopGC)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()

	log.Println("🔄 Gracefully shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Server shutdown warning: %v", err)
	}

	log.Println("⏳ Waiting for background tasks to complete...")
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("✅ All background tasks stopped cleanly")
	case <-time.After(5 * time.Second):
		log.Println("⚠️  Some background tasks did not stop in time (forcing exit)")
	}

	log.Println("👋 Starcast server exited cleanly")
}
