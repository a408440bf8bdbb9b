package server

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/nicktill/starcast/pkg/cache"
	"github.com/nicktill/starcast/pkg/cache/badger"
	"github.com/nicktill/starcast/pkg/cache/memory"
	"github.com/nicktill/starcast/pkg/config"
	"github.com/nicktill/starcast/pkg/forecast"
	"github.com/nicktill/starcast/pkg/github"
	"github.com/nicktill/starcast/pkg/history"
	"github.com/nicktill/starcast/pkg/pepy"
	"github.com/nicktill/starcast/pkg/proxy"
	"github.com/nicktill/starcast/pkg/pypi"
	"github.com/nicktill/starcast/pkg/sampler"
)

// Config holds server configuration.
type Config struct {
	Port        string
	DataDir     string
	MemoryCache bool
	MaxMemoryMB int64
	CacheTTL    time.Duration

	RequestBudget  int
	MaxPoints      int
	OrgConcurrency int
	GitHubRPS      float64

	GitHubToken string
	PepyKey     string
	NixtlaToken string

	GitHubURL  string
	PyPIURL    string
	PepyURL    string
	TimeGPTURL string
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() Config {
	cfg := Config{
		Port:        getPort(),
		DataDir:     getEnvString("STARCAST_DATA_DIR", config.DefaultDataDir),
		MemoryCache: getEnvBool("STARCAST_MEMORY_CACHE", false),
		MaxMemoryMB: getEnvInt64("STARCAST_MAX_MEMORY_MB", config.DefaultMaxMemoryMB),
		CacheTTL:    getEnvDuration("STARCAST_CACHE_TTL", config.DefaultCacheTTL),

		RequestBudget:  int(getEnvInt64("STARCAST_REQUEST_BUDGET", config.DefaultRequestBudget)),
		MaxPoints:      int(getEnvInt64("STARCAST_MAX_POINTS", config.DefaultMaxPoints)),
		OrgConcurrency: int(getEnvInt64("STARCAST_ORG_CONCURRENCY", config.DefaultOrgConcurrency)),
		GitHubRPS:      float64(getEnvInt64("STARCAST_GITHUB_RPS", config.DefaultGitHubRPS)),

		GitHubToken: os.Getenv("GH_TOKEN"),
		PepyKey:     os.Getenv("PEPY_KEY"),
		NixtlaToken: os.Getenv("NIXTLA_TOKEN"),

		GitHubURL:  getEnvString("STARCAST_GITHUB_URL", config.GitHubBaseURL),
		PyPIURL:    getEnvString("STARCAST_PYPI_URL", config.PyPIBaseURL),
		PepyURL:    getEnvString("STARCAST_PEPY_URL", config.PepyBaseURL),
		TimeGPTURL: getEnvString("STARCAST_TIMEGPT_URL", config.TimeGPTBaseURL),
	}

	if cfg.GitHubToken == "" {
		log.Println("GH_TOKEN not set, GitHub allows only 60 unauthenticated requests per hour")
	}
	if cfg.NixtlaToken == "" {
		log.Println("NIXTLA_TOKEN not set, forecasts are disabled")
	}
	return cfg
}

// InitializeCache opens the page cache: BadgerDB in DataDir, or an in-memory
// LRU when MemoryCache is set.
func InitializeCache(cfg Config) (cache.Cache, error) {
	if cfg.MemoryCache {
		log.Printf("Using in-memory page cache (%d entries, TTL %v)", config.MemoryCacheSize, cfg.CacheTTL)
		return memory.New(config.MemoryCacheSize, cfg.CacheTTL), nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, err
	}

	log.Println("Initializing BadgerDB page cache...")
	c, err := badger.New(badger.Config{
		Path:        cfg.DataDir,
		MaxMemoryMB: cfg.MaxMemoryMB,
		TTL:         cfg.CacheTTL,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("BadgerDB page cache ready at %s (TTL %v)", cfg.DataDir, cfg.CacheTTL)
	return c, nil
}

// InitializeService wires the upstream clients, sampler and forecaster into
// a history service.
func InitializeService(cfg Config, c cache.Cache, notifier history.Notifier) (*history.Service, *github.Client, error) {
	gh := github.New(github.Config{
		BaseURL:           cfg.GitHubURL,
		Token:             cfg.GitHubToken,
		PerPage:           config.DefaultPageSize,
		RequestsPerSecond: cfg.GitHubRPS,
	})

	samplerCfg := sampler.DefaultConfig()
	samplerCfg.RequestBudget = cfg.RequestBudget
	samplerCfg.MaxPoints = cfg.MaxPoints
	samplerCfg.PageSize = gh.PerPage()

	var opts []sampler.Option
	if c != nil {
		opts = append(opts, sampler.WithCache(c))
	}
	stars, err := sampler.New(gh, gh, samplerCfg, opts...)
	if err != nil {
		return nil, nil, err
	}

	deps := history.Deps{
		Stars:     stars,
		Repos:     gh,
		Packages:  pypi.New(cfg.PyPIURL),
		Downloads: pepy.New(cfg.PepyURL, cfg.PepyKey),
		Notifier:  notifier,
	}
	if cfg.NixtlaToken != "" {
		deps.Forecaster = forecast.NewTimeGPT(cfg.TimeGPTURL, cfg.NixtlaToken)
	}

	historyCfg := history.DefaultConfig()
	historyCfg.OrgConcurrency = cfg.OrgConcurrency

	log.Printf("History service ready (budget %d pages, %d points, %d concurrent repos)",
		samplerCfg.RequestBudget, samplerCfg.MaxPoints, historyCfg.OrgConcurrency)
	return history.New(historyCfg, deps), gh, nil
}

// Proxies are the credential-injecting upstream forwarders.
type Proxies struct {
	GitHub *proxy.Handler
	Pepy   *proxy.Handler
	PyPI   *proxy.Handler
	Nixtla *proxy.Handler
}

// InitializeProxies builds the forwarders. GitHub traffic shares gh's rate limiter.
func InitializeProxies(cfg Config, gh *github.Client) (Proxies, error) {
	var p Proxies
	var err error

	githubHeaders := map[string]string{}
	if cfg.GitHubToken != "" {
		githubHeaders["Authorization"] = "token " + cfg.GitHubToken
	}
	if p.GitHub, err = proxy.New(proxy.Route{
		Target:  cfg.GitHubURL,
		Path:    proxy.StripPrefix("/github", ""),
		Headers: githubHeaders,
		Forward: []string{"Accept"},
		Return:  []string{"Link"},
		Limiter: gh.Limiter(),
	}); err != nil {
		return Proxies{}, err
	}

	if p.Pepy, err = proxy.New(proxy.Route{
		Target:  cfg.PepyURL,
		Path:    proxy.StripPrefix("/pepy", "/api"),
		Headers: map[string]string{"X-Api-Key": cfg.PepyKey},
	}); err != nil {
		return Proxies{}, err
	}

	if p.PyPI, err = proxy.New(proxy.Route{
		Target: cfg.PyPIURL,
	}); err != nil {
		return Proxies{}, err
	}

	if p.Nixtla, err = proxy.New(proxy.Route{
		Target: cfg.TimeGPTURL,
		Path:   proxy.Fixed(""),
		Headers: map[string]string{
			"Accept":        "application/json",
			"Authorization": "Bearer " + cfg.NixtlaToken,
			"Content-Type":  "application/json",
		},
	}); err != nil {
		return Proxies{}, err
	}

	return p, nil
}

// getEnvInt64 gets an int64 from environment variable or returns default.
func getEnvInt64(key string, defaultValue int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
		log.Printf("Invalid value for %s: %q, using default %d", key, val, defaultValue)
	}
	return defaultValue
}

// getEnvDuration parses Go durations ("168h") from the environment.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		log.Printf("Invalid value for %s: %q, using default %v", key, val, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
		log.Printf("Invalid value for %s: %q, using default %v", key, val, defaultValue)
	}
	return defaultValue
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// getPort gets the server port from PORT environment variable or returns default.
func getPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return config.DefaultPort
}
