package config

import "time"

// Server defaults
const (
	DefaultPort        = "8080"
	DefaultDataDir     = "./data/starcast"
	DefaultMaxMemoryMB = 48
)

// Sampling defaults
const (
	DefaultRequestBudget  = 10
	DefaultMaxPoints      = 10
	DefaultPageSize       = 60
	DefaultResolution     = 24 * time.Hour
	DefaultOrgConcurrency = 8
)

// Upstream endpoints
const (
	GitHubBaseURL  = "https://api.github.com"
	PepyBaseURL    = "https://api.pepy.tech"
	PyPIBaseURL    = "https://pypi.python.org"
	TimeGPTBaseURL = "https://dashboard.nixtla.io/api/timegpt"
)

// Upstream timeouts and limits
const (
	UpstreamTimeout      = 15 * time.Second
	DefaultGitHubRPS     = 10
	GitHubAPIVersion     = "2022-11-28"
	RequestTimeout       = 60 * time.Second
	ForecastTimeout      = 30 * time.Second
	MaxUpstreamBodyBytes = 16 << 20
)

// Forecast defaults
const (
	DefaultForecastDays = 90
	MaxForecastDays     = 365

	// ForecastStarThreshold is the star count above which the stargazer
	// history is too sparse to forecast from.
	ForecastStarThreshold = 40000
)

// Cache configuration
const (
	DefaultCacheTTL      = 7 * 24 * time.Hour
	MemoryCacheSize      = 4096
	BadgerGCInterval     = 10 * time.Minute
	BadgerGCDiscardRatio = 0.5
	CacheUsageRefresh    = 10 * time.Second
)

// Server timeouts
const (
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 90 * time.Second
	ShutdownTimeout    = 30 * time.Second
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)

// Health
const (
	FetchStaleAfter      = 1 * time.Hour
	MaxConsecutiveErrors = 3
)
