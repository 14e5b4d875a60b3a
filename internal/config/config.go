// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/ingest.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Store
	DBDriver       string
	SQLitePath     string
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// Source fetching
	SourceBaseURL string
	UserAgent     string
	FetchDelay    time.Duration
	FetchTimeout  time.Duration
	FetchRetries  int
	FetchBackoff  time.Duration

	// Discovery
	DiscoveryMaxMatches    int
	DiscoveryCompletedOnly bool

	// Stage pipelines
	StageMaxFailures int
	FetchBiographies bool
	RunInterval      time.Duration // zero runs once

	// Status API
	APIHost          string
	APIPort          int
	CORSAllowOrigins []string

	// Rate limiting (API)
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	LogLevel slog.Level
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DBDriver:       strings.ToLower(envOr("DB_DRIVER", DriverSQLite)),
		SQLitePath:     envOr("SQLITE_PATH", "cricbuzz.db"),
		DatabaseURL:    envOr("DATABASE_URL", ""),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 4),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		SourceBaseURL: strings.TrimRight(envOr("CRICBUZZ_BASE_URL", "https://www.cricbuzz.com"), "/"),
		UserAgent: envOr("FETCH_USER_AGENT",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		FetchDelay:   envDuration("FETCH_DELAY_MS", 500*time.Millisecond, time.Millisecond),
		FetchTimeout: envDuration("FETCH_TIMEOUT_SECONDS", 30*time.Second, time.Second),
		FetchRetries: envInt("FETCH_RETRIES", 3),
		FetchBackoff: envDuration("FETCH_BACKOFF_MS", time.Second, time.Millisecond),

		DiscoveryMaxMatches:    envInt("DISCOVERY_MAX_MATCHES", 50),
		DiscoveryCompletedOnly: envBool("DISCOVERY_COMPLETED_ONLY", false),

		StageMaxFailures: envInt("STAGE_MAX_FAILURES", 3),
		FetchBiographies: envBool("FETCH_BIOGRAPHIES", true),
		RunInterval:      envDuration("RUN_INTERVAL_MINUTES", 0, time.Minute),

		APIHost: envOr("API_HOST", "0.0.0.0"),
		APIPort: envInt("API_PORT", envInt("PORT", 8000)),
		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		LogLevel: envLevel("LOG_LEVEL", slog.LevelInfo),
	}

	switch cfg.DBDriver {
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("SQLITE_PATH must be set when DB_DRIVER=sqlite")
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL must be set when DB_DRIVER=postgres")
		}
	default:
		return nil, errors.Newf("unsupported DB_DRIVER %q (want sqlite or postgres)", cfg.DBDriver)
	}

	if cfg.FetchRetries < 0 {
		cfg.FetchRetries = 0
	}
	return cfg, nil
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

// envDuration reads an integer count of unit from key.
func envDuration(key string, fallback, unit time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return time.Duration(n) * unit
		}
	}
	return fallback
}

func envLevel(key string, fallback slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(v)); err == nil {
			return lvl
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
