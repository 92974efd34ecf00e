package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the headless browser launched for each fetch.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is an optional proxy URL for all browser traffic.
	Proxy string

	// AcceptLanguage is sent with every page request.
	AcceptLanguage string // default: "de-DE,de;q=0.9"
}

// ScraperConfig controls fetching and aggregation.
type ScraperConfig struct {
	// SettleInterval is the wait after navigation before the DOM is read.
	SettleInterval time.Duration // default: 5s

	// WaitForSelector ends the settle interval early once the source's
	// listing card selector matches.
	WaitForSelector bool // default: false

	// NavigationTimeout is the max time for page.Navigate alone.
	NavigationTimeout time.Duration // default: 15s

	// SourceTimeout bounds one source end to end (launch, render, extract).
	SourceTimeout time.Duration // default: 45s

	// Concurrency is how many sources are fetched at once. 1 is sequential.
	Concurrency int // default: 3

	// Sources restricts the queried sites by name. Empty means all.
	Sources []string

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 0.5

	// Burst is the maximum burst size per API key.
	Burst int // default: 3
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("CARSCOUT_HOST", "0.0.0.0"),
			Port: envIntOr("CARSCOUT_PORT", 8080),
			Mode: envOr("CARSCOUT_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("CARSCOUT_HEADLESS", true),
			NoSandbox:      envBoolOr("CARSCOUT_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("CARSCOUT_BROWSER_BIN"),
			Proxy:          os.Getenv("CARSCOUT_PROXY"),
			AcceptLanguage: envOr("CARSCOUT_ACCEPT_LANGUAGE", "de-DE,de;q=0.9"),
		},
		Scraper: ScraperConfig{
			SettleInterval:    envDurationOr("CARSCOUT_SETTLE_INTERVAL", 5*time.Second),
			WaitForSelector:   envBoolOr("CARSCOUT_WAIT_FOR_SELECTOR", false),
			NavigationTimeout: envDurationOr("CARSCOUT_NAV_TIMEOUT", 15*time.Second),
			SourceTimeout:     envDurationOr("CARSCOUT_SOURCE_TIMEOUT", 45*time.Second),
			Concurrency:       envIntOr("CARSCOUT_CONCURRENCY", 3),
			Sources:           envSliceOr("CARSCOUT_SOURCES", nil),
			BlockedResourceTypes: envSliceOr("CARSCOUT_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("CARSCOUT_AUTH_ENABLED", false),
			APIKeys: envSliceOr("CARSCOUT_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("CARSCOUT_RATE_RPS", 0.5),
			Burst:             envIntOr("CARSCOUT_RATE_BURST", 3),
		},
		Log: LogConfig{
			Level:  envOr("CARSCOUT_LOG_LEVEL", "info"),
			Format: envOr("CARSCOUT_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
