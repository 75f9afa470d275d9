package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr        string
	MetricsAddr string

	Upstream Upstream
	Cache    Cache

	// MaxBodyBytes is the serialized request-body ceiling enforced both by the
	// HTTP middleware and by the pipeline's size guard.
	MaxBodyBytes int64
}

// Upstream captures configuration for the single proxied REST service.
type Upstream struct {
	BaseURL  string
	Timeout  time.Duration
	ClientID string
	Platform string

	// MaxAttempts bounds dispatch retries (first call included).
	MaxAttempts int
	// BackoffBase is the initial retry delay; it doubles per attempt.
	BackoffBase time.Duration
	// RequestsPerSecond paces outbound calls; 0 disables pacing.
	RequestsPerSecond float64
}

// Cache captures response-cache configuration.
type Cache struct {
	TTL time.Duration
	// RedisURL selects the redis backend when set; empty means in-memory.
	RedisURL string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:         envString("OUTPOST_ADDR", ":8080"),
		MetricsAddr:  envString("OUTPOST_METRICS_ADDR", ":9090"),
		MaxBodyBytes: envInt64("OUTPOST_MAX_BODY_BYTES", 100*1024),
		Upstream: Upstream{
			BaseURL:           envString("UPSTREAM_BASE_URL", "https://api.example.com"),
			Timeout:           envDuration("UPSTREAM_TIMEOUT", 15*time.Second),
			ClientID:          envString("UPSTREAM_CLIENT_ID", "outpost-gateway"),
			Platform:          envString("UPSTREAM_PLATFORM", "web"),
			MaxAttempts:       envInt("UPSTREAM_MAX_ATTEMPTS", 3),
			BackoffBase:       envDuration("UPSTREAM_BACKOFF_BASE", 500*time.Millisecond),
			RequestsPerSecond: envFloat("UPSTREAM_REQUESTS_PER_SECOND", 0),
		},
		Cache: Cache{
			TTL:      envDuration("CACHE_TTL", 5*time.Minute),
			RedisURL: os.Getenv("CACHE_REDIS_URL"),
		},
	}
}

func envString(key, fallback string) string {
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

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
