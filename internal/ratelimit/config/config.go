package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds rate limiting configuration.
type Config struct {
	// Global throughput ceiling shared by all requests.
	Global GlobalLimit

	// Seed values for lazily created per-user quota records.
	QuotaDefaults QuotaDefaults

	// Validation-failure (abuse detection) thresholds.
	Failure FailureConfig
}

// GlobalLimit defines the global request-count window.
type GlobalLimit struct {
	LimitPerWindow int
	Window         time.Duration
}

// QuotaDefaults seeds per-user quota records created on first observed usage.
// Generous on purpose: upstream responses are the source of truth and overwrite
// these estimates on the first authoritative signal.
type QuotaDefaults struct {
	Likes      int
	SuperLikes int
	Boosts     int

	// ResetHorizon is how far ahead resetAt is placed when upstream supplies a
	// quota figure without a reset time.
	ResetHorizon time.Duration
}

// FailureConfig defines abuse-detection thresholds for validation failures.
// Advisory only: it informs the validation layer, it never blocks on its own.
type FailureConfig struct {
	HourlyThreshold    int
	PerMinuteThreshold int
	Cooldown           time.Duration

	// Retention is how long a failure record stays relevant; records older than
	// this are implicitly reset.
	Retention time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Global: GlobalLimit{
			LimitPerWindow: 100,
			Window:         time.Minute,
		},
		QuotaDefaults: QuotaDefaults{
			Likes:        100,
			SuperLikes:   5,
			Boosts:       1,
			ResetHorizon: 12 * time.Hour,
		},
		Failure: FailureConfig{
			HourlyThreshold:    50,
			PerMinuteThreshold: 10,
			Cooldown:           15 * time.Minute,
			Retention:          time.Hour,
		},
	}
}

// FromEnv builds a Config from environment variables, falling back to defaults.
func FromEnv() *Config {
	cfg := DefaultConfig()
	cfg.Global.LimitPerWindow = envInt("RATELIMIT_GLOBAL_LIMIT", cfg.Global.LimitPerWindow)
	cfg.Global.Window = envDuration("RATELIMIT_GLOBAL_WINDOW", cfg.Global.Window)
	cfg.QuotaDefaults.Likes = envInt("RATELIMIT_QUOTA_LIKES", cfg.QuotaDefaults.Likes)
	cfg.QuotaDefaults.SuperLikes = envInt("RATELIMIT_QUOTA_SUPER_LIKES", cfg.QuotaDefaults.SuperLikes)
	cfg.QuotaDefaults.Boosts = envInt("RATELIMIT_QUOTA_BOOSTS", cfg.QuotaDefaults.Boosts)
	cfg.Failure.HourlyThreshold = envInt("RATELIMIT_FAILURE_HOURLY", cfg.Failure.HourlyThreshold)
	cfg.Failure.PerMinuteThreshold = envInt("RATELIMIT_FAILURE_PER_MINUTE", cfg.Failure.PerMinuteThreshold)
	cfg.Failure.Cooldown = envDuration("RATELIMIT_FAILURE_COOLDOWN", cfg.Failure.Cooldown)
	return cfg
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
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
