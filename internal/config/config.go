// Package config loads and validates service configuration from the
// environment. Missing required values fail fast at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Defaults for the scheduler and ingestion limits.
const (
	DefaultIntervalHours    = 12
	DefaultStalenessHours   = 24
	DefaultMaxJobsPerCycle  = 10
	DefaultMaxScoredPerUser = 3
	DefaultPort             = 8080
)

// Config holds all runtime configuration for the job matcher service.
type Config struct {
	Port        int    `validate:"gt=0,lt=65536"`
	DatabaseURL string `validate:"required"`

	// Provider credentials. A missing Gemini key is allowed: scoring then
	// always takes the deterministic fallback path.
	JSearchAPIKey string `validate:"required"`
	GeminiAPIKey  string

	// RedisURL is optional; when empty the job detail cache is disabled.
	RedisURL string

	Interval         time.Duration `validate:"gt=0"`
	Staleness        time.Duration `validate:"gt=0"`
	MaxJobsPerCycle  int           `validate:"gt=0"`
	MaxScoredPerUser int           `validate:"gt=0"`

	LogJSON  bool
	LogDebug bool
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             DefaultPort,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JSearchAPIKey:    os.Getenv("JSEARCH_API_KEY"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		RedisURL:         os.Getenv("REDIS_URL"),
		Interval:         time.Duration(DefaultIntervalHours) * time.Hour,
		Staleness:        time.Duration(DefaultStalenessHours) * time.Hour,
		MaxJobsPerCycle:  DefaultMaxJobsPerCycle,
		MaxScoredPerUser: DefaultMaxScoredPerUser,
		LogJSON:          boolEnv("LOG_JSON"),
		LogDebug:         boolEnv("LOG_DEBUG"),
	}

	if s := os.Getenv("PORT"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("PORT must be an integer, got %q", s)
		}
		cfg.Port = v
	}

	if v, err := hoursEnv("SCHEDULER_INTERVAL_HOURS"); err != nil {
		return nil, err
	} else if v > 0 {
		cfg.Interval = v
	}

	if v, err := hoursEnv("STALENESS_HOURS"); err != nil {
		return nil, err
	} else if v > 0 {
		cfg.Staleness = v
	}

	if v, err := intEnv("MAX_JOBS_PER_CYCLE"); err != nil {
		return nil, err
	} else if v > 0 {
		cfg.MaxJobsPerCycle = v
	}

	if v, err := intEnv("MAX_SCORED_PER_USER"); err != nil {
		return nil, err
	} else if v > 0 {
		cfg.MaxScoredPerUser = v
	}

	if cfg.MaxScoredPerUser > cfg.MaxJobsPerCycle {
		return nil, fmt.Errorf("MAX_SCORED_PER_USER (%d) must not exceed MAX_JOBS_PER_CYCLE (%d)",
			cfg.MaxScoredPerUser, cfg.MaxJobsPerCycle)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return fmt.Errorf("config error: field %s failed %q validation", errs[0].Field(), errs[0].Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

func boolEnv(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func intEnv(key string) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, s)
	}
	return v, nil
}

func hoursEnv(key string) (time.Duration, error) {
	v, err := intEnv(key)
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Hour, nil
}
