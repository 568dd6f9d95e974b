package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv loads configuration from environment variables
// Environment variables override file and default values
func LoadFromEnv(cfg *Config) {
	// Database configuration
	if dbPath := os.Getenv("TIMEKEEP_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	// Cache configuration
	if maxEntries := os.Getenv("TIMEKEEP_CACHE_MAX_ENTRIES"); maxEntries != "" {
		if n, err := strconv.Atoi(maxEntries); err == nil && n > 0 {
			cfg.Cache.MaxEntries = n
		}
	}

	if ttl := os.Getenv("TIMEKEEP_CACHE_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil && d > 0 {
			cfg.Cache.TTL = Duration(d)
		}
	}

	if schedule := os.Getenv("TIMEKEEP_CACHE_SYNC_SCHEDULE"); schedule != "" {
		cfg.Cache.SyncSchedule = schedule
	}

	// Sweep configuration
	if interval := os.Getenv("TIMEKEEP_SWEEP_INTERVAL"); interval != "" {
		if seconds, err := strconv.Atoi(interval); err == nil && seconds > 0 {
			cfg.Sweep.Interval = Duration(time.Duration(seconds) * time.Second)
		}
	}

	// Web configuration
	if webHost := os.Getenv("TIMEKEEP_WEB_HOST"); webHost != "" {
		cfg.Web.Host = webHost
	}

	if webPort := os.Getenv("TIMEKEEP_WEB_PORT"); webPort != "" {
		if port, err := strconv.Atoi(webPort); err == nil && port > 0 && port <= 65535 {
			cfg.Web.Port = port
		}
	}
}

// New creates a new Config with default values, overlays the config file at
// path (if any), and finally applies environment overrides.
func New(path string) (*Config, error) {
	cfg := Default()
	if err := LoadFromFile(cfg, path); err != nil {
		return nil, err
	}
	LoadFromEnv(cfg)
	return cfg, nil
}
