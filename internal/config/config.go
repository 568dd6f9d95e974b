package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig `yaml:"database"`

	// Cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Idle sweep configuration
	Sweep SweepConfig `yaml:"sweep"`

	// Web server configuration
	Web WebConfig `yaml:"web"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Path string `yaml:"path"` // Path to SQLite database file
}

// CacheConfig holds active-timer cache configuration
type CacheConfig struct {
	MaxEntries int      `yaml:"max_entries"` // Upper bound on cached users
	TTL        Duration `yaml:"ttl"`         // Safety-net expiry for orphaned entries
	// SyncSchedule is a cron expression for the cache-to-store
	// reconciliation job.
	SyncSchedule string `yaml:"sync_schedule"`
}

// SweepConfig holds idle sweep configuration
type SweepConfig struct {
	Interval Duration `yaml:"interval"` // How often the sweep scans running timers
}

// WebConfig holds web server configuration
type WebConfig struct {
	Host string `yaml:"host"` // Host to bind web server to
	Port int    `yaml:"port"` // Port for web server
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "", // Empty means use default ~/.config/timekeep/timekeep.db
		},
		Cache: CacheConfig{
			MaxEntries:   4096,
			TTL:          Duration(24 * time.Hour),
			SyncSchedule: "*/5 * * * *", // Reconcile every five minutes
		},
		Sweep: SweepConfig{
			Interval: Duration(60 * time.Second),
		},
		Web: WebConfig{
			Host: "localhost",
			Port: 10100 + os.Getuid(),
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache max entries must be positive, got %d", c.Cache.MaxEntries)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %v", c.Cache.TTL)
	}

	if c.Sweep.Interval < Duration(time.Second) {
		return fmt.Errorf("sweep interval (%v) cannot be below one second", c.Sweep.Interval)
	}

	// Validate web config
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("web port must be between 1 and 65535, got %d", c.Web.Port)
	}

	if c.Web.Host == "" {
		return fmt.Errorf("web host cannot be empty")
	}

	return nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(`Configuration:
  Database:
    Path: %s
  Cache:
    Max Entries: %d
    TTL: %v
    Sync Schedule: %s
  Sweep:
    Interval: %v
  Web:
    Host: %s
    Port: %d`,
		c.Database.Path,
		c.Cache.MaxEntries,
		c.Cache.TTL,
		c.Cache.SyncSchedule,
		c.Sweep.Interval,
		c.Web.Host,
		c.Web.Port,
	)
}
