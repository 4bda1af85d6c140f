// Package config loads the YAML configuration file with environment
// variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Cache    CacheConfig    `yaml:"cache"`
	Recovery RecoveryConfig `yaml:"recovery"`
	API      APIConfig      `yaml:"api"`
	Index    IndexConfig    `yaml:"index"`
	Janitor  JanitorConfig  `yaml:"janitor"`
	Watcher  WatcherConfig  `yaml:"watcher"`
}

// StorageConfig locates the session store.
type StorageConfig struct {
	// Root is the directory holding one subdirectory per session.
	Root string `yaml:"root"`
}

// CacheConfig tunes the message cache.
type CacheConfig struct {
	// TTLSeconds bounds how long cached messages are trusted without
	// re-reading from disk.
	TTLSeconds int `yaml:"ttl_seconds"`
}

// RecoveryConfig tunes context recovery.
type RecoveryConfig struct {
	// CompressionThreshold is the fraction of the token limit above which
	// compression is attempted.
	CompressionThreshold float64 `yaml:"compression_threshold"`
}

// APIConfig configures the read-only HTTP surface.
type APIConfig struct {
	// Listen is the address to bind. Empty disables the API.
	Listen string `yaml:"listen"`
}

// IndexConfig configures the advisory sqlite session index.
type IndexConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path of the sqlite database. Defaults to <storage root>/index.db.
	Path string `yaml:"path"`
}

// JanitorConfig configures scheduled maintenance.
type JanitorConfig struct {
	// CacheSweepSchedule is a cron expression for expired-entry sweeps.
	CacheSweepSchedule string `yaml:"cache_sweep_schedule"`
	// RetentionSchedule is a cron expression for retention pruning.
	// Empty disables pruning.
	RetentionSchedule string `yaml:"retention_schedule"`
	// RetentionMaxIdleHours deletes sessions not updated for this long.
	RetentionMaxIdleHours int `yaml:"retention_max_idle_hours"`
}

// WatcherConfig configures the out-of-band file change watcher.
type WatcherConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultRoot returns the default storage root, preferring the XDG data
// directory.
func DefaultRoot() string {
	if base := os.Getenv("XDG_DATA_HOME"); base != "" {
		return filepath.Join(base, "sessionlog", "sessions")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "share", "sessionlog", "sessions")
	}
	return filepath.Join(os.TempDir(), "sessionlog", "sessions")
}

// WithDefaults fills zero values with defaults and returns the result.
func (c Config) WithDefaults() Config {
	if c.Storage.Root == "" {
		c.Storage.Root = DefaultRoot()
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 300
	}
	if c.Recovery.CompressionThreshold <= 0 || c.Recovery.CompressionThreshold > 1 {
		c.Recovery.CompressionThreshold = 0.8
	}
	if c.Index.Enabled && c.Index.Path == "" {
		c.Index.Path = filepath.Join(c.Storage.Root, "index.db")
	}
	if c.Janitor.CacheSweepSchedule == "" {
		c.Janitor.CacheSweepSchedule = "*/5 * * * *"
	}
	return c
}

// CacheTTL returns the cache TTL as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// RetentionMaxIdle returns the retention idle cutoff, or zero when
// retention is disabled.
func (c Config) RetentionMaxIdle() time.Duration {
	return time.Duration(c.Janitor.RetentionMaxIdleHours) * time.Hour
}

// Validate checks invariants that defaults cannot repair.
func (c Config) Validate() error {
	var errs []error
	if c.Janitor.RetentionSchedule != "" && c.Janitor.RetentionMaxIdleHours <= 0 {
		errs = append(errs, fmt.Errorf("config: retention_schedule set but retention_max_idle_hours is %d", c.Janitor.RetentionMaxIdleHours))
	}
	if c.Janitor.RetentionMaxIdleHours < 0 {
		errs = append(errs, fmt.Errorf("config: retention_max_idle_hours must not be negative"))
	}
	return errors.Join(errs...)
}
