package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App         AppConfig         `yaml:"app" json:"app" mapstructure:"app"`
	Cache       CacheConfig       `yaml:"cache" json:"cache" mapstructure:"cache"`
	Data        DataConfig        `yaml:"data" json:"data" mapstructure:"data"`
	Performance PerformanceConfig `yaml:"performance" json:"performance" mapstructure:"performance"`
	Watch       WatchConfig       `yaml:"watch" json:"watch" mapstructure:"watch"`
}

// AppConfig contains general application settings
type AppConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file" mapstructure:"log_file"`
	Timezone string `yaml:"timezone" json:"timezone" mapstructure:"timezone"`
}

// CacheConfig selects the parse-cache backend and fingerprint policy.
// The backend is fixed per deployment; switching it invalidates nothing
// because each backend keeps its own store under Dir.
type CacheConfig struct {
	// Dir is the cache root. Empty means ~/.cache/tokencat.
	Dir string `yaml:"dir" json:"dir" mapstructure:"dir"`
	// Backend is "blob" (one serialized file per tool) or "sqlite".
	Backend string `yaml:"backend" json:"backend" mapstructure:"backend"`
	// Fingerprint is "mtime" (size + modification time) or "hash"
	// (content digest). Hashing catches same-size edits within one
	// clock tick at the cost of reading every candidate file.
	Fingerprint string `yaml:"fingerprint" json:"fingerprint" mapstructure:"fingerprint"`
}

// DataConfig contains data source and pricing settings
type DataConfig struct {
	// ExtraRoots are additional session-log directories scanned for
	// every enabled tool, on top of each tool's default locations.
	ExtraRoots    []string `yaml:"extra_roots" json:"extra_roots" mapstructure:"extra_roots"`
	PricingSource string   `yaml:"pricing_source" json:"pricing_source" mapstructure:"pricing_source"`
	Currency      string   `yaml:"currency" json:"currency" mapstructure:"currency"`
	Offline       bool     `yaml:"offline" json:"offline" mapstructure:"offline"`
}

// PerformanceConfig contains performance tuning settings
type PerformanceConfig struct {
	WorkerCount int   `yaml:"worker_count" json:"worker_count" mapstructure:"worker_count"`
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size" mapstructure:"max_file_size"`
}

// WatchConfig tunes the live monitor loop.
type WatchConfig struct {
	// QuietInterval is how long the loop waits after the last
	// filesystem event before refreshing.
	QuietInterval time.Duration `yaml:"quiet_interval" json:"quiet_interval" mapstructure:"quiet_interval"`
	// MaxInterval forces a refresh even without events, as a safety
	// net against missed notifications.
	MaxInterval time.Duration `yaml:"max_interval" json:"max_interval" mapstructure:"max_interval"`
}

// Backend names for CacheConfig.Backend.
const (
	BackendBlob   = "blob"
	BackendSQLite = "sqlite"
)

// Fingerprint policy names for CacheConfig.Fingerprint.
const (
	FingerprintMtime = "mtime"
	FingerprintHash  = "hash"
)

// Version is set at build time.
var Version = "dev"

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			LogLevel: "info",
			LogFile:  "",
			Timezone: "Local",
		},
		Cache: CacheConfig{
			Dir:         DefaultCacheDir(),
			Backend:     BackendBlob,
			Fingerprint: FingerprintMtime,
		},
		Data: DataConfig{
			PricingSource: "litellm",
			Currency:      "USD",
		},
		Performance: PerformanceConfig{
			WorkerCount: runtime.NumCPU(),
			MaxFileSize: 100 * 1024 * 1024, // 100MB
		},
		Watch: WatchConfig{
			QuietInterval: 2 * time.Second,
			MaxInterval:   time.Minute,
		},
	}
}

// DefaultCacheDir returns ~/.cache/tokencat, falling back to a relative
// directory when the home directory cannot be resolved.
func DefaultCacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "tokencat")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tokencat-cache"
	}
	return filepath.Join(home, ".cache", "tokencat")
}

// Location resolves the configured timezone, defaulting to time.Local.
func (c *Config) Location() *time.Location {
	if c.App.Timezone == "" || c.App.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
