// Package config loads and validates the typed configuration for scoutd:
// scrape tuning, datastore location, backup retention, rate limiting and
// logging. It follows the teacher's load-then-validate shape: defaults,
// merged with an optional YAML file, then overridden by environment
// variables, then range-checked before any component may use it.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ScrapeConfig tunes the Extraction Engine and Worker Pool.
type ScrapeConfig struct {
	Workers               int `yaml:"workers"`
	JSBatchThreshold       int `yaml:"js_batch_threshold"`
	JSBatchSize            int `yaml:"js_batch_size"`
	DepartmentRowCeiling   int `yaml:"department_row_ceiling"`
	FinalSweepCap          int `yaml:"final_sweep_cap"`
	NavigationTimeoutMs    int `yaml:"navigation_timeout_ms"`
	RetriesPerDepartment   int `yaml:"retries_per_department"`
}

// CheckpointConfig tunes the background checkpoint saver.
type CheckpointConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// DatastoreConfig locates the SQLite database and its backup directory.
type DatastoreConfig struct {
	Path      string `yaml:"path"`
	BackupDir string `yaml:"backup_dir"`
}

// RetentionConfig controls how many tiered backups are kept.
type RetentionConfig struct {
	Daily   int `yaml:"daily"`
	Weekly  int `yaml:"weekly"`
	Monthly int `yaml:"monthly"`
	Yearly  int `yaml:"yearly"`
}

// BackupConfig wraps retention policy for the datastore's backup tiers.
type BackupConfig struct {
	Retention RetentionConfig `yaml:"retention"`
}

// RateLimitConfig sets the default per-portal token bucket shape; a
// portal's own RateLimitRPM in base_urls.csv overrides this when nonzero.
type RateLimitConfig struct {
	DefaultRPM   int `yaml:"default_rpm"`
	DefaultBurst int `yaml:"default_burst"`
}

// LoggingConfig holds the logging settings read from the config file.
// The zap stderr logger built by cmd/scoutd does not use it; its level
// comes from the --verbose flag alone.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Config is the fully merged, validated configuration for one scoutd
// invocation.
type Config struct {
	Scrape     ScrapeConfig     `yaml:"scrape"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Datastore  DatastoreConfig  `yaml:"datastore"`
	Backup     BackupConfig     `yaml:"backup"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Logging    LoggingConfig    `yaml:"logging"`

	// PortalsFile points at the base_urls.csv consumed by internal/csvconfig.
	PortalsFile string `yaml:"portals_file"`
}

// DefaultConfig returns the configuration used when no file is supplied
// and no override applies. Every field here must independently satisfy
// Validate.
func DefaultConfig() *Config {
	return &Config{
		Scrape: ScrapeConfig{
			Workers:              2,
			JSBatchThreshold:     500,
			JSBatchSize:          1000,
			DepartmentRowCeiling: 15000,
			FinalSweepCap:        2000,
			NavigationTimeoutMs:  30000,
			RetriesPerDepartment: 3,
		},
		Checkpoint: CheckpointConfig{IntervalSeconds: 120},
		Datastore: DatastoreConfig{
			Path:      "./data/scoutd.db",
			BackupDir: "./data/backups",
		},
		Backup: BackupConfig{
			Retention: RetentionConfig{Daily: 7, Weekly: 16, Monthly: 24, Yearly: 7},
		},
		RateLimit: RateLimitConfig{DefaultRPM: 30, DefaultBurst: 5},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   "./logs",
		},
		PortalsFile: "./base_urls.csv",
	}
}

// Load reads path, merges it onto DefaultConfig, applies environment
// overrides, validates the result, and returns it. An empty path returns
// validated defaults with env overrides applied. Unknown YAML keys are a
// fatal config error, not a silent ignore, so a typo in the file surfaces
// immediately rather than quietly falling back to a default.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides mirrors the teacher's environment-override shape:
// a small fixed set of TENDERWATCH_* variables take precedence over both
// the default and the file, so operators can override one knob without
// editing YAML.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TENDERWATCH_DB"); v != "" {
		cfg.Datastore.Path = v
	}
	if v := os.Getenv("TENDERWATCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scrape.Workers = n
		}
	}
	if v := os.Getenv("TENDERWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TENDERWATCH_PORTALS_FILE"); v != "" {
		cfg.PortalsFile = v
	}
}

// Validate enforces every documented range. It returns the first
// violation found rather than accumulating all of them, matching the
// teacher's ValidateCoreLimits fail-fast style.
func (c *Config) Validate() error {
	if c.Scrape.Workers < 1 || c.Scrape.Workers > 8 {
		return fmt.Errorf("scrape.workers must be in [1,8], got %d", c.Scrape.Workers)
	}
	if c.Scrape.JSBatchThreshold < 100 || c.Scrape.JSBatchThreshold > 10000 {
		return fmt.Errorf("scrape.js_batch_threshold must be in [100,10000], got %d", c.Scrape.JSBatchThreshold)
	}
	if c.Scrape.JSBatchSize < 500 || c.Scrape.JSBatchSize > 5000 {
		return fmt.Errorf("scrape.js_batch_size must be in [500,5000], got %d", c.Scrape.JSBatchSize)
	}
	if c.Scrape.DepartmentRowCeiling < 1 {
		return fmt.Errorf("scrape.department_row_ceiling must be positive, got %d", c.Scrape.DepartmentRowCeiling)
	}
	if c.Scrape.RetriesPerDepartment < 0 || c.Scrape.RetriesPerDepartment > 10 {
		return fmt.Errorf("scrape.retries_per_department must be in [0,10], got %d", c.Scrape.RetriesPerDepartment)
	}
	if c.Checkpoint.IntervalSeconds < 5 {
		return fmt.Errorf("checkpoint.interval_seconds must be >= 5, got %d", c.Checkpoint.IntervalSeconds)
	}
	if c.Datastore.Path == "" {
		return fmt.Errorf("datastore.path must not be empty")
	}
	if c.RateLimit.DefaultRPM < 1 {
		return fmt.Errorf("rate_limit.default_rpm must be positive, got %d", c.RateLimit.DefaultRPM)
	}
	if c.RateLimit.DefaultBurst < 1 {
		return fmt.Errorf("rate_limit.default_burst must be positive, got %d", c.RateLimit.DefaultBurst)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}
	return nil
}
