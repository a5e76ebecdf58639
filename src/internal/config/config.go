// FILE: logship/src/internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lconfig "github.com/lixenwraith/config"
)

// Config is resolved once at construction and never mutated afterwards.
type Config struct {
	// Collection endpoint URL
	URL string `toml:"url"`

	// Bearer token attached to every delivery
	APIKey string `toml:"api_key"`

	// Per-attempt HTTP request timeout in seconds
	TimeoutSeconds int64 `toml:"timeout_seconds"`

	// Immediate retries per delivery on top of the first attempt
	MaxRetries int64 `toml:"max_retries"`

	// Inter-attempt backoff factor: sleep = factor * 2^(attempt-1) seconds
	BackoffFactor float64 `toml:"backoff_factor"`

	// Skip TLS certificate verification for https endpoints
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`

	Cache    CacheConfig    `toml:"cache"`
	Retry    RetryConfig    `toml:"retry"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Logging  *LogConfig     `toml:"logging"`
}

// CacheConfig controls the disk-backed store for events that failed delivery.
type CacheConfig struct {
	Enabled   bool    `toml:"enabled"`
	Directory string  `toml:"directory"`
	MaxSizeMB float64 `toml:"max_size_mb"`
}

// RetryConfig controls the background coordinator that drains the cache.
type RetryConfig struct {
	Enabled            bool  `toml:"enabled"`
	IntervalSeconds    int64 `toml:"interval_seconds"`
	MaxIntervalSeconds int64 `toml:"max_interval_seconds"`

	// Run each flush cycle on its own goroutine instead of inline on the
	// coordinator loop
	Async bool `toml:"async"`

	// Oldest entries attempted per automatic cycle; manual drains always
	// process the whole cache
	BatchSize int64 `toml:"batch_size"`

	// Whether a manual drain updates the adaptive interval the same way
	// automatic cycles do
	DrainSharesState bool `toml:"drain_shares_state"`
}

// DispatchConfig controls the per-event send path.
type DispatchConfig struct {
	// Hand each send off to its own goroutine instead of blocking the caller
	AsyncMode bool `toml:"async_mode"`

	// Optional client-side send rate limit; 0 disables it
	Rate  float64 `toml:"rate"`
	Burst int64   `toml:"burst"`
}

func defaults() *Config {
	return &Config{
		TimeoutSeconds: 10,
		MaxRetries:     3,
		BackoffFactor:  0.5,
		Cache: CacheConfig{
			Enabled:   true,
			Directory: defaultCacheDir(),
			MaxSizeMB: 30.0,
		},
		Retry: RetryConfig{
			Enabled:            true,
			IntervalSeconds:    60,
			MaxIntervalSeconds: 3600,
			Async:              true,
			BatchSize:          50,
			DrainSharesState:   true,
		},
		Dispatch: DispatchConfig{
			AsyncMode: true,
		},
		Logging: DefaultLogConfig(),
	}
}

func defaultCacheDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".logship_cache")
	}
	return ".logship_cache"
}

// LoadWithCLI resolves the configuration from defaults, config file,
// LOGSHIP_* environment variables, and CLI arguments, in ascending
// precedence.
func LoadWithCLI(cliArgs []string) (*Config, error) {
	configPath := GetConfigPath()

	cfg, err := lconfig.NewBuilder().
		WithDefaults(defaults()).
		WithEnvPrefix("LOGSHIP_").
		WithFile(configPath).
		WithArgs(cliArgs).
		WithEnvTransform(customEnvTransform).
		WithSources(
			lconfig.SourceCLI,
			lconfig.SourceEnv,
			lconfig.SourceFile,
			lconfig.SourceDefault,
		).
		Build()

	if err != nil {
		if !strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	finalConfig := &Config{}
	if err := cfg.Scan(finalConfig); err != nil {
		return nil, fmt.Errorf("failed to scan config: %w", err)
	}

	return finalConfig, finalConfig.Validate()
}

func customEnvTransform(path string) string {
	env := strings.ReplaceAll(path, ".", "_")
	env = strings.ToUpper(env)
	env = "LOGSHIP_" + env
	return env
}

// GetConfigPath resolves the config file location from the environment.
func GetConfigPath() string {
	if configFile := os.Getenv("LOGSHIP_CONFIG_FILE"); configFile != "" {
		if filepath.IsAbs(configFile) {
			return configFile
		}
		if configDir := os.Getenv("LOGSHIP_CONFIG_DIR"); configDir != "" {
			return filepath.Join(configDir, configFile)
		}
		return configFile
	}

	if configDir := os.Getenv("LOGSHIP_CONFIG_DIR"); configDir != "" {
		return filepath.Join(configDir, "logship.toml")
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config", "logship.toml")
	}

	return "logship.toml"
}

// Validate checks the resolved configuration for internal consistency.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required (set it or the LOGSHIP_URL environment variable)")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("url must start with http:// or https://: %s", c.URL)
	}

	if c.APIKey == "" {
		return fmt.Errorf("api_key is required (set it or the LOGSHIP_API_KEY environment variable)")
	}

	if c.TimeoutSeconds < 1 {
		return fmt.Errorf("timeout must be positive: %d", c.TimeoutSeconds)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative: %d", c.MaxRetries)
	}

	if c.BackoffFactor < 0 {
		return fmt.Errorf("backoff_factor cannot be negative: %g", c.BackoffFactor)
	}

	if c.Cache.Enabled {
		if c.Cache.Directory == "" {
			return fmt.Errorf("cache directory cannot be empty")
		}
		if c.Cache.MaxSizeMB <= 0 {
			return fmt.Errorf("cache max size must be positive: %g MB", c.Cache.MaxSizeMB)
		}
	}

	if c.Retry.Enabled {
		if c.Retry.IntervalSeconds < 1 {
			return fmt.Errorf("retry interval must be positive: %d", c.Retry.IntervalSeconds)
		}
		if c.Retry.MaxIntervalSeconds < c.Retry.IntervalSeconds {
			return fmt.Errorf("retry max interval %d is below initial interval %d",
				c.Retry.MaxIntervalSeconds, c.Retry.IntervalSeconds)
		}
		if c.Retry.BatchSize < 0 {
			return fmt.Errorf("retry batch size cannot be negative: %d", c.Retry.BatchSize)
		}
	}

	if c.Dispatch.Rate < 0 {
		return fmt.Errorf("dispatch rate cannot be negative: %g", c.Dispatch.Rate)
	}
	if c.Dispatch.Rate > 0 && c.Dispatch.Burst < 1 {
		return fmt.Errorf("dispatch burst must be positive when rate limiting: %d", c.Dispatch.Burst)
	}

	if c.Logging != nil {
		if err := validateLogConfig(c.Logging); err != nil {
			return err
		}
	}

	return nil
}
