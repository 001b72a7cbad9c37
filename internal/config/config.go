// Package config loads and validates monitor configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Scanner ScannerConfig `mapstructure:"scanner"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Feed    FeedConfig    `mapstructure:"feed"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// MonitorConfig governs the cycle dispatcher and poll workers.
type MonitorConfig struct {
	CyclePeriodMinutes    int     `mapstructure:"cycle_period_minutes"`
	MaxPagesPerSubject    int     `mapstructure:"max_pages_per_subject"`
	WorkerConcurrency     int     `mapstructure:"worker_concurrency"`
	RateLimitPerSecond    float64 `mapstructure:"rate_limit_per_second"`
	EligibilityBatchLimit int     `mapstructure:"eligibility_batch_limit"`
	DefaultIntervalHours  int     `mapstructure:"default_interval_hours"`
	ClaimLeaseMinutes     int     `mapstructure:"claim_lease_minutes"`
	QueueDepth            int     `mapstructure:"queue_depth"`
}

// ScannerConfig governs the opportunity scanner. The display window is
// the read-side query range and is not consumed by the scanner itself.
type ScannerConfig struct {
	LookbackDays      int `mapstructure:"lookback_days"`
	DisplayWindowDays int `mapstructure:"display_window_days"`
	BatchLimit        int `mapstructure:"batch_limit"`
}

// RetryConfig bounds the task retry policy.
type RetryConfig struct {
	MaxAttempts       int `mapstructure:"max_attempts"`
	BackoffMinSeconds int `mapstructure:"backoff_min_seconds"`
	BackoffMaxSeconds int `mapstructure:"backoff_max_seconds"`
}

// FeedConfig configures the external feed client.
type FeedConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	PageSize       int    `mapstructure:"page_size"`
}

// DBConfig controls access to the relational database. An empty DSN
// selects the in-memory stores (local development and tests).
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for the indexing hook topic.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig names the GCS bucket that receives a JSON copy of every
// ingested publication. An empty bucket disables archival.
type ArchiveConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DJEMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitor.cycle_period_minutes", 30)
	v.SetDefault("monitor.max_pages_per_subject", 10)
	v.SetDefault("monitor.worker_concurrency", 8)
	v.SetDefault("monitor.rate_limit_per_second", 2.0)
	v.SetDefault("monitor.eligibility_batch_limit", 500)
	v.SetDefault("monitor.default_interval_hours", 24)
	v.SetDefault("monitor.claim_lease_minutes", 10)
	v.SetDefault("monitor.queue_depth", 256)
	v.SetDefault("scanner.lookback_days", 7)
	v.SetDefault("scanner.display_window_days", 30)
	v.SetDefault("scanner.batch_limit", 500)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.backoff_min_seconds", 10)
	v.SetDefault("retry.backoff_max_seconds", 60)
	v.SetDefault("feed.base_url", "https://comunica.pje.jus.br")
	v.SetDefault("feed.timeout_seconds", 60)
	v.SetDefault("feed.page_size", 20)
	v.SetDefault("archive.prefix", "publications")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Monitor.CyclePeriodMinutes <= 0 {
		return fmt.Errorf("monitor.cycle_period_minutes must be > 0")
	}
	if c.Monitor.WorkerConcurrency <= 0 {
		return fmt.Errorf("monitor.worker_concurrency must be > 0")
	}
	if c.Monitor.MaxPagesPerSubject <= 0 {
		return fmt.Errorf("monitor.max_pages_per_subject must be > 0")
	}
	if c.Monitor.RateLimitPerSecond <= 0 {
		return fmt.Errorf("monitor.rate_limit_per_second must be > 0")
	}
	if c.Monitor.EligibilityBatchLimit <= 0 {
		return fmt.Errorf("monitor.eligibility_batch_limit must be > 0")
	}
	if c.Scanner.LookbackDays <= 0 {
		return fmt.Errorf("scanner.lookback_days must be > 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Retry.BackoffMinSeconds <= 0 || c.Retry.BackoffMaxSeconds < c.Retry.BackoffMinSeconds {
		return fmt.Errorf("retry backoff bounds are invalid")
	}
	if c.Feed.BaseURL == "" {
		return fmt.Errorf("feed.base_url is required")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required when pubsub is enabled")
	}
	return nil
}

// CyclePeriod returns the dispatcher tick interval.
func (c Config) CyclePeriod() time.Duration {
	return time.Duration(c.Monitor.CyclePeriodMinutes) * time.Minute
}

// ClaimLease returns how long an eligibility claim stays exclusive.
func (c Config) ClaimLease() time.Duration {
	return time.Duration(c.Monitor.ClaimLeaseMinutes) * time.Minute
}

// ScanLookback returns the scanner's publication lookback window.
func (c Config) ScanLookback() time.Duration {
	return time.Duration(c.Scanner.LookbackDays) * 24 * time.Hour
}

// DisplayWindow returns the read-side window for recent publication
// listings.
func (c Config) DisplayWindow() time.Duration {
	return time.Duration(c.Scanner.DisplayWindowDays) * 24 * time.Hour
}

// FeedTimeout returns the per-request feed client timeout.
func (c Config) FeedTimeout() time.Duration {
	return time.Duration(c.Feed.TimeoutSeconds) * time.Second
}

// BackoffMin returns the minimum retry backoff.
func (c Config) BackoffMin() time.Duration {
	return time.Duration(c.Retry.BackoffMinSeconds) * time.Second
}

// BackoffMax returns the maximum retry backoff.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Retry.BackoffMaxSeconds) * time.Second
}
