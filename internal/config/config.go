// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

// Package config provides layered configuration management for the
// application: built-in defaults, an optional YAML config file, and
// environment variable overrides, in that precedence order.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config is the top-level application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Tracker       TrackerConfig       `koanf:"tracker"`
	Scheduler     SchedulerConfig     `koanf:"scheduler"`
	Storage       StorageConfig       `koanf:"storage"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// TrackerConfig controls outbound calls to the tracker site.
type TrackerConfig struct {
	BaseURL string `koanf:"base_url"`
	// Timeout bounds status and purchase calls. VaultTimeout is longer
	// because vault donations perform a get, a post, and a reverify.
	Timeout      time.Duration `koanf:"timeout"`
	VaultTimeout time.Duration `koanf:"vault_timeout"`
	// RequestsPerSecond throttles all tracker calls across sessions to
	// stay under the site's rate limits. Burst allows short spikes.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
	UserAgent         string  `koanf:"user_agent"`
	// Circuit breaker thresholds for repeated tracker failures.
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio"`
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests"`
	BreakerOpenTimeout  time.Duration `koanf:"breaker_open_timeout"`
}

// SchedulerConfig controls the per-session automation timers.
type SchedulerConfig struct {
	Enabled           bool          `koanf:"enabled"`
	CheckInterval     time.Duration `koanf:"check_interval"`
	MaxConcurrentJobs int           `koanf:"max_concurrent_jobs"`
	ExecutionTimeout  time.Duration `koanf:"execution_timeout"`
}

// StorageConfig controls where session and event state is persisted.
type StorageConfig struct {
	DataDir     string `koanf:"data_dir"`
	SessionsDir string `koanf:"sessions_dir"`
	EventsFile  string `koanf:"events_file"`
	// EncryptionSecret, when set, enables AES-256-GCM encryption of
	// stored session credentials. Empty means credentials are stored
	// as plaintext (appropriate for single-user local deployments).
	EncryptionSecret string `koanf:"encryption_secret"`
}

// SessionsPath returns the directory holding per-session YAML files.
func (c *Config) SessionsPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.SessionsDir)
}

// EventsPath returns the automation event log file path.
func (c *Config) EventsPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.EventsFile)
}

// NotificationsConfig controls the outbound notification channels.
type NotificationsConfig struct {
	Webhook WebhookConfig `koanf:"webhook"`
	Apprise AppriseConfig `koanf:"apprise"`
	// Events lists which event results trigger a notification:
	// any of "success", "failed", "skipped".
	Events []string `koanf:"events"`
}

// WebhookConfig describes a generic JSON webhook channel.
type WebhookConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// AppriseConfig describes an Apprise API notification channel.
type AppriseConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	Key     string        `koanf:"key"`
	Tags    string        `koanf:"tags"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig controls structured logging output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for values that would prevent the
// application from operating. It returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Tracker.BaseURL == "" {
		return fmt.Errorf("tracker.base_url is required")
	}
	if c.Tracker.Timeout <= 0 {
		return fmt.Errorf("tracker.timeout must be positive, got %s", c.Tracker.Timeout)
	}
	if c.Tracker.VaultTimeout < c.Tracker.Timeout {
		return fmt.Errorf("tracker.vault_timeout must be at least tracker.timeout")
	}
	if c.Scheduler.CheckInterval < time.Second {
		return fmt.Errorf("scheduler.check_interval must be at least 1s, got %s", c.Scheduler.CheckInterval)
	}
	if c.Scheduler.MaxConcurrentJobs < 1 {
		return fmt.Errorf("scheduler.max_concurrent_jobs must be at least 1, got %d", c.Scheduler.MaxConcurrentJobs)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.Notifications.Webhook.Enabled && c.Notifications.Webhook.URL == "" {
		return fmt.Errorf("notifications.webhook.url is required when the webhook channel is enabled")
	}
	if c.Notifications.Apprise.Enabled && c.Notifications.Apprise.URL == "" {
		return fmt.Errorf("notifications.apprise.url is required when the apprise channel is enabled")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
