// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in priority
// order. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mousehold/config.yaml",
	"/etc/mousehold/config.yml",
}

// ConfigPathEnvVar overrides the config file search when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults
// load first and are overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            39842,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Tracker: TrackerConfig{
			BaseURL:             "https://www.myanonamouse.net",
			Timeout:             10 * time.Second,
			VaultTimeout:        25 * time.Second,
			RequestsPerSecond:   1,
			Burst:               3,
			UserAgent:           "mousehold",
			BreakerFailureRatio: 0.6,
			BreakerMinRequests:  10,
			BreakerOpenTimeout:  60 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:           true,
			CheckInterval:     time.Minute,
			MaxConcurrentJobs: 5,
			ExecutionTimeout:  2 * time.Minute,
		},
		Storage: StorageConfig{
			DataDir:     "/data",
			SessionsDir: "sessions",
			EventsFile:  "events.json",
		},
		Notifications: NotificationsConfig{
			Webhook: WebhookConfig{
				Enabled: false,
				Timeout: 10 * time.Second,
			},
			Apprise: AppriseConfig{
				Enabled: false,
				Timeout: 10 * time.Second,
			},
			Events: []string{"success", "failed"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// MOUSEHOLD_TRACKER_TIMEOUT -> tracker.timeout
	envProvider := env.Provider("MOUSEHOLD_", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps MOUSEHOLD_-prefixed env var names to koanf
// config paths. The first underscore after the prefix separates the
// section from the key: MOUSEHOLD_SERVER_PORT -> server.port,
// MOUSEHOLD_TRACKER_BASE_URL -> tracker.base_url.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "MOUSEHOLD_"))

	// Nested keys that a section/key split would get wrong.
	special := map[string]string{
		"notifications_webhook_enabled": "notifications.webhook.enabled",
		"notifications_webhook_url":     "notifications.webhook.url",
		"notifications_webhook_timeout": "notifications.webhook.timeout",
		"notifications_apprise_enabled": "notifications.apprise.enabled",
		"notifications_apprise_url":     "notifications.apprise.url",
		"notifications_apprise_key":     "notifications.apprise.key",
		"notifications_apprise_tags":    "notifications.apprise.tags",
		"notifications_apprise_timeout": "notifications.apprise.timeout",
		"notifications_events":          "notifications.events",
	}
	if path, ok := special[key]; ok {
		return path
	}

	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return key
	}
	return parts[0] + "." + parts[1]
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when they arrive as strings from env vars.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"notifications.events",
}

// processSliceFields converts comma-separated strings to slices for
// known slice fields. YAML-sourced values are already slices and skip.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}
