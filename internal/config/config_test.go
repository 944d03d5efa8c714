// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "/nonexistent/config.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 39842 {
		t.Errorf("port = %d, want 39842", cfg.Server.Port)
	}
	if cfg.Tracker.BaseURL != "https://www.myanonamouse.net" {
		t.Errorf("base_url = %q", cfg.Tracker.BaseURL)
	}
	if cfg.Tracker.Timeout != 10*time.Second {
		t.Errorf("timeout = %s, want 10s", cfg.Tracker.Timeout)
	}
	if cfg.Tracker.VaultTimeout != 25*time.Second {
		t.Errorf("vault_timeout = %s, want 25s", cfg.Tracker.VaultTimeout)
	}
	if !cfg.Scheduler.Enabled {
		t.Error("scheduler should default to enabled")
	}
	if cfg.Scheduler.CheckInterval != time.Minute {
		t.Errorf("check_interval = %s, want 1m", cfg.Scheduler.CheckInterval)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8080
tracker:
  timeout: 5s
  vault_timeout: 20s
storage:
  data_dir: /tmp/mousehold
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080 from file", cfg.Server.Port)
	}
	if cfg.Tracker.Timeout != 5*time.Second {
		t.Errorf("timeout = %s, want 5s from file", cfg.Tracker.Timeout)
	}
	if cfg.Storage.DataDir != "/tmp/mousehold" {
		t.Errorf("data_dir = %q", cfg.Storage.DataDir)
	}
	// Fields not in the file keep their defaults.
	if cfg.Tracker.BaseURL != "https://www.myanonamouse.net" {
		t.Errorf("base_url = %q, want default", cfg.Tracker.BaseURL)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("MOUSEHOLD_SERVER_PORT", "9090")
	t.Setenv("MOUSEHOLD_TRACKER_BASE_URL", "https://tracker.example")
	t.Setenv("MOUSEHOLD_NOTIFICATIONS_WEBHOOK_URL", "https://hooks.example/x")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want env override 9090", cfg.Server.Port)
	}
	if cfg.Tracker.BaseURL != "https://tracker.example" {
		t.Errorf("base_url = %q, want env override", cfg.Tracker.BaseURL)
	}
	if cfg.Notifications.Webhook.URL != "https://hooks.example/x" {
		t.Errorf("webhook url = %q, want env override", cfg.Notifications.Webhook.URL)
	}
}

func TestLoadSliceFromEnv(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "/nonexistent/config.yaml")
	t.Setenv("MOUSEHOLD_NOTIFICATIONS_EVENTS", "success, failed ,skipped")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"success", "failed", "skipped"}
	if len(cfg.Notifications.Events) != len(want) {
		t.Fatalf("events = %v, want %v", cfg.Notifications.Events, want)
	}
	for i, e := range want {
		if cfg.Notifications.Events[i] != e {
			t.Errorf("events[%d] = %q, want %q", i, cfg.Notifications.Events[i], e)
		}
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MOUSEHOLD_SERVER_PORT", "server.port"},
		{"MOUSEHOLD_TRACKER_BASE_URL", "tracker.base_url"},
		{"MOUSEHOLD_SCHEDULER_CHECK_INTERVAL", "scheduler.check_interval"},
		{"MOUSEHOLD_STORAGE_ENCRYPTION_SECRET", "storage.encryption_secret"},
		{"MOUSEHOLD_NOTIFICATIONS_APPRISE_KEY", "notifications.apprise.key"},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(_ *Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"missing base url", func(c *Config) { c.Tracker.BaseURL = "" }, true},
		{"vault timeout below timeout", func(c *Config) { c.Tracker.VaultTimeout = time.Second }, true},
		{"sub-second check interval", func(c *Config) { c.Scheduler.CheckInterval = 100 * time.Millisecond }, true},
		{"zero concurrency", func(c *Config) { c.Scheduler.MaxConcurrentJobs = 0 }, true},
		{"missing data dir", func(c *Config) { c.Storage.DataDir = "" }, true},
		{"webhook enabled without url", func(c *Config) { c.Notifications.Webhook.Enabled = true }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.SessionsPath(); got != "/data/sessions" {
		t.Errorf("SessionsPath = %q", got)
	}
	if got := cfg.EventsPath(); got != "/data/events.json" {
		t.Errorf("EventsPath = %q", got)
	}
}
