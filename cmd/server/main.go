// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

// Package main is the entry point for the Mousehold server.
//
// Mousehold keeps MyAnonamouse sessions healthy: it stores session
// credentials, checks bonus point balances on a schedule, and spends
// points on wedges, VIP time, and upload credit when the configured
// trigger conditions are met. A REST API exposes session management,
// manual purchases, and the automation event log.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered load from defaults, config file, and
//     environment variables (Koanf v2)
//  2. Stores: file-backed session store (optionally encrypted) and the
//     capped automation event log
//  3. Tracker client: rate-limited HTTP client behind a circuit breaker
//  4. Notifications: webhook and Apprise channels
//  5. Automation: guardrail evaluation and purchase execution
//  6. Scheduler: per-session, per-perk check loop
//  7. HTTP server: REST API plus Prometheus metrics
//
// All long-running components run under a suture supervisor tree, so a
// crash in the scheduler restarts it without taking down the API.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables prefixed MOUSEHOLD_
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// Minimal setup:
//
//	export MOUSEHOLD_TRACKER_BASE_URL=https://www.myanonamouse.net
//	export MOUSEHOLD_STORAGE_DATA_DIR=/data
//	./mousehold
//
// To encrypt stored session cookies at rest:
//
//	export MOUSEHOLD_STORAGE_ENCRYPTION_SECRET=$(openssl rand -base64 32)
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the scheduler
// finishes in-flight checks, the event sink drains its buffer, and the
// HTTP server waits for active requests up to the shutdown timeout.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/mousehold/internal/api"
	"github.com/tomtom215/mousehold/internal/automation"
	"github.com/tomtom215/mousehold/internal/cache"
	"github.com/tomtom215/mousehold/internal/config"
	"github.com/tomtom215/mousehold/internal/events"
	"github.com/tomtom215/mousehold/internal/logging"
	"github.com/tomtom215/mousehold/internal/notify"
	"github.com/tomtom215/mousehold/internal/scheduler"
	"github.com/tomtom215/mousehold/internal/store"
	"github.com/tomtom215/mousehold/internal/supervisor"
	"github.com/tomtom215/mousehold/internal/supervisor/services"
	"github.com/tomtom215/mousehold/internal/tracker"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// statusCacheTTL bounds how stale a cached balance served by the API
// can be before the tracker is asked again.
const statusCacheTTL = 30 * time.Second

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("tracker_url", cfg.Tracker.BaseURL).
		Str("data_dir", cfg.Storage.DataDir).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Starting Mousehold")

	// Credential encryption is optional. Without a secret, mam_id
	// cookies are stored in plaintext on disk.
	var encryptor *config.CredentialEncryptor
	if cfg.Storage.EncryptionSecret != "" {
		encryptor, err = config.NewCredentialEncryptor(cfg.Storage.EncryptionSecret)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize credential encryption")
		}
		logging.Info().Msg("Credential encryption enabled")
	} else {
		logging.Warn().Msg("No encryption secret configured, session cookies stored in plaintext")
	}

	sessionStore, err := store.NewSessionStore(cfg.SessionsPath(), encryptor)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize session store")
	}
	eventStore := store.NewEventStore(cfg.EventsPath())

	// Tracker client with circuit breaker. Only transport failures feed
	// the breaker; a session the tracker rejects is an in-band result.
	trackerClient := tracker.NewBreakerClient(&cfg.Tracker)

	notifier := notify.NewManager(cfg.Notifications)
	sink := events.NewSink(eventStore)

	runner := automation.NewRunner(sessionStore, trackerClient, sink, notifier)

	schedLogger := logging.With().Str("component", "scheduler").Logger()
	sched := scheduler.New(sessionStore, runner, &schedLogger, scheduler.Config{
		Enabled:           cfg.Scheduler.Enabled,
		CheckInterval:     cfg.Scheduler.CheckInterval,
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		ExecutionTimeout:  cfg.Scheduler.ExecutionTimeout,
	})

	statusCache := cache.NewStatusCache(statusCacheTTL)
	defer statusCache.Stop()
	handler := api.NewHandler(sessionStore, eventStore, runner, statusCache, version)
	router := api.NewRouter(handler, cfg.Server)
	server := api.NewServer(cfg.Server, router.Setup())

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog
	slogLogger := logging.NewSlogLogger()

	tree := supervisor.NewTree(slogLogger, supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	tree.AddAutomationService(services.NewEventSinkService(sink))
	tree.AddAutomationService(services.NewSchedulerService(sched))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr()).Msg("HTTP server service added")

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}
