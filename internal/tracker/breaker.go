// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package tracker

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/mousehold/internal/config"
	"github.com/tomtom215/mousehold/internal/logging"
	"github.com/tomtom215/mousehold/internal/metrics"
	"github.com/tomtom215/mousehold/internal/models"
)

// BreakerClient wraps Client with a circuit breaker so repeated tracker
// failures stop generating outbound calls until the site recovers.
//
// Only transport-level failures feed the breaker. An in-band refusal
// (insufficient points, invalid token) is a healthy HTTP exchange and
// must not open the circuit.
//
// DETERMINISM NOTE: the breaker uses real time for its interval and
// timeout calculations. Tests should mock the underlying client rather
// than the breaker.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[any]
}

// NewBreakerClient creates a tracker client with circuit breaker
// protection using the configured thresholds.
func NewBreakerClient(cfg *config.TrackerConfig) *BreakerClient {
	metrics.CircuitBreakerState.Set(0) // 0 = closed

	failureRatio := cfg.BreakerFailureRatio
	if failureRatio <= 0 {
		failureRatio = 0.6
	}
	minRequests := cfg.BreakerMinRequests
	if minRequests == 0 {
		minRequests = 10
	}
	openTimeout := cfg.BreakerOpenTimeout
	if openTimeout <= 0 {
		openTimeout = time.Minute
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "tracker-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     openTimeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := ratio >= failureRatio
			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", ratio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.Set(stateToFloat(to))
			if to == gobreaker.StateOpen {
				metrics.CircuitBreakerTrips.Inc()
			}
		},
	})

	return &BreakerClient{
		client: NewClient(cfg),
		cb:     cb,
	}
}

// FetchStatus implements API. A rejected or failed call degrades to a
// StatusResult with nil balances, preserving the never-errors contract.
func (b *BreakerClient) FetchStatus(ctx context.Context, creds Credentials) *models.StatusResult {
	result, err := b.cb.Execute(func() (any, error) {
		return b.client.fetchStatus(ctx, creds)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Status fetch rejected")
		}
		return &models.StatusResult{
			Message:   err.Error(),
			CheckedAt: time.Now().UTC(),
		}
	}
	return result.(*models.StatusResult)
}

// Purchase implements API.
func (b *BreakerClient) Purchase(ctx context.Context, pt models.PerkType, cfg models.PerkConfig, creds Credentials) *models.PurchaseResult {
	result, err := b.cb.Execute(func() (any, error) {
		return b.client.purchase(ctx, pt, cfg, creds)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Purchase rejected")
		}
		return &models.PurchaseResult{Success: false, Error: err.Error()}
	}
	return result.(*models.PurchaseResult)
}

// DonateVault implements API.
func (b *BreakerClient) DonateVault(ctx context.Context, creds Credentials, points int64) *models.PurchaseResult {
	result, err := b.cb.Execute(func() (any, error) {
		return b.client.donateVault(ctx, creds, points)
	})
	if err != nil {
		return &models.PurchaseResult{Success: false, Error: err.Error()}
	}
	return result.(*models.PurchaseResult)
}

// stateToFloat converts breaker state to a numeric value for metrics.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts breaker state to a string for logging.
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
