// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

// Package automation contains the perk automation engine: the guardrail
// evaluator that decides whether a purchase may fire, the retry and
// cooldown state machine, and the tick runner that drives the full
// fetch -> evaluate -> purchase -> record -> log pipeline.
//
// One generic engine serves all perk types; wedge, VIP, and upload
// credit share identical guardrail and backoff behavior, parameterized
// only by cost and amount semantics.
package automation

import (
	"fmt"
	"time"

	"github.com/tomtom215/mousehold/internal/models"
)

// Backoff policy shared by all perk types.
const (
	// MaxRetries is the consecutive-failure count that escalates to a
	// cooldown window.
	MaxRetries = 3

	// RetrySpacing is the minimum gap between attempts while failures
	// are outstanding but below the cooldown threshold.
	RetrySpacing = 60 * time.Second

	// CooldownDuration suppresses attempts after MaxRetries
	// consecutive failures.
	CooldownDuration = 600 * time.Second
)

// Skip reasons produced by Evaluate. These appear verbatim in event
// records and metrics labels.
const (
	SkipDisabled       = "disabled"
	SkipCooldown       = "cooldown"
	SkipRetrySpacing   = "retry_spacing"
	SkipUnknownBalance = "balance_unknown"
	SkipBelowThreshold = "below_threshold"
	SkipNotEnough      = "insufficient_points"
	SkipTimeTrigger    = "time_trigger"
)

// Decision is the outcome of one guardrail evaluation.
type Decision struct {
	// Proceed is true when every guardrail passed.
	Proceed bool

	// Reason is the machine-readable skip reason, empty on proceed.
	Reason string

	// Message is the operator-facing explanation for the decision.
	Message string

	// ResetBackoff is true when the caller must clear the retry state
	// as a side effect: a session that becomes ineligible starts
	// fresh once eligible again.
	ResetBackoff bool
}

func proceed() Decision {
	return Decision{Proceed: true}
}

func skip(reason, message string) Decision {
	return Decision{Reason: reason, Message: message}
}

// Evaluate applies the guardrails for one (session, perk) pair and
// returns a decision. It is pure: no I/O, no mutation; state side
// effects are signaled through Decision.ResetBackoff.
//
// The order is load-bearing. Cooldown and retry-spacing checks come
// before the threshold check so a recently failed session does not
// re-fire the instant points tick over the threshold, while the
// threshold check still clears backoff state for ineligible sessions.
func Evaluate(status *models.StatusResult, cfg models.PerkConfig, pt models.PerkType, now time.Time) Decision {
	if !cfg.Enabled {
		return skip(SkipDisabled, "automation disabled")
	}

	if cfg.InCooldown(now) {
		until := time.Unix(cfg.CooldownUntil, 0).UTC()
		return skip(SkipCooldown, fmt.Sprintf("cooldown active until %s", until.Format(time.RFC3339)))
	}

	if cfg.RetryCount > 0 && cfg.LastFailTime > 0 {
		elapsed := now.Unix() - cfg.LastFailTime
		if elapsed < int64(RetrySpacing.Seconds()) {
			return skip(SkipRetrySpacing, fmt.Sprintf("waiting between retries (%ds of %ds elapsed)", elapsed, int64(RetrySpacing.Seconds())))
		}
	}

	if cfg.TriggerType == "time" {
		// trigger_days is stored but not evaluated; a time-only
		// trigger therefore never fires.
		return skip(SkipTimeTrigger, "time-based triggers are not evaluated")
	}

	if status == nil || status.Points == nil {
		message := "point balance unknown"
		if status != nil && status.Message != "" {
			message = fmt.Sprintf("point balance unknown: %s", status.Message)
		}
		return skip(SkipUnknownBalance, message)
	}
	points := *status.Points

	if points < cfg.PointThreshold {
		d := skip(SkipBelowThreshold, fmt.Sprintf("below point threshold (%d < %d)", points, cfg.PointThreshold))
		d.ResetBackoff = true
		return d
	}

	cost := models.PurchaseCost(pt, cfg)
	if points < cost {
		return skip(SkipNotEnough, fmt.Sprintf("not enough points for %s (%d < %d)", pt, points, cost))
	}

	return proceed()
}

// RecordOutcome advances the retry state machine after one purchase
// attempt. Success clears all backoff state; the Nth consecutive
// failure escalates to a cooldown window.
func RecordOutcome(rs models.RetryState, success bool, now time.Time) models.RetryState {
	if success {
		return models.RetryState{}
	}

	rs.RetryCount++
	rs.LastFailTime = now.Unix()
	if rs.RetryCount >= MaxRetries {
		rs.CooldownUntil = now.Add(CooldownDuration).Unix()
	}
	return rs
}
