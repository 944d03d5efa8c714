// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/mousehold/internal/logging"
	"github.com/tomtom215/mousehold/internal/metrics"
	"github.com/tomtom215/mousehold/internal/models"
	"github.com/tomtom215/mousehold/internal/tracker"
)

// ErrNoCredential is returned by manual triggers when the session has
// no mam_id configured.
var ErrNoCredential = errors.New("session has no mam_id configured")

// SessionStore is the session persistence surface the runner needs.
// Implemented by store.SessionStore and by mocks in tests.
type SessionStore interface {
	Get(label string) (*models.Session, error)
	UpdateStatus(label string, status *models.StatusResult) error
	UpdateRetryState(label string, perk models.PerkType, rs models.RetryState) error
}

// EventRecorder accepts audit events. Implemented by events.Sink.
type EventRecorder interface {
	Record(event models.AutomationEvent)
}

// Notifier fans significant events out to external channels.
// Implemented by notify.Manager.
type Notifier interface {
	Notify(event models.AutomationEvent)
}

// Runner executes the automation pipeline for one (session, perk) pair:
// reload config, fetch status, evaluate guardrails, purchase, record
// the outcome, and log the decision.
type Runner struct {
	sessions SessionStore
	tracker  tracker.API
	events   EventRecorder
	notifier Notifier
}

// NewRunner wires a runner from its collaborators.
func NewRunner(sessions SessionStore, trackerAPI tracker.API, events EventRecorder, notifier Notifier) *Runner {
	return &Runner{
		sessions: sessions,
		tracker:  trackerAPI,
		events:   events,
		notifier: notifier,
	}
}

// RunTick executes one scheduled automation tick. Errors never escape:
// configuration problems silently skip the session (logged), and every
// other failure degrades to a failed attempt recorded in the retry
// state machine. A panic inside the pipeline is recovered so it cannot
// kill the scheduler or other sessions' jobs.
func (r *Runner) RunTick(ctx context.Context, label string, pt models.PerkType) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error().
				Interface("panic", rec).
				Str("label", label).
				Str("perk", string(pt)).
				Msg("Automation tick panicked")
			metrics.RecordTick(string(pt), "failed", time.Since(start))
		}
	}()

	// Always reload from the store: operators may have edited the
	// session since the last tick.
	session, err := r.sessions.Get(label)
	if err != nil {
		logging.Warn().Err(err).Str("label", label).Msg("Skipping tick, session unavailable")
		return
	}
	cfg := session.PerkAutomation.ForPerk(pt)
	if cfg == nil {
		logging.Error().Str("label", label).Str("perk", string(pt)).Msg("Skipping tick, unknown perk type")
		return
	}

	creds := tracker.Credentials{MamID: session.MamID, Proxy: session.Proxy}
	status := r.tracker.FetchStatus(ctx, creds)
	if err := r.sessions.UpdateStatus(label, status); err != nil {
		logging.Warn().Err(err).Str("label", label).Msg("Failed to persist status snapshot")
	}

	now := time.Now()
	decision := Evaluate(status, *cfg, pt, now)
	if !decision.Proceed {
		r.handleSkip(session, pt, cfg, decision)
		metrics.RecordTick(string(pt), "skipped", time.Since(start))
		return
	}

	result := r.tracker.Purchase(ctx, pt, *cfg, creds)
	r.recordAttempt(session, pt, cfg, models.EventTypeAutomation, result, now)

	outcome := "failed"
	if result.Success {
		outcome = "success"
	}
	metrics.RecordTick(string(pt), outcome, time.Since(start))
}

// handleSkip applies the skip side effects: backoff reset when the
// session became ineligible, a skip metric, and an audit record for
// skips that represent engine decisions rather than static
// configuration (disabled and time-only triggers repeat every tick and
// would drown the capped log).
func (r *Runner) handleSkip(session *models.Session, pt models.PerkType, cfg *models.PerkConfig, decision Decision) {
	metrics.RecordGuardrailSkip(string(pt), decision.Reason)

	if decision.ResetBackoff && (cfg.RetryCount != 0 || cfg.CooldownUntil != 0 || cfg.LastFailTime != 0) {
		if err := r.sessions.UpdateRetryState(session.Label, pt, models.RetryState{}); err != nil {
			logging.Warn().Err(err).Str("label", session.Label).Msg("Failed to reset retry state")
		}
	}

	if decision.Reason == SkipDisabled || decision.Reason == SkipTimeTrigger {
		return
	}

	logging.Debug().
		Str("label", session.Label).
		Str("perk", string(pt)).
		Str("reason", decision.Reason).
		Msg("Guardrail skip")

	event := models.AutomationEvent{
		Label:         session.Label,
		EventType:     models.EventTypeAutomation,
		Trigger:       cfg.TriggerType,
		PurchaseType:  pt,
		Amount:        models.AmountLabel(pt, *cfg),
		Result:        models.ResultSkipped,
		StatusMessage: decision.Message,
		Details:       map[string]any{"reason": decision.Reason},
	}
	r.events.Record(event)
	r.notifier.Notify(event)
}

// recordAttempt persists the retry state transition and the audit
// record for one purchase attempt, then notifies.
func (r *Runner) recordAttempt(session *models.Session, pt models.PerkType, cfg *models.PerkConfig, eventType models.EventType, result *models.PurchaseResult, now time.Time) {
	newState := RecordOutcome(cfg.RetryState, result.Success, now)
	if err := r.sessions.UpdateRetryState(session.Label, pt, newState); err != nil {
		logging.Warn().Err(err).Str("label", session.Label).Msg("Failed to persist retry state")
	}

	metrics.RecordPurchase(string(pt), result.Success)

	event := models.AutomationEvent{
		Label:        session.Label,
		EventType:    eventType,
		Trigger:      cfg.TriggerType,
		PurchaseType: pt,
		Amount:       models.AmountLabel(pt, *cfg),
		Details:      map[string]any{"retry_count": newState.RetryCount},
	}
	if eventType == models.EventTypeManual {
		event.Trigger = "manual"
	}
	if result.Success {
		event.Result = models.ResultSuccess
		event.StatusMessage = fmt.Sprintf("%s purchase succeeded", pt)
	} else {
		event.Result = models.ResultFailed
		event.Error = result.Error
		event.StatusMessage = fmt.Sprintf("%s purchase failed", pt)
		if newState.CooldownUntil > 0 {
			event.Details["cooldown_until"] = newState.CooldownUntil
		}
		logging.Warn().
			Str("label", session.Label).
			Str("perk", string(pt)).
			Int("retry_count", newState.RetryCount).
			Str("error", result.Error).
			Msg("Purchase failed")
	}

	r.events.Record(event)
	r.notifier.Notify(event)
}

// PerkOverride carries optional manual-trigger parameter overrides.
type PerkOverride struct {
	Method   string
	Weeks    string
	GBAmount int
}

// TriggerManual executes one operator-initiated purchase, bypassing the
// guardrails. Configuration problems surface to the caller; purchase
// failures come back inside the PurchaseResult and still feed the retry
// state machine so scheduled automation sees a consistent history.
func (r *Runner) TriggerManual(ctx context.Context, label string, pt models.PerkType, override PerkOverride) (*models.PurchaseResult, error) {
	session, err := r.sessions.Get(label)
	if err != nil {
		return nil, err
	}
	if session.MamID == "" {
		return nil, ErrNoCredential
	}
	cfg := session.PerkAutomation.ForPerk(pt)
	if cfg == nil {
		return nil, fmt.Errorf("unknown perk type %q", pt)
	}

	effective := *cfg
	if override.Method != "" {
		effective.Method = override.Method
	}
	if override.Weeks != "" {
		effective.Weeks = override.Weeks
	}
	if override.GBAmount > 0 {
		effective.GBAmount = override.GBAmount
	}

	creds := tracker.Credentials{MamID: session.MamID, Proxy: session.Proxy}
	result := r.tracker.Purchase(ctx, pt, effective, creds)
	r.recordAttempt(session, pt, &effective, models.EventTypeManual, result, time.Now())
	return result, nil
}

// TriggerVault executes one operator-initiated vault donation. Vault
// donations have no scheduled counterpart and no retry state; the
// outcome is only logged and notified.
func (r *Runner) TriggerVault(ctx context.Context, label string, points int64) (*models.PurchaseResult, error) {
	session, err := r.sessions.Get(label)
	if err != nil {
		return nil, err
	}
	if session.MamID == "" {
		return nil, ErrNoCredential
	}

	creds := tracker.Credentials{MamID: session.MamID, Proxy: session.Proxy}
	result := r.tracker.DonateVault(ctx, creds, points)

	event := models.AutomationEvent{
		Label:         session.Label,
		EventType:     models.EventTypeManual,
		Trigger:       "manual",
		PurchaseType:  "vault",
		Amount:        fmt.Sprintf("%d points", points),
		Details:       map[string]any{},
		StatusMessage: "vault donation",
	}
	if result.Success {
		event.Result = models.ResultSuccess
		event.StatusMessage = "vault donation succeeded"
	} else {
		event.Result = models.ResultFailed
		event.Error = result.Error
		event.StatusMessage = "vault donation failed"
	}
	r.events.Record(event)
	r.notifier.Notify(event)
	return result, nil
}

// RefreshStatus fetches and persists a fresh status snapshot for one
// session, for the manual status endpoint's force path.
func (r *Runner) RefreshStatus(ctx context.Context, label string) (*models.StatusResult, error) {
	session, err := r.sessions.Get(label)
	if err != nil {
		return nil, err
	}

	creds := tracker.Credentials{MamID: session.MamID, Proxy: session.Proxy}
	status := r.tracker.FetchStatus(ctx, creds)
	if err := r.sessions.UpdateStatus(label, status); err != nil {
		logging.Warn().Err(err).Str("label", label).Msg("Failed to persist status snapshot")
	}
	return status, nil
}
