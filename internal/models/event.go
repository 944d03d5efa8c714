// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package models

import "time"

// EventType distinguishes operator-initiated actions from scheduled ones.
type EventType string

const (
	EventTypeManual     EventType = "manual"
	EventTypeAutomation EventType = "automation"
)

// EventResult is the outcome recorded for an automation decision.
type EventResult string

const (
	ResultSuccess EventResult = "success"
	ResultFailed  EventResult = "failed"
	ResultSkipped EventResult = "skipped"
)

// AutomationEvent is one append-only audit record. Every decision the
// engine makes produces exactly one event, including skips, so the log
// is the complete operator-visible history.
type AutomationEvent struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	Label         string         `json:"label"`
	EventType     EventType      `json:"event_type"`
	Trigger       string         `json:"trigger,omitempty"`
	PurchaseType  PerkType       `json:"purchase_type,omitempty"`
	Amount        string         `json:"amount,omitempty"`
	Result        EventResult    `json:"result"`
	Error         string         `json:"error,omitempty"`
	StatusMessage string         `json:"status_message,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}
