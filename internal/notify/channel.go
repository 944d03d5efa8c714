// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

// Package notify delivers significant automation events to external
// channels (generic webhooks and Apprise). Delivery is fire-and-forget:
// a channel failure is logged and counted, never propagated to the
// automation pipeline that raised the event.
package notify

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tomtom215/mousehold/internal/models"
)

// Notification is the channel-agnostic payload delivered to each
// configured channel.
type Notification struct {
	EventType models.EventType   `json:"event_type"`
	Label     string             `json:"label"`
	Perk      models.PerkType    `json:"perk,omitempty"`
	Result    models.EventResult `json:"result"`
	Message   string             `json:"message,omitempty"`
	Details   map[string]any     `json:"details,omitempty"`
}

// Title renders a short human-readable summary line.
func (n Notification) Title() string {
	if n.Perk != "" {
		return fmt.Sprintf("[%s] %s %s: %s", n.Label, n.Perk, n.Result, n.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", n.Label, n.Result, n.Message)
}

// DeliveryResult reports one delivery attempt. Channels return results,
// not errors, so callers can log and count without unwrapping.
type DeliveryResult struct {
	Success      bool
	ErrorMessage string
	ResponseCode int
}

// Channel is one notification transport.
type Channel interface {
	// Name identifies the channel in logs and metrics.
	Name() string

	// Validate checks the channel configuration at startup.
	Validate() error

	// Send delivers one notification. Implementations must respect
	// the context deadline and never panic.
	Send(ctx context.Context, n Notification) DeliveryResult
}

// validateHTTPURL rejects URLs that are empty, relative, or non-HTTP.
func validateHTTPURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url host is required")
	}
	return nil
}
