// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package notify

import (
	"context"
	"time"

	"github.com/tomtom215/mousehold/internal/config"
	"github.com/tomtom215/mousehold/internal/logging"
	"github.com/tomtom215/mousehold/internal/metrics"
	"github.com/tomtom215/mousehold/internal/models"
)

// deliveryTimeout bounds one fan-out delivery, independent of any
// per-channel timeout.
const deliveryTimeout = 30 * time.Second

// Manager fans notifications out to every configured channel. With no
// channels configured, or for results the operator has not subscribed
// to, Notify is a no-op.
type Manager struct {
	channels []Channel
	results  map[models.EventResult]bool
}

// NewManager builds a manager from the notifications config. Channels
// that fail validation are skipped with a warning rather than aborting
// startup.
func NewManager(cfg config.NotificationsConfig) *Manager {
	m := &Manager{
		results: make(map[models.EventResult]bool, len(cfg.Events)),
	}
	for _, r := range cfg.Events {
		m.results[models.EventResult(r)] = true
	}

	if cfg.Webhook.Enabled {
		m.addChannel(NewWebhookChannel(cfg.Webhook))
	}
	if cfg.Apprise.Enabled {
		m.addChannel(NewAppriseChannel(cfg.Apprise))
	}
	return m
}

func (m *Manager) addChannel(c Channel) {
	if err := c.Validate(); err != nil {
		logging.Warn().Err(err).Str("channel", c.Name()).Msg("Skipping misconfigured notification channel")
		return
	}
	m.channels = append(m.channels, c)
}

// ChannelCount returns the number of active channels.
func (m *Manager) ChannelCount() int {
	return len(m.channels)
}

// Notify delivers an event to every channel asynchronously. It returns
// immediately; delivery failures are logged and counted, never
// propagated.
func (m *Manager) Notify(event models.AutomationEvent) {
	if len(m.channels) == 0 || !m.results[event.Result] {
		return
	}

	n := Notification{
		EventType: event.EventType,
		Label:     event.Label,
		Perk:      event.PurchaseType,
		Result:    event.Result,
		Message:   event.StatusMessage,
		Details:   event.Details,
	}
	if n.Message == "" && event.Error != "" {
		n.Message = event.Error
	}

	for _, channel := range m.channels {
		go m.deliver(channel, n)
	}
}

func (m *Manager) deliver(channel Channel, n Notification) {
	// Notification goroutines are detached from the tick that raised
	// them, so any panic must stop here.
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Str("channel", channel.Name()).Msg("Notification channel panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	result := channel.Send(ctx, n)
	metrics.RecordNotification(channel.Name(), result.Success)

	if !result.Success {
		logging.Warn().
			Str("channel", channel.Name()).
			Str("label", n.Label).
			Int("response_code", result.ResponseCode).
			Str("error", result.ErrorMessage).
			Msg("Notification delivery failed")
		return
	}
	logging.Debug().
		Str("channel", channel.Name()).
		Str("label", n.Label).
		Msg("Notification delivered")
}
