// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package models

import (
	"fmt"
	"net/url"
	"time"
)

// Session represents one tracker account under management. Each session
// is persisted as its own YAML file keyed by label, and every automation
// tick reloads it from disk before acting so operator edits take effect
// without a restart.
type Session struct {
	Label      string `yaml:"label" json:"label" validate:"required,session_label"`
	MamID      string `yaml:"mam_id" json:"mam_id"`
	IPOverride string `yaml:"ip_override,omitempty" json:"ip_override,omitempty" validate:"omitempty,ip"`

	Proxy *ProxyConfig `yaml:"proxy,omitempty" json:"proxy,omitempty"`

	PerkAutomation PerkAutomation `yaml:"perk_automation" json:"perk_automation"`

	// Last observed tracker status, updated by every automation tick
	// and by manual status requests.
	LastStatus *StatusResult `yaml:"last_status,omitempty" json:"last_status,omitempty"`
	LastCheck  time.Time     `yaml:"last_check,omitempty" json:"last_check,omitempty"`
}

// PerkAutomation groups the per-perk automation configs nested in a
// session record.
type PerkAutomation struct {
	Wedge        PerkConfig `yaml:"wedge_automation" json:"wedge_automation"`
	VIP          PerkConfig `yaml:"vip_automation" json:"vip_automation"`
	UploadCredit PerkConfig `yaml:"upload_credit" json:"upload_credit"`
}

// ForPerk returns a pointer to the config for the given perk type so
// callers can mutate retry state in place. Returns nil for unknown types.
func (pa *PerkAutomation) ForPerk(pt PerkType) *PerkConfig {
	switch pt {
	case PerkWedge:
		return &pa.Wedge
	case PerkVIP:
		return &pa.VIP
	case PerkUploadCredit:
		return &pa.UploadCredit
	default:
		return nil
	}
}

// PerkConfig is the automation configuration for a single perk type.
// The retry fields are flattened into the same record so the persisted
// shape stays one level deep per perk.
type PerkConfig struct {
	Enabled        bool   `yaml:"enabled" json:"enabled"`
	TriggerType    string `yaml:"trigger_type" json:"trigger_type" validate:"omitempty,oneof=points time both"`
	PointThreshold int64  `yaml:"trigger_point_threshold" json:"trigger_point_threshold" validate:"min=0"`

	// TriggerDays is stored for time-based triggers but not evaluated;
	// only point triggers gate purchases today.
	TriggerDays int `yaml:"trigger_days,omitempty" json:"trigger_days,omitempty" validate:"min=0"`

	// Method applies to wedge purchases only: "points" or "cheese".
	Method string `yaml:"method,omitempty" json:"method,omitempty" validate:"omitempty,oneof=points cheese"`

	// Weeks applies to VIP purchases only: "4", "8", or "max".
	Weeks string `yaml:"weeks,omitempty" json:"weeks,omitempty" validate:"omitempty,oneof=4 8 max"`

	// GBAmount applies to upload credit purchases only.
	GBAmount int `yaml:"gb_amount,omitempty" json:"gb_amount,omitempty" validate:"min=0"`

	RetryState `yaml:",inline"`
}

// RetryState tracks the failure history for one (session, perk) pair.
// It is embedded in PerkConfig and persisted with the session so that
// process restarts do not lose backoff state.
type RetryState struct {
	// RetryCount is the number of consecutive failed attempts.
	RetryCount int `yaml:"retry" json:"retry"`
	// LastFailTime is the epoch second of the most recent failure,
	// zero when no failure is outstanding.
	LastFailTime int64 `yaml:"last_fail_time,omitempty" json:"last_fail_time,omitempty"`
	// CooldownUntil is the epoch second until which attempts are
	// suppressed, zero when no cooldown is active.
	CooldownUntil int64 `yaml:"cooldown_until,omitempty" json:"cooldown_until,omitempty"`
}

// Reset clears all backoff state. Called on success and whenever the
// session becomes ineligible so it starts fresh once eligible again.
func (rs *RetryState) Reset() {
	rs.RetryCount = 0
	rs.LastFailTime = 0
	rs.CooldownUntil = 0
}

// InCooldown reports whether a cooldown window is active at now.
func (rs *RetryState) InCooldown(now time.Time) bool {
	return rs.CooldownUntil > 0 && now.Unix() < rs.CooldownUntil
}

// ProxyConfig describes an optional outbound HTTP(S) proxy for a
// session's tracker calls.
type ProxyConfig struct {
	Host     string `yaml:"host" json:"host" validate:"required"`
	Port     int    `yaml:"port" json:"port" validate:"required,min=1,max=65535"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
}

// URL builds the proxy URL with basic auth embedded when credentials
// are configured.
func (p *ProxyConfig) URL() (*url.URL, error) {
	if p == nil || p.Host == "" {
		return nil, fmt.Errorf("proxy host not configured")
	}
	u := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u, nil
}

// ApplyDefaults fills in the defaults for any zero-valued automation
// fields. It is the single defaulting point: stores call it on load and
// the API calls it on save, so downstream code never re-checks for
// missing values.
func (s *Session) ApplyDefaults() {
	applyPerkDefaults(&s.PerkAutomation.Wedge, PerkWedge)
	applyPerkDefaults(&s.PerkAutomation.VIP, PerkVIP)
	applyPerkDefaults(&s.PerkAutomation.UploadCredit, PerkUploadCredit)
}

func applyPerkDefaults(cfg *PerkConfig, pt PerkType) {
	if cfg.TriggerType == "" {
		cfg.TriggerType = "points"
	}
	if cfg.PointThreshold <= 0 {
		cfg.PointThreshold = DefaultPointThreshold
	}
	switch pt {
	case PerkWedge:
		if cfg.Method == "" {
			cfg.Method = "points"
		}
	case PerkVIP:
		if cfg.Weeks == "" {
			cfg.Weeks = "4"
		}
	case PerkUploadCredit:
		if cfg.GBAmount <= 0 {
			cfg.GBAmount = 1
		}
	}
}

// StatusResult is a normalized snapshot of the tracker's view of an
// account. Fetch failures never raise; they produce a StatusResult with
// nil balances and a descriptive message, and callers must treat nil
// points as unknown rather than zero.
type StatusResult struct {
	Points      *int64    `yaml:"points" json:"points"`
	Cheese      *int64    `yaml:"cheese" json:"cheese"`
	WedgeActive *bool     `yaml:"wedge_active" json:"wedge_active"`
	VIPActive   *bool     `yaml:"vip_active" json:"vip_active"`
	Message     string    `yaml:"message,omitempty" json:"message,omitempty"`
	CheckedAt   time.Time `yaml:"checked_at" json:"checked_at"`
}

// PurchaseResult is the outcome of a single purchase call. Success=false
// always carries a non-empty Error or Raw explanation.
type PurchaseResult struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Raw     map[string]any `json:"raw,omitempty"`
}
