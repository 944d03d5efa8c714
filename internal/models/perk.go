// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package models

import "fmt"

// PerkType identifies a purchasable account benefit on the tracker.
type PerkType string

const (
	PerkWedge        PerkType = "wedge"
	PerkVIP          PerkType = "vip"
	PerkUploadCredit PerkType = "upload_credit"
)

// AllPerkTypes lists every perk the automation engine schedules,
// in the order jobs are registered.
var AllPerkTypes = []PerkType{PerkWedge, PerkVIP, PerkUploadCredit}

// Valid reports whether pt is a known perk type.
func (pt PerkType) Valid() bool {
	switch pt {
	case PerkWedge, PerkVIP, PerkUploadCredit:
		return true
	}
	return false
}

// Point costs charged by the tracker per perk purchase.
const (
	WedgeCostPoints = 10000
	VIPCostPer4Wk   = 5000
	UploadPointsGB  = 500
)

// DefaultPointThreshold applies when a perk config omits
// trigger_point_threshold.
const DefaultPointThreshold = 50000

// PurchaseCost returns the point cost of firing the given perk with the
// given config. Upload credit scales with the configured GB amount; VIP
// and wedge purchases have flat costs regardless of duration or method.
func PurchaseCost(pt PerkType, cfg PerkConfig) int64 {
	switch pt {
	case PerkWedge:
		return WedgeCostPoints
	case PerkVIP:
		return VIPCostPer4Wk
	case PerkUploadCredit:
		gb := cfg.GBAmount
		if gb < 1 {
			gb = 1
		}
		return int64(gb) * UploadPointsGB
	default:
		return 0
	}
}

// AmountLabel renders the human-readable amount for a perk purchase,
// used in event records and notifications.
func AmountLabel(pt PerkType, cfg PerkConfig) string {
	switch pt {
	case PerkWedge:
		return cfg.Method
	case PerkVIP:
		return fmt.Sprintf("%s weeks", cfg.Weeks)
	case PerkUploadCredit:
		return fmt.Sprintf("%d GB", cfg.GBAmount)
	default:
		return ""
	}
}
