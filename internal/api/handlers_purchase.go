// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/mousehold/internal/automation"
	"github.com/tomtom215/mousehold/internal/models"
	"github.com/tomtom215/mousehold/internal/store"
)

// TriggerPurchaseRequest carries optional amount overrides for a
// manual purchase.
type TriggerPurchaseRequest struct {
	Method   string `json:"method,omitempty" validate:"omitempty,oneof=points cheese"`
	Weeks    string `json:"weeks,omitempty" validate:"omitempty,oneof=4 8 max"`
	GBAmount int    `json:"amount,omitempty" validate:"min=0"`
}

// TriggerVaultRequest carries the donation amount in points.
type TriggerVaultRequest struct {
	Points int64 `json:"points" validate:"required,gt=0"`
}

// TriggerPurchase handles POST /api/v1/sessions/{label}/purchase/{perk}.
// Manual triggers bypass the guardrails; the purchase outcome still
// feeds the session's retry state and the event log.
func (h *Handler) TriggerPurchase(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	pt := models.PerkType(chi.URLParam(r, "perk"))
	if !pt.Valid() {
		respondError(w, http.StatusBadRequest, "INVALID_PERK", "Perk must be one of wedge, vip, upload_credit", nil)
		return
	}

	var req TriggerPurchaseRequest
	if r.ContentLength > 0 {
		if err := decodeJSONBody(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if apiErr := validateRequest(&req); apiErr != nil {
			respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
			return
		}
	}

	result, err := h.runner.TriggerManual(r.Context(), label, pt, automation.PerkOverride{
		Method:   req.Method,
		Weeks:    req.Weeks,
		GBAmount: req.GBAmount,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrSessionNotFound):
			respondError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "No session with that label", nil)
		case errors.Is(err, automation.ErrNoCredential):
			respondError(w, http.StatusBadRequest, "NO_CREDENTIAL", "Session has no mam_id configured", nil)
		default:
			respondError(w, http.StatusInternalServerError, "PURCHASE_ERROR", "Failed to execute purchase", err)
		}
		return
	}

	// Purchase refusals are reported in-band with a 200: the request
	// itself succeeded, the tracker declined it.
	h.statusCache.Invalidate(label)
	respondData(w, http.StatusOK, result)
}

// TriggerVault handles POST /api/v1/sessions/{label}/vault.
func (h *Handler) TriggerVault(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")

	var req TriggerVaultRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	result, err := h.runner.TriggerVault(r.Context(), label, req.Points)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrSessionNotFound):
			respondError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "No session with that label", nil)
		case errors.Is(err, automation.ErrNoCredential):
			respondError(w, http.StatusBadRequest, "NO_CREDENTIAL", "Session has no mam_id configured", nil)
		default:
			respondError(w, http.StatusInternalServerError, "VAULT_ERROR", "Failed to execute donation", err)
		}
		return
	}

	h.statusCache.Invalidate(label)
	respondData(w, http.StatusOK, result)
}
