// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/tomtom215/mousehold/internal/logging"
	"github.com/tomtom215/mousehold/internal/models"
)

// ListEvents handles GET /api/v1/events. An optional label query
// filters to one session; events come back newest first.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")

	var (
		events []models.AutomationEvent
		err    error
	)
	if label != "" {
		events, err = h.events.ListByLabel(label)
	} else {
		events, err = h.events.List()
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to list events", err)
		return
	}
	if events == nil {
		events = []models.AutomationEvent{}
	}
	respondList(w, events, len(events))
}

// ClearEvents handles DELETE /api/v1/events. An optional label query
// clears only one session's events.
func (h *Handler) ClearEvents(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")

	removed, err := h.events.Clear(label)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to clear events", err)
		return
	}

	logging.Ctx(r.Context()).Info().Str("label", sanitizeLogValue(label)).Int("removed", removed).Msg("Event log cleared")
	respondData(w, http.StatusOK, map[string]any{"removed": removed})
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.Labels()
	healthy := err == nil

	status := map[string]any{
		"healthy":    healthy,
		"version":    h.version,
		"uptime":     time.Since(h.startedAt).Round(time.Second).String(),
		"sessions":   len(sessions),
		"goroutines": runtime.NumGoroutine(),
	}
	if !healthy {
		respondJSON(w, http.StatusServiceUnavailable, &models.APIResponse{
			Status:   "error",
			Data:     status,
			Metadata: models.Metadata{Timestamp: time.Now().UTC()},
			Error:    &models.APIError{Code: "UNHEALTHY", Message: err.Error()},
		})
		return
	}
	respondData(w, http.StatusOK, status)
}
