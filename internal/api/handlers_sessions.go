// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/mousehold/internal/automation"
	"github.com/tomtom215/mousehold/internal/cache"
	"github.com/tomtom215/mousehold/internal/config"
	"github.com/tomtom215/mousehold/internal/logging"
	"github.com/tomtom215/mousehold/internal/models"
	"github.com/tomtom215/mousehold/internal/store"
)

// Handler carries the dependencies for all API endpoints.
type Handler struct {
	sessions    *store.SessionStore
	events      *store.EventStore
	runner      *automation.Runner
	statusCache *cache.StatusCache
	version     string
	startedAt   time.Time
}

// NewHandler creates the API handler.
func NewHandler(sessions *store.SessionStore, events *store.EventStore, runner *automation.Runner, statusCache *cache.StatusCache, version string) *Handler {
	return &Handler{
		sessions:    sessions,
		events:      events,
		runner:      runner,
		statusCache: statusCache,
		version:     version,
		startedAt:   time.Now(),
	}
}

// SaveSessionRequest is the upsert payload for a session. Setting
// new_label renames the session's backing file in place.
type SaveSessionRequest struct {
	Label          string                `json:"label" validate:"required,session_label"`
	NewLabel       string                `json:"new_label,omitempty" validate:"omitempty,session_label"`
	MamID          string                `json:"mam_id,omitempty"`
	IPOverride     string                `json:"ip_override,omitempty" validate:"omitempty,ip"`
	Proxy          *models.ProxyConfig   `json:"proxy,omitempty"`
	PerkAutomation models.PerkAutomation `json:"perk_automation"`
}

// sessionView is the API shape of a session, with the credential
// masked.
type sessionView struct {
	Label          string                `json:"label"`
	MamID          string                `json:"mam_id"`
	IPOverride     string                `json:"ip_override,omitempty"`
	Proxy          *models.ProxyConfig   `json:"proxy,omitempty"`
	PerkAutomation models.PerkAutomation `json:"perk_automation"`
	LastStatus     *models.StatusResult  `json:"last_status,omitempty"`
	LastCheck      time.Time             `json:"last_check,omitempty"`
}

func viewOf(s *models.Session) sessionView {
	return sessionView{
		Label:          s.Label,
		MamID:          config.MaskCredential(s.MamID),
		IPOverride:     s.IPOverride,
		Proxy:          s.Proxy,
		PerkAutomation: s.PerkAutomation,
		LastStatus:     s.LastStatus,
		LastCheck:      s.LastCheck,
	}
}

// ListSessions handles GET /api/v1/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to list sessions", err)
		return
	}

	views := make([]sessionView, len(sessions))
	for i, s := range sessions {
		views[i] = viewOf(s)
	}
	respondList(w, views, len(views))
}

// GetSession handles GET /api/v1/sessions/{label}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")

	session, err := h.sessions.Get(label)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "No session with that label", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to load session", err)
		return
	}
	respondData(w, http.StatusOK, viewOf(session))
}

// SaveSession handles POST /api/v1/sessions. The operation is an
// upsert keyed by label; runtime state (retry counters, last status) of
// an existing session survives a configuration edit.
func (h *Handler) SaveSession(w http.ResponseWriter, r *http.Request) {
	var req SaveSessionRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	label := req.Label
	if req.NewLabel != "" && req.NewLabel != req.Label {
		if err := h.sessions.Rename(req.Label, req.NewLabel); err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				respondError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "No session with that label", nil)
				return
			}
			respondError(w, http.StatusConflict, "RENAME_FAILED", err.Error(), nil)
			return
		}
		h.statusCache.Invalidate(req.Label)
		label = req.NewLabel
	}

	session := &models.Session{
		Label:          label,
		MamID:          req.MamID,
		IPOverride:     req.IPOverride,
		Proxy:          req.Proxy,
		PerkAutomation: req.PerkAutomation,
	}

	// Carry runtime state over from the existing record.
	if existing, err := h.sessions.Get(label); err == nil {
		if session.MamID == "" {
			session.MamID = existing.MamID
		}
		session.LastStatus = existing.LastStatus
		session.LastCheck = existing.LastCheck
		for _, pt := range models.AllPerkTypes {
			session.PerkAutomation.ForPerk(pt).RetryState = existing.PerkAutomation.ForPerk(pt).RetryState
		}
	}

	if err := h.sessions.Save(session); err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to save session", err)
		return
	}

	h.statusCache.Invalidate(label)
	logging.Ctx(r.Context()).Info().Str("label", sanitizeLogValue(label)).Msg("Session saved")
	respondData(w, http.StatusOK, viewOf(session))
}

// DeleteSession handles DELETE /api/v1/sessions/{label}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")

	if err := h.sessions.Delete(label); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "No session with that label", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to delete session", err)
		return
	}

	h.statusCache.Invalidate(label)
	logging.Ctx(r.Context()).Info().Str("label", sanitizeLogValue(label)).Msg("Session deleted")
	respondData(w, http.StatusOK, map[string]string{"label": label})
}

// SessionStatus handles GET /api/v1/sessions/{label}/status. A cached
// snapshot is served when fresh; force=true bypasses and invalidates
// the cache.
func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	force := boolQueryParam(r, "force")

	if !force {
		if status, ok := h.statusCache.Get(label); ok {
			respondData(w, http.StatusOK, status)
			return
		}
	} else {
		h.statusCache.Invalidate(label)
	}

	status, err := h.runner.RefreshStatus(r.Context(), label)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "No session with that label", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "STATUS_ERROR", "Failed to fetch status", err)
		return
	}

	h.statusCache.Set(label, status)
	respondData(w, http.StatusOK, status)
}
