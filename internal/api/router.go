// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

// Package api provides the HTTP surface: session CRUD, manual status
// and purchase triggers, the event log, health, and metrics. Routing
// uses the Chi router with the production-hardened middleware from its
// ecosystem (go-chi/cors, go-chi/httprate).
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/mousehold/internal/config"
	"github.com/tomtom215/mousehold/internal/middleware"
)

// chiMiddleware adapts http.HandlerFunc middleware to Chi's
// func(http.Handler) http.Handler so the middleware package works with
// r.Use().
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Router builds the HTTP handler tree.
type Router struct {
	handler *Handler
	cfg     config.ServerConfig
}

// NewRouter creates a router around the given handler.
func NewRouter(handler *Handler, cfg config.ServerConfig) *Router {
	return &Router{handler: handler, cfg: cfg}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	rateLimitWindow := router.cfg.RateLimitWindow
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitReqs := router.cfg.RateLimitReqs
	if rateLimitReqs <= 0 {
		rateLimitReqs = 100
	}

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}))

	// ========================
	// API Endpoints
	// ========================
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.Limit(rateLimitReqs, rateLimitWindow, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Use(chiMiddleware(middleware.SecurityHeaders))
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		r.Get("/health", router.handler.Health)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", router.handler.ListSessions)
			r.Post("/", router.handler.SaveSession)
			r.Route("/{label}", func(r chi.Router) {
				r.Get("/", router.handler.GetSession)
				r.Delete("/", router.handler.DeleteSession)
				r.Get("/status", router.handler.SessionStatus)

				// Purchases spend real points; rate limit them harder
				// than reads.
				r.Group(func(r chi.Router) {
					r.Use(httprate.Limit(10, rateLimitWindow, httprate.WithKeyFuncs(httprate.KeyByIP)))
					r.Post("/purchase/{perk}", router.handler.TriggerPurchase)
					r.Post("/vault", router.handler.TriggerVault)
				})
			})
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", router.handler.ListEvents)
			r.Delete("/", router.handler.ClearEvents)
		})
	})

	// ========================
	// Observability
	// ========================
	r.Handle("/metrics", promhttp.Handler())

	return r
}
