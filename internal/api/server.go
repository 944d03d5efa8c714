// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tomtom215/mousehold/internal/config"
	"github.com/tomtom215/mousehold/internal/logging"
)

// Server wraps the HTTP server with a lifecycle the supervision tree
// can drive.
type Server struct {
	srv *http.Server
}

// NewServer builds the HTTP server from configuration and the routed
// handler.
func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// ListenAndServe runs the server until Shutdown. A clean shutdown does
// not return an error.
func (s *Server) ListenAndServe() error {
	logging.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
