// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package services

import (
	"context"
	"fmt"
)

// SchedulerManager matches the perk scheduler's Start/Stop lifecycle.
// Satisfied by *scheduler.Scheduler.
type SchedulerManager interface {
	Start(ctx context.Context) error
	Stop() error
}

// SchedulerService adapts the Start/Stop lifecycle to suture's Serve:
//
//  1. Calls Start(ctx) to launch the check loop
//  2. Blocks until the context is canceled
//  3. Calls Stop() and waits for in-flight ticks to finish
type SchedulerService struct {
	manager SchedulerManager
	name    string
}

// NewSchedulerService creates a new scheduler service wrapper.
func NewSchedulerService(manager SchedulerManager) *SchedulerService {
	return &SchedulerService{
		manager: manager,
		name:    "perk-scheduler",
	}
}

// Serve implements suture.Service.
//
// If Start fails, the error is returned immediately and suture restarts
// the service per its backoff policy.
func (s *SchedulerService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("scheduler start failed: %w", err)
	}

	<-ctx.Done()

	if err := s.manager.Stop(); err != nil {
		return fmt.Errorf("scheduler stop failed: %w", err)
	}

	return ctx.Err()
}

// String implements fmt.Stringer for supervisor log messages.
func (s *SchedulerService) String() string {
	return s.name
}
