// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// mockSchedulerManager is a test double for the SchedulerManager interface.
type mockSchedulerManager struct {
	startErr   error
	stopErr    error
	startCount atomic.Int32
	stopCount  atomic.Int32
}

func (m *mockSchedulerManager) Start(ctx context.Context) error {
	m.startCount.Add(1)
	return m.startErr
}

func (m *mockSchedulerManager) Stop() error {
	m.stopCount.Add(1)
	return m.stopErr
}

func TestSchedulerService_Interface(t *testing.T) {
	var _ suture.Service = (*SchedulerService)(nil)
}

func TestSchedulerService_Serve(t *testing.T) {
	t.Run("starts then stops on context cancellation", func(t *testing.T) {
		manager := &mockSchedulerManager{}
		svc := NewSchedulerService(manager)

		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			errCh <- svc.Serve(ctx)
		}()

		// Give Serve a moment to call Start before canceling.
		deadline := time.Now().Add(time.Second)
		for manager.startCount.Load() == 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		if manager.startCount.Load() != 1 {
			t.Fatal("Start was not called")
		}

		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return after context cancellation")
		}

		if manager.stopCount.Load() != 1 {
			t.Errorf("expected 1 Stop call, got %d", manager.stopCount.Load())
		}
	})

	t.Run("returns start error immediately", func(t *testing.T) {
		startErr := errors.New("already running")
		manager := &mockSchedulerManager{startErr: startErr}
		svc := NewSchedulerService(manager)

		err := svc.Serve(context.Background())
		if !errors.Is(err, startErr) {
			t.Errorf("expected start error, got %v", err)
		}
		if manager.stopCount.Load() != 0 {
			t.Error("Stop should not be called when Start fails")
		}
	})

	t.Run("returns stop error on shutdown", func(t *testing.T) {
		stopErr := errors.New("stop failed")
		manager := &mockSchedulerManager{stopErr: stopErr}
		svc := NewSchedulerService(manager)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := svc.Serve(ctx)
		if !errors.Is(err, stopErr) {
			t.Errorf("expected stop error, got %v", err)
		}
	})
}

func TestSchedulerService_String(t *testing.T) {
	svc := NewSchedulerService(&mockSchedulerManager{})
	if svc.String() != "perk-scheduler" {
		t.Errorf("expected 'perk-scheduler', got %q", svc.String())
	}
}
