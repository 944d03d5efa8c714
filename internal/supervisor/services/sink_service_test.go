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

// mockEventSink is a test double for the EventSink interface.
type mockEventSink struct {
	startCount atomic.Int32
	stopCount  atomic.Int32
}

func (m *mockEventSink) Start() { m.startCount.Add(1) }
func (m *mockEventSink) Stop()  { m.stopCount.Add(1) }

func TestEventSinkService_Interface(t *testing.T) {
	var _ suture.Service = (*EventSinkService)(nil)
}

func TestEventSinkService_Serve(t *testing.T) {
	sink := &mockEventSink{}
	svc := NewEventSinkService(sink)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Serve(ctx)
	}()

	deadline := time.Now().Add(time.Second)
	for sink.startCount.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sink.startCount.Load() != 1 {
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

	if sink.stopCount.Load() != 1 {
		t.Errorf("expected 1 Stop call, got %d", sink.stopCount.Load())
	}
}

func TestEventSinkService_String(t *testing.T) {
	svc := NewEventSinkService(&mockEventSink{})
	if svc.String() != "event-sink" {
		t.Errorf("expected 'event-sink', got %q", svc.String())
	}
}
