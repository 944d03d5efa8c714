// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package services

import (
	"context"
)

// EventSink matches the event sink's Start/Stop lifecycle.
// Satisfied by *events.Sink.
type EventSink interface {
	Start()
	Stop()
}

// EventSinkService runs the asynchronous event sink under supervision.
// Stop drains buffered events before returning, so automation outcomes
// recorded just before shutdown still reach the log.
type EventSinkService struct {
	sink EventSink
	name string
}

// NewEventSinkService creates a new event sink service wrapper.
func NewEventSinkService(sink EventSink) *EventSinkService {
	return &EventSinkService{
		sink: sink,
		name: "event-sink",
	}
}

// Serve implements suture.Service.
func (s *EventSinkService) Serve(ctx context.Context) error {
	s.sink.Start()

	<-ctx.Done()

	s.sink.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor log messages.
func (s *EventSinkService) String() string {
	return s.name
}
