// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

// Package events provides the asynchronous audit sink in front of the
// persistent event log. Automation ticks record events without blocking
// on file I/O; a single writer goroutine drains the buffer, and a
// persistence failure is logged and swallowed so it never aborts the
// pipeline that produced the event.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/mousehold/internal/logging"
	"github.com/tomtom215/mousehold/internal/models"
	"github.com/tomtom215/mousehold/internal/store"
)

// DefaultBufferSize is the event channel capacity. When the buffer is
// full the event is dropped with a warning rather than blocking an
// automation tick.
const DefaultBufferSize = 256

// Sink accepts automation events and persists them in the background.
type Sink struct {
	store  *store.EventStore
	ch     chan models.AutomationEvent
	done   chan struct{}
	wg     sync.WaitGroup
	stopMu sync.Mutex
	closed bool
}

// NewSink creates a sink in front of the given event store.
func NewSink(eventStore *store.EventStore) *Sink {
	return &Sink{
		store: eventStore,
		ch:    make(chan models.AutomationEvent, DefaultBufferSize),
		done:  make(chan struct{}),
	}
}

// Start launches the background writer.
func (s *Sink) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop drains buffered events and stops the writer. Safe to call once.
func (s *Sink) Stop() {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	s.wg.Wait()
}

// Record queues one event for persistence, assigning its ID and
// timestamp when unset. It never blocks and never returns an error.
func (s *Sink) Record(event models.AutomationEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case s.ch <- event:
	default:
		logging.Warn().
			Str("label", event.Label).
			Str("result", string(event.Result)).
			Msg("Event buffer full, dropping audit event")
	}
}

func (s *Sink) run() {
	defer s.wg.Done()
	for {
		select {
		case event := <-s.ch:
			s.persist(event)
		case <-s.done:
			// Drain whatever is still buffered before exiting so a
			// graceful shutdown loses nothing.
			for {
				select {
				case event := <-s.ch:
					s.persist(event)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) persist(event models.AutomationEvent) {
	if err := s.store.Append(event); err != nil {
		logging.Error().Err(err).
			Str("label", event.Label).
			Str("result", string(event.Result)).
			Msg("Failed to persist audit event")
	}
}
