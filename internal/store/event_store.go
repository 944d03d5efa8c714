// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mousehold/internal/metrics"
	"github.com/tomtom215/mousehold/internal/models"
)

// MaxEventEntries caps the event log. Trimming evicts the oldest
// entries and happens on write, not on read.
const MaxEventEntries = 1000

// EventStore persists the append-only automation event log as a single
// JSON file, newest entry last. Concurrent writers from independent
// session timers are serialized by the mutex.
type EventStore struct {
	path       string
	mu         sync.Mutex
	maxEntries int
}

// NewEventStore creates an event store backed by the given file.
func NewEventStore(path string) *EventStore {
	return &EventStore{path: path, maxEntries: MaxEventEntries}
}

// Append adds one event to the log, evicting the oldest entries beyond
// the cap. The read-modify-write cycle runs under the store mutex.
func (s *EventStore) Append(event models.AutomationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.readLocked()
	if err != nil {
		return err
	}

	events = append(events, event)
	if len(events) > s.maxEntries {
		events = events[len(events)-s.maxEntries:]
	}

	if err := s.writeLocked(events); err != nil {
		return err
	}

	metrics.EventsAppendedTotal.WithLabelValues(string(event.Result)).Inc()
	metrics.EventLogSize.Set(float64(len(events)))
	return nil
}

// List returns all events, newest first.
func (s *EventStore) List() ([]models.AutomationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.readLocked()
	if err != nil {
		return nil, err
	}

	reversed := make([]models.AutomationEvent, len(events))
	for i, e := range events {
		reversed[len(events)-1-i] = e
	}
	return reversed, nil
}

// ListByLabel returns the events for one session label, newest first.
func (s *EventStore) ListByLabel(label string) ([]models.AutomationEvent, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	filtered := make([]models.AutomationEvent, 0, len(all))
	for _, e := range all {
		if e.Label == label {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// Clear removes events. An empty label clears the whole log; otherwise
// only the given session's events are removed. Returns the number of
// events removed.
func (s *EventStore) Clear(label string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.readLocked()
	if err != nil {
		return 0, err
	}

	var kept []models.AutomationEvent
	if label != "" {
		kept = make([]models.AutomationEvent, 0, len(events))
		for _, e := range events {
			if e.Label != label {
				kept = append(kept, e)
			}
		}
	}

	removed := len(events) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	if err := s.writeLocked(kept); err != nil {
		return 0, err
	}
	metrics.EventLogSize.Set(float64(len(kept)))
	return removed, nil
}

// Count returns the current number of logged events.
func (s *EventStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.readLocked()
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

// readLocked loads the event log file, oldest first. A missing file is
// an empty log. Caller holds s.mu.
func (s *EventStore) readLocked() ([]models.AutomationEvent, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var events []models.AutomationEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to parse event log: %w", err)
	}
	return events, nil
}

// writeLocked atomically replaces the event log file. Caller holds s.mu.
func (s *EventStore) writeLocked(events []models.AutomationEvent) error {
	if events == nil {
		events = []models.AutomationEvent{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode event log: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write event log: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace event log: %w", err)
	}
	return nil
}
