// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

// Package cache provides the in-memory status cache for the API's
// session status endpoint. Entries expire on a TTL and are invalidated
// explicitly by force-refresh requests and session edits, replacing any
// reliance on process-global maps with an injected, test-replaceable
// component.
package cache

import (
	"sync"
	"time"

	"github.com/tomtom215/mousehold/internal/models"
)

// cleanupInterval is how often the background sweep removes expired
// entries.
const cleanupInterval = 5 * time.Minute

// entry is one cached status snapshot with its expiry.
type entry struct {
	status    *models.StatusResult
	expiresAt time.Time
}

// StatusCache is a thread-safe TTL cache of tracker status snapshots
// keyed by session label.
type StatusCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration

	statsMu sync.RWMutex
	hits    int64
	misses  int64

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStatusCache creates a status cache with the given TTL and starts
// the background cleanup sweep.
func NewStatusCache(ttl time.Duration) *StatusCache {
	c := &StatusCache{
		entries: make(map[string]entry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Stop terminates the background cleanup sweep. Safe to call more than
// once; the cache itself remains usable afterwards.
func (c *StatusCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// Get returns the cached status for a label, or (nil, false) when the
// entry is absent or expired. Expired entries are removed on access.
func (c *StatusCache) Get(label string) (*models.StatusResult, bool) {
	c.mu.RLock()
	e, exists := c.entries[label]
	c.mu.RUnlock()

	if !exists {
		c.recordMiss()
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, label)
		c.mu.Unlock()
		c.recordMiss()
		return nil, false
	}

	c.recordHit()
	return e.status, true
}

// Set stores a status snapshot for a label.
func (c *StatusCache) Set(label string, status *models.StatusResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[label] = entry{
		status:    status,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Invalidate removes the cached status for a label. Called on force
// refresh and whenever a session is edited or deleted.
func (c *StatusCache) Invalidate(label string) {
	c.mu.Lock()
	delete(c.entries, label)
	c.mu.Unlock()
}

// Stats returns the hit and miss counters.
func (c *StatusCache) Stats() (hits, misses int64) {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.hits, c.misses
}

func (c *StatusCache) recordHit() {
	c.statsMu.Lock()
	c.hits++
	c.statsMu.Unlock()
}

func (c *StatusCache) recordMiss() {
	c.statsMu.Lock()
	c.misses++
	c.statsMu.Unlock()
}

// cleanupLoop periodically removes expired entries so labels that stop
// being queried do not accumulate.
func (c *StatusCache) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for label, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, label)
				}
			}
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}
