// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package cache

import (
	"testing"
	"time"

	"github.com/tomtom215/mousehold/internal/models"
)

func statusWithPoints(points int64) *models.StatusResult {
	return &models.StatusResult{Points: &points, CheckedAt: time.Now().UTC()}
}

func TestStatusCacheSetGet(t *testing.T) {
	c := NewStatusCache(time.Minute)

	c.Set("alice", statusWithPoints(1000))

	got, ok := c.Get("alice")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Points == nil || *got.Points != 1000 {
		t.Errorf("Points = %v, want 1000", got.Points)
	}
}

func TestStatusCacheMiss(t *testing.T) {
	c := NewStatusCache(time.Minute)

	if _, ok := c.Get("ghost"); ok {
		t.Error("expected miss for unknown label")
	}

	hits, misses := c.Stats()
	if hits != 0 || misses != 1 {
		t.Errorf("stats = (%d, %d), want (0, 1)", hits, misses)
	}
}

func TestStatusCacheExpiry(t *testing.T) {
	c := NewStatusCache(10 * time.Millisecond)

	c.Set("alice", statusWithPoints(1000))
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("alice"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestStatusCacheInvalidate(t *testing.T) {
	c := NewStatusCache(time.Minute)

	c.Set("alice", statusWithPoints(1000))
	c.Invalidate("alice")

	if _, ok := c.Get("alice"); ok {
		t.Error("expected miss after invalidation")
	}
	// Invalidating an absent label is a no-op.
	c.Invalidate("ghost")
}

func TestStatusCacheOverwrite(t *testing.T) {
	c := NewStatusCache(time.Minute)

	c.Set("alice", statusWithPoints(1000))
	c.Set("alice", statusWithPoints(2000))

	got, ok := c.Get("alice")
	if !ok || *got.Points != 2000 {
		t.Errorf("expected latest value, got %v", got)
	}
}

func TestStatusCacheStop(t *testing.T) {
	c := NewStatusCache(time.Minute)

	c.Stop()
	c.Stop() // second call is a no-op

	// The cache stays usable after the sweep goroutine exits.
	status := &models.StatusResult{}
	c.Set("alice", status)
	if got, ok := c.Get("alice"); !ok || got != status {
		t.Error("cache unusable after Stop")
	}
}
