// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/mousehold/internal/models"
)

// mockLister implements LabelLister for testing.
type mockLister struct {
	mu     sync.Mutex
	labels []string
	err    error
}

func (m *mockLister) Labels() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.labels, m.err
}

func (m *mockLister) setLabels(labels []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labels = labels
}

// mockRunner implements TickRunner for testing.
type mockRunner struct {
	mu    sync.Mutex
	ticks []JobID
	block chan struct{}
}

func (m *mockRunner) RunTick(_ context.Context, label string, pt models.PerkType) {
	m.mu.Lock()
	m.ticks = append(m.ticks, JobID{Label: label, Perk: pt})
	block := m.block
	m.mu.Unlock()
	if block != nil {
		<-block
	}
}

func (m *mockRunner) tickCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ticks)
}

func newTestScheduler(lister LabelLister, runner TickRunner, cfg Config) *Scheduler {
	logger := zerolog.Nop()
	return New(lister, runner, &logger, cfg)
}

func TestRegisterIdempotent(t *testing.T) {
	s := newTestScheduler(&mockLister{}, &mockRunner{}, DefaultConfig())

	id := JobID{Label: "alice", Perk: models.PerkWedge}
	s.Register(id, time.Minute)
	s.Register(id, time.Minute)
	s.Register(id, time.Minute)

	if got := s.JobCount(); got != 1 {
		t.Errorf("JobCount = %d, want 1 (re-registration must not duplicate)", got)
	}
}

func TestRegisterUpdatesInterval(t *testing.T) {
	s := newTestScheduler(&mockLister{}, &mockRunner{}, DefaultConfig())

	id := JobID{Label: "alice", Perk: models.PerkWedge}
	s.Register(id, time.Minute)
	s.Register(id, time.Hour)

	s.mu.Lock()
	interval := s.jobs[id].interval
	s.mu.Unlock()
	if interval != time.Hour {
		t.Errorf("interval = %s, want 1h after re-registration", interval)
	}
}

func TestUnregister(t *testing.T) {
	s := newTestScheduler(&mockLister{}, &mockRunner{}, DefaultConfig())

	id := JobID{Label: "alice", Perk: models.PerkWedge}
	s.Register(id, time.Minute)
	s.Unregister(id)
	s.Unregister(id) // second call is a no-op

	if got := s.JobCount(); got != 0 {
		t.Errorf("JobCount = %d, want 0", got)
	}
}

func TestSyncJobsAddsAndRemoves(t *testing.T) {
	lister := &mockLister{labels: []string{"alice", "bob"}}
	s := newTestScheduler(lister, &mockRunner{}, DefaultConfig())

	s.syncJobs()
	if got, want := s.JobCount(), 2*len(models.AllPerkTypes); got != want {
		t.Fatalf("JobCount = %d, want %d (one job per session per perk)", got, want)
	}

	lister.setLabels([]string{"alice"})
	s.syncJobs()
	if got, want := s.JobCount(), len(models.AllPerkTypes); got != want {
		t.Errorf("JobCount = %d, want %d after session removal", got, want)
	}

	s.mu.Lock()
	for id := range s.jobs {
		if id.Label != "alice" {
			t.Errorf("leftover job for deleted session: %s", id)
		}
	}
	s.mu.Unlock()
}

func TestSyncJobsListErrorKeepsTable(t *testing.T) {
	lister := &mockLister{labels: []string{"alice"}}
	s := newTestScheduler(lister, &mockRunner{}, DefaultConfig())

	s.syncJobs()
	before := s.JobCount()

	lister.mu.Lock()
	lister.err = context.DeadlineExceeded
	lister.mu.Unlock()

	s.syncJobs()
	if got := s.JobCount(); got != before {
		t.Errorf("JobCount = %d, want %d (listing failure must not drop jobs)", got, before)
	}
}

func TestClaimDueJobsCoalesces(t *testing.T) {
	s := newTestScheduler(&mockLister{}, &mockRunner{}, DefaultConfig())

	id := JobID{Label: "alice", Perk: models.PerkWedge}
	s.Register(id, time.Minute)

	// Force the job due, claim it, then claim again while it is
	// still marked running.
	s.mu.Lock()
	s.jobs[id].nextRun = time.Now().Add(-time.Second)
	s.mu.Unlock()

	due := s.claimDueJobs(time.Now())
	if len(due) != 1 {
		t.Fatalf("first claim = %d jobs, want 1", len(due))
	}

	s.mu.Lock()
	s.jobs[id].nextRun = time.Now().Add(-time.Second)
	s.mu.Unlock()

	due = s.claimDueJobs(time.Now())
	if len(due) != 0 {
		t.Fatalf("second claim = %d jobs, want 0 (overlapping fire must coalesce)", len(due))
	}

	// After release the job can fire again.
	s.release(id)
	s.mu.Lock()
	s.jobs[id].nextRun = time.Now().Add(-time.Second)
	s.mu.Unlock()

	due = s.claimDueJobs(time.Now())
	if len(due) != 1 {
		t.Errorf("claim after release = %d jobs, want 1", len(due))
	}
}

func TestClaimDueJobsRespectsNextRun(t *testing.T) {
	s := newTestScheduler(&mockLister{}, &mockRunner{}, DefaultConfig())

	id := JobID{Label: "alice", Perk: models.PerkWedge}
	s.Register(id, time.Hour)

	if due := s.claimDueJobs(time.Now()); len(due) != 0 {
		t.Errorf("job claimed %d ticks before its interval elapsed", len(due))
	}
}

func TestStartStop(t *testing.T) {
	lister := &mockLister{labels: []string{"alice"}}
	runner := &mockRunner{}
	cfg := DefaultConfig()
	cfg.CheckInterval = 10 * time.Millisecond
	s := newTestScheduler(lister, runner, cfg)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start must fail while running")
	}

	// The immediate first check syncs the job table.
	time.Sleep(50 * time.Millisecond)
	if got, want := s.JobCount(), len(models.AllPerkTypes); got != want {
		t.Errorf("JobCount = %d, want %d after first check", got, want)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	s := newTestScheduler(&mockLister{labels: []string{"alice"}}, &mockRunner{}, cfg)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := s.JobCount(); got != 0 {
		t.Errorf("disabled scheduler must not sync jobs, got %d", got)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStopWaitsForInflightTicks(t *testing.T) {
	lister := &mockLister{labels: []string{"alice"}}
	runner := &mockRunner{block: make(chan struct{})}
	cfg := DefaultConfig()
	cfg.CheckInterval = 10 * time.Millisecond
	s := newTestScheduler(lister, runner, cfg)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Make a job due so a tick starts and blocks.
	deadline := time.After(2 * time.Second)
	for runner.tickCount() == 0 {
		s.mu.Lock()
		for _, j := range s.jobs {
			j.nextRun = time.Now().Add(-time.Second)
		}
		s.mu.Unlock()
		select {
		case <-deadline:
			t.Fatal("no tick started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	stopped := make(chan struct{})
	go func() {
		_ = s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.block)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the tick finished")
	}
}

// selectiveBlockRunner blocks ticks for one label only.
type selectiveBlockRunner struct {
	mu    sync.Mutex
	ticks map[string]int
	block chan struct{}
}

func (m *selectiveBlockRunner) RunTick(_ context.Context, label string, pt models.PerkType) {
	m.mu.Lock()
	if m.ticks == nil {
		m.ticks = make(map[string]int)
	}
	m.ticks[label]++
	m.mu.Unlock()
	if label == "slow" {
		<-m.block
	}
}

func (m *selectiveBlockRunner) countFor(label string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticks[label]
}

func TestSlowTickDoesNotDelayOtherJobs(t *testing.T) {
	lister := &mockLister{labels: []string{"slow", "fast"}}
	runner := &selectiveBlockRunner{block: make(chan struct{})}
	cfg := DefaultConfig()
	cfg.CheckInterval = 10 * time.Millisecond
	cfg.MaxConcurrentJobs = 10
	s := newTestScheduler(lister, runner, cfg)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// While every "slow" tick stays blocked, "fast" jobs must keep
	// firing on their own intervals.
	deadline := time.After(2 * time.Second)
	for runner.countFor("fast") < 3 {
		select {
		case <-deadline:
			t.Fatalf("fast ticks stalled behind slow ones: fast=%d slow=%d",
				runner.countFor("fast"), runner.countFor("slow"))
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Blocked slow jobs coalesce: at most one in-flight tick per job.
	if got, max := runner.countFor("slow"), len(models.AllPerkTypes); got > max {
		t.Errorf("slow ticks = %d, want at most %d while blocked", got, max)
	}

	close(runner.block)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// ctxCaptureRunner records the context each tick runs under.
type ctxCaptureRunner struct {
	mu    sync.Mutex
	ctxs  []context.Context
	block chan struct{}
}

func (m *ctxCaptureRunner) RunTick(ctx context.Context, label string, pt models.PerkType) {
	m.mu.Lock()
	m.ctxs = append(m.ctxs, ctx)
	m.mu.Unlock()
	<-m.block
}

func (m *ctxCaptureRunner) captured() []context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]context.Context(nil), m.ctxs...)
}

func TestShutdownDoesNotCancelInflightTicks(t *testing.T) {
	lister := &mockLister{labels: []string{"alice"}}
	runner := &ctxCaptureRunner{block: make(chan struct{})}
	cfg := DefaultConfig()
	cfg.CheckInterval = 10 * time.Millisecond
	s := newTestScheduler(lister, runner, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for len(runner.captured()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no tick started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Cancelling the scheduler's context stops the loop but must not
	// abort a tick that is already mid-purchase.
	cancel()
	time.Sleep(20 * time.Millisecond)

	for i, tickCtx := range runner.captured() {
		if err := tickCtx.Err(); err != nil {
			t.Errorf("tick %d context cancelled during shutdown: %v", i, err)
		}
	}

	close(runner.block)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
