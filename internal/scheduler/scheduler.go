// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

// Package scheduler drives the automation timers. Every session owns
// one independent job per perk type, identified by the stable pair
// (label, perk). On each check the scheduler reconciles its job table
// against the session store, so sessions created, renamed, or deleted
// through the API are picked up without a restart, then fires the jobs
// that are due.
//
// A job is never run concurrently with itself: an overlapping fire is
// skipped, not queued. Jobs run on a semaphore-bounded set of worker
// goroutines so one slow tracker call cannot starve other sessions.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/mousehold/internal/metrics"
	"github.com/tomtom215/mousehold/internal/models"
)

// LabelLister is the session store surface the scheduler needs.
type LabelLister interface {
	Labels() ([]string, error)
}

// TickRunner executes one automation tick. Implemented by
// automation.Runner.
type TickRunner interface {
	RunTick(ctx context.Context, label string, pt models.PerkType)
}

// JobID identifies one automation timer.
type JobID struct {
	Label string
	Perk  models.PerkType
}

func (id JobID) String() string {
	return fmt.Sprintf("%s/%s", id.Label, id.Perk)
}

// job is the runtime state for one timer.
type job struct {
	id       JobID
	interval time.Duration
	nextRun  time.Time
	running  bool
}

// Config holds scheduler configuration.
type Config struct {
	// CheckInterval is how often the scheduler wakes to reconcile and
	// fire due jobs (default: 1 minute).
	CheckInterval time.Duration

	// MaxConcurrentJobs bounds how many ticks run at once.
	MaxConcurrentJobs int

	// ExecutionTimeout is the maximum duration of a single tick.
	ExecutionTimeout time.Duration

	// Enabled controls whether the scheduler is active.
	Enabled bool
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		CheckInterval:     time.Minute,
		MaxConcurrentJobs: 5,
		ExecutionTimeout:  2 * time.Minute,
		Enabled:           true,
	}
}

// Scheduler owns the automation job table and the timer loop.
type Scheduler struct {
	sessions LabelLister
	runner   TickRunner
	logger   zerolog.Logger
	config   Config

	// Runtime state
	mu      sync.Mutex
	jobs    map[JobID]*job
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	ticksWG sync.WaitGroup
	sem     chan struct{}
}

// New creates a scheduler.
func New(sessions LabelLister, runner TickRunner, logger *zerolog.Logger, config Config) *Scheduler {
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if config.MaxConcurrentJobs <= 0 {
		config.MaxConcurrentJobs = 5
	}
	if config.ExecutionTimeout <= 0 {
		config.ExecutionTimeout = 2 * time.Minute
	}

	return &Scheduler{
		sessions: sessions,
		runner:   runner,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		config:   config,
		jobs:     make(map[JobID]*job),
		sem:      make(chan struct{}, config.MaxConcurrentJobs),
	}
}

// Register adds or replaces the timer for a job ID. Re-registering an
// existing ID replaces it in place, never duplicates it; the first fire
// of a new or replaced job happens one interval from now.
func (s *Scheduler) Register(id JobID, interval time.Duration) {
	if interval <= 0 {
		interval = s.config.CheckInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[id]; ok {
		existing.interval = interval
		return
	}
	s.jobs[id] = &job{
		id:       id,
		interval: interval,
		nextRun:  time.Now().Add(interval),
	}
	metrics.ScheduledJobs.Set(float64(len(s.jobs)))
	s.logger.Debug().Str("job", id.String()).Dur("interval", interval).Msg("Registered automation job")
}

// Unregister removes the timer for a job ID, if present.
func (s *Scheduler) Unregister(id JobID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return
	}
	delete(s.jobs, id)
	metrics.ScheduledJobs.Set(float64(len(s.jobs)))
	s.logger.Debug().Str("job", id.String()).Msg("Unregistered automation job")
}

// JobCount returns the number of registered jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	if !s.config.Enabled {
		s.logger.Info().Msg("Scheduler disabled")
		go func() {
			defer close(s.doneCh)
			<-s.stopCh
		}()
		return nil
	}

	s.logger.Info().
		Dur("check_interval", s.config.CheckInterval).
		Int("max_concurrent", s.config.MaxConcurrentJobs).
		Msg("Starting scheduler")

	go s.run(ctx)
	return nil
}

// Stop stops the scheduler loop and waits for in-flight ticks to
// finish, so a shutdown never kills a job mid-write.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info().Msg("Stopping scheduler...")
	close(s.stopCh)
	<-s.doneCh
	s.ticksWG.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	// Run immediately on start so a restart does not wait a full
	// interval before reconciling jobs.
	s.checkAndExecute()

	for {
		select {
		case <-ticker.C:
			s.checkAndExecute()
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// checkAndExecute reconciles the job table with the session store and
// fires due jobs. Ticks run on their own goroutines bounded by the
// shared semaphore; the check loop never waits on them, so one slow
// tracker call cannot delay other sessions' next fire.
func (s *Scheduler) checkAndExecute() {
	s.syncJobs()

	for _, id := range s.claimDueJobs(time.Now()) {
		s.ticksWG.Add(1)
		go func(id JobID) {
			defer s.ticksWG.Done()
			defer s.release(id)

			s.sem <- struct{}{} // Acquire semaphore
			defer func() { <-s.sem }()

			// In-flight ticks are allowed to finish on shutdown rather
			// than being killed mid-write, so the execution context is
			// bounded only by the timeout.
			execCtx, cancel := context.WithTimeout(context.Background(), s.config.ExecutionTimeout)
			defer cancel()

			s.runner.RunTick(execCtx, id.Label, id.Perk)
		}(id)
	}
}

// syncJobs reconciles the registered jobs against the session store:
// every persisted session gets one job per perk type, and jobs for
// vanished sessions are removed.
func (s *Scheduler) syncJobs() {
	labels, err := s.sessions.Labels()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list sessions for job sync")
		return
	}

	wanted := make(map[JobID]bool, len(labels)*len(models.AllPerkTypes))
	for _, label := range labels {
		for _, pt := range models.AllPerkTypes {
			id := JobID{Label: label, Perk: pt}
			wanted[id] = true
			s.Register(id, s.config.CheckInterval)
		}
	}

	s.mu.Lock()
	for id := range s.jobs {
		if !wanted[id] {
			delete(s.jobs, id)
			s.logger.Debug().Str("job", id.String()).Msg("Removed job for deleted session")
		}
	}
	metrics.ScheduledJobs.Set(float64(len(s.jobs)))
	s.mu.Unlock()

	metrics.SessionsManaged.Set(float64(len(labels)))
}

// claimDueJobs returns the IDs of jobs due at now, marking each as
// running and advancing its next fire time. A job still running from a
// previous fire is coalesced: its overlapping fire is skipped, and the
// next one is due a full interval later.
func (s *Scheduler) claimDueJobs(now time.Time) []JobID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []JobID
	for id, j := range s.jobs {
		if now.Before(j.nextRun) {
			continue
		}
		j.nextRun = now.Add(j.interval)
		if j.running {
			s.logger.Debug().Str("job", id.String()).Msg("Skipping overlapping fire, previous tick still running")
			continue
		}
		j.running = true
		due = append(due, id)
	}
	return due
}

// release clears a job's running flag after its tick finishes. The job
// may have been unregistered mid-tick, in which case there is nothing
// to clear.
func (s *Scheduler) release(id JobID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.running = false
	}
}
