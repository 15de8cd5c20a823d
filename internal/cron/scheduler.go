// Package cron runs the benchmark on a schedule for online mode.
package cron

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/haasonsaas/ragbench/internal/observability"
)

// Job is the work run at each scheduled time.
type Job func(ctx context.Context) error

// Status is a snapshot of the scheduler state.
type Status struct {
	Schedule  string
	NextRun   time.Time
	LastRun   time.Time
	LastError string
	Runs      int
	Skipped   int
}

// Scheduler runs a single job on a schedule. A tick that arrives while the
// previous run is still in progress is skipped, never queued.
type Scheduler struct {
	schedule     Schedule
	job          Job
	logger       *observability.Logger
	now          func() time.Time
	tickInterval time.Duration

	mu      sync.Mutex
	started bool
	running bool
	status  Status
	wg      sync.WaitGroup
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithLogger configures the scheduler logger.
func WithLogger(logger *observability.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides the scheduler tick interval.
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

// NewScheduler creates a scheduler for job.
func NewScheduler(schedule Schedule, job Job, opts ...Option) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("job is required")
	}
	s := &Scheduler{
		schedule:     schedule,
		job:          job,
		logger:       observability.NewLogger(observability.LogConfig{Level: "info"}),
		now:          time.Now,
		tickInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithFields("component", "cron")

	next, err := schedule.Next(s.now())
	if err != nil {
		return nil, err
	}
	s.status = Status{Schedule: schedule.String(), NextRun: next}
	return s, nil
}

// Start begins running the job until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info(ctx, "scheduler started", "schedule", s.status.Schedule, "next_run", s.Status().NextRun)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runDue(ctx)
			}
		}
	}()
	return nil
}

// Stop waits for the scheduler loop and any in-progress run to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs the job immediately unless a run is already in progress. It
// does not move the next scheduled time.
func (s *Scheduler) RunNow(ctx context.Context) error {
	if !s.begin() {
		return ErrRunInProgress
	}
	return s.execute(ctx, s.now())
}

// RunOnce runs the job if it is due and reports whether it ran.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if s == nil {
		return false
	}
	return s.runDue(ctx)
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ErrRunInProgress is returned by RunNow while the job is running.
var ErrRunInProgress = errors.New("benchmark run already in progress")

func (s *Scheduler) runDue(ctx context.Context) bool {
	now := s.now()
	s.mu.Lock()
	if now.Before(s.status.NextRun) {
		s.mu.Unlock()
		return false
	}
	next, err := s.schedule.Next(now)
	if err != nil {
		s.status.LastError = err.Error()
		s.mu.Unlock()
		s.logger.Error(ctx, "schedule has no next run", "error", err)
		return false
	}
	s.status.NextRun = next
	if s.running {
		s.status.Skipped++
		s.mu.Unlock()
		s.logger.Warn(ctx, "scheduled run skipped, previous run still in progress", "next_run", next)
		return false
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.execute(ctx, now)
	}()
	return true
}

func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

// execute runs the job. The caller must have set running.
func (s *Scheduler) execute(ctx context.Context, now time.Time) error {
	err := s.job(ctx)

	s.mu.Lock()
	s.running = false
	s.status.LastRun = now
	s.status.Runs++
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
	}
	next := s.status.NextRun
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn(ctx, "scheduled run failed", "error", err, "next_run", next)
	} else {
		s.logger.Info(ctx, "scheduled run finished", "next_run", next)
	}
	return err
}
