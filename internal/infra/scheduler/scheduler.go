// Package scheduler runs the periodic maintenance jobs: the weekly XP reset
// and challenge rotation, daily question generation and leaderboard sync.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/cittadino-app/cittadino/internal/infra/observability"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Scheduler wraps gocron with per-run timeouts, logging and metrics.
type Scheduler struct {
	cron    *gocron.Scheduler
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]Job
}

// New creates a scheduler whose calendar runs in loc.
func New(loc *time.Location, timeout time.Duration) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	cron := gocron.NewScheduler(loc)
	cron.SingletonModeAll()
	return &Scheduler{cron: cron, timeout: timeout, jobs: make(map[string]Job)}
}

// Weekly runs fn every Monday at the given "HH:MM".
func (s *Scheduler) Weekly(name, at string, fn Job) error {
	if _, err := s.cron.Every(1).Monday().At(at).Tag(name).Do(s.Run, name); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.register(name, fn)
	return nil
}

// Daily runs fn every day at the given "HH:MM".
func (s *Scheduler) Daily(name, at string, fn Job) error {
	if _, err := s.cron.Every(1).Day().At(at).Tag(name).Do(s.Run, name); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.register(name, fn)
	return nil
}

// Every runs fn at a fixed interval, starting one interval after Start.
func (s *Scheduler) Every(name string, interval time.Duration, fn Job) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive", name)
	}
	if _, err := s.cron.Every(interval).WaitForSchedule().Tag(name).Do(s.Run, name); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.register(name, fn)
	return nil
}

func (s *Scheduler) register(name string, fn Job) {
	s.mu.Lock()
	s.jobs[name] = fn
	s.mu.Unlock()
}

// Names lists registered jobs.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run executes a registered job immediately.
func (s *Scheduler) Run(name string) error {
	s.mu.Lock()
	fn, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if err != nil {
		observability.JobRuns.WithLabelValues(name, "error").Inc()
		log.Printf("[scheduler] %s failed after %s: %v", name, time.Since(start).Round(time.Millisecond), err)
		return err
	}
	observability.JobRuns.WithLabelValues(name, "ok").Inc()
	log.Printf("[scheduler] %s done in %s", name, time.Since(start).Round(time.Millisecond))
	return nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.StartAsync()
}

// Stop halts scheduling. Jobs already running finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
