package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// JobFunc is a unit of scheduled work
type JobFunc func(ctx context.Context) error

type delayedJob struct {
	name  string
	delay time.Duration
	fn    JobFunc
}

// Scheduler owns a cron instance plus one-shot delayed jobs. It is created
// by the process startup routine, started once and stopped at shutdown.
type Scheduler struct {
	cron *cron.Cron
	log  logrus.FieldLogger

	mu      sync.Mutex
	delayed []delayedJob
	timers  []*time.Timer
	started bool
}

// New creates a scheduler whose cron specs are evaluated in loc
func New(loc *time.Location, log logrus.FieldLogger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	log = log.WithField("component", "scheduler")
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cron.PrintfLogger(log))),
		),
		log: log,
	}
}

// Register adds a recurring job using a standard five-field cron spec
func (s *Scheduler) Register(name, spec string, fn JobFunc) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.log.WithFields(logrus.Fields{"job": name, "spec": spec}).Info("Job scheduled")
	return nil
}

// RegisterExclusive is Register for jobs that must not overlap: a tick that
// fires while the previous run is still going is skipped.
func (s *Scheduler) RegisterExclusive(name, spec string, fn JobFunc) error {
	job := cron.NewChain(cron.SkipIfStillRunning(cron.PrintfLogger(s.log))).
		Then(cron.FuncJob(func() { s.run(name, fn) }))

	if _, err := s.cron.AddJob(spec, job); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.log.WithFields(logrus.Fields{"job": name, "spec": spec, "exclusive": true}).Info("Job scheduled")
	return nil
}

// RunOnceAfter runs fn a single time, delay after Start
func (s *Scheduler) RunOnceAfter(delay time.Duration, name string, fn JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := delayedJob{name: name, delay: delay, fn: fn}
	if s.started {
		s.timers = append(s.timers, s.arm(job))
		return
	}
	s.delayed = append(s.delayed, job)
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	s.cron.Start()
	for _, job := range s.delayed {
		s.timers = append(s.timers, s.arm(job))
	}
	s.delayed = nil
	s.log.WithField("jobs", len(s.cron.Entries())).Info("Scheduler started")
}

// Stop cancels pending one-shot jobs and stops the cron. The returned
// context is done once running jobs have finished.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	s.delayed = nil
	s.started = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	s.log.Info("Scheduler stopped")
	return ctx
}

// Entries returns the number of recurring jobs
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) arm(job delayedJob) *time.Timer {
	s.log.WithFields(logrus.Fields{"job": job.name, "delay": job.delay}).Info("One-shot job armed")
	return time.AfterFunc(job.delay, func() { s.run(job.name, job.fn) })
}

// run executes a job to completion; runs carry no deadline
func (s *Scheduler) run(name string, fn JobFunc) {
	start := time.Now()
	log := s.log.WithField("job", name)
	log.Info("Job started")

	if err := fn(context.Background()); err != nil {
		log.WithError(err).WithField("duration", time.Since(start)).Error("Job failed")
		return
	}
	log.WithField("duration", time.Since(start)).Info("Job finished")
}
