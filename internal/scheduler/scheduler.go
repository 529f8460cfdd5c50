package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/beach-weather-cache/internal/logger"
)

// Job is one refresh run.
type Job func(ctx context.Context) error

// Scheduler periodically runs the refresh job. Runs never overlap: a tick
// that arrives while the previous run is still going is skipped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	job       Job
	interval  time.Duration
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Scheduler. timeout bounds a single run; zero means the
// interval.
func New(interval, timeout time.Duration, job Job) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		job:       job,
		interval:  interval,
		timeout:   timeout,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the periodic job, running it once immediately, and starts
// the underlying scheduler.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 30
	}
	timeout := s.timeout
	if timeout <= 0 {
		timeout = time.Duration(minutes) * time.Minute
	}

	_, err := s.scheduler.Every(minutes).Minutes().StartImmediately().Do(func() {
		logger.Infof("scheduler: starting refresh run")

		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()

		started := time.Now()
		if err := s.job(ctx); err != nil {
			logger.Errorf("scheduler: refresh run failed after %s: %v", time.Since(started).Round(time.Second), err)
			return
		}
		logger.Infof("scheduler: refresh run completed in %s; next in %d minutes", time.Since(started).Round(time.Second), minutes)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop cancels a running job and stops future runs.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
