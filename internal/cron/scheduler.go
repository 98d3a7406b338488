package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/claystudio/membership-backend/pkg/logger"
	"github.com/claystudio/membership-backend/pkg/metrics"
)

const (
	defaultInterval   = 24 * time.Hour
	defaultJobTimeout = 30 * time.Minute
)

type SchedulerParams struct {
	Logger     *logger.Logger
	Lock       Lock
	Metrics    *metrics.JobMetrics
	Jobs       []Job
	Interval   time.Duration
	JobTimeout time.Duration
}

// Scheduler runs every job once per interval, in order, on whichever worker
// instance wins the maintenance lock. A failing job does not stop the jobs
// after it.
type Scheduler struct {
	logg       *logger.Logger
	lock       Lock
	metrics    *metrics.JobMetrics
	jobs       []Job
	interval   time.Duration
	jobTimeout time.Duration
}

func NewScheduler(p SchedulerParams) (*Scheduler, error) {
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	if p.Lock == nil {
		return nil, errors.New("lock required")
	}
	if err := checkJobs(p.Jobs); err != nil {
		return nil, err
	}
	s := &Scheduler{
		logg:       p.Logger,
		lock:       p.Lock,
		metrics:    p.Metrics,
		jobs:       append([]Job(nil), p.Jobs...),
		interval:   p.Interval,
		jobTimeout: p.JobTimeout,
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = defaultJobTimeout
	}
	return s, nil
}

// Run executes a cycle straight away and then on every tick until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "maintenance cycle had failures", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single cycle. It returns nil without running anything
// when another instance holds the lock; otherwise it returns the combined
// job failures.
func (s *Scheduler) RunOnce(ctx context.Context) (err error) {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire maintenance lock: %w", err)
	}
	if !held {
		s.logg.Info(ctx, "maintenance lock held elsewhere, skipping cycle")
		return nil
	}
	defer func() {
		err = multierr.Append(err, s.lock.Release(context.WithoutCancel(ctx)))
	}()

	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return multierr.Append(err, ctx.Err())
		}
		err = multierr.Append(err, s.runJob(ctx, job))
	}
	return err
}

func (s *Scheduler) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	ctx = s.logg.WithField(ctx, "job", name)
	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	started := time.Now()
	err := job.Run(jobCtx)
	elapsed := time.Since(started)
	s.metrics.ObserveDuration(name, elapsed)

	ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(name)
		s.logg.Error(ctx, "job failed", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	s.metrics.IncSuccess(name)
	s.logg.Info(ctx, "job finished")
	return nil
}
