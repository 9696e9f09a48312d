// Package jobrunner runs the worker pool that claims queued jobs and drives
// them through the processing orchestrator.
package jobrunner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clearpix/clearpix-go/internal/core"
	"github.com/clearpix/clearpix-go/internal/service"
)

// RunnerOptions configures the job runner adapter.
type RunnerOptions struct {
	Jobs         core.JobRepository    // Required: durable job store
	Orchestrator *service.Orchestrator // Required: processing engine
	Logger       *slog.Logger          // Optional: structured logger

	// Job claiming settings
	Lease        time.Duration // per-job lease duration; defaults to 120s
	Concurrency  int           // number of worker goroutines; defaults to 1
	PollInterval time.Duration // idle wait between empty polls; defaults to 1s
}

// Runner claims due jobs with a lease and hands each to the orchestrator.
// Claiming uses the store's skip-locked reservation so a pool of runners
// across processes never double-claims.
type Runner struct {
	jobs         core.JobRepository
	orchestrator *service.Orchestrator
	logger       *slog.Logger
	lease        time.Duration
	workers      int
	pollInterval time.Duration
}

// NewRunner constructs a job runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Orchestrator == nil {
		return nil, errors.New("Orchestrator is required")
	}

	lease := opts.Lease
	if lease <= 0 {
		lease = 120 * time.Second
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		jobs:         opts.Jobs,
		orchestrator: opts.Orchestrator,
		logger:       logger.With("component", "job_runner"),
		lease:        lease,
		workers:      workers,
		pollInterval: poll,
	}, nil
}

// Run starts worker goroutines and processes jobs until the context is
// cancelled. The first fatal worker error stops the pool.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner",
		"workers", r.workers, "lease", r.lease, "poll_interval", r.pollInterval)

	g, ctx := errgroup.WithContext(ctx)
	for range r.workers {
		g.Go(func() error {
			return r.workerLoop(ctx)
		})
	}
	return g.Wait()
}

func (r *Runner) workerLoop(ctx context.Context) error {
	leaseSeconds := int(r.lease / time.Second)
	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, leaseSeconds)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Transient store errors should not kill the worker; back off
			// and retry on the poll interval.
			r.logger.ErrorContext(ctx, "reserve next job", "error", err)
			if !r.sleep(ctx) {
				return nil
			}
			continue
		}
		if job == nil {
			if !r.sleep(ctx) {
				return nil
			}
			continue
		}

		r.logger.InfoContext(ctx, "job claimed",
			"job_id", job.ID, "retry_count", job.RetryCount, "priority", job.Priority)
		if procErr := r.orchestrator.Process(ctx, job); procErr != nil {
			r.logger.ErrorContext(ctx, "process job", "job_id", job.ID, "error", procErr)
		}
	}
	return nil
}

func (r *Runner) sleep(ctx context.Context) bool {
	timer := time.NewTimer(r.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
