package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clearpix/clearpix-go/internal/core"
)

// ReaperOptions groups dependencies for the Reaper.
type ReaperOptions struct {
	Jobs       core.JobRepository // Required: durable job store
	Logger     *slog.Logger       // Optional: structured logger
	BatchLimit int                // Optional: rows handled per tick, defaults to 100
	Now        func() time.Time   // Optional: clock override for tests
}

// Reaper performs periodic cleanup: clearing expired job results past their
// retention window and releasing processing leases abandoned by dead workers.
type Reaper struct {
	jobs       core.JobRepository
	logger     *slog.Logger
	batchLimit int
	now        func() time.Time
}

// NewReaper constructs a Reaper.
func NewReaper(opts ReaperOptions) (*Reaper, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	limit := opts.BatchLimit
	if limit <= 0 {
		limit = 100
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper")
	}
	return &Reaper{
		jobs:       opts.Jobs,
		logger:     logger,
		batchLimit: limit,
		now:        now,
	}, nil
}

// ReapExpiredResults clears the result fields of completed jobs whose
// retention window passed. The job record itself stays for audit; only the
// result payload references are dropped. Returns the number of jobs reaped.
func (r *Reaper) ReapExpiredResults(ctx context.Context) (int, error) {
	now := r.now().UTC()
	expired, err := r.jobs.ListExpired(ctx, now, r.batchLimit)
	if err != nil {
		return 0, fmt.Errorf("list expired jobs: %w", err)
	}

	reaped := 0
	for _, job := range expired {
		job.ResultImageURL = nil
		job.ResultSizeBytes = nil
		job.ResultContentType = nil
		job.ExpiresAt = nil
		if err := r.jobs.Update(ctx, job); err != nil {
			if r.logger != nil {
				r.logger.WarnContext(ctx, "reap expired result failed",
					"job_id", job.ID, "error", err)
			}
			continue
		}
		reaped++
	}

	if reaped > 0 && r.logger != nil {
		r.logger.InfoContext(ctx, "expired results reaped", "count", reaped)
	}
	return reaped, nil
}

// ReleaseStaleLeases returns jobs whose processing lease expired back to
// pending so another worker can claim them. Returns the number released.
func (r *Reaper) ReleaseStaleLeases(ctx context.Context) (int64, error) {
	now := r.now().UTC()
	released, err := r.jobs.ReleaseStale(ctx, now, r.batchLimit)
	if err != nil {
		return 0, fmt.Errorf("release stale leases: %w", err)
	}
	if released > 0 && r.logger != nil {
		r.logger.WarnContext(ctx, "stale processing leases released", "count", released)
	}
	return released, nil
}

// Tick runs one full cleanup pass.
func (r *Reaper) Tick(ctx context.Context) error {
	if _, err := r.ReapExpiredResults(ctx); err != nil {
		return err
	}
	if _, err := r.ReleaseStaleLeases(ctx); err != nil {
		return err
	}
	return nil
}
