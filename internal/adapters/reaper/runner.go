// Package reaper runs the periodic cleanup loop.
package reaper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/clearpix/clearpix-go/config"
	"github.com/clearpix/clearpix-go/internal/core"
	"github.com/clearpix/clearpix-go/internal/service"
)

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Jobs   core.JobRepository // Required: durable job store
	Config config.ReaperConfig
	Logger *slog.Logger
}

// Runner drives the reaper service on a fixed interval until cancelled.
type Runner struct {
	reaper   *service.Reaper
	interval time.Duration
	logger   *slog.Logger
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reaper, err := service.NewReaper(service.ReaperOptions{
		Jobs:       opts.Jobs,
		Logger:     opts.Logger,
		BatchLimit: opts.Config.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	interval := opts.Config.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	return &Runner{
		reaper:   reaper,
		interval: interval,
		logger:   logger.With("component", "reaper_runner"),
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.reaper.Tick(ctx); err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "reaper tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
