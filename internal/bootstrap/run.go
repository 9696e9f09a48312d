package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/clearpix/clearpix-go/config"
)

// RunServices starts the enabled runners and blocks until a shutdown signal
// or the first fatal runner error.
func RunServices(
	ctx context.Context,
	cfg *config.AppConfig,
	services *Services,
	logger *slog.Logger,
) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Provider health state loads before any worker claims a job.
	if err := services.Registry.Load(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.IsOrchestratorEnabled() {
		g.Go(func() error {
			return services.JobRunner.Run(ctx)
		})
		g.Go(func() error {
			err := services.AccountInfo.RunPeriodic(ctx, cfg.Providers.AccountInfoTTL)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	if cfg.IsReaperEnabled() {
		g.Go(func() error {
			err := services.Reaper.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	err := g.Wait()
	if closeErr := services.Metrics.Close(); closeErr != nil {
		logger.WarnContext(ctx, "close statsd client", "error", closeErr)
	}
	if err != nil && errors.Is(err, ctx.Err()) {
		logger.InfoContext(ctx, "shutdown signal received")
		return nil
	}
	return err
}
