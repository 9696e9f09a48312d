// Package service implements the engine's business logic: the processing
// orchestrator, the caller-facing job surface, usage accounting, and cleanup.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clearpix/clearpix-go/internal/core"
	"github.com/clearpix/clearpix-go/internal/domain/model"
	"github.com/clearpix/clearpix-go/internal/observability/metrics"
	"github.com/clearpix/clearpix-go/internal/observability/statsd"
)

// UsageAccountantOptions groups dependencies for the UsageAccountant.
type UsageAccountantOptions struct {
	Repo         core.UsageRepository // Required: usage store
	Logger       *slog.Logger         // Optional: structured logger
	Metrics      statsd.Sink          // Optional: metric sink
	WriteRetries int                  // Optional: extra attempts per write, defaults to 2
	RetryDelay   time.Duration        // Optional: delay between write attempts, defaults to 250ms
	Now          func() time.Time     // Optional: clock override for tests
}

// UsageAccountant records billable consumption per job: an immutable
// UsageRecord plus an incremental update to the (provider, day) stats row.
//
// Accounting writes are retried independently of job status; a write error
// must never cause a successfully processed job to be marked failed, so
// callers treat returned errors as log-only.
type UsageAccountant struct {
	repo         core.UsageRepository
	logger       *slog.Logger
	metrics      statsd.Sink
	writeRetries int
	retryDelay   time.Duration
	now          func() time.Time
}

// NewUsageAccountant constructs a UsageAccountant.
func NewUsageAccountant(opts UsageAccountantOptions) (*UsageAccountant, error) {
	if opts.Repo == nil {
		return nil, errors.New("UsageRepository is required")
	}
	retries := opts.WriteRetries
	if retries <= 0 {
		retries = 2
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "usage_accountant")
	}
	return &UsageAccountant{
		repo:         opts.Repo,
		logger:       logger,
		metrics:      opts.Metrics,
		writeRetries: retries,
		retryDelay:   delay,
		now:          now,
	}, nil
}

// RecordUsage appends the audit line for one processed job and folds its
// contribution into the provider's daily stats row.
func (a *UsageAccountant) RecordUsage(
	ctx context.Context,
	job *model.Job,
	provider *model.ProviderConfig,
	success bool,
) (*model.UsageRecord, error) {
	if job == nil || provider == nil {
		return nil, errors.New("job and provider are required")
	}

	now := a.now().UTC()
	rec := &model.UsageRecord{
		JobID:         job.ID,
		Provider:      provider.ID,
		OwnerID:       job.OwnerID,
		Success:       success,
		InputBytes:    job.SourceSizeBytes,
		BillingPeriod: model.BillingPeriodFor(now),
		CreatedAt:     now,
	}
	if job.ResultSizeBytes != nil {
		rec.OutputBytes = *job.ResultSizeBytes
	}
	if job.ProcessingMs != nil {
		rec.ProcessingMs = *job.ProcessingMs
	}
	if job.CreditsUsed != nil {
		rec.CreditsUsed = *job.CreditsUsed
	}
	if success {
		rec.Cost = provider.CostPerImage
	}

	if err := a.withRetry(ctx, func() error { return a.repo.Append(ctx, rec) }); err != nil {
		metrics.EmitUsageWrite(a.metrics, provider.ID, metrics.ResultError)
		return nil, fmt.Errorf("append usage record for job %s: %w", job.ID, err)
	}

	delta := model.UsageDelta{
		Requests:       1,
		ProcessingMs:   rec.ProcessingMs,
		BytesProcessed: rec.InputBytes + rec.OutputBytes,
		Cost:           rec.Cost,
		CreditsUsed:    rec.CreditsUsed,
	}
	if success {
		delta.Successes = 1
	} else {
		delta.Failures = 1
	}

	if err := a.withRetry(ctx, func() error {
		return a.repo.UpsertDailyStats(ctx, provider.ID, now, delta)
	}); err != nil {
		// The audit line landed; a lost stats increment is recoverable from it.
		if a.logger != nil {
			a.logger.WarnContext(ctx, "daily stats update failed",
				"job_id", job.ID, "provider", provider.ID, "error", err)
		}
		metrics.EmitUsageWrite(a.metrics, provider.ID, metrics.ResultError)
		return rec, nil
	}

	metrics.EmitUsageWrite(a.metrics, provider.ID, metrics.ResultSuccess)
	if a.logger != nil {
		a.logger.DebugContext(ctx, "usage recorded",
			"job_id", job.ID, "provider", provider.ID, "success", success, "cost", rec.Cost)
	}
	return rec, nil
}

// withRetry runs fn up to writeRetries+1 times with a fixed delay.
func (a *UsageAccountant) withRetry(ctx context.Context, fn func() error) error {
	attempts := a.writeRetries + 1
	var lastErr error
	for attempt := range attempts {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < attempts-1 {
			timer := time.NewTimer(a.retryDelay)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return lastErr
			case <-timer.C:
			}
		}
	}
	return lastErr
}

// DailyStats returns the per-day stats rows for one provider.
func (a *UsageAccountant) DailyStats(
	ctx context.Context,
	provider model.ProviderID,
	from, to time.Time,
) ([]*model.ProviderUsageStats, error) {
	stats, err := a.repo.DailyStats(ctx, provider, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily stats for %s: %w", provider, err)
	}
	return stats, nil
}

// OwnerTotals returns an owner's aggregate cost and request counts for one
// billing period. Read-only projection for external billing consumers.
func (a *UsageAccountant) OwnerTotals(
	ctx context.Context,
	ownerID string,
	period model.BillingPeriod,
) (*model.OwnerUsageTotals, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}
	totals, err := a.repo.OwnerTotals(ctx, ownerID, period)
	if err != nil {
		return nil, fmt.Errorf("owner totals for %s in %d: %w", ownerID, period, err)
	}
	return totals, nil
}
