package data

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"

	"github.com/clearpix/clearpix-go/internal/domain/model"
	apperrors "github.com/clearpix/clearpix-go/internal/errors"
)

// UsageRepo provides database operations for usage records and daily stats.
// usage_records rows are append-only; provider_usage_stats rows are upserted
// with incremental deltas.
type UsageRepo struct {
	pool         *pgxpool.Pool
	timeProvider TimeProvider
}

// NewUsageRepo creates a new UsageRepo instance.
func NewUsageRepo(pool *pgxpool.Pool, tp TimeProvider) *UsageRepo {
	if tp == nil {
		tp = SystemTime()
	}
	return &UsageRepo{pool: pool, timeProvider: tp}
}

// Append inserts one immutable usage record. The record's ID is assigned here
// when empty.
func (r *UsageRepo) Append(ctx context.Context, rec *model.UsageRecord) error {
	if rec == nil {
		return errors.New("usage record is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.timeProvider.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO usage_records (
			id, job_id, provider, owner_id, success,
			input_bytes, output_bytes, processing_ms,
			credits_used, cost, billing_period, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.JobID, string(rec.Provider), rec.OwnerID, rec.Success,
		rec.InputBytes, rec.OutputBytes, rec.ProcessingMs,
		rec.CreditsUsed, rec.Cost, int(rec.BillingPeriod), rec.CreatedAt,
	)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// UpsertDailyStats atomically folds a delta into the (provider, day) row.
func (r *UsageRepo) UpsertDailyStats(
	ctx context.Context,
	provider model.ProviderID,
	day time.Time,
	delta model.UsageDelta,
) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provider_usage_stats (
			provider, day, requests, successes, failures,
			processing_ms, bytes_processed, cost, credits_used, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (provider, day) DO UPDATE SET
			requests = provider_usage_stats.requests + EXCLUDED.requests,
			successes = provider_usage_stats.successes + EXCLUDED.successes,
			failures = provider_usage_stats.failures + EXCLUDED.failures,
			processing_ms = provider_usage_stats.processing_ms + EXCLUDED.processing_ms,
			bytes_processed = provider_usage_stats.bytes_processed + EXCLUDED.bytes_processed,
			cost = provider_usage_stats.cost + EXCLUDED.cost,
			credits_used = provider_usage_stats.credits_used + EXCLUDED.credits_used,
			updated_at = now()`,
		string(provider), day.UTC().Truncate(24*time.Hour),
		delta.Requests, delta.Successes, delta.Failures,
		delta.ProcessingMs, delta.BytesProcessed, delta.Cost, delta.CreditsUsed,
	)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// DailyStats returns the per-day stats rows for one provider in [from, to].
func (r *UsageRepo) DailyStats(
	ctx context.Context,
	provider model.ProviderID,
	from, to time.Time,
) ([]*model.ProviderUsageStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT provider, day, requests, successes, failures,
		       processing_ms, bytes_processed, cost, credits_used, updated_at
		FROM provider_usage_stats
		WHERE provider = $1 AND day >= $2 AND day <= $3
		ORDER BY day ASC`,
		string(provider), from.UTC().Truncate(24*time.Hour), to.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()

	stats := make([]*model.ProviderUsageStats, 0)
	for rows.Next() {
		var s model.ProviderUsageStats
		var id string
		if err := rows.Scan(
			&id, &s.Day, &s.Requests, &s.Successes, &s.Failures,
			&s.ProcessingMs, &s.BytesProcessed, &s.Cost, &s.CreditsUsed, &s.UpdatedAt,
		); err != nil {
			return nil, apperrors.MapDBError(err)
		}
		s.Provider = model.ProviderID(id)
		stats = append(stats, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return stats, nil
}

// OwnerTotals aggregates an owner's usage for one billing period. This is a
// read-only projection for external billing consumers.
func (r *UsageRepo) OwnerTotals(
	ctx context.Context,
	ownerID string,
	period model.BillingPeriod,
) (*model.OwnerUsageTotals, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE success),
		       COALESCE(SUM(credits_used), 0),
		       COALESCE(SUM(cost), 0)
		FROM usage_records
		WHERE owner_id = $1 AND billing_period = $2`,
		ownerID, int(period))

	totals := &model.OwnerUsageTotals{OwnerID: ownerID, BillingPeriod: period}
	if err := row.Scan(&totals.Requests, &totals.Successes, &totals.CreditsUsed, &totals.TotalCost); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return totals, nil
		}
		return nil, apperrors.MapDBError(err)
	}
	return totals, nil
}
