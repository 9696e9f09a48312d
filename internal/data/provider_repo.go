package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearpix/clearpix-go/internal/domain/model"
	apperrors "github.com/clearpix/clearpix-go/internal/errors"
)

// ProviderRepo provides database operations for provider configuration.
type ProviderRepo struct {
	pool         *pgxpool.Pool
	timeProvider TimeProvider
}

// NewProviderRepo creates a new ProviderRepo instance.
func NewProviderRepo(pool *pgxpool.Pool, tp TimeProvider) *ProviderRepo {
	if tp == nil {
		tp = SystemTime()
	}
	return &ProviderRepo{pool: pool, timeProvider: tp}
}

const providerColumns = `
  id,
  enabled,
  priority,
  cost_per_image,
  credit_balance,
  requests_per_minute,
  requests_per_day,
  requests_used_today,
  last_daily_reset,
  consecutive_failures,
  breaker_open,
  breaker_reset_at,
  total_processed,
  total_succeeded,
  avg_response_ms,
  success_rate,
  max_megapixels,
  max_file_size,
  input_formats,
  output_formats,
  timeout_seconds,
  updated_at
`

func scanProvider(row pgx.Row) (*model.ProviderConfig, error) {
	var (
		c       model.ProviderConfig
		id      string
		outputs []string
	)
	err := row.Scan(
		&id, &c.Enabled, &c.Priority,
		&c.CostPerImage, &c.CreditBalance,
		&c.RequestsPerMinute, &c.RequestsPerDay, &c.RequestsUsedToday, &c.LastDailyReset,
		&c.ConsecutiveFailures, &c.BreakerOpen, &c.BreakerResetAt,
		&c.TotalProcessed, &c.TotalSucceeded, &c.AvgResponseMs, &c.SuccessRate,
		&c.MaxMegapixels, &c.MaxFileSizeBytes, &c.InputFormats, &outputs,
		&c.TimeoutSeconds, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ID = model.ProviderID(id)
	c.OutputFormats = make([]model.OutputFormat, 0, len(outputs))
	for _, o := range outputs {
		c.OutputFormats = append(c.OutputFormats, model.OutputFormat(o))
	}
	return &c, nil
}

func outputFormatStrings(formats []model.OutputFormat) []string {
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		out = append(out, string(f))
	}
	return out
}

// GetByID retrieves one provider configuration.
func (r *ProviderRepo) GetByID(ctx context.Context, id model.ProviderID) (*model.ProviderConfig, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+providerColumns+` FROM provider_configs WHERE id = $1`, string(id))
	cfg, err := scanProvider(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundf("provider %s not found", id)
		}
		return nil, apperrors.MapDBError(err)
	}
	return cfg, nil
}

// GetEnabled retrieves all enabled provider configurations, priority ascending.
func (r *ProviderRepo) GetEnabled(ctx context.Context) ([]*model.ProviderConfig, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+providerColumns+` FROM provider_configs
		WHERE enabled = true
		ORDER BY priority ASC`)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()

	configs := make([]*model.ProviderConfig, 0)
	for rows.Next() {
		cfg, err := scanProvider(rows)
		if err != nil {
			return nil, apperrors.MapDBError(err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return configs, nil
}

// Update persists the mutable counters and settings of a provider config.
func (r *ProviderRepo) Update(ctx context.Context, cfg *model.ProviderConfig) error {
	if cfg == nil || cfg.ID == "" {
		return errors.New("provider config with id is required")
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE provider_configs SET
			enabled = $2,
			priority = $3,
			cost_per_image = $4,
			credit_balance = $5,
			requests_per_minute = $6,
			requests_per_day = $7,
			requests_used_today = $8,
			last_daily_reset = $9,
			consecutive_failures = $10,
			breaker_open = $11,
			breaker_reset_at = $12,
			total_processed = $13,
			total_succeeded = $14,
			avg_response_ms = $15,
			success_rate = $16,
			max_megapixels = $17,
			max_file_size = $18,
			input_formats = $19,
			output_formats = $20,
			timeout_seconds = $21,
			updated_at = $22
		WHERE id = $1`,
		string(cfg.ID), cfg.Enabled, cfg.Priority,
		cfg.CostPerImage, cfg.CreditBalance,
		cfg.RequestsPerMinute, cfg.RequestsPerDay, cfg.RequestsUsedToday, cfg.LastDailyReset,
		cfg.ConsecutiveFailures, cfg.BreakerOpen, cfg.BreakerResetAt,
		cfg.TotalProcessed, cfg.TotalSucceeded, cfg.AvgResponseMs, cfg.SuccessRate,
		cfg.MaxMegapixels, cfg.MaxFileSizeBytes, cfg.InputFormats,
		outputFormatStrings(cfg.OutputFormats),
		cfg.TimeoutSeconds, r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFoundf("provider %s not found", cfg.ID)
	}
	return nil
}

// Upsert inserts or replaces a provider configuration. Used by the admin CLI
// for seeding; the health registry uses Update for counter persistence.
func (r *ProviderRepo) Upsert(ctx context.Context, cfg *model.ProviderConfig) error {
	if cfg == nil || cfg.ID == "" {
		return errors.New("provider config with id is required")
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provider_configs (`+providerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			priority = EXCLUDED.priority,
			cost_per_image = EXCLUDED.cost_per_image,
			credit_balance = EXCLUDED.credit_balance,
			requests_per_minute = EXCLUDED.requests_per_minute,
			requests_per_day = EXCLUDED.requests_per_day,
			max_megapixels = EXCLUDED.max_megapixels,
			max_file_size = EXCLUDED.max_file_size,
			input_formats = EXCLUDED.input_formats,
			output_formats = EXCLUDED.output_formats,
			timeout_seconds = EXCLUDED.timeout_seconds,
			updated_at = EXCLUDED.updated_at`,
		string(cfg.ID), cfg.Enabled, cfg.Priority,
		cfg.CostPerImage, cfg.CreditBalance,
		cfg.RequestsPerMinute, cfg.RequestsPerDay, cfg.RequestsUsedToday, cfg.LastDailyReset,
		cfg.ConsecutiveFailures, cfg.BreakerOpen, cfg.BreakerResetAt,
		cfg.TotalProcessed, cfg.TotalSucceeded, cfg.AvgResponseMs, cfg.SuccessRate,
		cfg.MaxMegapixels, cfg.MaxFileSizeBytes, cfg.InputFormats,
		outputFormatStrings(cfg.OutputFormats),
		cfg.TimeoutSeconds, r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert provider %s: %w", cfg.ID, apperrors.MapDBError(err))
	}
	return nil
}
