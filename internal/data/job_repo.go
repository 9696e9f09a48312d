// Package data provides PostgreSQL- and Redis-backed implementations of the
// engine's store contracts.
package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/clearpix/clearpix-go/internal/errors"

	"github.com/clearpix/clearpix-go/internal/domain/model"
)

// jobNotFound reports an unknown job id in the engine's error taxonomy so
// callers can match it with apperrors.IsNotFound.
func jobNotFound(id string) error {
	return apperrors.NotFoundf("job %s not found", id)
}

// JobRepoConfig holds configuration options for the job repository.
type JobRepoConfig struct {
	// ResultTTL is how long completed-job results are retained before the
	// reaper clears them. Zero disables expiry.
	ResultTTL    time.Duration
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for job management.
type JobRepo struct {
	pool         *pgxpool.Pool
	cfg          JobRepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given pool and configuration.
func NewJobRepo(pool *pgxpool.Pool, cfg JobRepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = SystemTime()
	}
	return &JobRepo{
		pool:         pool,
		cfg:          cfg,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  correlation_id,
  owner_id,
  tenant_id,
  source_image_url,
  source_size_bytes,
  source_content_type,
  provider,
  fallback_provider,
  explicit_provider,
  output,
  status,
  retry_count,
  max_retries,
  priority,
  result_image_url,
  result_size_bytes,
  result_content_type,
  processing_ms,
  credits_used,
  estimated_cost,
  error_code,
  error_message,
  callback_url,
  cancel_requested,
  created_at,
  scheduled_at,
  processing_started_at,
  processing_completed_at,
  expires_at,
  lease_expires_at,
  updated_at
`

// scanJob reads one job row in jobColumns order.
func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j          model.Job
		outputJSON []byte
		provider   *string
		fallback   *string
	)
	err := row.Scan(
		&j.ID, &j.CorrelationID, &j.OwnerID, &j.TenantID,
		&j.SourceImageURL, &j.SourceSizeBytes, &j.SourceContentType,
		&provider, &fallback, &j.ExplicitProvider,
		&outputJSON,
		&j.Status, &j.RetryCount, &j.MaxRetries, &j.Priority,
		&j.ResultImageURL, &j.ResultSizeBytes, &j.ResultContentType,
		&j.ProcessingMs, &j.CreditsUsed, &j.EstimatedCost,
		&j.ErrorCode, &j.ErrorMessage,
		&j.CallbackURL, &j.CancelRequested,
		&j.CreatedAt, &j.ScheduledAt,
		&j.ProcessingStartedAt, &j.ProcessingCompletedAt,
		&j.ExpiresAt, &j.LeaseExpiresAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if provider != nil {
		j.Provider = model.ProviderID(*provider)
	}
	if fallback != nil {
		fb := model.ProviderID(*fallback)
		j.FallbackProvider = &fb
	}
	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &j.Output); err != nil {
			return nil, fmt.Errorf("decode output options: %w", err)
		}
	}
	return &j, nil
}

// Create inserts a new pending job from the request.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	maxRetries := model.DefaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	outputJSON, err := json.Marshal(req.Output)
	if err != nil {
		return nil, fmt.Errorf("encode output options: %w", err)
	}

	now := r.timeProvider.Now().UTC()
	var provider *string
	explicit := false
	if req.Provider != nil {
		p := string(*req.Provider)
		provider = &p
		explicit = true
	}
	var fallback *string
	if req.FallbackProvider != nil {
		f := string(*req.FallbackProvider)
		fallback = &f
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO jobs (
			id, correlation_id, owner_id, tenant_id,
			source_image_url, source_size_bytes, source_content_type,
			provider, fallback_provider, explicit_provider,
			output, status, retry_count, max_retries, priority,
			callback_url, cancel_requested, created_at, scheduled_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, 0, $13, $14, $15, false, $16, $16, $16
		)
		RETURNING `+jobColumns,
		uuid.NewString(), req.CorrelationID, req.OwnerID, req.TenantID,
		req.SourceImageURL, req.SourceSizeBytes, req.SourceContentType,
		provider, fallback, explicit,
		outputJSON, model.JobStatusPending, maxRetries, req.Priority,
		req.CallbackURL, now,
	)

	job, err := scanJob(row)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return job, nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, jobNotFound(id)
		}
		return nil, apperrors.MapDBError(err)
	}
	return job, nil
}

// Update persists the full mutable state of a job.
func (r *JobRepo) Update(ctx context.Context, job *model.Job) error {
	if job == nil || job.ID == "" {
		return errors.New("job with id is required")
	}

	outputJSON, err := json.Marshal(job.Output)
	if err != nil {
		return fmt.Errorf("encode output options: %w", err)
	}

	var provider *string
	if job.Provider != "" {
		p := string(job.Provider)
		provider = &p
	}
	var fallback *string
	if job.FallbackProvider != nil {
		f := string(*job.FallbackProvider)
		fallback = &f
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET
			provider = $2,
			fallback_provider = $3,
			output = $4,
			status = $5,
			retry_count = $6,
			priority = $7,
			result_image_url = $8,
			result_size_bytes = $9,
			result_content_type = $10,
			processing_ms = $11,
			credits_used = $12,
			estimated_cost = $13,
			error_code = $14,
			error_message = $15,
			cancel_requested = $16,
			scheduled_at = $17,
			processing_started_at = $18,
			processing_completed_at = $19,
			expires_at = $20,
			lease_expires_at = $21,
			updated_at = $22
		WHERE id = $1`,
		job.ID, provider, fallback, outputJSON,
		job.Status, job.RetryCount, job.Priority,
		job.ResultImageURL, job.ResultSizeBytes, job.ResultContentType,
		job.ProcessingMs, job.CreditsUsed, job.EstimatedCost,
		job.ErrorCode, job.ErrorMessage, job.CancelRequested,
		job.ScheduledAt, job.ProcessingStartedAt, job.ProcessingCompletedAt,
		job.ExpiresAt, job.LeaseExpiresAt, r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return jobNotFound(job.ID)
	}
	return nil
}

// ReserveNext atomically claims the next due pending/retrying job using
// FOR UPDATE SKIP LOCKED so concurrent workers never double-claim. The claimed
// job moves to processing with a lease; processing_started_at is recorded on
// the first attempt only. Returns (nil, nil) when no job is due.
func (r *JobRepo) ReserveNext(ctx context.Context, leaseSeconds int) (*model.Job, error) {
	if leaseSeconds < 1 {
		leaseSeconds = 1
	}
	now := r.timeProvider.Now().UTC()
	lease := now.Add(time.Duration(leaseSeconds) * time.Second)

	row := r.pool.QueryRow(ctx, `
		WITH cte AS (
			SELECT id FROM jobs
			WHERE status IN ('pending', 'retrying') AND scheduled_at <= $1
			ORDER BY priority DESC, scheduled_at ASC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs j
		SET
			status = 'processing',
			processing_started_at = COALESCE(j.processing_started_at, $1),
			lease_expires_at = $2,
			updated_at = $1
		FROM cte
		WHERE j.id = cte.id
		RETURNING `+qualifiedJobColumns("j"), now, lease)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.MapDBError(err)
	}
	return job, nil
}

// qualifiedJobColumns prefixes each job column with the given table alias.
func qualifiedJobColumns(alias string) string {
	return alias + ".id, " + alias + ".correlation_id, " + alias + ".owner_id, " + alias + ".tenant_id, " +
		alias + ".source_image_url, " + alias + ".source_size_bytes, " + alias + ".source_content_type, " +
		alias + ".provider, " + alias + ".fallback_provider, " + alias + ".explicit_provider, " +
		alias + ".output, " + alias + ".status, " + alias + ".retry_count, " + alias + ".max_retries, " +
		alias + ".priority, " + alias + ".result_image_url, " + alias + ".result_size_bytes, " +
		alias + ".result_content_type, " + alias + ".processing_ms, " + alias + ".credits_used, " +
		alias + ".estimated_cost, " + alias + ".error_code, " + alias + ".error_message, " +
		alias + ".callback_url, " + alias + ".cancel_requested, " + alias + ".created_at, " +
		alias + ".scheduled_at, " + alias + ".processing_started_at, " + alias + ".processing_completed_at, " +
		alias + ".expires_at, " + alias + ".lease_expires_at, " + alias + ".updated_at"
}

// ListByStatus returns up to limit jobs in the given status, oldest first.
func (r *JobRepo) ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid job status %q", status)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`, status, limit)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListByOwner returns jobs for an owner, newest first, with limit/offset paging.
func (r *JobRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListExpired returns completed jobs whose result retention window passed.
func (r *JobRepo) ListExpired(ctx context.Context, before time.Time, limit int) ([]*model.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = 'completed' AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]*model.Job, error) {
	jobs := make([]*model.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, apperrors.MapDBError(err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return jobs, nil
}

// CancelQueued transitions a pending/retrying job straight to cancelled.
// Returns false when the job was not in a queued state.
func (r *JobRepo) CancelQueued(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'cancelled', updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'retrying')`,
		id, r.timeProvider.Now().UTC())
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// RequestCancel flags an in-flight (processing) job for best-effort cancellation.
func (r *JobRepo) RequestCancel(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET cancel_requested = true, updated_at = $2
		WHERE id = $1 AND status = 'processing'`,
		id, r.timeProvider.Now().UTC())
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseStale returns processing jobs with an expired lease back to pending
// so another worker can pick them up.
func (r *JobRepo) ReleaseStale(ctx context.Context, before time.Time, limit int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending', lease_expires_at = NULL, updated_at = now()
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status = 'processing' AND lease_expires_at IS NOT NULL AND lease_expires_at <= $1
			ORDER BY lease_expires_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, before, limit)
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	return tag.RowsAffected(), nil
}

// Stats returns counts of jobs per lifecycle state.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()

	stats := &model.JobStats{}
	for rows.Next() {
		var status model.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apperrors.MapDBError(err)
		}
		switch status {
		case model.JobStatusPending:
			stats.Pending = count
		case model.JobStatusProcessing:
			stats.Processing = count
		case model.JobStatusRetrying:
			stats.Retrying = count
		case model.JobStatusCompleted:
			stats.Completed = count
		case model.JobStatusFailed:
			stats.Failed = count
		case model.JobStatusCancelled:
			stats.Cancelled = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return stats, nil
}
