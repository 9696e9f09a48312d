package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clearpix/clearpix-go/internal/core"
	"github.com/clearpix/clearpix-go/internal/domain/model"
	apperrors "github.com/clearpix/clearpix-go/internal/errors"
)

const (
	defaultPageSize = 25
	maxPageSize     = 200
)

// InFlightCanceler signals a running provider call to unwind. Satisfied by
// the Orchestrator; nil disables mid-flight cancellation.
type InFlightCanceler interface {
	CancelInFlight(jobID string) bool
}

// JobServiceOptions groups dependencies for the JobService.
type JobServiceOptions struct {
	Jobs     core.JobRepository // Required: durable job store
	Canceler InFlightCanceler   // Optional: mid-flight cancel signalling
	Logger   *slog.Logger       // Optional: structured logger
	Now      func() time.Time   // Optional: clock override for tests
}

// JobService is the caller-facing surface: job submission, status reads,
// cancellation, and listings. Processing itself belongs to the Orchestrator.
type JobService struct {
	jobs     core.JobRepository
	canceler InFlightCanceler
	logger   *slog.Logger
	now      func() time.Time
}

// NewJobService constructs a JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
	}
	return &JobService{
		jobs:     opts.Jobs,
		canceler: opts.Canceler,
		logger:   logger,
		now:      now,
	}, nil
}

// Create validates the request and enqueues a pending job.
func (s *JobService) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job request")
	}

	created, err := s.jobs.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "job created",
			"job_id", created.ID, "explicit_provider", created.ExplicitProvider,
			"priority", created.Priority)
	}
	return created, nil
}

// Get returns the full job record.
func (s *JobService) Get(ctx context.Context, jobID string) (*model.Job, error) {
	if jobID == "" {
		return nil, apperrors.Validation("job id is required")
	}
	return s.jobs.GetByID(ctx, jobID)
}

// Status returns the caller-visible status projection of a job.
func (s *JobService) Status(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &model.JobStatusResponse{
		Status:       job.Status,
		ResultURL:    job.ResultImageURL,
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.ErrorMessage,
		CompletedAt:  job.ProcessingCompletedAt,
	}, nil
}

// Cancel stops a job. Queued jobs (pending, retrying) flip to cancelled
// atomically in the store. Processing jobs get a cancellation request flag
// plus a best-effort signal to the in-flight provider call; the orchestrator
// observes the flag and finishes the transition. Terminal jobs reject the
// request.
func (s *JobService) Cancel(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, apperrors.InvalidCancellation(
			fmt.Sprintf("job %s is already %s", jobID, job.Status))
	}

	if job.Status == model.JobStatusProcessing {
		flagged, err := s.jobs.RequestCancel(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("request cancel of job %s: %w", jobID, err)
		}
		if !flagged {
			// Left processing between the read and the update; retry against
			// the fresh state.
			return s.Cancel(ctx, jobID)
		}
		signalled := false
		if s.canceler != nil {
			signalled = s.canceler.CancelInFlight(jobID)
		}
		if s.logger != nil {
			s.logger.InfoContext(ctx, "cancellation requested",
				"job_id", jobID, "in_flight_signalled", signalled)
		}
		return s.Get(ctx, jobID)
	}

	cancelled, err := s.jobs.CancelQueued(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	if !cancelled {
		// Lost the race: a worker claimed or finished the job between the
		// read and the conditional update. Re-evaluate against fresh state.
		fresh, err := s.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if fresh.Status.Terminal() {
			return nil, apperrors.InvalidCancellation(
				fmt.Sprintf("job %s is already %s", jobID, fresh.Status))
		}
		return s.Cancel(ctx, jobID)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job cancelled", "job_id", jobID)
	}
	return s.Get(ctx, jobID)
}

// ListForOwner returns one page of an owner's jobs, newest first.
func (s *JobService) ListForOwner(ctx context.Context, ownerID string, page, pageSize int) ([]*model.Job, error) {
	if ownerID == "" {
		return nil, apperrors.Validation("owner id is required")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	offset := (page - 1) * pageSize
	jobs, err := s.jobs.ListByOwner(ctx, ownerID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs for owner %s: %w", ownerID, err)
	}
	return jobs, nil
}

// Stats returns the per-status job counts.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	stats, err := s.jobs.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}
