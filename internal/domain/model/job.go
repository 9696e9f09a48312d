// Package model defines the core data types and structures used throughout the clearpix job engine.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current lifecycle status of a background-removal job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to be picked up by a worker.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a job is currently being processed by a provider.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusRetrying indicates a job failed transiently and is awaiting another attempt.
	JobStatusRetrying JobStatus = "retrying"
	// JobStatusCompleted indicates a job finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job exhausted its attempts or hit a permanent error.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates a job was cancelled by the caller.
	JobStatusCancelled JobStatus = "cancelled"
)

// DefaultMaxRetries is applied when a create request does not specify a retry budget.
const DefaultMaxRetries = 3

// ErrInvalidTransition is wrapped by Job.TransitionTo when a status change
// is not part of the lifecycle graph.
var ErrInvalidTransition = errors.New("invalid job status transition")

// UnmarshalText implements encoding.TextUnmarshaler for JobStatus to allow env parsing.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	js := JobStatus(v)
	if js.Valid() {
		*s = js
		return nil
	}
	return fmt.Errorf("invalid JobStatus: %q", v)
}

// Valid returns true if the JobStatus is one of the known lifecycle states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusRetrying,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Terminal returns true for statuses that permit no further transition.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransitionTo reports whether moving from s to next is a legal lifecycle edge.
//
// The graph is:
//
//	pending    -> processing | cancelled
//	processing -> completed | failed | retrying | cancelled
//	retrying   -> processing | cancelled | failed
//	completed, failed, cancelled -> (terminal)
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing || next == JobStatusCancelled
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed ||
			next == JobStatusRetrying || next == JobStatusCancelled
	case JobStatusRetrying:
		return next == JobStatusProcessing || next == JobStatusCancelled ||
			next == JobStatusFailed
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return false
	}
	return false
}

// OutputFormat represents the requested result image format.
type OutputFormat string

const (
	// OutputFormatPNG requests a PNG result with alpha channel.
	OutputFormatPNG OutputFormat = "png"
	// OutputFormatJPEG requests a flattened JPEG result.
	OutputFormatJPEG OutputFormat = "jpeg"
	// OutputFormatWebP requests a WebP result with alpha channel.
	OutputFormatWebP OutputFormat = "webp"
)

// Valid returns true if the OutputFormat is supported.
func (f OutputFormat) Valid() bool {
	return f == OutputFormatPNG || f == OutputFormatJPEG || f == OutputFormatWebP
}

// OutputOptions describes the desired result image.
type OutputOptions struct {
	Format OutputFormat `json:"format"`
	// Size is a provider-side size hint such as "auto", "preview", or "full".
	Size string `json:"size,omitempty"`
	// MaxWidth and MaxHeight bound the result dimensions when non-zero.
	MaxWidth  int `json:"max_width,omitempty"`
	MaxHeight int `json:"max_height,omitempty"`
}

// Job represents one background-removal request and its tracked lifecycle.
type Job struct {
	ID            string  `json:"id"                       db:"id"`
	CorrelationID *string `json:"correlation_id,omitempty" db:"correlation_id"`
	OwnerID       *string `json:"owner_id,omitempty"       db:"owner_id"`
	TenantID      *string `json:"tenant_id,omitempty"      db:"tenant_id"`

	// Input
	SourceImageURL    string `json:"source_image_url"    db:"source_image_url"`
	SourceSizeBytes   int64  `json:"source_size_bytes"   db:"source_size_bytes"`
	SourceContentType string `json:"source_content_type" db:"source_content_type"`

	// Routing
	Provider         ProviderID  `json:"provider,omitempty"          db:"provider"`
	FallbackProvider *ProviderID `json:"fallback_provider,omitempty" db:"fallback_provider"`
	ExplicitProvider bool        `json:"explicit_provider"           db:"explicit_provider"`

	// Desired output
	Output OutputOptions `json:"output" db:"output"`

	// Lifecycle
	Status     JobStatus `json:"status"      db:"status"`
	RetryCount int       `json:"retry_count" db:"retry_count"`
	MaxRetries int       `json:"max_retries" db:"max_retries"`
	Priority   int       `json:"priority"    db:"priority"`

	// Outcome
	ResultImageURL    *string  `json:"result_image_url,omitempty"    db:"result_image_url"`
	ResultSizeBytes   *int64   `json:"result_size_bytes,omitempty"   db:"result_size_bytes"`
	ResultContentType *string  `json:"result_content_type,omitempty" db:"result_content_type"`
	ProcessingMs      *int64   `json:"processing_ms,omitempty"       db:"processing_ms"`
	CreditsUsed       *float64 `json:"credits_used,omitempty"        db:"credits_used"`
	EstimatedCost     *float64 `json:"estimated_cost,omitempty"      db:"estimated_cost"`
	ErrorCode         *string  `json:"error_code,omitempty"          db:"error_code"`
	ErrorMessage      *string  `json:"error_message,omitempty"       db:"error_message"`

	// Delivery
	CallbackURL     *string `json:"callback_url,omitempty" db:"callback_url"`
	CancelRequested bool    `json:"cancel_requested"       db:"cancel_requested"`

	// Timestamps
	CreatedAt             time.Time  `json:"created_at"                        db:"created_at"`
	ScheduledAt           time.Time  `json:"scheduled_at"                      db:"scheduled_at"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"   db:"processing_started_at"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty" db:"processing_completed_at"`
	ExpiresAt             *time.Time `json:"expires_at,omitempty"              db:"expires_at"`
	LeaseExpiresAt        *time.Time `json:"lease_expires_at,omitempty"        db:"lease_expires_at"`
	UpdatedAt             time.Time  `json:"updated_at"                        db:"updated_at"`
}

// TransitionTo moves the job to the next status, enforcing the lifecycle graph.
// An illegal edge is an invariant violation, not a soft no-op.
func (j *Job) TransitionTo(next JobStatus) error {
	if !next.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	if !j.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next)
	}
	j.Status = next
	return nil
}

// RetriesLeft returns true while the retry budget has not been exhausted.
func (j *Job) RetriesLeft() bool {
	return j.RetryCount < j.MaxRetries
}

// CreateJobRequest represents a request to create a new background-removal job.
type CreateJobRequest struct {
	SourceImageURL    string        `json:"source_image_url"`
	SourceSizeBytes   int64         `json:"source_size_bytes,omitempty"`
	SourceContentType string        `json:"source_content_type,omitempty"`
	Output            OutputOptions `json:"output"`
	Provider          *ProviderID   `json:"provider,omitempty"`
	FallbackProvider  *ProviderID   `json:"fallback_provider,omitempty"`
	CallbackURL       *string       `json:"callback_url,omitempty"`
	CorrelationID     *string       `json:"correlation_id,omitempty"`
	OwnerID           *string       `json:"owner_id,omitempty"`
	TenantID          *string       `json:"tenant_id,omitempty"`
	Priority          int           `json:"priority,omitempty"`
	MaxRetries        *int          `json:"max_retries,omitempty"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.SourceImageURL) == "" {
		return errors.New("source image url is required")
	}
	if !r.Output.Format.Valid() {
		return fmt.Errorf("unsupported output format %q", r.Output.Format)
	}
	if r.SourceSizeBytes < 0 {
		return errors.New("source size must be >= 0")
	}
	if r.Priority < 0 || r.Priority > 100 {
		return errors.New("priority must be between 0 and 100")
	}
	if r.MaxRetries != nil && *r.MaxRetries < 0 {
		return errors.New("max retries must be >= 0")
	}
	return nil
}

// JobStats represents counts of jobs in each lifecycle state.
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Retrying   int `json:"retrying"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// JobStatusResponse represents the caller-visible status of a job.
type JobStatusResponse struct {
	Status       JobStatus  `json:"status"`
	ResultURL    *string    `json:"result_url,omitempty"`
	ErrorCode    *string    `json:"error_code,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}
