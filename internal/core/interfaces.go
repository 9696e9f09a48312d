// Package core defines the port interfaces between the engine's service layer
// and its collaborators (stores, provider adapters, caches, notification sinks).
// Service implementations depend on these interfaces, not concrete implementations.
package core

import (
	"context"
	"time"

	"github.com/clearpix/clearpix-go/internal/domain/model"
)

// JobRepository defines the durable job-store contract.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// Update persists the current state of a job. A worker only ever owns one
	// job's progression at a time; no two workers race on the same job id.
	Update(ctx context.Context, job *model.Job) error
	// ReserveNext atomically claims the next due pending/retrying job, marks it
	// processing, and sets a lease. Returns model.ErrNoJobsAvailable-mapped
	// nil,nil when the queue is empty.
	ReserveNext(ctx context.Context, leaseSeconds int) (*model.Job, error)
	ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Job, error)
	// ListExpired returns completed jobs whose result retention window has
	// passed, for the reaper.
	ListExpired(ctx context.Context, before time.Time, limit int) ([]*model.Job, error)
	// CancelQueued transitions a pending/retrying job to cancelled.
	// Returns false when the job was not in a queued state.
	CancelQueued(ctx context.Context, id string) (bool, error)
	// RequestCancel flags an in-flight job for best-effort cancellation.
	RequestCancel(ctx context.Context, id string) (bool, error)
	// ReleaseStale returns jobs whose processing lease expired back to pending.
	ReleaseStale(ctx context.Context, before time.Time, limit int) (int64, error)
	Stats(ctx context.Context) (*model.JobStats, error)
}

// ProviderConfigRepository defines the provider-config store contract.
type ProviderConfigRepository interface {
	GetByID(ctx context.Context, id model.ProviderID) (*model.ProviderConfig, error)
	GetEnabled(ctx context.Context) ([]*model.ProviderConfig, error)
	Update(ctx context.Context, cfg *model.ProviderConfig) error
	Upsert(ctx context.Context, cfg *model.ProviderConfig) error
}

// UsageRepository defines the usage-store contract. UsageRecord rows are
// append-only; daily stats rows are upserted incrementally.
type UsageRepository interface {
	Append(ctx context.Context, rec *model.UsageRecord) error
	UpsertDailyStats(ctx context.Context, provider model.ProviderID, day time.Time, delta model.UsageDelta) error
	DailyStats(ctx context.Context, provider model.ProviderID, from, to time.Time) ([]*model.ProviderUsageStats, error)
	OwnerTotals(ctx context.Context, ownerID string, period model.BillingPeriod) (*model.OwnerUsageTotals, error)
}

// CacheRepository defines the cache contract used for account-info snapshots
// and callback dedupe keys.
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
}

// RemoveRequest carries the input image and desired output for one provider call.
type RemoveRequest struct {
	ImageBytes  []byte
	ImageURL    string
	ContentType string
	Output      model.OutputOptions
}

// ProviderAdapter is the narrow interface to one external background-removal
// provider. Adapters are interchangeable and stateless with respect to job data.
type ProviderAdapter interface {
	ID() model.ProviderID
	IsAvailable(ctx context.Context) bool
	RemoveBackground(ctx context.Context, req RemoveRequest) (*model.RemovalResult, error)
	RemoveBackgroundFromURL(ctx context.Context, url string, opts model.OutputOptions) (*model.RemovalResult, error)
	GetAccountInfo(ctx context.Context) (*model.ProviderAccountInfo, error)
}

// NotificationSink delivers terminal-state callbacks. Fire-and-forget:
// delivery failures never affect job state.
type NotificationSink interface {
	NotifyJobFinished(ctx context.Context, job *model.Job)
}
