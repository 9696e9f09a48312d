package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/clearpix/clearpix-go/internal/core"
	"github.com/clearpix/clearpix-go/internal/domain/model"
	"github.com/clearpix/clearpix-go/internal/health"
	"github.com/clearpix/clearpix-go/internal/mocks"
)

const testJobID = "job-123"

var testNow = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

// orchFixture wires an Orchestrator against mock collaborators and a real
// health registry tracking in-memory provider configs.
type orchFixture struct {
	jobs     *mocks.MockJobRepository
	usage    *mocks.MockUsageRepository
	removeBG *mocks.MockProviderAdapter
	pixian   *mocks.MockProviderAdapter
	clipdrop *mocks.MockProviderAdapter
	registry *health.Registry
	orch     *Orchestrator
}

func newOrchFixture(t *testing.T, cfgs ...*model.ProviderConfig) *orchFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	jobs := mocks.NewMockJobRepository(ctrl)
	usage := mocks.NewMockUsageRepository(ctrl)

	providerRepo := mocks.NewMockProviderConfigRepository(ctrl)
	providerRepo.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	registry, err := health.NewRegistry(health.RegistryOptions{
		Repo: providerRepo,
		Now:  func() time.Time { return testNow },
	})
	require.NoError(t, err)
	for _, cfg := range cfgs {
		registry.Track(cfg)
	}

	removeBG := mocks.NewMockProviderAdapter(ctrl)
	pixian := mocks.NewMockProviderAdapter(ctrl)
	clipdrop := mocks.NewMockProviderAdapter(ctrl)

	accountant, err := NewUsageAccountant(UsageAccountantOptions{
		Repo: usage,
		Now:  func() time.Time { return testNow },
	})
	require.NoError(t, err)

	orch, err := NewOrchestrator(OrchestratorOptions{
		Jobs:     jobs,
		Registry: registry,
		Adapters: map[model.ProviderID]core.ProviderAdapter{
			model.ProviderRemoveBG: removeBG,
			model.ProviderPixian:   pixian,
			model.ProviderClipdrop: clipdrop,
		},
		Accountant: accountant,
		ResultTTL:  24 * time.Hour,
		Now:        func() time.Time { return testNow },
	})
	require.NoError(t, err)

	return &orchFixture{
		jobs:     jobs,
		usage:    usage,
		removeBG: removeBG,
		pixian:   pixian,
		clipdrop: clipdrop,
		registry: registry,
		orch:     orch,
	}
}

func enabledProvider(id model.ProviderID, priority int) *model.ProviderConfig {
	return &model.ProviderConfig{
		ID:             id,
		Enabled:        true,
		Priority:       priority,
		CostPerImage:   0.20,
		RequestsPerDay: 1000,
		LastDailyReset: testNow,
		SuccessRate:    1.0,
	}
}

func processingJob() *model.Job {
	return &model.Job{
		ID:             testJobID,
		SourceImageURL: "https://example.com/cat.jpg",
		Output:         model.OutputOptions{Format: model.OutputFormatPNG},
		Status:         model.JobStatusProcessing,
		MaxRetries:     3,
	}
}

func successResult() *model.RemovalResult {
	return &model.RemovalResult{
		Success:          true,
		ResultURL:        "https://cdn.example.com/cat-cutout.png",
		ContentType:      "image/png",
		ProcessingTimeMs: 840,
		CreditsConsumed:  1,
	}
}

func TestOrchestrator_Process_FirstAttemptSucceeds(t *testing.T) {
	t.Parallel()
	f := newOrchFixture(t,
		enabledProvider(model.ProviderRemoveBG, 1),
		enabledProvider(model.ProviderPixian, 2),
	)

	ctx := context.Background()
	job := processingJob()

	f.removeBG.EXPECT().
		RemoveBackgroundFromURL(gomock.Any(), job.SourceImageURL, job.Output).
		Return(successResult(), nil).
		Times(1)

	f.jobs.EXPECT().Update(ctx, job).Return(nil).Times(1)
	f.usage.EXPECT().Append(ctx, gomock.Any()).Return(nil).Times(1)
	f.usage.EXPECT().UpsertDailyStats(ctx, model.ProviderRemoveBG, gomock.Any(), gomock.Any()).Return(nil).Times(1)

	require.NoError(t, f.orch.Process(ctx, job))

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, model.ProviderRemoveBG, job.Provider)
	require.NotNil(t, job.ResultImageURL)
	assert.Equal(t, "https://cdn.example.com/cat-cutout.png", *job.ResultImageURL)
	require.NotNil(t, job.ResultContentType)
	assert.Equal(t, "image/png", *job.ResultContentType)
	require.NotNil(t, job.ProcessingMs)
	assert.Equal(t, int64(840), *job.ProcessingMs)
	require.NotNil(t, job.EstimatedCost)
	assert.InDelta(t, 0.20, *job.EstimatedCost, 0.001)
	require.NotNil(t, job.ExpiresAt)
	assert.Equal(t, testNow.Add(24*time.Hour), *job.ExpiresAt)
	assert.Nil(t, job.ErrorCode)
	assert.Nil(t, job.ErrorMessage)
	assert.Nil(t, job.LeaseExpiresAt)
	assert.Zero(t, job.RetryCount)
}

func TestOrchestrator_Process_InlineBytesResultLeavesURLUnset(t *testing.T) {
	t.Parallel()
	f := newOrchFixture(t, enabledProvider(model.ProviderRemoveBG, 1))

	ctx := context.Background()
	job := processingJob()

	inline := &model.RemovalResult{
		Success:          true,
		ImageBytes:       []byte("cutout-bytes"),
		ContentType:      "image/png",
		ProcessingTimeMs: 640,
		CreditsConsumed:  1,
	}
	f.removeBG.EXPECT().
		RemoveBackgroundFromURL(gomock.Any(), job.SourceImageURL, job.Output).
		Return(inline, nil).
		Times(1)

	f.jobs.EXPECT().Update(ctx, job).Return(nil).Times(1)
	f.usage.EXPECT().Append(ctx, gomock.Any()).Return(nil).Times(1)
	f.usage.EXPECT().UpsertDailyStats(ctx, model.ProviderRemoveBG, gomock.Any(), gomock.Any()).Return(nil).Times(1)

	require.NoError(t, f.orch.Process(ctx, job))

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Nil(t, job.ResultImageURL, "bytes-only results carry no URL")
	require.NotNil(t, job.ResultSizeBytes)
	assert.Equal(t, int64(len(inline.ImageBytes)), *job.ResultSizeBytes)
}

func TestOrchestrator_Process_FallsBackToNextProvider(t *testing.T) {
	t.Parallel()
	f := newOrchFixture(t,
		enabledProvider(model.ProviderRemoveBG, 1),
		enabledProvider(model.ProviderPixian, 2),
	)

	ctx := context.Background()
	job := processingJob()

	f.removeBG.EXPECT().
		RemoveBackgroundFromURL(gomock.Any(), job.SourceImageURL, job.Output).
		Return(nil, errors.New("connection reset")).
		Times(1)
	f.pixian.EXPECT().
		RemoveBackgroundFromURL(gomock.Any(), job.SourceImageURL, job.Output).
		Return(successResult(), nil).
		Times(1)

	// Cancellation re-check between attempts.
	f.jobs.EXPECT().GetByID(ctx, testJobID).Return(processingJob(), nil).Times(1)
	// One update for the persisted retry hop, one for completion.
	f.jobs.EXPECT().Update(ctx, job).Return(nil).Times(2)
	f.usage.EXPECT().Append(ctx, gomock.Any()).Return(nil).Times(1)
	f.usage.EXPECT().UpsertDailyStats(ctx, model.ProviderPixian, gomock.Any(), gomock.Any()).Return(nil).Times(1)

	require.NoError(t, f.orch.Process(ctx, job))

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, model.ProviderPixian, job.Provider)
	assert.Equal(t, 1, job.RetryCount)
}

func TestOrchestrator_Process_ParksWithBackoffWhenNoAlternative(t *testing.T) {
	t.Parallel()
	f := newOrchFixture(t, enabledProvider(model.ProviderRemoveBG, 1))

	ctx := context.Background()
	job := processingJob()

	f.removeBG.EXPECT().
		RemoveBackgroundFromURL(gomock.Any(), job.SourceImageURL, job.Output).
		Return(nil, errors.New("connection reset")).
		Times(1)
	f.jobs.EXPECT().GetByID(ctx, testJobID).Return(processingJob(), nil).Times(1)
	f.jobs.EXPECT().Update(ctx, job).Return(nil).Times(1)

	require.NoError(t, f.orch.Process(ctx, job))

	assert.Equal(t, model.JobStatusRetrying, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, testNow.Add(DefaultBackoffBase), job.ScheduledAt)
	assert.Nil(t, job.LeaseExpiresAt)
}

func TestOrchestrator_Process_RetryBudgetExhausted(t *testing.T) {
	t.Parallel()
	f := newOrchFixture(t, enabledProvider(model.ProviderRemoveBG, 1))

	ctx := context.Background()
	job := processingJob()
	job.RetryCount = 3

	f.removeBG.EXPECT().
		RemoveBackgroundFromURL(gomock.Any(), job.SourceImageURL, job.Output).
		Return(nil, errors.New("connection reset")).
		Times(1)
	f.jobs.EXPECT().GetByID(ctx, testJobID).Return(processingJob(), nil).Times(1)
	f.jobs.EXPECT().Update(ctx, job).Return(nil).Times(1)

	require.NoError(t, f.orch.Process(ctx, job))

	assert.Equal(t, model.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorCode)
	assert.Equal(t, "retry_exhausted", *job.ErrorCode)
	require.NotNil(t, job.ProcessingCompletedAt)
}

func TestOrchestrator_Process_NonRetryableProviderCode(t *testing.T) {
	t.Parallel()
	f := newOrchFixture(t,
		enabledProvider(model.ProviderRemoveBG, 1),
		enabledProvider(model.ProviderPixian, 2),
	)

	ctx := context.Background()
	job := processingJob()

	rejected := &model.RemovalResult{
		Success:      false,
		ErrorCode:    "invalid_image",
		ErrorMessage: "could not decode image",
	}
	f.removeBG.EXPECT().
		RemoveBackgroundFromURL(gomock.Any(), job.SourceImageURL, job.Output).
		Return(rejected, nil).
		Times(1)
	// No pixian expectation: an unusable input must not fall back.
	f.jobs.EXPECT().Update(ctx, job).Return(nil).Times(1)

	require.NoError(t, f.orch.Process(ctx, job))

	assert.Equal(t, model.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorCode)
	assert.Equal(t, "validation", *job.ErrorCode)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "could not decode image")
}

func TestOrchestrator_Process_ExplicitPinUnavailableFailsFast(t *testing.T) {
	t.Parallel()
	pinned := enabledProvider(model.ProviderRemoveBG, 1)
	pinned.Enabled = false
	f := newOrchFixture(t, pinned, enabledProvider(model.ProviderPixian, 2))

	ctx := context.Background()
	job := processingJob()
	job.Provider = model.ProviderRemoveBG
	job.ExplicitProvider = true

	f.jobs.EXPECT().Update(ctx, job).Return(nil).Times(1)

	require.NoError(t, f.orch.Process(ctx, job))

	assert.Equal(t, model.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorCode)
	assert.Equal(t, "provider_unavailable", *job.ErrorCode)
}

func TestOrchestrator_Process_ExplicitPinRetriesSameProvider(t *testing.T) {
	t.Parallel()
	f := newOrchFixture(t,
		enabledProvider(model.ProviderRemoveBG, 1),
		enabledProvider(model.ProviderPixian, 2),
	)

	ctx := context.Background()
	job := processingJob()
	job.Provider = model.ProviderRemoveBG
	job.ExplicitProvider = true

	f.removeBG.EXPECT().
		RemoveBackgroundFromURL(gomock.Any(), job.SourceImageURL, job.Output).
		Return(nil, errors.New("connection reset")).
		Times(1)
	// No pixian expectation: a pinned job never falls back.
	f.jobs.EXPECT().GetByID(ctx, testJobID).Return(processingJob(), nil).Times(1)
	f.jobs.EXPECT().Update(ctx, job).Return(nil).Times(1)

	require.NoError(t, f.orch.Process(ctx, job))

	assert.Equal(t, model.JobStatusRetrying, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, model.ProviderRemoveBG, job.Provider)
	assert.Equal(t, testNow.Add(DefaultBackoffBase), job.ScheduledAt)
}

func TestOrchestrator_Process_PrefersJobFallbackProvider(t *testing.T) {
	t.Parallel()
	f := newOrchFixture(t,
		enabledProvider(model.ProviderRemoveBG, 1),
		enabledProvider(model.ProviderClipdrop, 2),
		enabledProvider(model.ProviderPixian, 3),
	)

	ctx := context.Background()
	job := processingJob()
	fallback := model.ProviderPixian
	job.FallbackProvider = &fallback

	f.removeBG.EXPECT().
		RemoveBackgroundFromURL(gomock.Any(), job.SourceImageURL, job.Output).
		Return(nil, errors.New("connection reset")).
		Times(1)
	// The job-level fallback preference beats clipdrop's better priority.
	f.pixian.EXPECT().
		RemoveBackgroundFromURL(gomock.Any(), job.SourceImageURL, job.Output).
		Return(successResult(), nil).
		Times(1)

	f.jobs.EXPECT().GetByID(ctx, testJobID).Return(processingJob(), nil).Times(1)
	f.jobs.EXPECT().Update(ctx, job).Return(nil).Times(2)
	f.usage.EXPECT().Append(ctx, gomock.Any()).Return(nil).Times(1)
	f.usage.EXPECT().UpsertDailyStats(ctx, model.ProviderPixian, gomock.Any(), gomock.Any()).Return(nil).Times(1)

	require.NoError(t, f.orch.Process(ctx, job))

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, model.ProviderPixian, job.Provider)
}

func TestOrchestrator_Process_CancelRequestedBeforeAttempt(t *testing.T) {
	t.Parallel()
	f := newOrchFixture(t, enabledProvider(model.ProviderRemoveBG, 1))

	ctx := context.Background()
	job := processingJob()
	job.CancelRequested = true

	f.jobs.EXPECT().Update(ctx, job).Return(nil).Times(1)

	require.NoError(t, f.orch.Process(ctx, job))

	assert.Equal(t, model.JobStatusCancelled, job.Status)
}

func TestOrchestrator_Process_CancelRequestedBetweenAttempts(t *testing.T) {
	t.Parallel()
	f := newOrchFixture(t,
		enabledProvider(model.ProviderRemoveBG, 1),
		enabledProvider(model.ProviderPixian, 2),
	)

	ctx := context.Background()
	job := processingJob()

	f.removeBG.EXPECT().
		RemoveBackgroundFromURL(gomock.Any(), job.SourceImageURL, job.Output).
		Return(nil, errors.New("connection reset")).
		Times(1)

	cancelled := processingJob()
	cancelled.CancelRequested = true
	f.jobs.EXPECT().GetByID(ctx, testJobID).Return(cancelled, nil).Times(1)
	f.jobs.EXPECT().Update(ctx, job).Return(nil).Times(1)

	require.NoError(t, f.orch.Process(ctx, job))

	assert.Equal(t, model.JobStatusCancelled, job.Status)
}

func TestOrchestrator_Process_NoProviderAvailableWithRetriesLeft(t *testing.T) {
	t.Parallel()
	disabled := enabledProvider(model.ProviderRemoveBG, 1)
	disabled.Enabled = false
	f := newOrchFixture(t, disabled)

	ctx := context.Background()
	job := processingJob()

	f.jobs.EXPECT().Update(ctx, job).Return(nil).Times(1)

	require.NoError(t, f.orch.Process(ctx, job))

	assert.Equal(t, model.JobStatusRetrying, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, testNow.Add(DefaultBackoffBase), job.ScheduledAt)
}

func TestOrchestrator_Process_NoProviderAvailableAtExhaustionKeepsCode(t *testing.T) {
	t.Parallel()
	disabled := enabledProvider(model.ProviderRemoveBG, 1)
	disabled.Enabled = false
	f := newOrchFixture(t, disabled)

	ctx := context.Background()
	job := processingJob()
	job.RetryCount = 3

	f.jobs.EXPECT().Update(ctx, job).Return(nil).Times(1)

	require.NoError(t, f.orch.Process(ctx, job))

	assert.Equal(t, model.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorCode)
	assert.Equal(t, "provider_unavailable", *job.ErrorCode,
		"exhaustion caused by availability gaps keeps the availability code")
}

// steppingClock advances on every read, so provider availability can change
// between two selection passes within one Process call.
type steppingClock struct {
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func TestOrchestrator_Process_ProviderRecoversDuringRetryHandling(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	jobs := mocks.NewMockJobRepository(ctrl)
	usage := mocks.NewMockUsageRepository(ctrl)
	providerRepo := mocks.NewMockProviderConfigRepository(ctrl)
	providerRepo.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	// The breaker cooldown elapses between the failed selection pass and the
	// retry handling pass, so the same provider is eligible again.
	resetAt := testNow.Add(500 * time.Millisecond)
	cfg := enabledProvider(model.ProviderRemoveBG, 1)
	cfg.BreakerOpen = true
	cfg.ConsecutiveFailures = 5
	cfg.BreakerResetAt = &resetAt

	clock := &steppingClock{now: testNow, step: time.Second}
	registry, err := health.NewRegistry(health.RegistryOptions{
		Repo: providerRepo,
		Now:  clock.Now,
	})
	require.NoError(t, err)
	registry.Track(cfg)

	removeBG := mocks.NewMockProviderAdapter(ctrl)
	accountant, err := NewUsageAccountant(UsageAccountantOptions{
		Repo: usage,
		Now:  func() time.Time { return testNow },
	})
	require.NoError(t, err)

	orch, err := NewOrchestrator(OrchestratorOptions{
		Jobs:     jobs,
		Registry: registry,
		Adapters: map[model.ProviderID]core.ProviderAdapter{
			model.ProviderRemoveBG: removeBG,
		},
		Accountant: accountant,
		Now:        func() time.Time { return testNow },
	})
	require.NoError(t, err)

	ctx := context.Background()
	job := processingJob()

	removeBG.EXPECT().
		RemoveBackgroundFromURL(gomock.Any(), job.SourceImageURL, job.Output).
		Return(successResult(), nil).
		Times(1)
	// One update for the immediate retry hop, one for completion.
	jobs.EXPECT().Update(ctx, job).Return(nil).Times(2)
	usage.EXPECT().Append(ctx, gomock.Any()).Return(nil).Times(1)
	usage.EXPECT().UpsertDailyStats(ctx, model.ProviderRemoveBG, gomock.Any(), gomock.Any()).Return(nil).Times(1)

	require.NoError(t, orch.Process(ctx, job))

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, model.ProviderRemoveBG, job.Provider)
	assert.Equal(t, 1, job.RetryCount)
}

func TestOrchestrator_Process_RejectsNonProcessingJob(t *testing.T) {
	t.Parallel()
	f := newOrchFixture(t, enabledProvider(model.ProviderRemoveBG, 1))

	job := processingJob()
	job.Status = model.JobStatusPending

	err := f.orch.Process(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected processing")

	require.Error(t, f.orch.Process(context.Background(), nil))
}

func TestOrchestrator_CancelInFlight_NothingTracked(t *testing.T) {
	t.Parallel()
	f := newOrchFixture(t, enabledProvider(model.ProviderRemoveBG, 1))

	assert.False(t, f.orch.CancelInFlight("unknown-job"))
}

func TestOrchestrator_BackoffDelay(t *testing.T) {
	t.Parallel()
	f := newOrchFixture(t, enabledProvider(model.ProviderRemoveBG, 1))

	assert.Equal(t, 1*time.Second, f.orch.backoffDelay(1))
	assert.Equal(t, 2*time.Second, f.orch.backoffDelay(2))
	assert.Equal(t, 4*time.Second, f.orch.backoffDelay(3))
	assert.Equal(t, 16*time.Second, f.orch.backoffDelay(5))
	assert.Equal(t, 30*time.Second, f.orch.backoffDelay(6), "capped")
	assert.Equal(t, 30*time.Second, f.orch.backoffDelay(20), "stays capped")
}
