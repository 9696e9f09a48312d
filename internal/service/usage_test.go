package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/clearpix/clearpix-go/internal/domain/model"
	"github.com/clearpix/clearpix-go/internal/mocks"
)

func newAccountant(t *testing.T) (*mocks.MockUsageRepository, *UsageAccountant) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	repo := mocks.NewMockUsageRepository(ctrl)
	accountant, err := NewUsageAccountant(UsageAccountantOptions{
		Repo:       repo,
		RetryDelay: time.Millisecond,
		Now:        func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return repo, accountant
}

func completedJob() *model.Job {
	owner := "owner-1"
	outputBytes := int64(2048)
	processingMs := int64(840)
	credits := 1.0
	return &model.Job{
		ID:              testJobID,
		OwnerID:         &owner,
		SourceSizeBytes: 4096,
		Status:          model.JobStatusCompleted,
		ResultSizeBytes: &outputBytes,
		ProcessingMs:    &processingMs,
		CreditsUsed:     &credits,
	}
}

func TestUsageAccountant_RecordUsage_Success(t *testing.T) {
	t.Parallel()
	repo, accountant := newAccountant(t)

	ctx := context.Background()
	job := completedJob()
	provider := enabledProvider(model.ProviderRemoveBG, 1)

	var appended *model.UsageRecord
	repo.EXPECT().
		Append(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, rec *model.UsageRecord) error {
			appended = rec
			return nil
		}).
		Times(1)

	var delta model.UsageDelta
	repo.EXPECT().
		UpsertDailyStats(ctx, model.ProviderRemoveBG, testNow, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ model.ProviderID, _ time.Time, d model.UsageDelta) error {
			delta = d
			return nil
		}).
		Times(1)

	rec, err := accountant.RecordUsage(ctx, job, provider, true)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, appended, rec)

	assert.Equal(t, testJobID, rec.JobID)
	assert.Equal(t, model.ProviderRemoveBG, rec.Provider)
	assert.True(t, rec.Success)
	assert.Equal(t, int64(4096), rec.InputBytes)
	assert.Equal(t, int64(2048), rec.OutputBytes)
	assert.Equal(t, int64(840), rec.ProcessingMs)
	assert.InDelta(t, 1.0, rec.CreditsUsed, 0.001)
	assert.InDelta(t, 0.20, rec.Cost, 0.001)
	assert.Equal(t, model.BillingPeriod(202608), rec.BillingPeriod)

	assert.Equal(t, 1, delta.Requests)
	assert.Equal(t, 1, delta.Successes)
	assert.Zero(t, delta.Failures)
	assert.Equal(t, int64(4096+2048), delta.BytesProcessed)
	assert.InDelta(t, 0.20, delta.Cost, 0.001)
}

func TestUsageAccountant_RecordUsage_Failure(t *testing.T) {
	t.Parallel()
	repo, accountant := newAccountant(t)

	ctx := context.Background()
	job := &model.Job{ID: testJobID, SourceSizeBytes: 4096}
	provider := enabledProvider(model.ProviderPixian, 1)

	repo.EXPECT().Append(ctx, gomock.Any()).Return(nil).Times(1)

	var delta model.UsageDelta
	repo.EXPECT().
		UpsertDailyStats(ctx, model.ProviderPixian, testNow, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ model.ProviderID, _ time.Time, d model.UsageDelta) error {
			delta = d
			return nil
		}).
		Times(1)

	rec, err := accountant.RecordUsage(ctx, job, provider, false)
	require.NoError(t, err)
	assert.False(t, rec.Success)
	// Failed attempts never accrue cost.
	assert.Zero(t, rec.Cost)
	assert.Equal(t, 1, delta.Failures)
	assert.Zero(t, delta.Successes)
}

func TestUsageAccountant_RecordUsage_AppendRetriesThenFails(t *testing.T) {
	t.Parallel()
	repo, accountant := newAccountant(t)

	ctx := context.Background()
	job := completedJob()
	provider := enabledProvider(model.ProviderRemoveBG, 1)

	// Default budget is the initial try plus two retries.
	repo.EXPECT().Append(ctx, gomock.Any()).Return(errors.New("db down")).Times(3)

	_, err := accountant.RecordUsage(ctx, job, provider, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append usage record")
}

func TestUsageAccountant_RecordUsage_AppendSucceedsOnRetry(t *testing.T) {
	t.Parallel()
	repo, accountant := newAccountant(t)

	ctx := context.Background()
	job := completedJob()
	provider := enabledProvider(model.ProviderRemoveBG, 1)

	gomock.InOrder(
		repo.EXPECT().Append(ctx, gomock.Any()).Return(errors.New("db down")),
		repo.EXPECT().Append(ctx, gomock.Any()).Return(nil),
	)
	repo.EXPECT().UpsertDailyStats(ctx, model.ProviderRemoveBG, testNow, gomock.Any()).Return(nil).Times(1)

	rec, err := accountant.RecordUsage(ctx, job, provider, true)
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestUsageAccountant_RecordUsage_StatsFailureStillReturnsRecord(t *testing.T) {
	t.Parallel()
	repo, accountant := newAccountant(t)

	ctx := context.Background()
	job := completedJob()
	provider := enabledProvider(model.ProviderRemoveBG, 1)

	repo.EXPECT().Append(ctx, gomock.Any()).Return(nil).Times(1)
	repo.EXPECT().
		UpsertDailyStats(ctx, model.ProviderRemoveBG, testNow, gomock.Any()).
		Return(errors.New("db down")).
		Times(3)

	// The audit line landed; the lost stats increment is recoverable from it.
	rec, err := accountant.RecordUsage(ctx, job, provider, true)
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestUsageAccountant_RecordUsage_RequiresJobAndProvider(t *testing.T) {
	t.Parallel()
	_, accountant := newAccountant(t)

	_, err := accountant.RecordUsage(context.Background(), nil, enabledProvider(model.ProviderRemoveBG, 1), true)
	require.Error(t, err)

	_, err = accountant.RecordUsage(context.Background(), completedJob(), nil, true)
	require.Error(t, err)
}

func TestUsageAccountant_OwnerTotals(t *testing.T) {
	t.Parallel()
	repo, accountant := newAccountant(t)

	ctx := context.Background()
	expected := &model.OwnerUsageTotals{
		OwnerID:       "owner-1",
		BillingPeriod: 202608,
		Requests:      10,
		TotalCost:     2.0,
	}
	repo.EXPECT().OwnerTotals(ctx, "owner-1", model.BillingPeriod(202608)).Return(expected, nil).Times(1)

	totals, err := accountant.OwnerTotals(ctx, "owner-1", 202608)
	require.NoError(t, err)
	assert.Equal(t, expected, totals)

	_, err = accountant.OwnerTotals(ctx, "", 202608)
	require.Error(t, err)
}

func TestBillingPeriodFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.BillingPeriod(202608), model.BillingPeriodFor(testNow))
	assert.Equal(t, model.BillingPeriod(202612),
		model.BillingPeriodFor(time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC)))
	// A local-time instant maps to its UTC month.
	east := time.FixedZone("UTC+10", 10*3600)
	assert.Equal(t, model.BillingPeriod(202608),
		model.BillingPeriodFor(time.Date(2026, 9, 1, 8, 0, 0, 0, east)))
}
