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

func newReaper(t *testing.T) (*mocks.MockJobRepository, *Reaper) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	jobs := mocks.NewMockJobRepository(ctrl)
	reaper, err := NewReaper(ReaperOptions{
		Jobs: jobs,
		Now:  func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return jobs, reaper
}

func expiredJob(id string) *model.Job {
	url := "https://cdn.example.com/" + id + ".png"
	size := int64(2048)
	contentType := "image/png"
	expires := testNow.Add(-time.Hour)
	return &model.Job{
		ID:                id,
		Status:            model.JobStatusCompleted,
		ResultImageURL:    &url,
		ResultSizeBytes:   &size,
		ResultContentType: &contentType,
		ExpiresAt:         &expires,
	}
}

func TestReaper_ReapExpiredResults(t *testing.T) {
	t.Parallel()
	jobs, reaper := newReaper(t)

	ctx := context.Background()
	a := expiredJob("job-a")
	b := expiredJob("job-b")

	jobs.EXPECT().ListExpired(ctx, testNow, 100).Return([]*model.Job{a, b}, nil).Times(1)
	jobs.EXPECT().Update(ctx, a).Return(nil).Times(1)
	jobs.EXPECT().Update(ctx, b).Return(nil).Times(1)

	reaped, err := reaper.ReapExpiredResults(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, reaped)

	// The job record stays; only the result payload references are dropped.
	assert.Nil(t, a.ResultImageURL)
	assert.Nil(t, a.ResultSizeBytes)
	assert.Nil(t, a.ResultContentType)
	assert.Nil(t, a.ExpiresAt)
	assert.Equal(t, model.JobStatusCompleted, a.Status)
}

func TestReaper_ReapExpiredResults_ContinuesPastUpdateFailure(t *testing.T) {
	t.Parallel()
	jobs, reaper := newReaper(t)

	ctx := context.Background()
	a := expiredJob("job-a")
	b := expiredJob("job-b")

	jobs.EXPECT().ListExpired(ctx, testNow, 100).Return([]*model.Job{a, b}, nil).Times(1)
	jobs.EXPECT().Update(ctx, a).Return(errors.New("db down")).Times(1)
	jobs.EXPECT().Update(ctx, b).Return(nil).Times(1)

	reaped, err := reaper.ReapExpiredResults(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)
}

func TestReaper_ReapExpiredResults_ListError(t *testing.T) {
	t.Parallel()
	jobs, reaper := newReaper(t)

	ctx := context.Background()
	jobs.EXPECT().ListExpired(ctx, testNow, 100).Return(nil, errors.New("db down")).Times(1)

	_, err := reaper.ReapExpiredResults(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list expired jobs")
}

func TestReaper_ReleaseStaleLeases(t *testing.T) {
	t.Parallel()
	jobs, reaper := newReaper(t)

	ctx := context.Background()
	jobs.EXPECT().ReleaseStale(ctx, testNow, 100).Return(int64(3), nil).Times(1)

	released, err := reaper.ReleaseStaleLeases(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), released)
}

func TestReaper_Tick(t *testing.T) {
	t.Parallel()
	jobs, reaper := newReaper(t)

	ctx := context.Background()
	jobs.EXPECT().ListExpired(ctx, testNow, 100).Return(nil, nil).Times(1)
	jobs.EXPECT().ReleaseStale(ctx, testNow, 100).Return(int64(0), nil).Times(1)

	require.NoError(t, reaper.Tick(ctx))
}
