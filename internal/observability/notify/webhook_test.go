package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/clearpix/clearpix-go/internal/domain/model"
	"github.com/clearpix/clearpix-go/internal/mocks"
)

func terminalJob(callbackURL string) *model.Job {
	resultURL := "https://cdn.example.com/cutout.png"
	contentType := "image/png"
	return &model.Job{
		ID:                "job-123",
		Status:            model.JobStatusCompleted,
		Provider:          model.ProviderRemoveBG,
		ResultImageURL:    &resultURL,
		ResultContentType: &contentType,
		CallbackURL:       &callbackURL,
	}
}

func TestWebhookSink_DeliversTerminalState(t *testing.T) {
	t.Parallel()

	var received callbackPayload
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	sink := NewWebhookSink(WebhookConfig{})
	sink.NotifyJobFinished(context.Background(), terminalJob(srv.URL))

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "job-123", received.JobID)
	assert.Equal(t, model.JobStatusCompleted, received.Status)
	assert.Equal(t, model.ProviderRemoveBG, received.Provider)
	require.NotNil(t, received.ResultURL)
	assert.Equal(t, "https://cdn.example.com/cutout.png", *received.ResultURL)
}

func TestWebhookSink_RetriesOnFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	sink := NewWebhookSink(WebhookConfig{RetryLimit: 2})
	sink.NotifyJobFinished(context.Background(), terminalJob(srv.URL))

	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhookSink_GivesUpAfterRetryLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	sink := NewWebhookSink(WebhookConfig{RetryLimit: 1})
	sink.NotifyJobFinished(context.Background(), terminalJob(srv.URL))

	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhookSink_SkipsJobsWithoutCallback(t *testing.T) {
	t.Parallel()

	sink := NewWebhookSink(WebhookConfig{})
	// None of these may attempt delivery; an attempt would hit a dead URL and
	// only show up as latency, so assert through a counting server instead.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(srv.Close)

	sink.NotifyJobFinished(context.Background(), nil)

	job := terminalJob(srv.URL)
	job.CallbackURL = nil
	sink.NotifyJobFinished(context.Background(), job)

	running := terminalJob(srv.URL)
	running.Status = model.JobStatusProcessing
	sink.NotifyJobFinished(context.Background(), running)

	assert.Zero(t, calls.Load())
}

func TestWebhookSink_DedupesThroughCache(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	cache := mocks.NewMockCacheRepository(ctrl)
	sink := NewWebhookSink(WebhookConfig{Cache: cache})

	ctx := context.Background()
	job := terminalJob(srv.URL)

	gomock.InOrder(
		cache.EXPECT().
			SetIfNotExists(ctx, "notify:job-123", []byte("completed"), 24*time.Hour).
			Return(true, nil),
		cache.EXPECT().
			SetIfNotExists(ctx, "notify:job-123", []byte("completed"), 24*time.Hour).
			Return(false, nil),
	)

	sink.NotifyJobFinished(ctx, job)
	sink.NotifyJobFinished(ctx, job)

	assert.Equal(t, int32(1), calls.Load(), "second delivery is suppressed by the dedupe marker")
}
