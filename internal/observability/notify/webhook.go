// Package notify delivers terminal-state job callbacks to caller webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/clearpix/clearpix-go/internal/core"
	"github.com/clearpix/clearpix-go/internal/domain/model"
)

// dedupeTTL bounds how long a delivered-callback marker lives. A job can only
// reach a terminal state once, so the marker only guards against re-delivery
// from crashed workers re-observing the transition.
const dedupeTTL = 24 * time.Hour

// WebhookConfig captures the delivery behaviour for job callbacks.
type WebhookConfig struct {
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	Logger     *slog.Logger
	// Cache, when set, provides SetIfNotExists dedupe so a job notifies at most once.
	Cache core.CacheRepository
}

// WebhookSink posts terminal job state to the job's callback URL.
// Delivery is best-effort: failures are logged, never propagated.
type WebhookSink struct {
	client     *http.Client
	retryLimit int
	logger     *slog.Logger
	cache      core.CacheRepository
}

var _ core.NotificationSink = (*WebhookSink)(nil)

// NewWebhookSink builds a webhook notification sink.
func NewWebhookSink(cfg WebhookConfig) *WebhookSink {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	retries := cfg.RetryLimit
	if retries < 0 {
		retries = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookSink{
		client:     hc,
		retryLimit: retries,
		logger:     logger.With("component", "webhook_sink"),
		cache:      cfg.Cache,
	}
}

// callbackPayload is the JSON body posted to the caller's webhook.
type callbackPayload struct {
	JobID         string           `json:"job_id"`
	CorrelationID *string          `json:"correlation_id,omitempty"`
	Status        model.JobStatus  `json:"status"`
	ResultURL     *string          `json:"result_url,omitempty"`
	ContentType   *string          `json:"content_type,omitempty"`
	ErrorCode     *string          `json:"error_code,omitempty"`
	ErrorMessage  *string          `json:"error_message,omitempty"`
	Provider      model.ProviderID `json:"provider,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}

// NotifyJobFinished posts the job's terminal state to its callback URL.
// Jobs without a callback URL or non-terminal jobs are ignored.
func (s *WebhookSink) NotifyJobFinished(ctx context.Context, job *model.Job) {
	if job == nil || job.CallbackURL == nil || *job.CallbackURL == "" {
		return
	}
	if !job.Status.Terminal() {
		return
	}

	if s.cache != nil {
		ok, err := s.cache.SetIfNotExists(ctx, "notify:"+job.ID, []byte(string(job.Status)), dedupeTTL)
		if err != nil {
			s.logger.WarnContext(ctx, "callback dedupe check failed", "job_id", job.ID, "error", err)
		} else if !ok {
			return
		}
	}

	body, err := json.Marshal(callbackPayload{
		JobID:         job.ID,
		CorrelationID: job.CorrelationID,
		Status:        job.Status,
		ResultURL:     job.ResultImageURL,
		ContentType:   job.ResultContentType,
		ErrorCode:     job.ErrorCode,
		ErrorMessage:  job.ErrorMessage,
		Provider:      job.Provider,
		CompletedAt:   job.ProcessingCompletedAt,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "encode callback payload", "job_id", job.ID, "error", err)
		return
	}

	attempts := s.retryLimit + 1
	for attempt := range attempts {
		err = s.post(ctx, *job.CallbackURL, body)
		if err == nil {
			s.logger.DebugContext(ctx, "callback delivered", "job_id", job.ID, "status", job.Status)
			return
		}
		if attempt < attempts-1 {
			delay := time.Duration(attempt+1) * 200 * time.Millisecond
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return
			case <-timer.C:
			}
		}
	}

	s.logger.WarnContext(ctx, "callback delivery failed",
		"job_id", job.ID, "url", *job.CallbackURL, "error", err)
}

func (s *WebhookSink) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
