package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clearpix/clearpix-go/internal/core"
	"github.com/clearpix/clearpix-go/internal/domain/model"
	apperrors "github.com/clearpix/clearpix-go/internal/errors"
	"github.com/clearpix/clearpix-go/internal/health"
	"github.com/clearpix/clearpix-go/internal/observability/metrics"
	"github.com/clearpix/clearpix-go/internal/observability/statsd"
	"github.com/clearpix/clearpix-go/internal/selector"
)

const (
	// DefaultProviderTimeout bounds one removal call when the provider config
	// does not override it.
	DefaultProviderTimeout = 60 * time.Second
	// DefaultBackoffBase is the first same-provider retry delay.
	DefaultBackoffBase = 1 * time.Second
	// DefaultBackoffCap bounds the exponential backoff.
	DefaultBackoffCap = 30 * time.Second
)

// Provider error codes that indicate the input itself is unusable. These are
// never retried: no other provider will accept the same input either.
var nonRetryableProviderCodes = map[string]bool{
	"invalid_image":       true,
	"unsupported_format":  true,
	"image_too_large":     true,
	"resolution_too_high": true,
}

// OrchestratorOptions groups dependencies for the Orchestrator.
type OrchestratorOptions struct {
	Jobs        core.JobRepository                        // Required: durable job store
	Registry    *health.Registry                          // Required: provider health registry
	Adapters    map[model.ProviderID]core.ProviderAdapter // Required: one adapter per provider
	Accountant  *UsageAccountant                          // Required: usage accounting
	Notifier    core.NotificationSink                     // Optional: terminal-state callbacks
	Logger      *slog.Logger                              // Optional: structured logger
	Metrics     statsd.Sink                               // Optional: metric sink
	Timeout     time.Duration                             // Optional: default provider timeout
	BackoffBase time.Duration                             // Optional: backoff base, defaults to 1s
	BackoffCap  time.Duration                             // Optional: backoff cap, defaults to 30s
	ResultTTL   time.Duration                             // Optional: result retention before reaping
	Now         func() time.Time                          // Optional: clock override for tests
}

// Orchestrator drives a claimed job through provider invocation, fallback,
// retry, and completion. One Process call owns one job's progression; the
// shared state it touches (provider counters) lives in the health registry.
type Orchestrator struct {
	jobs        core.JobRepository
	registry    *health.Registry
	adapters    map[model.ProviderID]core.ProviderAdapter
	accountant  *UsageAccountant
	notifier    core.NotificationSink
	logger      *slog.Logger
	metrics     statsd.Sink
	timeout     time.Duration
	backoffBase time.Duration
	backoffCap  time.Duration
	resultTTL   time.Duration
	now         func() time.Time

	mu       sync.Mutex
	inFlight map[string]context.CancelFunc
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("health Registry is required")
	}
	if len(opts.Adapters) == 0 {
		return nil, errors.New("at least one provider adapter is required")
	}
	if opts.Accountant == nil {
		return nil, errors.New("UsageAccountant is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	base := opts.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}
	capD := opts.BackoffCap
	if capD <= 0 {
		capD = DefaultBackoffCap
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "orchestrator")
	}

	return &Orchestrator{
		jobs:        opts.Jobs,
		registry:    opts.Registry,
		adapters:    opts.Adapters,
		accountant:  opts.Accountant,
		notifier:    opts.Notifier,
		logger:      logger,
		metrics:     opts.Metrics,
		timeout:     timeout,
		backoffBase: base,
		backoffCap:  capD,
		resultTTL:   opts.ResultTTL,
		now:         now,
		inFlight:    make(map[string]context.CancelFunc),
	}, nil
}

// CancelInFlight best-effort-cancels a provider call currently running for
// the job. Returns true when a call was found and signalled.
func (o *Orchestrator) CancelInFlight(jobID string) bool {
	o.mu.Lock()
	cancel, ok := o.inFlight[jobID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (o *Orchestrator) trackInFlight(jobID string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.inFlight[jobID] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) untrackInFlight(jobID string) {
	o.mu.Lock()
	delete(o.inFlight, jobID)
	o.mu.Unlock()
}

// Process drives a job that was just claimed (status processing) until it is
// terminal or parked as retrying with a scheduled re-attempt. The returned
// error reports engine faults only; job-level failures are absorbed into the
// job record per the propagation policy.
func (o *Orchestrator) Process(ctx context.Context, job *model.Job) error {
	if job == nil {
		return errors.New("job is required")
	}
	if job.Status != model.JobStatusProcessing {
		return fmt.Errorf("job %s is %s, expected %s", job.ID, job.Status, model.JobStatusProcessing)
	}

	tried := make(map[model.ProviderID]bool)
	for {
		if job.CancelRequested {
			return o.finishCancelled(ctx, job)
		}

		provider, selErr := o.selectProvider(job, tried)
		if selErr != nil {
			// No eligible provider. Explicit pins fail fast; otherwise this
			// counts against the retry budget like any transient failure.
			if job.ExplicitProvider {
				return o.finishFailed(ctx, job, selErr)
			}
			if next := o.handleTransientFailure(ctx, job, tried, selErr); !errors.Is(next, errContinueCycle) {
				return next
			}
			continue
		}

		result, attemptErr := o.attempt(ctx, job, provider)
		if attemptErr == nil {
			return o.finishCompleted(ctx, job, provider, result)
		}

		if apperrors.IsCanceled(attemptErr) {
			// The in-flight call was unwound by a cancellation request.
			return o.finishCancelled(ctx, job)
		}

		tried[provider.ID] = true

		if !apperrors.Retryable(attemptErr) {
			return o.finishFailed(ctx, job, attemptErr)
		}
		if job.ExplicitProvider {
			// A pinned provider keeps its retry budget but never falls back,
			// so park the job for a delayed re-attempt against the same pin.
			delete(tried, provider.ID)
		}
		if done, err := o.observeCancellation(ctx, job); done || err != nil {
			return err
		}
		if next := o.handleTransientFailure(ctx, job, tried, attemptErr); !errors.Is(next, errContinueCycle) {
			return next
		}
	}
}

// errContinueCycle signals Process to loop for an immediate fallback attempt.
var errContinueCycle = errors.New("continue retry cycle")

// selectProvider resolves the provider for the next attempt.
func (o *Orchestrator) selectProvider(
	job *model.Job,
	tried map[model.ProviderID]bool,
) (*model.ProviderConfig, error) {
	if job.ExplicitProvider {
		candidates := o.registry.Providers()
		for _, c := range candidates {
			if c.ID != job.Provider {
				continue
			}
			if !o.registry.IsAvailable(c.ID) {
				break
			}
			return c, nil
		}
		return nil, apperrors.ProviderUnavailablef("pinned provider %s is unavailable", job.Provider)
	}

	candidates := o.registry.Providers()

	// After at least one attempt, a job-level fallback preference trumps the
	// global ordering when that provider is still eligible.
	if len(tried) > 0 && job.FallbackProvider != nil && !tried[*job.FallbackProvider] {
		for _, c := range candidates {
			if c.ID != *job.FallbackProvider {
				continue
			}
			if o.registry.IsAvailable(c.ID) &&
				c.SupportsOutput(job.Output.Format) &&
				c.AcceptsInput(job.SourceSizeBytes, job.SourceContentType) {
				return c, nil
			}
			break
		}
	}

	chosen := selector.Select(candidates, selector.Options{
		Exclude:          tried,
		IsAvailable:      o.registry.IsAvailable,
		Output:           job.Output.Format,
		InputSizeBytes:   job.SourceSizeBytes,
		InputContentType: job.SourceContentType,
	})
	if chosen == nil {
		return nil, apperrors.ProviderUnavailable("no provider available")
	}
	return chosen, nil
}

// attempt invokes one provider for the job with a bounded, cancellable call.
func (o *Orchestrator) attempt(
	ctx context.Context,
	job *model.Job,
	provider *model.ProviderConfig,
) (*model.RemovalResult, error) {
	adapter, ok := o.adapters[provider.ID]
	if !ok {
		return nil, apperrors.ProviderUnavailablef("no adapter registered for provider %s", provider.ID)
	}
	if !o.registry.RecordAttempt(provider.ID) {
		return nil, apperrors.ProviderUnavailablef("provider %s is rate limited", provider.ID)
	}

	job.Provider = provider.ID

	attemptCtx, cancel := context.WithTimeout(ctx, provider.Timeout(o.timeout))
	o.trackInFlight(job.ID, cancel)
	defer func() {
		o.untrackInFlight(job.ID)
		cancel()
	}()

	start := o.now()
	result, err := adapter.RemoveBackgroundFromURL(attemptCtx, job.SourceImageURL, job.Output)
	elapsed := o.now().Sub(start)

	if err != nil || result == nil || !result.Success {
		if attemptCtx.Err() != nil && ctx.Err() == nil && o.wasCancelRequested(ctx, job) {
			// Unwound by CancelInFlight, not by the deadline.
			return nil, apperrors.Wrap(attemptCtx.Err(), apperrors.ErrCodeCanceled, "provider call cancelled")
		}

		if recErr := o.registry.RecordFailure(ctx, provider.ID); recErr != nil && o.logger != nil {
			o.logger.WarnContext(ctx, "record provider failure", "provider", provider.ID, "error", recErr)
		}

		code, msg := classifyAttempt(err, result)
		metrics.EmitAttempt(o.metrics, metrics.AttemptMetric{
			Provider: provider.ID,
			Result:   metrics.ResultError,
			Duration: elapsed,
			Code:     code,
		})
		if o.logger != nil {
			o.logger.WarnContext(ctx, "provider attempt failed",
				"job_id", job.ID, "provider", provider.ID, "code", code, "error", msg)
		}
		if nonRetryableProviderCodes[code] {
			return nil, apperrors.Validationf("provider %s rejected input: %s", provider.ID, msg)
		}
		return nil, apperrors.ProviderErrorf("provider %s: %s", provider.ID, msg)
	}

	responseMs := result.ProcessingTimeMs
	if responseMs <= 0 {
		responseMs = elapsed.Milliseconds()
	}
	if recErr := o.registry.RecordSuccess(ctx, provider.ID, responseMs); recErr != nil && o.logger != nil {
		o.logger.WarnContext(ctx, "record provider success", "provider", provider.ID, "error", recErr)
	}
	metrics.EmitAttempt(o.metrics, metrics.AttemptMetric{
		Provider: provider.ID,
		Result:   metrics.ResultSuccess,
		Duration: elapsed,
	})
	return result, nil
}

// classifyAttempt extracts a stable error code and message from a failed call.
func classifyAttempt(err error, result *model.RemovalResult) (code, msg string) {
	if result != nil && result.ErrorCode != "" {
		return result.ErrorCode, result.ErrorMessage
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "timeout", "provider call timed out"
		}
		return "call_failed", err.Error()
	}
	return "malformed_response", "provider returned no result"
}

// wasCancelRequested re-reads the job to see whether a caller cancelled it.
func (o *Orchestrator) wasCancelRequested(ctx context.Context, job *model.Job) bool {
	fresh, err := o.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return job.CancelRequested
	}
	job.CancelRequested = fresh.CancelRequested
	return fresh.CancelRequested
}

// observeCancellation checks for a cancellation that arrived between attempts.
// Returns done=true when the job reached a terminal state here.
func (o *Orchestrator) observeCancellation(ctx context.Context, job *model.Job) (bool, error) {
	if !o.wasCancelRequested(ctx, job) {
		return false, nil
	}
	return true, o.finishCancelled(ctx, job)
}

// handleTransientFailure applies the retry/fallback policy after a retryable
// failure. It either signals an immediate fallback cycle (errContinueCycle),
// parks the job as retrying with exponential backoff, or fails it terminally.
func (o *Orchestrator) handleTransientFailure(
	ctx context.Context,
	job *model.Job,
	tried map[model.ProviderID]bool,
	cause error,
) error {
	if !job.RetriesLeft() {
		if apperrors.IsProviderUnavailable(cause) {
			return o.finishFailed(ctx, job, cause)
		}
		return o.finishFailed(ctx, job, apperrors.Wrap(cause, apperrors.ErrCodeRetryExhausted,
			fmt.Sprintf("retry budget of %d exhausted", job.MaxRetries)))
	}

	job.RetryCount++
	if err := job.TransitionTo(model.JobStatusRetrying); err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}

	// Immediate fallback when a distinct eligible provider remains.
	if !job.ExplicitProvider {
		candidates := o.registry.Providers()
		next := selector.Select(candidates, selector.Options{
			Exclude:          tried,
			IsAvailable:      o.registry.IsAvailable,
			Output:           job.Output.Format,
			InputSizeBytes:   job.SourceSizeBytes,
			InputContentType: job.SourceContentType,
		})
		if next != nil {
			if err := job.TransitionTo(model.JobStatusProcessing); err != nil {
				return fmt.Errorf("job %s: %w", job.ID, err)
			}
			if err := o.jobs.Update(ctx, job); err != nil {
				return fmt.Errorf("persist retry of job %s: %w", job.ID, err)
			}
			if o.logger != nil {
				o.logger.InfoContext(ctx, "falling back to next provider",
					"job_id", job.ID, "next_provider", next.ID, "retry_count", job.RetryCount)
			}
			return errContinueCycle
		}
	}

	// No alternative right now: park with exponential backoff and free the
	// worker slot; the runner re-reserves the job once scheduled_at passes.
	delay := o.backoffDelay(job.RetryCount)
	job.ScheduledAt = o.now().Add(delay)
	job.LeaseExpiresAt = nil
	if err := o.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist backoff of job %s: %w", job.ID, err)
	}
	if o.logger != nil {
		o.logger.InfoContext(ctx, "job parked for delayed retry",
			"job_id", job.ID, "retry_count", job.RetryCount, "delay", delay)
	}
	return nil
}

// backoffDelay computes base * 2^(retry-1) capped at backoffCap.
func (o *Orchestrator) backoffDelay(retry int) time.Duration {
	delay := o.backoffBase
	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= o.backoffCap {
			return o.backoffCap
		}
	}
	if delay > o.backoffCap {
		return o.backoffCap
	}
	return delay
}

// finishCompleted populates the result fields, records usage, and completes
// the job. Result fields are set if and only if the job completes.
func (o *Orchestrator) finishCompleted(
	ctx context.Context,
	job *model.Job,
	provider *model.ProviderConfig,
	result *model.RemovalResult,
) error {
	now := o.now().UTC()
	if result.ResultURL != "" {
		url := result.ResultURL
		job.ResultImageURL = &url
	}
	if size := int64(len(result.ImageBytes)); size > 0 {
		job.ResultSizeBytes = &size
	}
	contentType := result.ContentType
	job.ResultContentType = &contentType
	processingMs := result.ProcessingTimeMs
	job.ProcessingMs = &processingMs
	credits := result.CreditsConsumed
	job.CreditsUsed = &credits
	cost := provider.CostPerImage
	job.EstimatedCost = &cost
	job.ProcessingCompletedAt = &now
	if o.resultTTL > 0 {
		expires := now.Add(o.resultTTL)
		job.ExpiresAt = &expires
	}
	job.ErrorCode = nil
	job.ErrorMessage = nil
	job.LeaseExpiresAt = nil

	if err := job.TransitionTo(model.JobStatusCompleted); err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}
	if err := o.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist completion of job %s: %w", job.ID, err)
	}

	// Accounting failures are logged and retried inside the accountant; they
	// never unwind a completed job.
	if _, err := o.accountant.RecordUsage(ctx, job, provider, true); err != nil && o.logger != nil {
		o.logger.ErrorContext(ctx, "usage accounting failed", "job_id", job.ID, "error", err)
	}

	metrics.EmitTerminal(o.metrics, job.Status, job.RetryCount)
	if o.logger != nil {
		o.logger.InfoContext(ctx, "job completed",
			"job_id", job.ID, "provider", provider.ID, "retry_count", job.RetryCount)
	}
	o.notify(ctx, job)
	return nil
}

// finishFailed records the terminal error on the job.
func (o *Orchestrator) finishFailed(ctx context.Context, job *model.Job, cause error) error {
	code := string(apperrors.GetCode(cause))
	if code == "" {
		code = string(apperrors.ErrCodeInternal)
	}
	msg := cause.Error()
	job.ErrorCode = &code
	job.ErrorMessage = &msg
	job.LeaseExpiresAt = nil
	now := o.now().UTC()
	job.ProcessingCompletedAt = &now

	if err := job.TransitionTo(model.JobStatusFailed); err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}
	if err := o.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist failure of job %s: %w", job.ID, err)
	}

	metrics.EmitTerminal(o.metrics, job.Status, job.RetryCount)
	if o.logger != nil {
		o.logger.WarnContext(ctx, "job failed",
			"job_id", job.ID, "code", code, "retry_count", job.RetryCount)
	}
	o.notify(ctx, job)
	return nil
}

// finishCancelled moves the job to cancelled and aborts any scheduled re-attempt.
func (o *Orchestrator) finishCancelled(ctx context.Context, job *model.Job) error {
	job.LeaseExpiresAt = nil
	if err := job.TransitionTo(model.JobStatusCancelled); err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}
	if err := o.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist cancellation of job %s: %w", job.ID, err)
	}

	metrics.EmitTerminal(o.metrics, job.Status, job.RetryCount)
	if o.logger != nil {
		o.logger.InfoContext(ctx, "job cancelled", "job_id", job.ID)
	}
	o.notify(ctx, job)
	return nil
}

func (o *Orchestrator) notify(ctx context.Context, job *model.Job) {
	if o.notifier == nil {
		return
	}
	o.notifier.NotifyJobFinished(ctx, job)
}
