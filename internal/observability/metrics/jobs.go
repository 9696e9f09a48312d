// Package metrics defines the standardised metric names and tag shapes
// emitted by the job engine.
package metrics

import (
	"time"

	"github.com/clearpix/clearpix-go/internal/domain/model"
	"github.com/clearpix/clearpix-go/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// AttemptMetric captures details about one provider attempt for metric emission.
type AttemptMetric struct {
	Provider model.ProviderID
	Result   string
	Duration time.Duration
	Code     string
}

// EmitAttempt emits standardised provider-attempt metrics.
func EmitAttempt(sink statsd.Sink, in AttemptMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"provider": string(in.Provider),
		"result":   in.Result,
	}
	if in.Code != "" {
		tags["error_code"] = in.Code
	}
	sink.Count("job.attempt", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.attempt_duration", in.Duration, tags)
	}
}

// EmitTerminal emits a counter for a job reaching a terminal state.
func EmitTerminal(sink statsd.Sink, status model.JobStatus, retries int) {
	if sink == nil {
		return
	}
	sink.Count("job.terminal", 1, map[string]string{"status": string(status)})
	sink.Gauge("job.retries", float64(retries), map[string]string{"status": string(status)})
}

// EmitBreakerOpen emits a counter when a provider's circuit breaker opens.
func EmitBreakerOpen(sink statsd.Sink, provider model.ProviderID) {
	if sink == nil {
		return
	}
	sink.Count("provider.breaker_open", 1, map[string]string{"provider": string(provider)})
}

// EmitUsageWrite emits a counter for usage accounting writes.
func EmitUsageWrite(sink statsd.Sink, provider model.ProviderID, result string) {
	if sink == nil {
		return
	}
	sink.Count("usage.write", 1, map[string]string{
		"provider": string(provider),
		"result":   result,
	})
}
