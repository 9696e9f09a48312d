package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeOrchestrator runs the job processing worker pool.
	ServiceModeOrchestrator ServiceMode = "orchestrator"
	// ServiceModeReaper runs the cleanup loop for expired results and stale leases.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeOrchestrator,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeOrchestrator, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: orchestrator, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// OrchestratorConfig contains job worker pool configuration.
type OrchestratorConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"ORCHESTRATOR_CONCURRENCY" envDefault:"4"`

	// JobLease is the duration a claimed job stays leased to one worker.
	JobLease time.Duration `env:"ORCHESTRATOR_JOB_LEASE" envDefault:"120s"`

	// PollInterval is the idle wait between queue polls when no job is due.
	PollInterval time.Duration `env:"ORCHESTRATOR_POLL_INTERVAL" envDefault:"1s"`

	// BackoffBase is the first same-provider retry delay.
	BackoffBase time.Duration `env:"ORCHESTRATOR_BACKOFF_BASE" envDefault:"1s"`

	// BackoffCap bounds the exponential retry backoff.
	BackoffCap time.Duration `env:"ORCHESTRATOR_BACKOFF_CAP" envDefault:"30s"`

	// ResultTTL is how long completed-job results are retained before reaping.
	ResultTTL time.Duration `env:"ORCHESTRATOR_RESULT_TTL" envDefault:"24h"`
}

// Sanitize applies guardrails to orchestrator configuration values.
func (o *OrchestratorConfig) Sanitize() {
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.JobLease < 5*time.Second {
		o.JobLease = 5 * time.Second
	}
	if o.PollInterval < 100*time.Millisecond {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffCap < o.BackoffBase {
		o.BackoffCap = o.BackoffBase
	}
}

// ReaperConfig contains cleanup loop configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < 10*time.Second {
		r.Interval = 10 * time.Second
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
