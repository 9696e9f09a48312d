// Package health tracks per-provider availability: rate-limit counters,
// circuit-breaker state, and rolling success/latency stats.
//
// The registry is the exclusive owner of provider counters. Mutations on a
// single provider are serialized by a per-provider mutex so that concurrent
// workers never under-count consecutive failures and the daily reset is
// applied at most once per rollover.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/clearpix/clearpix-go/internal/core"
	"github.com/clearpix/clearpix-go/internal/domain/model"
	"github.com/clearpix/clearpix-go/internal/observability/metrics"
	"github.com/clearpix/clearpix-go/internal/observability/statsd"
)

const (
	// DefaultBreakerThreshold is the consecutive-failure count that opens the breaker.
	DefaultBreakerThreshold = 5
	// DefaultBreakerCooldown is how long an open breaker blocks traffic.
	DefaultBreakerCooldown = 5 * time.Minute
)

// ErrUnknownProvider is returned for operations against a provider the
// registry has not loaded.
var ErrUnknownProvider = errors.New("unknown provider")

// RegistryOptions groups dependencies for the Registry.
type RegistryOptions struct {
	Repo             core.ProviderConfigRepository // Required: durable provider-config store
	Logger           *slog.Logger                  // Optional: structured logger
	Metrics          statsd.Sink                   // Optional: metric sink
	BreakerThreshold int                           // Optional: defaults to 5 consecutive failures
	BreakerCooldown  time.Duration                 // Optional: defaults to 5 minutes
	Now              func() time.Time              // Optional: clock override for tests
}

// providerState pairs one provider's config with its lock and minute limiter.
type providerState struct {
	mu      sync.Mutex
	cfg     *model.ProviderConfig
	limiter *rate.Limiter // nil when the provider has no per-minute cap
}

// Registry holds the shared mutable health state for all providers.
// It is safe for concurrent use by many workers.
type Registry struct {
	repo             core.ProviderConfigRepository
	logger           *slog.Logger
	metrics          statsd.Sink
	breakerThreshold int
	breakerCooldown  time.Duration
	now              func() time.Time

	mu        sync.RWMutex
	providers map[model.ProviderID]*providerState
}

// NewRegistry constructs a Registry. Call Load before first use.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Repo == nil {
		return nil, errors.New("ProviderConfigRepository is required")
	}

	threshold := opts.BreakerThreshold
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	cooldown := opts.BreakerCooldown
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "health_registry")
	}

	return &Registry{
		repo:             opts.Repo,
		logger:           logger,
		metrics:          opts.Metrics,
		breakerThreshold: threshold,
		breakerCooldown:  cooldown,
		now:              now,
		providers:        make(map[model.ProviderID]*providerState),
	}, nil
}

// Load replaces the in-memory provider set from the durable store.
// Providers already tracked keep their limiter token buckets.
func (r *Registry) Load(ctx context.Context) error {
	configs, err := r.repo.GetEnabled(ctx)
	if err != nil {
		return fmt.Errorf("load provider configs: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[model.ProviderID]*providerState, len(configs))
	for _, cfg := range configs {
		if prev, ok := r.providers[cfg.ID]; ok {
			prev.mu.Lock()
			prev.cfg = cfg
			prev.mu.Unlock()
			next[cfg.ID] = prev
			continue
		}
		next[cfg.ID] = &providerState{
			cfg:     cfg,
			limiter: newMinuteLimiter(cfg.RequestsPerMinute),
		}
	}
	r.providers = next

	if r.logger != nil {
		r.logger.InfoContext(ctx, "provider registry loaded", "providers", len(next))
	}
	return nil
}

func newMinuteLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
}

// Track adds or replaces a single provider in the registry.
func (r *Registry) Track(cfg *model.ProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[cfg.ID] = &providerState{
		cfg:     cfg,
		limiter: newMinuteLimiter(cfg.RequestsPerMinute),
	}
}

func (r *Registry) state(id model.ProviderID) (*providerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.providers[id]
	return st, ok
}

// Providers returns a snapshot of all tracked provider configs, sorted by
// priority ascending. The returned configs are copies.
func (r *Registry) Providers() []*model.ProviderConfig {
	r.mu.RLock()
	states := make([]*providerState, 0, len(r.providers))
	for _, st := range r.providers {
		states = append(states, st)
	}
	r.mu.RUnlock()

	configs := make([]*model.ProviderConfig, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		cp := *st.cfg
		st.mu.Unlock()
		configs = append(configs, &cp)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Priority < configs[j].Priority })
	return configs
}

// IsAvailable evaluates the availability invariant for a provider with no
// side effects beyond the lazy daily-counter reset: enabled, breaker closed
// or past its reset time, daily budget left, and a minute-window token free.
func (r *Registry) IsAvailable(id model.ProviderID) bool {
	st, ok := r.state(id)
	if !ok {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := r.now()
	r.resetDailyLocked(st, now)

	if !st.cfg.Available(now) {
		return false
	}
	if st.limiter != nil && st.limiter.TokensAt(now) < 1 {
		return false
	}
	return true
}

// RecordAttempt consumes one minute-window token ahead of a provider call.
// Returns false when the per-minute cap is exhausted.
func (r *Registry) RecordAttempt(id model.ProviderID) bool {
	st, ok := r.state(id)
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.limiter == nil {
		return true
	}
	return st.limiter.AllowN(r.now(), 1)
}

// RecordSuccess updates counters after a successful provider call: bumps the
// processed and used-today counts, folds the response time into the running
// average over successful calls, resets the consecutive-failure count, and
// closes the breaker.
func (r *Registry) RecordSuccess(ctx context.Context, id model.ProviderID, responseTimeMs int64) error {
	st, ok := r.state(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}

	st.mu.Lock()
	now := r.now()
	r.resetDailyLocked(st, now)

	cfg := st.cfg
	cfg.TotalProcessed++
	cfg.TotalSucceeded++
	cfg.RequestsUsedToday++
	// Only successful calls carry a response-time sample.
	n := float64(cfg.TotalSucceeded)
	cfg.AvgResponseMs = (cfg.AvgResponseMs*(n-1) + float64(responseTimeMs)) / n
	cfg.SuccessRate = float64(cfg.TotalSucceeded) / float64(cfg.TotalProcessed)
	cfg.ConsecutiveFailures = 0
	cfg.BreakerOpen = false
	cfg.BreakerResetAt = nil
	cfg.UpdatedAt = now
	snapshot := *cfg
	st.mu.Unlock()

	r.persist(ctx, &snapshot)
	return nil
}

// RecordFailure updates counters after a failed provider call. When the
// consecutive-failure count reaches the breaker threshold the breaker opens
// and traffic is blocked until the cooldown passes. Failed calls do not
// consume the daily budget; the minute-window token was already spent by
// RecordAttempt.
func (r *Registry) RecordFailure(ctx context.Context, id model.ProviderID) error {
	st, ok := r.state(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}

	st.mu.Lock()
	now := r.now()
	r.resetDailyLocked(st, now)

	cfg := st.cfg
	cfg.TotalProcessed++
	cfg.SuccessRate = float64(cfg.TotalSucceeded) / float64(cfg.TotalProcessed)
	cfg.ConsecutiveFailures++

	opened := false
	if cfg.ConsecutiveFailures >= r.breakerThreshold && !cfg.BreakerOpen {
		resetAt := now.Add(r.breakerCooldown)
		cfg.BreakerOpen = true
		cfg.BreakerResetAt = &resetAt
		opened = true
	}
	cfg.UpdatedAt = now
	snapshot := *cfg
	st.mu.Unlock()

	if opened {
		metrics.EmitBreakerOpen(r.metrics, id)
		if r.logger != nil {
			r.logger.WarnContext(ctx, "circuit breaker opened",
				"provider", id,
				"consecutive_failures", snapshot.ConsecutiveFailures,
				"reset_at", snapshot.BreakerResetAt,
			)
		}
	}

	r.persist(ctx, &snapshot)
	return nil
}

// ResetDailyCounterIfNeeded applies the idempotent day-rollover check for one
// provider. It is also invoked lazily before every availability check.
func (r *Registry) ResetDailyCounterIfNeeded(id model.ProviderID) {
	st, ok := r.state(id)
	if !ok {
		return
	}
	st.mu.Lock()
	r.resetDailyLocked(st, r.now())
	st.mu.Unlock()
}

// resetDailyLocked zeroes the used-today counter once per UTC calendar day.
// Caller must hold st.mu.
func (r *Registry) resetDailyLocked(st *providerState, now time.Time) {
	today := now.UTC().Truncate(24 * time.Hour)
	last := st.cfg.LastDailyReset.UTC().Truncate(24 * time.Hour)
	if !today.After(last) {
		return
	}
	st.cfg.RequestsUsedToday = 0
	st.cfg.LastDailyReset = today
}

// UpdateCreditBalance overwrites a provider's credit balance from a fresh
// account-info snapshot.
func (r *Registry) UpdateCreditBalance(ctx context.Context, id model.ProviderID, credits float64) error {
	st, ok := r.state(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	st.mu.Lock()
	st.cfg.CreditBalance = &credits
	st.cfg.UpdatedAt = r.now()
	snapshot := *st.cfg
	st.mu.Unlock()

	r.persist(ctx, &snapshot)
	return nil
}

// Snapshot returns a copy of one provider's health state for operators.
func (r *Registry) Snapshot(id model.ProviderID) (*model.ProviderHealthSnapshot, error) {
	st, ok := r.state(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := r.now()
	r.resetDailyLocked(st, now)
	cfg := st.cfg
	return &model.ProviderHealthSnapshot{
		ID:                  cfg.ID,
		Enabled:             cfg.Enabled,
		Available:           cfg.Available(now),
		ConsecutiveFailures: cfg.ConsecutiveFailures,
		BreakerOpen:         cfg.BreakerOpen,
		BreakerResetAt:      cfg.BreakerResetAt,
		RequestsUsedToday:   cfg.RequestsUsedToday,
		RequestsPerDay:      cfg.RequestsPerDay,
		TotalProcessed:      cfg.TotalProcessed,
		AvgResponseMs:       cfg.AvgResponseMs,
		SuccessRate:         cfg.SuccessRate,
	}, nil
}

// persist writes the counter snapshot back to the durable store. Persistence
// failures only degrade durability of the counters, so they are logged and
// swallowed rather than propagated into the job path.
func (r *Registry) persist(ctx context.Context, cfg *model.ProviderConfig) {
	if err := r.repo.Update(ctx, cfg); err != nil && r.logger != nil {
		r.logger.WarnContext(ctx, "persist provider counters failed",
			"provider", cfg.ID, "error", err)
	}
}
