package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clearpix/clearpix-go/internal/core"
	"github.com/clearpix/clearpix-go/internal/domain/model"
	"github.com/clearpix/clearpix-go/internal/health"
)

// AccountInfoOptions groups dependencies for the AccountInfoService.
type AccountInfoOptions struct {
	Adapters map[model.ProviderID]core.ProviderAdapter // Required: provider adapters
	Registry *health.Registry                          // Required: credit balances flow into the registry
	Cache    core.CacheRepository                      // Optional: snapshot cache
	Logger   *slog.Logger                              // Optional: structured logger
	TTL      time.Duration                             // Optional: snapshot freshness, defaults to 10m
}

// AccountInfoService refreshes provider billing snapshots. Fresh snapshots
// are cached so repeated reads within the TTL do not hit provider APIs.
type AccountInfoService struct {
	adapters map[model.ProviderID]core.ProviderAdapter
	registry *health.Registry
	cache    core.CacheRepository
	logger   *slog.Logger
	ttl      time.Duration
}

// NewAccountInfoService constructs an AccountInfoService.
func NewAccountInfoService(opts AccountInfoOptions) (*AccountInfoService, error) {
	if len(opts.Adapters) == 0 {
		return nil, errors.New("at least one provider adapter is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("health Registry is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "account_info")
	}
	return &AccountInfoService{
		adapters: opts.Adapters,
		registry: opts.Registry,
		cache:    opts.Cache,
		logger:   logger,
		ttl:      ttl,
	}, nil
}

func cacheKey(id model.ProviderID) string {
	return "account_info:" + string(id)
}

// Get returns the billing snapshot for one provider, served from cache when
// fresh, otherwise fetched from the provider and cached.
func (s *AccountInfoService) Get(ctx context.Context, id model.ProviderID) (*model.ProviderAccountInfo, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, cacheKey(id))
		if err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "account info cache read failed", "provider", id, "error", err)
		}
		if len(raw) > 0 {
			var info model.ProviderAccountInfo
			if err := json.Unmarshal(raw, &info); err == nil {
				return &info, nil
			}
		}
	}
	return s.Refresh(ctx, id)
}

// Refresh fetches a fresh snapshot from the provider, caches it, and folds
// the credit balance into the health registry.
func (s *AccountInfoService) Refresh(ctx context.Context, id model.ProviderID) (*model.ProviderAccountInfo, error) {
	adapter, ok := s.adapters[id]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %s", id)
	}

	info, err := adapter.GetAccountInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("account info for %s: %w", id, err)
	}

	if s.cache != nil {
		if raw, marshalErr := json.Marshal(info); marshalErr == nil {
			if cacheErr := s.cache.Set(ctx, cacheKey(id), raw, s.ttl); cacheErr != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "account info cache write failed", "provider", id, "error", cacheErr)
			}
		}
	}

	if err := s.registry.UpdateCreditBalance(ctx, id, info.AvailableCredits); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "update credit balance failed", "provider", id, "error", err)
	}
	return info, nil
}

// RefreshAll refreshes every registered provider. Per-provider failures are
// logged; the pass continues.
func (s *AccountInfoService) RefreshAll(ctx context.Context) {
	for id := range s.adapters {
		if _, err := s.Refresh(ctx, id); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "account info refresh failed", "provider", id, "error", err)
		}
	}
}

// RunPeriodic refreshes all providers on the given interval until cancelled.
func (s *AccountInfoService) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = s.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.RefreshAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RefreshAll(ctx)
		}
	}
}
