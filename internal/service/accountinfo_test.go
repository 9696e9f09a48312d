package service

import (
	"context"
	"encoding/json"
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

type accountInfoFixture struct {
	adapter  *mocks.MockProviderAdapter
	cache    *mocks.MockCacheRepository
	registry *health.Registry
	svc      *AccountInfoService
}

func newAccountInfoFixture(t *testing.T) *accountInfoFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	adapter := mocks.NewMockProviderAdapter(ctrl)
	cache := mocks.NewMockCacheRepository(ctrl)

	providerRepo := mocks.NewMockProviderConfigRepository(ctrl)
	providerRepo.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	registry, err := health.NewRegistry(health.RegistryOptions{Repo: providerRepo})
	require.NoError(t, err)
	registry.Track(enabledProvider(model.ProviderRemoveBG, 1))

	svc, err := NewAccountInfoService(AccountInfoOptions{
		Adapters: map[model.ProviderID]core.ProviderAdapter{
			model.ProviderRemoveBG: adapter,
		},
		Registry: registry,
		Cache:    cache,
		TTL:      10 * time.Minute,
	})
	require.NoError(t, err)

	return &accountInfoFixture{adapter: adapter, cache: cache, registry: registry, svc: svc}
}

func TestAccountInfoService_Get_ServesFromCache(t *testing.T) {
	t.Parallel()
	f := newAccountInfoFixture(t)

	ctx := context.Background()
	cached, err := json.Marshal(&model.ProviderAccountInfo{AvailableCredits: 120, IsActive: true})
	require.NoError(t, err)

	f.cache.EXPECT().Get(ctx, "account_info:removebg").Return(cached, nil).Times(1)
	// No adapter expectation: a fresh cache entry skips the provider API.

	info, err := f.svc.Get(ctx, model.ProviderRemoveBG)
	require.NoError(t, err)
	assert.InDelta(t, 120.0, info.AvailableCredits, 0.001)
	assert.True(t, info.IsActive)
}

func TestAccountInfoService_Get_CacheMissRefreshes(t *testing.T) {
	t.Parallel()
	f := newAccountInfoFixture(t)

	ctx := context.Background()
	fresh := &model.ProviderAccountInfo{AvailableCredits: 80, UsedCredits: 20, IsActive: true}

	f.cache.EXPECT().Get(ctx, "account_info:removebg").Return(nil, nil).Times(1)
	f.adapter.EXPECT().GetAccountInfo(ctx).Return(fresh, nil).Times(1)
	f.cache.EXPECT().Set(ctx, "account_info:removebg", gomock.Any(), 10*time.Minute).Return(nil).Times(1)

	info, err := f.svc.Get(ctx, model.ProviderRemoveBG)
	require.NoError(t, err)
	assert.Equal(t, fresh, info)

	// The credit balance flowed into the registry.
	configs := f.registry.Providers()
	require.Len(t, configs, 1)
	require.NotNil(t, configs[0].CreditBalance)
	assert.InDelta(t, 80.0, *configs[0].CreditBalance, 0.001)
}

func TestAccountInfoService_Refresh_AdapterError(t *testing.T) {
	t.Parallel()
	f := newAccountInfoFixture(t)

	ctx := context.Background()
	f.adapter.EXPECT().GetAccountInfo(ctx).Return(nil, errors.New("upstream 500")).Times(1)

	_, err := f.svc.Refresh(ctx, model.ProviderRemoveBG)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account info for removebg")
}

func TestAccountInfoService_Refresh_UnknownProvider(t *testing.T) {
	t.Parallel()
	f := newAccountInfoFixture(t)

	_, err := f.svc.Refresh(context.Background(), model.ProviderClipdrop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no adapter registered")
}

func TestAccountInfoService_Refresh_CacheWriteFailureIsNonFatal(t *testing.T) {
	t.Parallel()
	f := newAccountInfoFixture(t)

	ctx := context.Background()
	fresh := &model.ProviderAccountInfo{AvailableCredits: 5, IsActive: true}

	f.adapter.EXPECT().GetAccountInfo(ctx).Return(fresh, nil).Times(1)
	f.cache.EXPECT().Set(ctx, "account_info:removebg", gomock.Any(), 10*time.Minute).
		Return(errors.New("redis down")).Times(1)

	info, err := f.svc.Refresh(ctx, model.ProviderRemoveBG)
	require.NoError(t, err)
	assert.Equal(t, fresh, info)
}
