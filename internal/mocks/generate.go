// Package mocks provides mock implementations for testing the clearpix job engine.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/clearpix/clearpix-go/internal/core JobRepository

// Generate mock for ProviderConfigRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=provider_config_repository_mock.go github.com/clearpix/clearpix-go/internal/core ProviderConfigRepository

// Generate mock for UsageRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=usage_repository_mock.go github.com/clearpix/clearpix-go/internal/core UsageRepository

// Generate mock for CacheRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=cache_repository_mock.go github.com/clearpix/clearpix-go/internal/core CacheRepository

// Generate mock for ProviderAdapter interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=provider_adapter_mock.go github.com/clearpix/clearpix-go/internal/core ProviderAdapter
