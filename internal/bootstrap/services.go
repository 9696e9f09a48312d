package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clearpix/clearpix-go/config"
	"github.com/clearpix/clearpix-go/internal/adapters/jobrunner"
	"github.com/clearpix/clearpix-go/internal/adapters/pixian"
	"github.com/clearpix/clearpix-go/internal/adapters/reaper"
	"github.com/clearpix/clearpix-go/internal/adapters/removebg"
	"github.com/clearpix/clearpix-go/internal/core"
	"github.com/clearpix/clearpix-go/internal/data"
	"github.com/clearpix/clearpix-go/internal/domain/model"
	"github.com/clearpix/clearpix-go/internal/health"
	"github.com/clearpix/clearpix-go/internal/observability/notify"
	"github.com/clearpix/clearpix-go/internal/observability/statsd"
	"github.com/clearpix/clearpix-go/internal/service"
)

// Services holds the wired application services and runners.
type Services struct {
	Jobs         *service.JobService
	Registry     *health.Registry
	Orchestrator *service.Orchestrator
	Accountant   *service.UsageAccountant
	AccountInfo  *service.AccountInfoService
	JobRunner    *jobrunner.Runner
	Reaper       *reaper.Runner
	Metrics      *statsd.Client
}

// BuildServices wires repositories, adapters, and services from configuration.
func BuildServices(
	cfg config.AppConfig,
	pool *pgxpool.Pool,
	redisClient redis.UniversalClient,
	logger *slog.Logger,
) (*Services, error) {
	metrics, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Observability.Metrics.IsEnabled(),
		Address: cfg.Observability.Metrics.StatsdAddress,
		Prefix:  cfg.Observability.Metrics.StatsdPrefix,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init statsd client: %w", err)
	}

	jobRepo := data.NewJobRepo(pool, data.JobRepoConfig{
		ResultTTL: cfg.Orchestrator.ResultTTL,
		Logger:    logger,
	})
	providerRepo := data.NewProviderRepo(pool, nil)
	usageRepo := data.NewUsageRepo(pool, nil)
	cacheRepo := data.NewRedisCacheRepo(redisClient, cfg.Redis.KeyPrefix)

	registry, err := health.NewRegistry(health.RegistryOptions{
		Repo:             providerRepo,
		Logger:           logger,
		Metrics:          metrics,
		BreakerThreshold: cfg.Providers.BreakerThreshold,
		BreakerCooldown:  cfg.Providers.BreakerCooldown,
	})
	if err != nil {
		return nil, fmt.Errorf("init health registry: %w", err)
	}

	adapters, err := buildProviderAdapters(cfg.Providers, logger)
	if err != nil {
		return nil, err
	}

	accountant, err := service.NewUsageAccountant(service.UsageAccountantOptions{
		Repo:    usageRepo,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("init usage accountant: %w", err)
	}

	var sink core.NotificationSink
	if cfg.Observability.Callbacks.Enabled {
		sink = notify.NewWebhookSink(notify.WebhookConfig{
			Timeout:    cfg.Observability.Callbacks.Timeout,
			RetryLimit: cfg.Observability.Callbacks.RetryLimit,
			Logger:     logger,
			Cache:      cacheRepo,
		})
	}

	orchestrator, err := service.NewOrchestrator(service.OrchestratorOptions{
		Jobs:        jobRepo,
		Registry:    registry,
		Adapters:    adapters,
		Accountant:  accountant,
		Notifier:    sink,
		Logger:      logger,
		Metrics:     metrics,
		Timeout:     cfg.Providers.CallTimeout,
		BackoffBase: cfg.Orchestrator.BackoffBase,
		BackoffCap:  cfg.Orchestrator.BackoffCap,
		ResultTTL:   cfg.Orchestrator.ResultTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}

	jobService, err := service.NewJobService(service.JobServiceOptions{
		Jobs:     jobRepo,
		Canceler: orchestrator,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init job service: %w", err)
	}

	accountInfo, err := service.NewAccountInfoService(service.AccountInfoOptions{
		Adapters: adapters,
		Registry: registry,
		Cache:    cacheRepo,
		Logger:   logger,
		TTL:      cfg.Providers.AccountInfoTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("init account info service: %w", err)
	}

	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Jobs:         jobRepo,
		Orchestrator: orchestrator,
		Logger:       logger,
		Lease:        cfg.Orchestrator.JobLease,
		Concurrency:  cfg.Orchestrator.Concurrency,
		PollInterval: cfg.Orchestrator.PollInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("init job runner: %w", err)
	}

	reaperRunner, err := reaper.NewRunner(reaper.RunnerOptions{
		Jobs:   jobRepo,
		Config: cfg.Reaper,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init reaper runner: %w", err)
	}

	return &Services{
		Jobs:         jobService,
		Registry:     registry,
		Orchestrator: orchestrator,
		Accountant:   accountant,
		AccountInfo:  accountInfo,
		JobRunner:    runner,
		Reaper:       reaperRunner,
		Metrics:      metrics,
	}, nil
}

// buildProviderAdapters constructs an adapter per provider with credentials.
func buildProviderAdapters(
	cfg config.ProvidersConfig,
	logger *slog.Logger,
) (map[model.ProviderID]core.ProviderAdapter, error) {
	adapters := make(map[model.ProviderID]core.ProviderAdapter)

	if cfg.RemoveBG.Enabled() {
		a, err := removebg.New(removebg.Options{
			APIKey:  cfg.RemoveBG.APIKey,
			BaseURL: cfg.RemoveBG.BaseURL,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init remove.bg adapter: %w", err)
		}
		adapters[a.ID()] = a
	}

	if cfg.Pixian.Enabled() {
		a, err := pixian.New(pixian.Options{
			APIID:     cfg.Pixian.APIID,
			APISecret: cfg.Pixian.APISecret,
			BaseURL:   cfg.Pixian.BaseURL,
			TestMode:  cfg.Pixian.TestMode,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init pixian adapter: %w", err)
		}
		adapters[a.ID()] = a
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no provider adapters configured; set REMOVEBG_API_KEY or PIXIAN_API_ID/PIXIAN_API_SECRET")
	}
	return adapters, nil
}
