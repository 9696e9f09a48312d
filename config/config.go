// Package config defines the environment-driven application configuration.
package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and cache configuration
//   - services.go: Service mode and worker configuration
//   - providers.go: Provider adapter and routing configuration
//   - observability.go: Metrics and callback configuration
type AppConfig struct {
	// IsDev controls development mode behavior (seeding, verbose logging).
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Services is a comma-delimited list of enabled services.
	// Valid values: orchestrator, reaper
	Services string `env:"SERVICES" envDefault:"orchestrator,reaper"`

	// Worker pool configuration
	Orchestrator OrchestratorConfig

	// Reaper configuration
	Reaper ReaperConfig

	// Provider adapter configuration
	Providers ProvidersConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Orchestrator.Sanitize()
	c.Reaper.Sanitize()
	c.Providers.Sanitize()
	c.Observability.Sanitize()
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsOrchestratorEnabled returns true if the orchestrator service is enabled.
func (c *AppConfig) IsOrchestratorEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeOrchestrator]
}

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeReaper]
}
