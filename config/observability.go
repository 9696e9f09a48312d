package config

import (
	"strings"
	"time"
)

// ObservabilityConfig groups configuration that controls metrics and job callbacks.
type ObservabilityConfig struct {
	Metrics   ObservabilityMetricsConfig
	Callbacks CallbackConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Callbacks.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	StatsdPrefix  string `env:"OBSERVABILITY_METRICS_STATSD_PREFIX"  envDefault:"clearpix"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// CallbackConfig controls outbound terminal-state job callbacks.
type CallbackConfig struct {
	Enabled    bool          `env:"CALLBACKS_ENABLED"     envDefault:"true"`
	Timeout    time.Duration `env:"CALLBACKS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"CALLBACKS_RETRY_LIMIT" envDefault:"3"`
}

// Sanitize normalises callback configuration values.
func (c *CallbackConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
}
