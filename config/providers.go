package config

import (
	"strings"
	"time"
)

// ProvidersConfig groups provider adapter credentials and routing guardrails.
type ProvidersConfig struct {
	// BreakerThreshold is the consecutive-failure count that opens a
	// provider's circuit breaker.
	BreakerThreshold int `env:"PROVIDER_BREAKER_THRESHOLD" envDefault:"5"`

	// BreakerCooldown is how long an open breaker blocks traffic.
	BreakerCooldown time.Duration `env:"PROVIDER_BREAKER_COOLDOWN" envDefault:"5m"`

	// CallTimeout bounds one removal call when the provider config does not
	// override it.
	CallTimeout time.Duration `env:"PROVIDER_CALL_TIMEOUT" envDefault:"60s"`

	// AccountInfoTTL is how long cached account-info snapshots stay fresh.
	AccountInfoTTL time.Duration `env:"PROVIDER_ACCOUNT_INFO_TTL" envDefault:"10m"`

	RemoveBG RemoveBGConfig `envPrefix:"REMOVEBG_"`
	Pixian   PixianConfig   `envPrefix:"PIXIAN_"`
}

// Sanitize applies guardrails to provider configuration values.
func (p *ProvidersConfig) Sanitize() {
	if p.BreakerThreshold < 1 {
		p.BreakerThreshold = 1
	}
	if p.BreakerCooldown < 10*time.Second {
		p.BreakerCooldown = 10 * time.Second
	}
	if p.CallTimeout < time.Second {
		p.CallTimeout = time.Second
	}
	if p.AccountInfoTTL < time.Minute {
		p.AccountInfoTTL = time.Minute
	}
	p.RemoveBG.sanitize()
	p.Pixian.sanitize()
}

// RemoveBGConfig contains remove.bg adapter configuration.
type RemoveBGConfig struct {
	APIKey  string `env:"API_KEY"`
	BaseURL string `env:"BASE_URL"`
}

func (c *RemoveBGConfig) sanitize() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.BaseURL = strings.TrimSpace(c.BaseURL)
}

// Enabled returns true when the adapter has credentials to run with.
func (c *RemoveBGConfig) Enabled() bool {
	return c.APIKey != ""
}

// PixianConfig contains pixian.ai adapter configuration.
type PixianConfig struct {
	APIID     string `env:"API_ID"`
	APISecret string `env:"API_SECRET"`
	BaseURL   string `env:"BASE_URL"`
	TestMode  bool   `env:"TEST_MODE" envDefault:"false"`
}

func (c *PixianConfig) sanitize() {
	c.APIID = strings.TrimSpace(c.APIID)
	c.APISecret = strings.TrimSpace(c.APISecret)
	c.BaseURL = strings.TrimSpace(c.BaseURL)
}

// Enabled returns true when the adapter has credentials to run with.
func (c *PixianConfig) Enabled() bool {
	return c.APIID != "" && c.APISecret != ""
}
