// Package bootstrap wires configuration, connections, and services at startup.
package bootstrap

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/clearpix/clearpix-go/config"
)

// InitLogger installs a JSON slog logger as the process default.
func InitLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEV") == "true" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// LoadConfig reads configuration from the environment, after loading a .env
// file when one is present, and applies Sanitize guardrails. A missing .env
// is not an error.
func LoadConfig() (config.AppConfig, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()

	if _, err := cfg.GetEnabledServices(); err != nil {
		return cfg, fmt.Errorf("invalid SERVICES value: %w", err)
	}
	return cfg, nil
}

// EnabledServiceNames returns the names of enabled services for log output.
func EnabledServiceNames(cfg *config.AppConfig) []string {
	if cfg == nil {
		return nil
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(services))
	for svc := range services {
		names = append(names, string(svc))
	}
	return names
}
