package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:  "single service - orchestrator",
			input: "orchestrator",
			expected: map[ServiceMode]bool{
				ServiceModeOrchestrator: true,
			},
		},
		{
			name:  "single service - reaper",
			input: "reaper",
			expected: map[ServiceMode]bool{
				ServiceModeReaper: true,
			},
		},
		{
			name:  "both services",
			input: "orchestrator,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeOrchestrator: true,
				ServiceModeReaper:       true,
			},
		},
		{
			name:  "services with spaces",
			input: " orchestrator , reaper ",
			expected: map[ServiceMode]bool{
				ServiceModeOrchestrator: true,
				ServiceModeReaper:       true,
			},
		},
		{
			name:  "duplicate services",
			input: "reaper,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeReaper: true,
			},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only spaces and commas",
			input:       " , , ",
			expectError: true,
		},
		{
			name:        "invalid service name",
			input:       "orchestrator,http",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatalf("ParseServices(%q) expected error, got %v", tt.input, result)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseServices(%q) unexpected error: %v", tt.input, err)
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Fatalf("ParseServices(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("env.Parse error: %v", err)
	}
	cfg.Sanitize()

	if cfg.Services != "orchestrator,reaper" {
		t.Fatalf("Services default = %q", cfg.Services)
	}
	if !cfg.IsOrchestratorEnabled() || !cfg.IsReaperEnabled() {
		t.Fatal("both services should be enabled by default")
	}
	if cfg.Orchestrator.Concurrency != 4 {
		t.Fatalf("Concurrency default = %d", cfg.Orchestrator.Concurrency)
	}
	if cfg.Orchestrator.JobLease != 120*time.Second {
		t.Fatalf("JobLease default = %s", cfg.Orchestrator.JobLease)
	}
	if cfg.Orchestrator.BackoffBase != time.Second {
		t.Fatalf("BackoffBase default = %s", cfg.Orchestrator.BackoffBase)
	}
	if cfg.Orchestrator.BackoffCap != 30*time.Second {
		t.Fatalf("BackoffCap default = %s", cfg.Orchestrator.BackoffCap)
	}
	if cfg.Orchestrator.ResultTTL != 24*time.Hour {
		t.Fatalf("ResultTTL default = %s", cfg.Orchestrator.ResultTTL)
	}
	if cfg.Reaper.Interval != time.Minute {
		t.Fatalf("Reaper.Interval default = %s", cfg.Reaper.Interval)
	}
	if cfg.Reaper.BatchSize != 100 {
		t.Fatalf("Reaper.BatchSize default = %d", cfg.Reaper.BatchSize)
	}
	if cfg.Providers.BreakerThreshold != 5 {
		t.Fatalf("BreakerThreshold default = %d", cfg.Providers.BreakerThreshold)
	}
	if cfg.Providers.BreakerCooldown != 5*time.Minute {
		t.Fatalf("BreakerCooldown default = %s", cfg.Providers.BreakerCooldown)
	}
}

func TestAppConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVICES", "reaper")
	t.Setenv("ORCHESTRATOR_CONCURRENCY", "16")
	t.Setenv("REAPER_INTERVAL", "5m")
	t.Setenv("REMOVEBG_API_KEY", "key-123")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("env.Parse error: %v", err)
	}
	cfg.Sanitize()

	if cfg.IsOrchestratorEnabled() {
		t.Fatal("orchestrator should be disabled")
	}
	if !cfg.IsReaperEnabled() {
		t.Fatal("reaper should be enabled")
	}
	if cfg.Orchestrator.Concurrency != 16 {
		t.Fatalf("Concurrency = %d", cfg.Orchestrator.Concurrency)
	}
	if cfg.Reaper.Interval != 5*time.Minute {
		t.Fatalf("Reaper.Interval = %s", cfg.Reaper.Interval)
	}
	if !cfg.Providers.RemoveBG.Enabled() {
		t.Fatal("remove.bg should be enabled once a key is set")
	}
	if cfg.Providers.Pixian.Enabled() {
		t.Fatal("pixian should stay disabled without credentials")
	}
}

func TestOrchestratorConfig_SanitizeGuardrails(t *testing.T) {
	cfg := OrchestratorConfig{
		Concurrency:  -1,
		JobLease:     time.Second,
		PollInterval: time.Millisecond,
		BackoffBase:  -time.Second,
		BackoffCap:   0,
	}
	cfg.Sanitize()

	if cfg.Concurrency != 1 {
		t.Fatalf("Concurrency = %d", cfg.Concurrency)
	}
	if cfg.JobLease != 5*time.Second {
		t.Fatalf("JobLease = %s", cfg.JobLease)
	}
	if cfg.PollInterval != 100*time.Millisecond {
		t.Fatalf("PollInterval = %s", cfg.PollInterval)
	}
	if cfg.BackoffBase != time.Second {
		t.Fatalf("BackoffBase = %s", cfg.BackoffBase)
	}
	if cfg.BackoffCap != cfg.BackoffBase {
		t.Fatalf("BackoffCap = %s, want clamped to base", cfg.BackoffCap)
	}
}

func TestReaperConfig_SanitizeGuardrails(t *testing.T) {
	cfg := ReaperConfig{Interval: time.Second, BatchSize: 50000}
	cfg.Sanitize()

	if cfg.Interval != 10*time.Second {
		t.Fatalf("Interval = %s", cfg.Interval)
	}
	if cfg.BatchSize != 10000 {
		t.Fatalf("BatchSize = %d", cfg.BatchSize)
	}

	cfg = ReaperConfig{Interval: time.Hour, BatchSize: 0}
	cfg.Sanitize()
	if cfg.BatchSize != 1 {
		t.Fatalf("BatchSize = %d", cfg.BatchSize)
	}
}
