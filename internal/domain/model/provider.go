package model

import (
	"fmt"
	"strings"
	"time"
)

// ProviderID identifies an external background-removal provider.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type ProviderID string

const (
	// ProviderRemoveBG is the remove.bg hosted API.
	ProviderRemoveBG ProviderID = "removebg"
	// ProviderPixian is the pixian.ai hosted API.
	ProviderPixian ProviderID = "pixian"
	// ProviderClipdrop is the clipdrop hosted API.
	ProviderClipdrop ProviderID = "clipdrop"
)

// UnmarshalText implements encoding.TextUnmarshaler for ProviderID to allow env parsing.
func (p *ProviderID) UnmarshalText(text []byte) error {
	v := ProviderID(strings.ToLower(strings.TrimSpace(string(text))))
	if v == "" {
		return fmt.Errorf("provider id must not be empty")
	}
	*p = v
	return nil
}

// ProviderConfig is one entry per external provider: the unit the health
// registry operates on. The registry is the exclusive owner of the mutable
// counters; everything else reads snapshots.
type ProviderConfig struct {
	ID       ProviderID `json:"id"       db:"id"`
	Enabled  bool       `json:"enabled"  db:"enabled"`
	Priority int        `json:"priority" db:"priority"` // lower = preferred

	// Billing
	CostPerImage  float64  `json:"cost_per_image"           db:"cost_per_image"`
	CreditBalance *float64 `json:"credit_balance,omitempty" db:"credit_balance"`

	// Rate limits
	RequestsPerMinute int       `json:"requests_per_minute" db:"requests_per_minute"`
	RequestsPerDay    int       `json:"requests_per_day"    db:"requests_per_day"`
	RequestsUsedToday int       `json:"requests_used_today" db:"requests_used_today"`
	LastDailyReset    time.Time `json:"last_daily_reset"    db:"last_daily_reset"`

	// Circuit breaker
	ConsecutiveFailures int        `json:"consecutive_failures"       db:"consecutive_failures"`
	BreakerOpen         bool       `json:"breaker_open"               db:"breaker_open"`
	BreakerResetAt      *time.Time `json:"breaker_reset_at,omitempty" db:"breaker_reset_at"`

	// Rolling stats. AvgResponseMs averages successful calls only, so
	// TotalSucceeded is its sample count.
	TotalProcessed int64   `json:"total_processed"  db:"total_processed"`
	TotalSucceeded int64   `json:"total_succeeded"  db:"total_succeeded"`
	AvgResponseMs  float64 `json:"avg_response_ms"  db:"avg_response_ms"`
	SuccessRate    float64 `json:"success_rate"     db:"success_rate"`

	// Capability limits
	MaxMegapixels    float64        `json:"max_megapixels"     db:"max_megapixels"`
	MaxFileSizeBytes int64          `json:"max_file_size"      db:"max_file_size"`
	InputFormats     []string       `json:"input_formats"      db:"input_formats"`
	OutputFormats    []OutputFormat `json:"output_formats"     db:"output_formats"`

	// TimeoutSeconds bounds a single removal call; 0 means the engine default.
	TimeoutSeconds int `json:"timeout_seconds" db:"timeout_seconds"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Available evaluates the availability invariant at the given instant:
// enabled, breaker closed (or past its reset time), daily budget left.
// It has no side effects; the caller is responsible for the lazy daily reset.
func (c *ProviderConfig) Available(now time.Time) bool {
	if !c.Enabled {
		return false
	}
	if c.BreakerOpen && (c.BreakerResetAt == nil || now.Before(*c.BreakerResetAt)) {
		return false
	}
	if c.RequestsPerDay > 0 && c.RequestsUsedToday >= c.RequestsPerDay {
		return false
	}
	return true
}

// SupportsOutput reports whether the provider can produce the requested format.
// An empty OutputFormats list means no restriction.
func (c *ProviderConfig) SupportsOutput(format OutputFormat) bool {
	if len(c.OutputFormats) == 0 {
		return true
	}
	for _, f := range c.OutputFormats {
		if f == format {
			return true
		}
	}
	return false
}

// AcceptsInput checks the job input against the provider capability limits.
func (c *ProviderConfig) AcceptsInput(sizeBytes int64, contentType string) bool {
	if c.MaxFileSizeBytes > 0 && sizeBytes > c.MaxFileSizeBytes {
		return false
	}
	if contentType == "" || len(c.InputFormats) == 0 {
		return true
	}
	for _, f := range c.InputFormats {
		if strings.EqualFold(f, contentType) {
			return true
		}
	}
	return false
}

// Timeout returns the per-call timeout, falling back to the engine default.
func (c *ProviderConfig) Timeout(defaultTimeout time.Duration) time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return defaultTimeout
}

// RemovalResult is the outcome of a single provider invocation.
type RemovalResult struct {
	Success          bool    `json:"success"`
	ImageBytes       []byte  `json:"-"`
	ResultURL        string  `json:"result_url,omitempty"`
	ContentType      string  `json:"content_type,omitempty"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
	CreditsConsumed  float64 `json:"credits_consumed"`
	ErrorCode        string  `json:"error_code,omitempty"`
	ErrorMessage     string  `json:"error_message,omitempty"`
}

// ProviderAccountInfo is the billing snapshot returned by a provider account endpoint.
type ProviderAccountInfo struct {
	AvailableCredits float64 `json:"available_credits"`
	UsedCredits      float64 `json:"used_credits"`
	IsActive         bool    `json:"is_active"`
}

// ProviderHealthSnapshot is a point-in-time copy of a provider's health state,
// safe to serialize for operators and monitoring.
type ProviderHealthSnapshot struct {
	ID                  ProviderID `json:"id"`
	Enabled             bool       `json:"enabled"`
	Available           bool       `json:"available"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	BreakerOpen         bool       `json:"breaker_open"`
	BreakerResetAt      *time.Time `json:"breaker_reset_at,omitempty"`
	RequestsUsedToday   int        `json:"requests_used_today"`
	RequestsPerDay      int        `json:"requests_per_day"`
	TotalProcessed      int64      `json:"total_processed"`
	AvgResponseMs       float64    `json:"avg_response_ms"`
	SuccessRate         float64    `json:"success_rate"`
}
