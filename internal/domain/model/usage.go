package model

import "time"

// BillingPeriod is a year-month integer such as 202608.
type BillingPeriod int

// BillingPeriodFor returns the billing period containing t, in UTC.
func BillingPeriodFor(t time.Time) BillingPeriod {
	u := t.UTC()
	return BillingPeriod(u.Year()*100 + int(u.Month()))
}

// UsageRecord is an immutable per-job billing audit line.
// Created once by the usage accountant, never mutated.
type UsageRecord struct {
	ID            string        `json:"id"                 db:"id"`
	JobID         string        `json:"job_id"             db:"job_id"`
	Provider      ProviderID    `json:"provider"           db:"provider"`
	OwnerID       *string       `json:"owner_id,omitempty" db:"owner_id"`
	Success       bool          `json:"success"            db:"success"`
	InputBytes    int64         `json:"input_bytes"        db:"input_bytes"`
	OutputBytes   int64         `json:"output_bytes"       db:"output_bytes"`
	ProcessingMs  int64         `json:"processing_ms"      db:"processing_ms"`
	CreditsUsed   float64       `json:"credits_used"       db:"credits_used"`
	Cost          float64       `json:"cost"               db:"cost"`
	BillingPeriod BillingPeriod `json:"billing_period"     db:"billing_period"`
	CreatedAt     time.Time     `json:"created_at"         db:"created_at"`
}

// UsageDelta is the incremental contribution of one job to a daily stats row.
type UsageDelta struct {
	Requests       int
	Successes      int
	Failures       int
	ProcessingMs   int64
	BytesProcessed int64
	Cost           float64
	CreditsUsed    float64
}

// ProviderUsageStats is one row per (provider, calendar day), incrementally
// aggregated. AvgResponseMs and SuccessRate are derived from the counters and
// persisted only as a cache for read paths.
type ProviderUsageStats struct {
	Provider       ProviderID `json:"provider"        db:"provider"`
	Day            time.Time  `json:"day"             db:"day"`
	Requests       int        `json:"requests"        db:"requests"`
	Successes      int        `json:"successes"       db:"successes"`
	Failures       int        `json:"failures"        db:"failures"`
	ProcessingMs   int64      `json:"processing_ms"   db:"processing_ms"`
	BytesProcessed int64      `json:"bytes_processed" db:"bytes_processed"`
	Cost           float64    `json:"cost"            db:"cost"`
	CreditsUsed    float64    `json:"credits_used"    db:"credits_used"`
	UpdatedAt      time.Time  `json:"updated_at"      db:"updated_at"`
}

// AvgResponseMs derives the mean processing time from the counters.
func (s *ProviderUsageStats) AvgResponseMs() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.ProcessingMs) / float64(s.Requests)
}

// SuccessRate derives the success ratio from the counters.
func (s *ProviderUsageStats) SuccessRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Requests)
}

// OwnerUsageTotals is a read-side aggregation consumed by external billing.
type OwnerUsageTotals struct {
	OwnerID       string        `json:"owner_id"       db:"owner_id"`
	BillingPeriod BillingPeriod `json:"billing_period" db:"billing_period"`
	Requests      int           `json:"requests"       db:"requests"`
	Successes     int           `json:"successes"      db:"successes"`
	CreditsUsed   float64       `json:"credits_used"   db:"credits_used"`
	TotalCost     float64       `json:"total_cost"     db:"total_cost"`
}
