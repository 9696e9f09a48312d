// Package selector chooses the best available provider for a job.
package selector

import (
	"sort"

	"github.com/clearpix/clearpix-go/internal/domain/model"
)

// Options narrows the candidate set for one selection.
type Options struct {
	// Exclude removes providers already tried in this retry cycle.
	Exclude map[model.ProviderID]bool
	// IsAvailable gates candidates on live health state. Required.
	IsAvailable func(model.ProviderID) bool
	// Output, when set, filters out providers that cannot produce the format.
	Output model.OutputFormat
	// InputSizeBytes and InputContentType, when set, filter on capability limits.
	InputSizeBytes   int64
	InputContentType string
}

// Select filters candidates to those available and not excluded, orders the
// remainder by priority ascending, then success rate descending, then average
// response time ascending, and returns the first.
//
// A nil result is a normal, expected outcome ("no provider available"), not
// an error; the orchestrator decides what it means for the job.
func Select(candidates []*model.ProviderConfig, opts Options) *model.ProviderConfig {
	eligible := make([]*model.ProviderConfig, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || opts.Exclude[c.ID] {
			continue
		}
		if opts.IsAvailable != nil && !opts.IsAvailable(c.ID) {
			continue
		}
		if opts.Output != "" && !c.SupportsOutput(opts.Output) {
			continue
		}
		if !c.AcceptsInput(opts.InputSizeBytes, opts.InputContentType) {
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		return nil
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate > b.SuccessRate
		}
		return a.AvgResponseMs < b.AvgResponseMs
	})
	return eligible[0]
}
