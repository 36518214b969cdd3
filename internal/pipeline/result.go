package pipeline

import (
	"fmt"

	"github.com/angelmondragon/cloudgallery/pkg/enums"
	"go.uber.org/multierr"
)

// Outcome classifies how one notification was handled.
type Outcome string

const (
	OutcomeReady     Outcome = "ready"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRetry     Outcome = "retry"
)

// Retryable reports whether the transport should redeliver the notification.
func (o Outcome) Retryable() bool {
	return o == OutcomeRetry
}

// Result is the per-notification report.
type Result struct {
	Key      string              `json:"key"`
	ImageID  string              `json:"imageId,omitempty"`
	Outcome  Outcome             `json:"outcome"`
	Reason   enums.FailureReason `json:"reason,omitempty"`
	Labels   []string            `json:"-"`
	ThumbKey string              `json:"-"`
	Err      error               `json:"-"`
}

// BatchResult holds one Result per notification, in input order.
type BatchResult struct {
	Results []Result `json:"results"`
}

// Retryable reports whether any item asked for redelivery.
func (b BatchResult) Retryable() bool {
	for _, res := range b.Results {
		if res.Outcome.Retryable() {
			return true
		}
	}
	return false
}

// Err combines the errors of retryable items.
func (b BatchResult) Err() error {
	var err error
	for _, res := range b.Results {
		if !res.Outcome.Retryable() {
			continue
		}
		cause := res.Err
		if cause == nil {
			cause = fmt.Errorf("retry requested")
		}
		err = multierr.Append(err, fmt.Errorf("%s: %w", res.Key, cause))
	}
	return err
}

// Counts tallies results by outcome.
func (b BatchResult) Counts() map[Outcome]int {
	counts := make(map[Outcome]int, len(b.Results))
	for _, res := range b.Results {
		counts[res.Outcome]++
	}
	return counts
}
