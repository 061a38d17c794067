// Package resilience provides the retry budget that bounds the synthesis
// loop.
//
// A [Budget] allows a configured number of retries after a failure and
// reports [ErrRetriesExhausted] on the failure that would need one more.
// Any success resets the count. A zero limit disables the budget, so the
// loop retries forever.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrRetriesExhausted is returned by [Budget.RecordFailure] once every
// allowed retry has failed as well.
var ErrRetriesExhausted = errors.New("resilience: retry budget exhausted")

// BudgetConfig holds tuning knobs for a [Budget].
type BudgetConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxRetries is the number of consecutive retries allowed after a
	// failure. Zero or negative means unlimited.
	MaxRetries int
}

// Stats is a snapshot of a budget's counters.
type Stats struct {
	// Limit is the configured retry limit; 0 means unlimited.
	Limit int `json:"limit"`

	// Remaining is the number of retries left, or -1 when unlimited.
	Remaining int `json:"remaining"`

	Consecutive int `json:"consecutive_failures"`
	Failures    int `json:"failures"`
	Successes   int `json:"successes"`
}

// Budget tracks consecutive failures against a retry limit.
type Budget struct {
	name string
	max  int

	mu              sync.Mutex
	consecutiveFail int
	failures        int
	successes       int
}

// NewBudget creates a [Budget] from cfg.
func NewBudget(cfg BudgetConfig) *Budget {
	return &Budget{name: cfg.Name, max: max(cfg.MaxRetries, 0)}
}

// Unlimited reports whether the budget never runs out.
func (b *Budget) Unlimited() bool { return b.max == 0 }

// RecordFailure counts a failed attempt. It returns nil while a retry
// remains. The failure of the last allowed retry returns an error wrapping
// both [ErrRetriesExhausted] and cause.
func (b *Budget) RecordFailure(cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFail++
	b.failures++
	if b.Unlimited() || b.consecutiveFail <= b.max {
		slog.Debug("retry budget charged",
			"name", b.name,
			"consecutive_failures", b.consecutiveFail,
			"limit", b.max)
		return nil
	}
	slog.Warn("retry budget exhausted",
		"name", b.name,
		"consecutive_failures", b.consecutiveFail)
	return fmt.Errorf("%w after %d retries: %w", ErrRetriesExhausted, b.max, cause)
}

// RecordSuccess resets the consecutive-failure counter.
func (b *Budget) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successes++
	b.consecutiveFail = 0
}

// remaining returns how many more retries are allowed, or -1 when the
// budget is unlimited. b.mu must be held.
func (b *Budget) remaining() int {
	if b.Unlimited() {
		return -1
	}
	return max(b.max-b.consecutiveFail, 0)
}

// Stats returns a snapshot of the counters.
func (b *Budget) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Limit:       b.max,
		Remaining:   b.remaining(),
		Consecutive: b.consecutiveFail,
		Failures:    b.failures,
		Successes:   b.successes,
	}
}
