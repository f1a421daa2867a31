// Package retry maps a failure classification and attempt count to the next
// time a delivery may be attempted. The policy is a pure function: storage
// and dispatch own all side effects.
package retry

import (
	"time"

	"github.com/wastewise/taskcore/internal/domain"
)

// DefaultSteps is the escalating backoff staircase. The exact numbers are
// operational tuning, not contract; the contract is that delays never
// decrease across attempts.
var DefaultSteps = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	60 * time.Minute,
}

type Policy struct {
	steps []time.Duration
}

// NewPolicy builds a policy from a non-decreasing staircase of delays.
// With no steps, DefaultSteps is used.
func NewPolicy(steps ...time.Duration) Policy {
	if len(steps) == 0 {
		steps = DefaultSteps
	}
	return Policy{steps: steps}
}

// Delay returns the wait before retry attempt n (1-indexed). Attempts past
// the end of the staircase stay flat at the last step.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(p.steps) {
		attempt = len(p.steps)
	}
	return p.steps[attempt-1]
}

// NextRetryAt returns when attempt number attempt may run, or nil when the
// failure is permanent and the item is dead-lettered in place.
func (p Policy) NextRetryAt(attempt int, failureType domain.FailureType, now time.Time) *time.Time {
	if failureType == domain.FailurePermanent {
		return nil
	}
	at := now.Add(p.Delay(attempt))
	return &at
}
