// Package alerting decides when spread alerts fire and delivers the
// resulting notifications.
package alerting

import (
	"time"

	"rwa-price-aggregator/internal/domain"
)

// Policy evaluates whether a single alert should emit a notification.
// It is pure domain logic: no I/O, no mutation.
type Policy struct {
	// now is swapped out by tests to freeze the cooldown clock.
	now func() time.Time
}

// NewPolicy builds the trigger policy.
func NewPolicy() *Policy {
	return &Policy{now: time.Now}
}

// ShouldTrigger applies the trigger rules in order:
//
//  1. Eligibility has absolute priority: an alert that is not active,
//     or still inside its cooldown window, never triggers and no
//     spread comparison happens.
//  2. The current spread must be strictly below the threshold.
//  3. With no previous observation the below-threshold check alone
//     decides (first evaluation, no crossing possible).
//  4. Otherwise the spread must cross downward: previous at-or-above
//     threshold, current below. This stops re-firing every cycle while
//     the spread sits persistently below the threshold.
func (p *Policy) ShouldTrigger(alert domain.Alert, current domain.Spread, previous *domain.Spread) bool {
	if !alert.CanTrigger(p.now().UTC()) {
		return false
	}

	isBelowNow := current.IsBelowThreshold(alert.ThresholdPct)

	if previous == nil {
		return isBelowNow
	}

	wasAtOrAbove := !previous.IsBelowThreshold(alert.ThresholdPct)
	return isBelowNow && wasAtOrAbove
}
