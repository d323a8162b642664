package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AlertKind selects what an alert notifies about.
type AlertKind string

const (
	AlertSpreadBelow  AlertKind = "spread_below"
	AlertDailySummary AlertKind = "daily_summary"
)

// AlertStatus is the lifecycle state of a subscription. Deletion is a
// logical transition, never row removal.
type AlertStatus string

const (
	AlertActive  AlertStatus = "active"
	AlertPaused  AlertStatus = "paused"
	AlertDeleted AlertStatus = "deleted"
)

const maxCooldownHours = 168

// Alert is a user's notification subscription for one token.
type Alert struct {
	ID              int64
	Email           EmailAddress
	TokenID         int64
	ThresholdPct    decimal.Decimal
	Kind            AlertKind
	Status          AlertStatus
	CooldownHours   int
	LastTriggeredAt *time.Time
	CreatedAt       time.Time
}

// NewAlert builds an active alert, validating threshold and cooldown
// ranges. The token's tradability is the caller's concern.
func NewAlert(email EmailAddress, tokenID int64, thresholdPct decimal.Decimal, kind AlertKind, cooldownHours int, now time.Time) (Alert, error) {
	if email.IsZero() {
		return Alert{}, fmt.Errorf("%w: email is required", ErrValidation)
	}
	if thresholdPct.Sign() <= 0 || thresholdPct.GreaterThan(decimal.NewFromInt(100)) {
		return Alert{}, fmt.Errorf("%w: threshold_pct must be in (0, 100], got %s", ErrValidation, thresholdPct)
	}
	if cooldownHours < 0 || cooldownHours > maxCooldownHours {
		return Alert{}, fmt.Errorf("%w: cooldown_hours must be in [0, %d], got %d", ErrValidation, maxCooldownHours, cooldownHours)
	}
	if kind == "" {
		kind = AlertSpreadBelow
	}

	return Alert{
		Email:         email,
		TokenID:       tokenID,
		ThresholdPct:  thresholdPct,
		Kind:          kind,
		Status:        AlertActive,
		CooldownHours: cooldownHours,
		CreatedAt:     now.UTC(),
	}, nil
}

// CanTrigger reports whether the alert is eligible to fire at now:
// the alert must be active and strictly past its cooldown window.
// Exactly at the cooldown boundary does not yet permit triggering.
func (a Alert) CanTrigger(now time.Time) bool {
	if a.Status != AlertActive {
		return false
	}
	if a.LastTriggeredAt == nil {
		return true
	}
	cooldownEnd := a.LastTriggeredAt.Add(time.Duration(a.CooldownHours) * time.Hour)
	return now.After(cooldownEnd)
}

// MarkTriggered records a firing at now. The orchestrator must persist
// the alert afterwards or the cooldown state is lost.
func (a *Alert) MarkTriggered(now time.Time) {
	ts := now.UTC()
	a.LastTriggeredAt = &ts
}

// Pause stops evaluation without deleting the subscription.
func (a *Alert) Pause() {
	a.Status = AlertPaused
}

// Activate resumes evaluation.
func (a *Alert) Activate() {
	a.Status = AlertActive
}

// Delete marks the subscription removed. The row stays for auditing.
func (a *Alert) Delete() {
	a.Status = AlertDeleted
}
