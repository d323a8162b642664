package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"rwa-price-aggregator/internal/domain"
	"rwa-price-aggregator/internal/storage"
)

// CreateAlertInput carries user input for a new alert subscription.
type CreateAlertInput struct {
	Email         string
	TokenSymbol   string
	ThresholdPct  decimal.Decimal
	Kind          domain.AlertKind
	CooldownHours int
}

// AlertWithToken pairs a subscription with its token's identity for
// display and API responses.
type AlertWithToken struct {
	Alert       domain.Alert
	TokenSymbol string
	TokenName   string
}

// Subscriptions manages the alert lifecycle: create, list, delete.
type Subscriptions struct {
	alerts storage.AlertStore
	tokens storage.TokenStore
	logger zerolog.Logger

	// now is swapped out by tests.
	now func() time.Time
}

// NewSubscriptions wires the subscription manager.
func NewSubscriptions(alerts storage.AlertStore, tokens storage.TokenStore, logger zerolog.Logger) *Subscriptions {
	return &Subscriptions{
		alerts: alerts,
		tokens: tokens,
		logger: logger.With().Str("component", "subscriptions").Logger(),
		now:    time.Now,
	}
}

// Create validates the input against the token registry and persists a
// new active alert. NAV-only tokens never carry spread alerts.
func (s *Subscriptions) Create(ctx context.Context, input CreateAlertInput) (domain.Alert, domain.Token, error) {
	email, err := domain.NewEmailAddress(input.Email)
	if err != nil {
		return domain.Alert{}, domain.Token{}, err
	}

	token, err := s.tokens.GetTokenBySymbol(ctx, input.TokenSymbol)
	if err != nil {
		return domain.Alert{}, domain.Token{}, err
	}
	if !token.MarketType.Tradable() {
		return domain.Alert{}, domain.Token{}, fmt.Errorf("%w: %s", domain.ErrNotTradable, token.Symbol)
	}

	alert, err := domain.NewAlert(email, token.ID, input.ThresholdPct, input.Kind, input.CooldownHours, s.now())
	if err != nil {
		return domain.Alert{}, domain.Token{}, err
	}

	created, err := s.alerts.CreateAlert(ctx, alert)
	if err != nil {
		return domain.Alert{}, domain.Token{}, err
	}

	s.logger.Info().
		Int64("alert_id", created.ID).
		Str("symbol", token.Symbol).
		Str("threshold_pct", created.ThresholdPct.String()).
		Msg("alert subscription created")
	return created, token, nil
}

// ListByEmail returns a subscriber's live alerts enriched with token
// identity. Logically deleted alerts never appear.
func (s *Subscriptions) ListByEmail(ctx context.Context, email string) ([]AlertWithToken, error) {
	addr, err := domain.NewEmailAddress(email)
	if err != nil {
		return nil, err
	}

	alerts, err := s.alerts.ListAlertsByEmail(ctx, addr)
	if err != nil {
		return nil, err
	}

	tokens, err := s.tokens.ListActiveTokens(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]domain.Token, len(tokens))
	for _, t := range tokens {
		byID[t.ID] = t
	}

	out := make([]AlertWithToken, 0, len(alerts))
	for _, alert := range alerts {
		entry := AlertWithToken{Alert: alert}
		if token, ok := byID[alert.TokenID]; ok {
			entry.TokenSymbol = token.Symbol
			entry.TokenName = token.Name
		}
		out = append(out, entry)
	}
	return out, nil
}

// Delete marks a subscription deleted. The row stays for auditing; a
// repeat delete of the same alert is a not-found error.
func (s *Subscriptions) Delete(ctx context.Context, id int64) error {
	alert, err := s.alerts.GetAlert(ctx, id)
	if err != nil {
		return err
	}
	if alert.Status == domain.AlertDeleted {
		return fmt.Errorf("%w: id %d", domain.ErrAlertNotFound, id)
	}

	if err := s.alerts.UpdateAlertStatus(ctx, id, domain.AlertDeleted); err != nil {
		return err
	}

	s.logger.Info().Int64("alert_id", id).Msg("alert subscription deleted")
	return nil
}

// Pause suspends evaluation of a subscription.
func (s *Subscriptions) Pause(ctx context.Context, id int64) error {
	return s.transition(ctx, id, domain.AlertPaused)
}

// Activate resumes evaluation of a paused subscription.
func (s *Subscriptions) Activate(ctx context.Context, id int64) error {
	return s.transition(ctx, id, domain.AlertActive)
}

func (s *Subscriptions) transition(ctx context.Context, id int64, status domain.AlertStatus) error {
	alert, err := s.alerts.GetAlert(ctx, id)
	if err != nil {
		return err
	}
	if alert.Status == domain.AlertDeleted {
		return fmt.Errorf("%w: id %d", domain.ErrAlertNotFound, id)
	}
	return s.alerts.UpdateAlertStatus(ctx, id, status)
}
