package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rwa-price-aggregator/internal/alerting"
	"rwa-price-aggregator/internal/cache"
	"rwa-price-aggregator/internal/domain"
	"rwa-price-aggregator/internal/pricing"
	"rwa-price-aggregator/internal/storage"
)

// Checker runs the periodic alert-check cycle. Alerts are evaluated
// sequentially with per-alert error isolation: one broken alert is
// logged and skipped, never aborting the rest.
type Checker struct {
	alerts    storage.AlertStore
	tokens    storage.TokenStore
	venues    storage.VenueStore
	snapshots storage.SnapshotStore
	calc      *pricing.Calculator
	policy    *alerting.Policy
	notifier  alerting.Notifier
	state     cache.SpreadStateStore
	logger    zerolog.Logger

	// now is swapped out by tests to freeze the trigger clock.
	now func() time.Time
}

// NewChecker wires the alert evaluation cycle.
func NewChecker(alerts storage.AlertStore, tokens storage.TokenStore, venues storage.VenueStore, snapshots storage.SnapshotStore, calc *pricing.Calculator, policy *alerting.Policy, notifier alerting.Notifier, state cache.SpreadStateStore, logger zerolog.Logger) *Checker {
	return &Checker{
		alerts:    alerts,
		tokens:    tokens,
		venues:    venues,
		snapshots: snapshots,
		calc:      calc,
		policy:    policy,
		notifier:  notifier,
		state:     state,
		logger:    logger.With().Str("component", "checker").Logger(),
		now:       time.Now,
	}
}

// RunCycle 执行单个告警评估周期。
func (c *Checker) RunCycle(ctx context.Context, cycle time.Time) error {
	alerts, err := c.alerts.ListActiveAlerts(ctx)
	if err != nil {
		return fmt.Errorf("list active alerts: %w", err)
	}
	if len(alerts) == 0 {
		return nil
	}

	tokensByID, err := c.tokensByID(ctx)
	if err != nil {
		return err
	}
	venueNames := c.venueNamesByID(ctx)

	triggered := 0
	for _, alert := range alerts {
		fired, evalErr := c.evaluate(ctx, alert, tokensByID, venueNames)
		if evalErr != nil {
			c.logger.Error().Err(evalErr).Int64("alert_id", alert.ID).Msg("alert evaluation failed")
			continue
		}
		if fired {
			triggered++
		}
	}

	c.logger.Info().Time("cycle", cycle).Int("alerts", len(alerts)).Int("triggered", triggered).Msg("alert check cycle complete")
	return nil
}

// evaluate runs one alert through calculator and policy. It returns
// whether a notification fired.
func (c *Checker) evaluate(ctx context.Context, alert domain.Alert, tokensByID map[int64]domain.Token, venueNames map[int64]string) (bool, error) {
	// Only spread-crossing alerts are evaluated here.
	if alert.Kind != domain.AlertSpreadBelow {
		return false, nil
	}

	token, ok := tokensByID[alert.TokenID]
	if !ok {
		c.logger.Warn().Int64("alert_id", alert.ID).Int64("token_id", alert.TokenID).Msg("alert references unknown or inactive token")
		return false, nil
	}
	if !token.MarketType.Tradable() {
		c.logger.Debug().Int64("alert_id", alert.ID).Str("symbol", token.Symbol).Msg("skip alert on nav-only token")
		return false, nil
	}

	snapshots, err := c.snapshots.LatestSnapshots(ctx, token.ID)
	if err != nil {
		return false, fmt.Errorf("latest snapshots: %w", err)
	}
	if len(snapshots) == 0 {
		return false, nil
	}

	best, err := c.calc.CalculateBestPrices(snapshots)
	if err != nil {
		return false, fmt.Errorf("calculate best prices: %w", err)
	}
	if best.EffectiveSpread == nil {
		// Everything stale; nothing to compare against.
		return false, nil
	}
	current := *best.EffectiveSpread

	previous, stateErr := c.state.Get(ctx, alert.ID)
	if stateErr != nil {
		// Treat a broken state store as a first evaluation rather than
		// silencing the alert.
		c.logger.Warn().Err(stateErr).Int64("alert_id", alert.ID).Msg("spread state unavailable")
		previous = nil
	}

	fired := false
	if c.policy.ShouldTrigger(alert, current, previous) {
		c.dispatch(ctx, alert, token, current, best, venueNames)
		fired = true
	}

	if setErr := c.state.Set(ctx, alert.ID, current); setErr != nil {
		c.logger.Warn().Err(setErr).Int64("alert_id", alert.ID).Msg("failed to persist spread state")
	}

	return fired, nil
}

// dispatch sends the notification and records the firing. The cooldown
// timestamp is persisted even when delivery fails, so a flapping mail
// provider cannot cause a notification storm.
func (c *Checker) dispatch(ctx context.Context, alert domain.Alert, token domain.Token, current domain.Spread, best pricing.BestPrices, venueNames map[int64]string) {
	now := c.now().UTC()

	notification := alerting.Notification{
		Recipient:     alert.Email,
		TokenSymbol:   token.Symbol,
		CurrentSpread: current,
		ThresholdPct:  alert.ThresholdPct,
		TriggeredAt:   now,
	}
	if best.BestBid != nil {
		notification.BestBidVenue = venueName(venueNames, best.BestBid.VenueID)
		notification.BestBidPrice = best.BestBid.Bid
	}
	if best.BestAsk != nil {
		notification.BestAskVenue = venueName(venueNames, best.BestAsk.VenueID)
		notification.BestAskPrice = best.BestAsk.Ask
	}

	if err := c.notifier.Notify(ctx, notification); err != nil {
		c.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("failed to dispatch alert notification")
	}

	if err := c.alerts.UpdateAlertTriggered(ctx, alert.ID, now); err != nil {
		c.logger.Error().Err(err).Int64("alert_id", alert.ID).Msg("failed to persist trigger time")
	}

	c.logger.Info().
		Int64("alert_id", alert.ID).
		Str("symbol", token.Symbol).
		Str("spread_pct", current.Percentage().String()).
		Str("threshold_pct", alert.ThresholdPct.String()).
		Msg("alert triggered")
}

func (c *Checker) tokensByID(ctx context.Context) (map[int64]domain.Token, error) {
	tokens, err := c.tokens.ListActiveTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active tokens: %w", err)
	}
	byID := make(map[int64]domain.Token, len(tokens))
	for _, t := range tokens {
		byID[t.ID] = t
	}
	return byID, nil
}

func (c *Checker) venueNamesByID(ctx context.Context) map[int64]string {
	names := make(map[int64]string)
	venues, err := c.venues.ListActiveVenues(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("venue metadata unavailable for notifications")
		return names
	}
	for _, v := range venues {
		names[v.ID] = v.Name
	}
	return names
}

func venueName(names map[int64]string, id int64) string {
	if name, ok := names[id]; ok {
		return name
	}
	return fmt.Sprintf("Venue %d", id)
}
