package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"rwa-price-aggregator/internal/alerting"
	"rwa-price-aggregator/internal/domain"
)

// SimulateAlert 以给定的买一/卖一价模拟一次告警投递。
// It exercises the full spread calculation and delivery path without
// touching the database, so operators can verify email credentials.
func (a *App) SimulateAlert(ctx context.Context, symbol, email string, bid, ask, thresholdPct decimal.Decimal) error {
	if !a.Config.Alerts.Enabled {
		return errors.New("alerts 未启用")
	}

	recipient, err := domain.NewEmailAddress(email)
	if err != nil {
		return err
	}

	spread, err := domain.CalculateSpread(bid, ask)
	if err != nil {
		return err
	}

	if !spread.IsBelowThreshold(thresholdPct) {
		a.Logger.Info().
			Str("token", symbol).
			Str("spread", spread.String()).
			Str("threshold_pct", thresholdPct.String()).
			Msg("simulated spread does not cross the threshold; nothing to send")
		return nil
	}

	note := alerting.Notification{
		Recipient:     recipient,
		TokenSymbol:   domain.NormalizeSymbol(symbol),
		CurrentSpread: spread,
		ThresholdPct:  thresholdPct,
		BestBidVenue:  "Simulated",
		BestBidPrice:  bid,
		BestAskVenue:  "Simulated",
		BestAskPrice:  ask,
		TriggeredAt:   time.Now().UTC(),
	}

	return a.newNotifier().Notify(ctx, note)
}
