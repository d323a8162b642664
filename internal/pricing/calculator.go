// Package pricing reduces per-venue price snapshots into the
// cross-venue best execution summary shown on the dashboard.
package pricing

import (
	"fmt"
	"time"

	"rwa-price-aggregator/internal/domain"
)

// DefaultMaxStaleness is applied when a calculator is built with a
// non-positive staleness window.
const DefaultMaxStaleness = 60 * time.Second

// BestPrices is the result of the best price calculation for one token.
// BestBid and BestAsk may point at snapshots from different venues; a
// nil EffectiveSpread means no venue had fresh data.
type BestPrices struct {
	BestBid         *domain.PriceSnapshot
	BestAsk         *domain.PriceSnapshot
	EffectiveSpread *domain.Spread
	VenuesCount     int
}

// Calculator computes best bid, best ask, and effective spread across
// venues. It is pure: no I/O, no mutation of inputs.
type Calculator struct {
	maxStaleness time.Duration

	// now is swapped out by tests to freeze the staleness clock.
	now func() time.Time
}

// NewCalculator builds a calculator with the given staleness window.
func NewCalculator(maxStaleness time.Duration) *Calculator {
	if maxStaleness <= 0 {
		maxStaleness = DefaultMaxStaleness
	}
	return &Calculator{maxStaleness: maxStaleness, now: time.Now}
}

// CalculateBestPrices filters stale snapshots and selects the highest
// bid and lowest ask among the remainder. The caller supplies at most
// one snapshot per venue (latest each). Snapshot age is measured
// against the wall clock at call time, so repeated calls over the same
// input can differ as data ages out.
//
// Ties on bid or ask keep the first snapshot encountered, so the
// result is deterministic for a given input order.
//
// The effective spread pairs the best bid with the best ask even when
// they come from different venues; a crossed market yields a negative
// spread. A non-positive bid or ask in the winning pair fails the
// whole calculation rather than being skipped silently.
func (c *Calculator) CalculateBestPrices(snapshots []domain.PriceSnapshot) (BestPrices, error) {
	now := c.now().UTC()

	fresh := make([]domain.PriceSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if !s.IsStale(now, c.maxStaleness) {
			fresh = append(fresh, s)
		}
	}

	if len(fresh) == 0 {
		return BestPrices{}, nil
	}

	bestBid := &fresh[0]
	bestAsk := &fresh[0]
	for i := 1; i < len(fresh); i++ {
		s := &fresh[i]
		if s.Bid.GreaterThan(bestBid.Bid) {
			bestBid = s
		}
		if s.Ask.LessThan(bestAsk.Ask) {
			bestAsk = s
		}
	}

	spread, err := domain.CalculateSpread(bestBid.Bid, bestAsk.Ask)
	if err != nil {
		return BestPrices{}, fmt.Errorf("effective spread: %w", err)
	}

	return BestPrices{
		BestBid:         bestBid,
		BestAsk:         bestAsk,
		EffectiveSpread: &spread,
		VenuesCount:     len(fresh),
	}, nil
}

// MaxStaleness exposes the configured staleness window so orchestrators
// can re-apply the same predicate.
func (c *Calculator) MaxStaleness() time.Duration {
	return c.maxStaleness
}
