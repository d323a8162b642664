package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Spread is an immutable bid-ask spread percentage with 4 decimal
// places of precision, matching the price_snapshots.spread_pct column.
type Spread struct {
	percentage decimal.Decimal
}

// CalculateSpread computes the spread between a bid and an ask.
//
//	spread_pct = ((ask - bid) / mid) * 100, mid = (bid + ask) / 2
//
// Both prices must be positive. A crossed market (bid > ask, e.g. best
// bid and best ask taken from different venues) yields a negative
// spread and is valid input.
func CalculateSpread(bid, ask decimal.Decimal) (Spread, error) {
	if bid.Sign() <= 0 || ask.Sign() <= 0 {
		return Spread{}, fmt.Errorf("%w: bid and ask must be positive", ErrValidation)
	}

	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	pct := ask.Sub(bid).Div(mid).Mul(decimal.NewFromInt(100))

	return Spread{percentage: pct.RoundBank(4)}, nil
}

// SpreadFromPercentage wraps an already-computed percentage, e.g. one
// read back from persistence.
func SpreadFromPercentage(pct decimal.Decimal) Spread {
	return Spread{percentage: pct.RoundBank(4)}
}

// Percentage returns the spread as a percentage (0.06 means 0.06%).
func (s Spread) Percentage() decimal.Decimal {
	return s.percentage
}

// BasisPoints returns the spread in basis points (1% = 100 bps).
func (s Spread) BasisPoints() decimal.Decimal {
	return s.percentage.Mul(decimal.NewFromInt(100))
}

// IsBelowThreshold reports whether the spread is strictly below the
// given threshold percentage. Equality does not count as below.
func (s Spread) IsBelowThreshold(thresholdPct decimal.Decimal) bool {
	return s.percentage.LessThan(thresholdPct)
}

func (s Spread) String() string {
	return s.percentage.StringFixed(4) + "%"
}
