package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSnapshot is one timestamped bid/ask/volume observation from one
// venue for one token. Snapshots are append-only: the fetch pipeline
// writes them once and they are never mutated.
type PriceSnapshot struct {
	ID        int64
	TokenID   int64
	VenueID   int64
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Volume24h *decimal.Decimal
	FetchedAt time.Time
}

// Mid returns the midpoint between bid and ask.
func (s PriceSnapshot) Mid() decimal.Decimal {
	return s.Bid.Add(s.Ask).Div(decimal.NewFromInt(2))
}

// Spread computes this snapshot's own single-venue spread. It fails
// when bid or ask is non-positive.
func (s PriceSnapshot) Spread() (Spread, error) {
	return CalculateSpread(s.Bid, s.Ask)
}

// IsStale reports whether the snapshot is older than maxAge relative
// to now.
func (s PriceSnapshot) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.FetchedAt) > maxAge
}
