// Package feed fetches bid/ask quotes from trading venues and fans the
// requests out concurrently through a registry.
package feed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a venue-normalized top-of-book observation. Every client
// returns this shape regardless of the venue's native response format.
type Quote struct {
	VenueName   string
	TokenSymbol string
	Bid         decimal.Decimal
	Ask         decimal.Decimal
	Volume24h   *decimal.Decimal
	Timestamp   time.Time
}

// PriceFeed retrieves quotes from one venue.
type PriceFeed interface {
	// VenueName matches the venue's name in the venues table.
	VenueName() string
	// SupportsToken reports whether the venue lists the token.
	SupportsToken(symbol string) bool
	// FetchQuote returns the current top-of-book quote, or an error
	// when the venue has no usable data for the token.
	FetchQuote(ctx context.Context, symbol string) (Quote, error)
}
