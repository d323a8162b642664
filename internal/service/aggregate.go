// Package service orchestrates fetching, aggregation, alert checking
// and subscription management on top of the storage layer.
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"rwa-price-aggregator/internal/domain"
	"rwa-price-aggregator/internal/pricing"
	"rwa-price-aggregator/internal/storage"
)

// TokenInfo identifies a token in API responses.
type TokenInfo struct {
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	MarketType string `json:"market_type"`
}

// PricePoint is one side of the cross-venue best execution pair.
type PricePoint struct {
	VenueID   int64           `json:"venue_id"`
	VenueName string          `json:"venue_name"`
	Price     decimal.Decimal `json:"price"`
	TradeURL  string          `json:"trade_url,omitempty"`
}

// VenuePrice is one venue's entry in the per-venue breakdown.
type VenuePrice struct {
	VenueID   int64            `json:"venue_id"`
	VenueName string           `json:"venue_name"`
	Bid       decimal.Decimal  `json:"bid"`
	Ask       decimal.Decimal  `json:"ask"`
	Mid       decimal.Decimal  `json:"mid"`
	SpreadPct decimal.Decimal  `json:"spread_pct"`
	SpreadBps decimal.Decimal  `json:"spread_bps"`
	Volume24h *decimal.Decimal `json:"volume_24h,omitempty"`
	FetchedAt time.Time        `json:"fetched_at"`
	IsStale   bool             `json:"is_stale"`
}

// AggregatedPrices is the externally visible aggregated view for one
// token.
type AggregatedPrices struct {
	Token           TokenInfo        `json:"token"`
	BestBid         *PricePoint      `json:"best_bid"`
	BestAsk         *PricePoint      `json:"best_ask"`
	SpreadPct       *decimal.Decimal `json:"spread_pct"`
	SpreadBps       *decimal.Decimal `json:"spread_bps"`
	Venues          []VenuePrice     `json:"venues"`
	NumVenues       int              `json:"num_venues"`
	NumFreshVenues  int              `json:"num_fresh_venues"`
	LastUpdated     time.Time        `json:"last_updated"`
	MaxStalenessSec int64            `json:"max_staleness_sec"`
}

// Aggregator composes calculator output with venue metadata.
type Aggregator struct {
	tokens    storage.TokenStore
	venues    storage.VenueStore
	snapshots storage.SnapshotStore
	calc      *pricing.Calculator
	logger    zerolog.Logger

	// now is swapped out by tests to freeze the staleness clock.
	now func() time.Time
}

// NewAggregator wires the aggregation read path.
func NewAggregator(tokens storage.TokenStore, venues storage.VenueStore, snapshots storage.SnapshotStore, calc *pricing.Calculator, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		tokens:    tokens,
		venues:    venues,
		snapshots: snapshots,
		calc:      calc,
		logger:    logger.With().Str("component", "aggregator").Logger(),
		now:       time.Now,
	}
}

// AggregatedPrices builds the aggregated view for one token symbol.
// The symbol is matched case-insensitively. Stale venues appear in the
// breakdown unless includeStale is false; the best-prices summary only
// ever uses fresh data.
func (a *Aggregator) AggregatedPrices(ctx context.Context, symbol string, includeStale bool) (AggregatedPrices, error) {
	token, err := a.tokens.GetTokenBySymbol(ctx, symbol)
	if err != nil {
		return AggregatedPrices{}, err
	}

	snapshots, err := a.snapshots.LatestSnapshots(ctx, token.ID)
	if err != nil {
		return AggregatedPrices{}, err
	}
	if len(snapshots) == 0 {
		return AggregatedPrices{}, fmt.Errorf("%w: %s", domain.ErrNoPriceData, token.Symbol)
	}

	venueNames, venueMeta := a.venueMetadata(ctx, snapshots)

	best, err := a.calc.CalculateBestPrices(snapshots)
	if err != nil {
		return AggregatedPrices{}, fmt.Errorf("aggregate %s: %w", token.Symbol, err)
	}

	now := a.now().UTC()
	maxStaleness := a.calc.MaxStaleness()

	view := AggregatedPrices{
		Token: TokenInfo{
			Symbol:     token.Symbol,
			Name:       token.Name,
			Category:   string(token.Category),
			MarketType: string(token.MarketType),
		},
		NumVenues:       len(snapshots),
		MaxStalenessSec: int64(maxStaleness / time.Second),
	}

	if best.BestBid != nil {
		view.BestBid = a.pricePoint(*best.BestBid, best.BestBid.Bid, token.Symbol, venueNames, venueMeta)
	}
	if best.BestAsk != nil {
		view.BestAsk = a.pricePoint(*best.BestAsk, best.BestAsk.Ask, token.Symbol, venueNames, venueMeta)
	}
	if best.EffectiveSpread != nil {
		pct := best.EffectiveSpread.Percentage()
		bps := best.EffectiveSpread.BasisPoints()
		view.SpreadPct = &pct
		view.SpreadBps = &bps
	}

	venues := make([]VenuePrice, 0, len(snapshots))
	fresh := 0
	for _, snap := range snapshots {
		// last_updated covers every snapshot, stale ones included.
		if snap.FetchedAt.After(view.LastUpdated) {
			view.LastUpdated = snap.FetchedAt
		}

		stale := snap.IsStale(now, maxStaleness)
		if !stale {
			fresh++
		}
		if stale && !includeStale {
			continue
		}

		spread, spreadErr := snap.Spread()
		if spreadErr != nil {
			return AggregatedPrices{}, fmt.Errorf("venue %d spread: %w", snap.VenueID, spreadErr)
		}

		venues = append(venues, VenuePrice{
			VenueID:   snap.VenueID,
			VenueName: venueNames[snap.VenueID],
			Bid:       snap.Bid,
			Ask:       snap.Ask,
			Mid:       snap.Mid(),
			SpreadPct: spread.Percentage(),
			SpreadBps: spread.BasisPoints().Round(2),
			Volume24h: snap.Volume24h,
			FetchedAt: snap.FetchedAt,
			IsStale:   stale,
		})
	}

	sort.SliceStable(venues, func(i, j int) bool {
		return venues[i].Bid.GreaterThan(venues[j].Bid)
	})

	view.Venues = venues
	view.NumFreshVenues = fresh
	return view, nil
}

// venueMetadata resolves display names for every venue present in the
// snapshot set. A venue missing from the registry degrades to a
// synthetic name instead of failing the whole view.
func (a *Aggregator) venueMetadata(ctx context.Context, snapshots []domain.PriceSnapshot) (map[int64]string, map[int64]domain.Venue) {
	names := make(map[int64]string, len(snapshots))
	meta := make(map[int64]domain.Venue)

	venues, err := a.venues.ListActiveVenues(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("venue metadata unavailable, using synthetic names")
	} else {
		for _, v := range venues {
			meta[v.ID] = v
		}
	}

	for _, snap := range snapshots {
		if v, ok := meta[snap.VenueID]; ok {
			names[snap.VenueID] = v.Name
		} else {
			names[snap.VenueID] = fmt.Sprintf("Venue %d", snap.VenueID)
		}
	}
	return names, meta
}

func (a *Aggregator) pricePoint(snap domain.PriceSnapshot, price decimal.Decimal, symbol string, names map[int64]string, meta map[int64]domain.Venue) *PricePoint {
	point := &PricePoint{
		VenueID:   snap.VenueID,
		VenueName: names[snap.VenueID],
		Price:     price,
	}
	if v, ok := meta[snap.VenueID]; ok {
		point.TradeURL = v.TradeURL(symbol)
	}
	return point
}
