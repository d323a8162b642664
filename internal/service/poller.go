package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rwa-price-aggregator/internal/domain"
	"rwa-price-aggregator/internal/feed"
	"rwa-price-aggregator/internal/storage"
)

// QuoteFetcher is the slice of the feed registry the poller needs.
type QuoteFetcher interface {
	FetchAll(ctx context.Context, symbol string) ([]feed.Quote, error)
}

// Poller runs the periodic price-fetch cycle: query every venue for
// every active tradable token and append the results as snapshots.
type Poller struct {
	tokens    storage.TokenStore
	venues    storage.VenueStore
	snapshots storage.SnapshotStore
	fetcher   QuoteFetcher
	logger    zerolog.Logger

	locker    storage.AdvisoryLocker
	lockKey   int64
	retention time.Duration
}

// PollerOptions carries the optional poller knobs.
type PollerOptions struct {
	// Locker plus a non-zero LockKey keeps a single poller active
	// across replicas.
	Locker  storage.AdvisoryLocker
	LockKey int64
	// Retention deletes snapshots older than the window at the end of
	// each cycle; zero disables cleanup.
	Retention time.Duration
}

// NewPoller wires the fetch cycle.
func NewPoller(tokens storage.TokenStore, venues storage.VenueStore, snapshots storage.SnapshotStore, fetcher QuoteFetcher, opts PollerOptions, logger zerolog.Logger) *Poller {
	return &Poller{
		tokens:    tokens,
		venues:    venues,
		snapshots: snapshots,
		fetcher:   fetcher,
		logger:    logger.With().Str("component", "poller").Logger(),
		locker:    opts.Locker,
		lockKey:   opts.LockKey,
		retention: opts.Retention,
	}
}

// RunCycle 执行单个抓取周期。A failing token is logged and skipped so
// one bad integration cannot starve the rest.
func (p *Poller) RunCycle(ctx context.Context, cycle time.Time) error {
	unlock, proceed, err := p.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		p.logger.Debug().Time("cycle", cycle).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	tokens, err := p.tokens.ListActiveTokens(ctx)
	if err != nil {
		return fmt.Errorf("list active tokens: %w", err)
	}

	venueIDs, err := p.venueIDsByName(ctx)
	if err != nil {
		return err
	}

	inserted := 0
	for _, token := range tokens {
		// Exhaustive on purpose: a new market type must be classified
		// here before the poller compiles against it.
		switch token.MarketType {
		case domain.MarketNAVOnly:
			p.logger.Debug().Str("symbol", token.Symbol).Msg("skip nav-only token")
			continue
		case domain.MarketTradable:
		default:
			p.logger.Warn().Str("symbol", token.Symbol).Str("market_type", string(token.MarketType)).Msg("skip token with unknown market type")
			continue
		}

		count, fetchErr := p.fetchToken(ctx, token, venueIDs)
		if fetchErr != nil {
			p.logger.Error().Err(fetchErr).Str("symbol", token.Symbol).Msg("token fetch failed")
			continue
		}
		inserted += count
	}

	p.logger.Info().Time("cycle", cycle).Int("tokens", len(tokens)).Int("snapshots", inserted).Msg("fetch cycle complete")

	if p.retention > 0 {
		olderThan := time.Now().UTC().Add(-p.retention)
		dropped, delErr := p.snapshots.DeleteSnapshotsBefore(ctx, olderThan)
		if delErr != nil {
			p.logger.Error().Err(delErr).Msg("snapshot retention cleanup failed")
		} else if dropped > 0 {
			p.logger.Info().Int64("dropped", dropped).Msg("expired snapshots removed")
		}
	}

	return nil
}

func (p *Poller) fetchToken(ctx context.Context, token domain.Token, venueIDs map[string]int64) (int, error) {
	quotes, err := p.fetcher.FetchAll(ctx, token.Symbol)
	if err != nil {
		return 0, fmt.Errorf("fetch quotes: %w", err)
	}
	if len(quotes) == 0 {
		p.logger.Warn().Str("symbol", token.Symbol).Msg("no venue returned a quote")
		return 0, nil
	}

	snapshots := make([]domain.PriceSnapshot, 0, len(quotes))
	for _, quote := range quotes {
		venueID, ok := venueIDs[quote.VenueName]
		if !ok {
			p.logger.Warn().Str("venue", quote.VenueName).Str("symbol", token.Symbol).Msg("quote from unregistered venue dropped")
			continue
		}
		snapshots = append(snapshots, domain.PriceSnapshot{
			TokenID:   token.ID,
			VenueID:   venueID,
			Bid:       quote.Bid,
			Ask:       quote.Ask,
			Volume24h: quote.Volume24h,
			FetchedAt: quote.Timestamp.UTC(),
		})
	}
	if len(snapshots) == 0 {
		return 0, nil
	}

	if err := p.snapshots.InsertSnapshots(ctx, snapshots); err != nil {
		return 0, fmt.Errorf("persist snapshots: %w", err)
	}
	return len(snapshots), nil
}

func (p *Poller) venueIDsByName(ctx context.Context) (map[string]int64, error) {
	venues, err := p.venues.ListActiveVenues(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active venues: %w", err)
	}
	ids := make(map[string]int64, len(venues))
	for _, v := range venues {
		ids[v.Name] = v.ID
	}
	return ids, nil
}

func (p *Poller) acquireLock(ctx context.Context) (func(), bool, error) {
	if p.lockKey == 0 || p.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := p.locker.TryAdvisoryLock(ctx, p.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
