package feed

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultFetchTimeout bounds one full fanout across every feed.
const DefaultFetchTimeout = 15 * time.Second

// Registry fans quote requests out to every feed that supports a
// token. A failing venue never blocks the others; the caller gets
// whatever quotes succeeded.
type Registry struct {
	feeds   []PriceFeed
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		timeout: DefaultFetchTimeout,
		logger:  logger.With().Str("component", "feed_registry").Logger(),
	}
}

// Register adds a feed. Not safe to call concurrently with FetchAll.
func (r *Registry) Register(f PriceFeed) {
	r.feeds = append(r.feeds, f)
}

// SetTimeout overrides the fanout deadline. Non-positive values keep
// the default.
func (r *Registry) SetTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// FeedsForToken returns the feeds that can quote the given symbol.
func (r *Registry) FeedsForToken(symbol string) []PriceFeed {
	var out []PriceFeed
	for _, f := range r.feeds {
		if f.SupportsToken(symbol) {
			out = append(out, f)
		}
	}
	return out
}

// FetchAll queries every supporting feed concurrently and returns the
// quotes that succeeded. Per-venue errors are logged, not returned;
// the error is non-nil only when the context dies before any work ran.
func (r *Registry) FetchAll(ctx context.Context, symbol string) ([]Quote, error) {
	feeds := r.FeedsForToken(symbol)
	if len(feeds) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		quotes []Quote
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range feeds {
		g.Go(func() error {
			quote, err := f.FetchQuote(gctx, symbol)
			if err != nil {
				r.logger.Warn().
					Err(err).
					Str("venue", f.VenueName()).
					Str("symbol", symbol).
					Msg("venue quote failed")
				return nil
			}
			mu.Lock()
			quotes = append(quotes, quote)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return quotes, err
	}
	return quotes, nil
}
