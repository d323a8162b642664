package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"rwa-price-aggregator/internal/pricing"
	"rwa-price-aggregator/internal/service"
)

// Show prints the aggregated per-venue view for one token.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if opts.Symbol == "" {
		return errors.New("--token must be provided")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show prices")
	}
	if closeStore != nil {
		defer closeStore()
	}

	calc := pricing.NewCalculator(a.Config.Poller.MaxStaleness)
	aggregator := service.NewAggregator(store, store, store, calc, a.Logger)

	view, err := aggregator.AggregatedPrices(ctx, opts.Symbol, opts.IncludeStale)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s (%s) %d venues, %d fresh, updated %s\n",
		view.Token.Symbol,
		view.Token.Name,
		view.NumVenues,
		view.NumFreshVenues,
		view.LastUpdated.UTC().Format(time.RFC3339),
	)
	if view.BestBid != nil && view.BestAsk != nil {
		fmt.Fprintf(os.Stdout, "best bid %s @ %s, best ask %s @ %s, cross-venue spread %s%%\n",
			formatDecimal(view.BestBid.Price, 6), view.BestBid.VenueName,
			formatDecimal(view.BestAsk.Price, 6), view.BestAsk.VenueName,
			formatDecimal(*view.SpreadPct, 4),
		)
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Venue\tBid\tAsk\tMid\tSpread%\tFetched (UTC)\tStale")

	for _, venue := range view.Venues {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%v\n",
			venue.VenueName,
			formatDecimal(venue.Bid, 6),
			formatDecimal(venue.Ask, 6),
			formatDecimal(venue.Mid, 6),
			formatDecimal(venue.SpreadPct, 4),
			venue.FetchedAt.UTC().Format(time.RFC3339),
			venue.IsStale,
		)
	}

	writer.Flush()
	return nil
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
