package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"rwa-price-aggregator/internal/storage"
)

// Export renders a token's spread history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Symbol == "" {
		return errors.New("--token must be provided")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	token, err := store.GetTokenBySymbol(ctx, opts.Symbol)
	if err != nil {
		return err
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Poller.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	points, err := store.SpreadHistory(ctx, token.ID, from, to)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		a.Logger.Info().Str("token", token.Symbol).Msg("no spread history found for export window")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().
		Str("token", token.Symbol).
		Int("total", len(points)).
		Int("exported", len(downsampled)).
		Msg("exporting spread history")

	if opts.CSVPath != "" {
		if err := writeSpreadCSV(opts.CSVPath, token.Symbol, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSpreadPNG(opts.PNGPath, token.Symbol, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsamplePoints(points []storage.SpreadHistoryPoint, max int) []storage.SpreadHistoryPoint {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]storage.SpreadHistoryPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeSpreadCSV(path, symbol string, points []storage.SpreadHistoryPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"fetched_at", "token", "venue", "spread_pct"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, point := range points {
		record := []string{
			point.FetchedAt.UTC().Format(time.RFC3339),
			symbol,
			point.VenueName,
			point.SpreadPct.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSpreadPNG(path, symbol string, points []storage.SpreadHistoryPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	byVenue := make(map[string][]storage.SpreadHistoryPoint)
	for _, point := range points {
		byVenue[point.VenueName] = append(byVenue[point.VenueName], point)
	}

	venues := make([]string, 0, len(byVenue))
	for venue := range byVenue {
		venues = append(venues, venue)
	}
	sort.Strings(venues)

	series := make([]chart.Series, 0, len(venues))
	for _, venue := range venues {
		venuePoints := byVenue[venue]
		x := make([]time.Time, len(venuePoints))
		y := make([]float64, len(venuePoints))
		for i, point := range venuePoints {
			x[i] = point.FetchedAt
			y[i] = point.SpreadPct.InexactFloat64()
		}
		series = append(series, chart.TimeSeries{
			Name:    venue,
			XValues: x,
			YValues: y,
		})
	}

	spreadFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Title:  symbol + " bid/ask spread",
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Spread (%)",
			ValueFormatter: spreadFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
