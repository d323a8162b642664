package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"rwa-price-aggregator/internal/domain"
)

const (
	insertSnapshotSQL = `INSERT INTO price_snapshots (
        token_id,
        venue_id,
        bid,
        ask,
        mid,
        spread_pct,
        volume_24h,
        fetched_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    );`

	latestSnapshotsSQL = `SELECT DISTINCT ON (venue_id)
        id,
        token_id,
        venue_id,
        bid,
        ask,
        volume_24h,
        fetched_at
    FROM price_snapshots
    WHERE token_id = $1
    ORDER BY venue_id, fetched_at DESC;`

	listSnapshotsBetweenSQL = `SELECT
        id,
        token_id,
        venue_id,
        bid,
        ask,
        volume_24h,
        fetched_at
    FROM price_snapshots
    WHERE token_id = $1
      AND fetched_at >= $2
      AND fetched_at < $3
    ORDER BY fetched_at;`

	spreadHistorySQL = `SELECT
        s.fetched_at,
        s.spread_pct,
        v.name
    FROM price_snapshots s
    JOIN venues v ON v.id = s.venue_id
    WHERE s.token_id = $1
      AND s.fetched_at >= $2
      AND s.fetched_at < $3
      AND s.spread_pct IS NOT NULL
    ORDER BY s.fetched_at;`

	deleteSnapshotsBeforeSQL = `DELETE FROM price_snapshots WHERE fetched_at < $1;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM price_snapshots;`
)

// SpreadHistoryPoint is one historical per-venue spread observation,
// used by exports and charting.
type SpreadHistoryPoint struct {
	FetchedAt time.Time
	SpreadPct decimal.Decimal
	VenueName string
}

// SnapshotStore defines persistence for price observations.
type SnapshotStore interface {
	InsertSnapshots(ctx context.Context, snapshots []domain.PriceSnapshot) error
	LatestSnapshots(ctx context.Context, tokenID int64) ([]domain.PriceSnapshot, error)
	ListSnapshotsBetween(ctx context.Context, tokenID int64, from, to time.Time) ([]domain.PriceSnapshot, error)
	SpreadHistory(ctx context.Context, tokenID int64, from, to time.Time) ([]SpreadHistoryPoint, error)
	DeleteSnapshotsBefore(ctx context.Context, olderThan time.Time) (int64, error)
	CountSnapshots(ctx context.Context) (int64, error)
}

// InsertSnapshots appends a batch of observations in one round trip.
// Mid and per-venue spread are denormalized at write time so history
// queries never recompute them.
func (s *Store) InsertSnapshots(ctx context.Context, snapshots []domain.PriceSnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		var volume interface{}
		if snap.Volume24h != nil {
			volume = snap.Volume24h.String()
		}

		var spreadPct interface{}
		if spread, spreadErr := snap.Spread(); spreadErr == nil {
			spreadPct = spread.Percentage().String()
		}

		batch.Queue(insertSnapshotSQL,
			snap.TokenID,
			snap.VenueID,
			snap.Bid.String(),
			snap.Ask.String(),
			snap.Mid().String(),
			spreadPct,
			volume,
			snap.FetchedAt,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	for range snapshots {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("insert snapshot: %w", execErr)
		}
	}
	return nil
}

// LatestSnapshots returns the most recent observation per venue for a
// token, fresh or not; staleness filtering is the caller's concern.
func (s *Store) LatestSnapshots(ctx context.Context, tokenID int64) ([]domain.PriceSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, latestSnapshotsSQL, tokenID)
	if queryErr != nil {
		return nil, fmt.Errorf("latest snapshots: %w", queryErr)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

// ListSnapshotsBetween lists observations within a time window.
func (s *Store) ListSnapshotsBetween(ctx context.Context, tokenID int64, from, to time.Time) ([]domain.PriceSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsBetweenSQL, tokenID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots between: %w", queryErr)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

// SpreadHistory lists historical per-venue spreads within a window.
func (s *Store) SpreadHistory(ctx context.Context, tokenID int64, from, to time.Time) ([]SpreadHistoryPoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, spreadHistorySQL, tokenID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("spread history: %w", queryErr)
	}
	defer rows.Close()

	points := make([]SpreadHistoryPoint, 0)
	for rows.Next() {
		var (
			point     SpreadHistoryPoint
			spreadStr string
		)
		if err := rows.Scan(&point.FetchedAt, &spreadStr, &point.VenueName); err != nil {
			return nil, err
		}
		spread, convErr := decimal.NewFromString(spreadStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse spread pct: %w", convErr)
		}
		point.SpreadPct = spread
		points = append(points, point)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return points, nil
}

// DeleteSnapshotsBefore removes observations past the retention window
// and reports how many rows were dropped.
func (s *Store) DeleteSnapshotsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, deleteSnapshotsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete snapshots before: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

// CountSnapshots counts stored observations.
func (s *Store) CountSnapshots(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSnapshotsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

func collectSnapshots(rows pgx.Rows) ([]domain.PriceSnapshot, error) {
	snapshots := make([]domain.PriceSnapshot, 0)
	for rows.Next() {
		snapshot, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		snapshots = append(snapshots, snapshot)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

func scanSnapshot(rows pgx.Rows) (domain.PriceSnapshot, error) {
	var (
		snapshot  domain.PriceSnapshot
		bidStr    string
		askStr    string
		volumeStr sql.NullString
	)

	if err := rows.Scan(
		&snapshot.ID,
		&snapshot.TokenID,
		&snapshot.VenueID,
		&bidStr,
		&askStr,
		&volumeStr,
		&snapshot.FetchedAt,
	); err != nil {
		return domain.PriceSnapshot{}, err
	}

	bid, err := decimal.NewFromString(bidStr)
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("parse bid: %w", err)
	}
	ask, err := decimal.NewFromString(askStr)
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("parse ask: %w", err)
	}

	snapshot.Bid = bid
	snapshot.Ask = ask

	if volumeStr.Valid {
		volume, convErr := decimal.NewFromString(volumeStr.String)
		if convErr != nil {
			return domain.PriceSnapshot{}, fmt.Errorf("parse volume: %w", convErr)
		}
		snapshot.Volume24h = &volume
	}

	return snapshot, nil
}

var _ SnapshotStore = (*Store)(nil)
