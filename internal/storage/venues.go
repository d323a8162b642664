package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rwa-price-aggregator/internal/domain"
)

const (
	listActiveVenuesSQL = `SELECT
        id,
        name,
        venue_type,
        api_type,
        base_url,
        trade_url_template,
        is_active
    FROM venues
    WHERE is_active = TRUE
    ORDER BY id;`

	getVenueByNameSQL = `SELECT
        id,
        name,
        venue_type,
        api_type,
        base_url,
        trade_url_template,
        is_active
    FROM venues
    WHERE name = $1;`
)

// VenueStore defines read access to the venue registry.
type VenueStore interface {
	ListActiveVenues(ctx context.Context) ([]domain.Venue, error)
	GetVenueByName(ctx context.Context, name string) (domain.Venue, error)
}

// ListActiveVenues lists active venues ordered by id.
func (s *Store) ListActiveVenues(ctx context.Context) ([]domain.Venue, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveVenuesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active venues: %w", queryErr)
	}
	defer rows.Close()

	venues := make([]domain.Venue, 0)
	for rows.Next() {
		venue, scanErr := scanVenue(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		venues = append(venues, venue)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return venues, nil
}

// GetVenueByName finds a venue by its display name.
func (s *Store) GetVenueByName(ctx context.Context, name string) (domain.Venue, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Venue{}, err
	}

	rows, queryErr := pool.Query(ctx, getVenueByNameSQL, name)
	if queryErr != nil {
		return domain.Venue{}, fmt.Errorf("get venue by name: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return domain.Venue{}, rows.Err()
		}
		return domain.Venue{}, fmt.Errorf("%w: %s", domain.ErrVenueNotFound, name)
	}
	return scanVenue(rows)
}

func scanVenue(rows pgx.Rows) (domain.Venue, error) {
	var (
		venue    domain.Venue
		typeStr  string
		apiStr   string
		baseURL  sql.NullString
		tradeURL sql.NullString
	)

	if err := rows.Scan(
		&venue.ID,
		&venue.Name,
		&typeStr,
		&apiStr,
		&baseURL,
		&tradeURL,
		&venue.IsActive,
	); err != nil {
		return domain.Venue{}, err
	}

	venue.Type = domain.VenueType(typeStr)
	venue.API = domain.APIType(apiStr)
	venue.BaseURL = baseURL.String
	venue.TradeURLTemplate = tradeURL.String
	return venue, nil
}

var _ VenueStore = (*Store)(nil)
