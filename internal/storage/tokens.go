package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rwa-price-aggregator/internal/domain"
)

const (
	listActiveTokensSQL = `SELECT
        id,
        symbol,
        name,
        category,
        issuer,
        chain,
        contract_address,
        is_active,
        market_type
    FROM tokens
    WHERE is_active = TRUE
    ORDER BY symbol;`

	getTokenBySymbolSQL = `SELECT
        id,
        symbol,
        name,
        category,
        issuer,
        chain,
        contract_address,
        is_active,
        market_type
    FROM tokens
    WHERE symbol = $1;`
)

// TokenStore defines read access to the token registry.
type TokenStore interface {
	ListActiveTokens(ctx context.Context) ([]domain.Token, error)
	GetTokenBySymbol(ctx context.Context, symbol string) (domain.Token, error)
}

// ListActiveTokens lists active tokens ordered by symbol.
func (s *Store) ListActiveTokens(ctx context.Context) ([]domain.Token, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveTokensSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active tokens: %w", queryErr)
	}
	defer rows.Close()

	tokens := make([]domain.Token, 0)
	for rows.Next() {
		token, scanErr := scanToken(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		tokens = append(tokens, token)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tokens, nil
}

// GetTokenBySymbol finds a token by its canonical uppercase symbol.
func (s *Store) GetTokenBySymbol(ctx context.Context, symbol string) (domain.Token, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Token{}, err
	}

	rows, queryErr := pool.Query(ctx, getTokenBySymbolSQL, domain.NormalizeSymbol(symbol))
	if queryErr != nil {
		return domain.Token{}, fmt.Errorf("get token by symbol: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return domain.Token{}, rows.Err()
		}
		return domain.Token{}, fmt.Errorf("%w: %s", domain.ErrTokenNotFound, symbol)
	}
	return scanToken(rows)
}

func scanToken(rows pgx.Rows) (domain.Token, error) {
	var (
		token       domain.Token
		categoryStr string
		marketStr   string
		issuer      sql.NullString
		chain       sql.NullString
		contract    sql.NullString
	)

	if err := rows.Scan(
		&token.ID,
		&token.Symbol,
		&token.Name,
		&categoryStr,
		&issuer,
		&chain,
		&contract,
		&token.IsActive,
		&marketStr,
	); err != nil {
		return domain.Token{}, err
	}

	category, err := domain.ParseTokenCategory(categoryStr)
	if err != nil {
		return domain.Token{}, fmt.Errorf("token %s: %w", token.Symbol, err)
	}
	market, err := domain.ParseMarketType(marketStr)
	if err != nil {
		return domain.Token{}, fmt.Errorf("token %s: %w", token.Symbol, err)
	}

	token.Category = category
	token.MarketType = market
	token.Issuer = issuer.String
	token.Chain = chain.String
	token.ContractAddress = contract.String
	return token, nil
}

var _ TokenStore = (*Store)(nil)
