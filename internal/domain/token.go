package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TokenCategory classifies tokenized real-world assets for filtering.
type TokenCategory string

const (
	CategoryTBill         TokenCategory = "tbill"
	CategoryPrivateCredit TokenCategory = "private_credit"
	CategoryRealEstate    TokenCategory = "real_estate"
	CategoryEquity        TokenCategory = "equity"
)

// ParseTokenCategory validates a stored category value.
func ParseTokenCategory(v string) (TokenCategory, error) {
	switch c := TokenCategory(v); c {
	case CategoryTBill, CategoryPrivateCredit, CategoryRealEstate, CategoryEquity:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown token category %q", ErrValidation, v)
	}
}

// MarketType distinguishes tokens with live bid/ask pairs from tokens
// priced only by NAV disclosure.
type MarketType string

const (
	MarketTradable MarketType = "tradable"
	MarketNAVOnly  MarketType = "nav_only"
)

// ParseMarketType validates a stored market type value.
func ParseMarketType(v string) (MarketType, error) {
	switch m := MarketType(v); m {
	case MarketTradable, MarketNAVOnly:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown market type %q", ErrValidation, v)
	}
}

// Tradable reports whether tokens of this market type carry price
// snapshots and alerts. The switch is exhaustive so a new market type
// breaks compilation here rather than silently defaulting.
func (m MarketType) Tradable() bool {
	switch m {
	case MarketTradable:
		return true
	case MarketNAVOnly:
		return false
	}
	panic("unhandled market type: " + string(m))
}

// Token is a tokenized RWA asset tracked by the aggregator. Tokens are
// seed data; the core treats them as read-only.
type Token struct {
	ID              int64
	Symbol          string
	Name            string
	Category        TokenCategory
	Issuer          string
	Chain           string
	ContractAddress string
	IsActive        bool
	MarketType      MarketType
}

// NormalizeSymbol maps user input onto the canonical uppercase form
// used as the unique token key.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateContractAddress checks the optional contract address is a
// well-formed hex address when present.
func (t Token) ValidateContractAddress() error {
	if t.ContractAddress == "" {
		return nil
	}
	if !common.IsHexAddress(t.ContractAddress) {
		return fmt.Errorf("%w: malformed contract address %q for %s", ErrValidation, t.ContractAddress, t.Symbol)
	}
	return nil
}
