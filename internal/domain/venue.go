package domain

import "strings"

// VenueType classifies a price source.
type VenueType string

const (
	VenueCEX    VenueType = "cex"
	VenueDEX    VenueType = "dex"
	VenueIssuer VenueType = "issuer"
)

// APIType describes the mechanism used to fetch prices from a venue.
type APIType string

const (
	APIRest      APIType = "rest"
	APIWebsocket APIType = "websocket"
	APISubgraph  APIType = "subgraph"
	APIOnchain   APIType = "onchain"
)

// Venue is a price source (exchange or DEX pool aggregator). Venues
// are seed data; the core treats them as read-only.
type Venue struct {
	ID               int64
	Name             string
	Type             VenueType
	API              APIType
	BaseURL          string
	TradeURLTemplate string
	IsActive         bool
}

// TradeURL renders the trade link for a token symbol, or "" when the
// venue has no template configured.
func (v Venue) TradeURL(symbol string) string {
	if v.TradeURLTemplate == "" {
		return ""
	}
	return strings.ReplaceAll(v.TradeURLTemplate, "{symbol}", symbol)
}
