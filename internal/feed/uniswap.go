package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// uniswapTokens maps symbols onto mainnet contract addresses used for
// pool lookups (lowercase hex).
var uniswapTokens = map[string]string{
	"WETH": "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
	"ETH":  "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
	"PAXG": "0x45804880de22913dafe09f4980848ece6ecbaf78",
	"ONDO": "0xfaba6f8e4a5e8ab82f62fe7c39859fa577269be3",
	"USDY": "0x96f6ef951840721adbf46ac996b59e0235cb985c",
}

// feeTierSpreadBps estimates a synthetic bid/ask width per fee tier.
// Subgraph pools expose only a mid price; the fee tier is the best
// available proxy for execution width.
var feeTierSpreadBps = map[string]int64{
	"100":   2,
	"500":   10,
	"3000":  60,
	"10000": 200,
}

const uniswapPoolQuery = `query TokenPools($token: String!) {
  pools(
    first: 1
    where: {
      token0: $token
      token1_in: [
        "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
        "0xdac17f958d2ee523a2206206994597c13d831ec7",
        "0x6b175474e89094c44da98b954eedeac495271d0f"
      ]
    }
    orderBy: totalValueLockedUSD
    orderDirection: desc
  ) {
    id
    feeTier
    token0Price
    token1Price
    volumeUSD
  }
}`

// UniswapOptions parameterise the subgraph client.
type UniswapOptions struct {
	SubgraphURL string
	Timeout     time.Duration
	APIKey      string
}

// Uniswap fetches pool mid-prices from the Uniswap V3 subgraph and
// synthesizes a bid/ask around them.
type Uniswap struct {
	opts   UniswapOptions
	logger zerolog.Logger
	client *http.Client
}

// NewUniswap constructs a Uniswap V3 subgraph price feed.
func NewUniswap(opts UniswapOptions, logger zerolog.Logger) *Uniswap {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Uniswap{
		opts:   opts,
		logger: logger.With().Str("component", "uniswap_feed").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// VenueName implements PriceFeed.
func (u *Uniswap) VenueName() string { return "Uniswap V3" }

// SupportsToken implements PriceFeed.
func (u *Uniswap) SupportsToken(symbol string) bool {
	_, ok := uniswapTokens[strings.ToUpper(symbol)]
	return ok
}

type graphQLRequest struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

type uniswapPoolResponse struct {
	Data struct {
		Pools []struct {
			ID          string `json:"id"`
			FeeTier     string `json:"feeTier"`
			Token1Price string `json:"token1Price"`
			VolumeUSD   string `json:"volumeUSD"`
		} `json:"pools"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchQuote queries the most liquid USD-stable pool for the token and
// derives bid/ask from the pool mid and fee tier.
func (u *Uniswap) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	address, ok := uniswapTokens[strings.ToUpper(symbol)]
	if !ok {
		return Quote{}, fmt.Errorf("uniswap has no known address for %s", symbol)
	}
	if u.opts.SubgraphURL == "" {
		return Quote{}, errors.New("uniswap subgraph url not configured")
	}

	body, err := json.Marshal(graphQLRequest{
		Query:     uniswapPoolQuery,
		Variables: map[string]string{"token": address},
	})
	if err != nil {
		return Quote{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.opts.SubgraphURL, bytes.NewReader(body))
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if u.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.opts.APIKey)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("subgraph error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var decoded uniswapPoolResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Quote{}, err
	}
	if len(decoded.Errors) > 0 {
		return Quote{}, fmt.Errorf("subgraph error: %s", decoded.Errors[0].Message)
	}
	if len(decoded.Data.Pools) == 0 {
		return Quote{}, fmt.Errorf("no uniswap pool found for %s", symbol)
	}

	pool := decoded.Data.Pools[0]

	// token1Price = amount of token1 (the stable) per token0.
	mid, err := decimal.NewFromString(pool.Token1Price)
	if err != nil {
		return Quote{}, fmt.Errorf("parse pool price: %w", err)
	}
	if mid.Sign() <= 0 {
		return Quote{}, errors.New("pool price not positive")
	}

	spreadBps, ok := feeTierSpreadBps[pool.FeeTier]
	if !ok {
		spreadBps = 60
	}
	halfSpread := mid.Mul(decimal.NewFromInt(spreadBps)).Div(decimal.NewFromInt(20000))

	quote := Quote{
		VenueName:   u.VenueName(),
		TokenSymbol: strings.ToUpper(symbol),
		Bid:         mid.Sub(halfSpread),
		Ask:         mid.Add(halfSpread),
		Timestamp:   time.Now().UTC(),
	}

	if pool.VolumeUSD != "" {
		if vol, err := decimal.NewFromString(pool.VolumeUSD); err == nil {
			quote.Volume24h = &vol
		}
	}

	return quote, nil
}

var _ PriceFeed = (*Uniswap)(nil)
