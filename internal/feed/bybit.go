package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// bybitPairs maps normalized token symbols onto Bybit spot symbols.
var bybitPairs = map[string]string{
	"BTC":  "BTCUSDT",
	"ETH":  "ETHUSDT",
	"USDC": "USDCUSDT",
	"USDY": "USDYUSDT",
	"PAXG": "PAXGUSDT",
	"ONDO": "ONDOUSDT",
}

// BybitOptions parameterise the Bybit REST client.
type BybitOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Bybit fetches spot tickers from Bybit's v5 market API.
type Bybit struct {
	opts    BybitOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewBybit constructs a Bybit price feed.
func NewBybit(opts BybitOptions, logger zerolog.Logger) *Bybit {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.bybit.com"
	}

	return &Bybit{
		opts:    opts,
		logger:  logger.With().Str("component", "bybit_feed").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// VenueName implements PriceFeed.
func (b *Bybit) VenueName() string { return "Bybit" }

// SupportsToken implements PriceFeed.
func (b *Bybit) SupportsToken(symbol string) bool {
	_, ok := bybitPairs[strings.ToUpper(symbol)]
	return ok
}

type bybitResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol    string `json:"symbol"`
			Bid1Price string `json:"bid1Price"`
			Ask1Price string `json:"ask1Price"`
			Volume24h string `json:"volume24h"`
		} `json:"list"`
	} `json:"result"`
}

// FetchQuote retrieves the current spot ticker for a token.
func (b *Bybit) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	pair, ok := bybitPairs[strings.ToUpper(symbol)]
	if !ok {
		return Quote{}, fmt.Errorf("bybit does not list %s", symbol)
	}

	endpoint := fmt.Sprintf("%s/v5/market/tickers?category=spot&symbol=%s", b.baseURL, url.QueryEscape(pair))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("bybit api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var decoded bybitResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Quote{}, err
	}
	if decoded.RetCode != 0 {
		return Quote{}, fmt.Errorf("bybit api error %d: %s", decoded.RetCode, decoded.RetMsg)
	}
	if len(decoded.Result.List) == 0 {
		return Quote{}, errors.New("bybit response contained no ticker")
	}

	ticker := decoded.Result.List[0]
	if ticker.Bid1Price == "" || ticker.Ask1Price == "" {
		return Quote{}, errors.New("bybit ticker missing bid/ask")
	}

	bid, err := decimal.NewFromString(ticker.Bid1Price)
	if err != nil {
		return Quote{}, fmt.Errorf("parse bybit bid: %w", err)
	}
	ask, err := decimal.NewFromString(ticker.Ask1Price)
	if err != nil {
		return Quote{}, fmt.Errorf("parse bybit ask: %w", err)
	}

	quote := Quote{
		VenueName:   b.VenueName(),
		TokenSymbol: strings.ToUpper(symbol),
		Bid:         bid,
		Ask:         ask,
		Timestamp:   time.Now().UTC(),
	}

	if ticker.Volume24h != "" {
		if vol, err := decimal.NewFromString(ticker.Volume24h); err == nil {
			quote.Volume24h = &vol
		}
	}

	return quote, nil
}

var _ PriceFeed = (*Bybit)(nil)
