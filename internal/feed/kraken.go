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
	"golang.org/x/time/rate"
)

// krakenPairs maps normalized token symbols onto Kraken's pair naming.
var krakenPairs = map[string]string{
	"BTC":  "XXBTZUSD",
	"ETH":  "XETHZUSD",
	"USDT": "USDTZUSD",
	"USDC": "USDCUSD",
	"DAI":  "DAIUSD",
	"PAXG": "PAXGUSD",
	"USDY": "USDYUSD",
}

// KrakenOptions parameterise the Kraken REST client.
type KrakenOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// RequestsPerSecond caps the public API call rate (~1 rps allowed).
	RequestsPerSecond float64
}

// Kraken fetches spot tickers from Kraken's public REST API.
type Kraken struct {
	opts    KrakenOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewKraken constructs a Kraken price feed.
func NewKraken(opts KrakenOptions, logger zerolog.Logger) *Kraken {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.kraken.com"
	}

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	return &Kraken{
		opts:    opts,
		logger:  logger.With().Str("component", "kraken_feed").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		baseURL: baseURL,
	}
}

// VenueName implements PriceFeed.
func (k *Kraken) VenueName() string { return "Kraken" }

// SupportsToken implements PriceFeed.
func (k *Kraken) SupportsToken(symbol string) bool {
	_, ok := krakenPairs[strings.ToUpper(symbol)]
	return ok
}

type krakenTicker struct {
	Ask []string `json:"a"`
	Bid []string `json:"b"`
	Vol []string `json:"v"`
}

type krakenResponse struct {
	Error  []string                `json:"error"`
	Result map[string]krakenTicker `json:"result"`
}

// FetchQuote retrieves the current ticker for a token. Kraken response
// arrays: a = [ask, wholeLotVolume, lotVolume], b likewise for bid,
// v = [todayVolume, volume24h].
func (k *Kraken) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	pair, ok := krakenPairs[strings.ToUpper(symbol)]
	if !ok {
		return Quote{}, fmt.Errorf("kraken does not list %s", symbol)
	}

	if err := k.limiter.Wait(ctx); err != nil {
		return Quote{}, err
	}

	endpoint := fmt.Sprintf("%s/0/public/Ticker?pair=%s", k.baseURL, url.QueryEscape(pair))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(k.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("kraken api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var decoded krakenResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Quote{}, err
	}
	if len(decoded.Error) > 0 {
		return Quote{}, fmt.Errorf("kraken api error: %s", strings.Join(decoded.Error, "; "))
	}

	// The result key does not always match the requested pair name
	// exactly; take the first and only entry.
	var ticker krakenTicker
	found := false
	for _, t := range decoded.Result {
		ticker = t
		found = true
		break
	}
	if !found {
		return Quote{}, errors.New("kraken response contained no ticker")
	}
	if len(ticker.Bid) == 0 || len(ticker.Ask) == 0 {
		return Quote{}, errors.New("kraken ticker missing bid/ask")
	}

	bid, err := decimal.NewFromString(ticker.Bid[0])
	if err != nil {
		return Quote{}, fmt.Errorf("parse kraken bid: %w", err)
	}
	ask, err := decimal.NewFromString(ticker.Ask[0])
	if err != nil {
		return Quote{}, fmt.Errorf("parse kraken ask: %w", err)
	}

	quote := Quote{
		VenueName:   k.VenueName(),
		TokenSymbol: strings.ToUpper(symbol),
		Bid:         bid,
		Ask:         ask,
		Timestamp:   time.Now().UTC(),
	}

	if len(ticker.Vol) > 1 {
		if vol, err := decimal.NewFromString(ticker.Vol[1]); err == nil {
			quote.Volume24h = &vol
		}
	}

	return quote, nil
}

var _ PriceFeed = (*Kraken)(nil)
