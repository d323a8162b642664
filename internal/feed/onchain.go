package feed

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const uniswapV3PoolABIJSON = `[{"inputs":[],"name":"slot0","outputs":[{"internalType":"uint160","name":"sqrtPriceX96","type":"uint160"},{"internalType":"int24","name":"tick","type":"int24"},{"internalType":"uint16","name":"observationIndex","type":"uint16"},{"internalType":"uint16","name":"observationCardinality","type":"uint16"},{"internalType":"uint16","name":"observationCardinalityNext","type":"uint16"},{"internalType":"uint8","name":"feeProtocol","type":"uint8"},{"internalType":"bool","name":"unlocked","type":"bool"}],"stateMutability":"view","type":"function"}]`

var uniswapV3PoolABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(uniswapV3PoolABIJSON))
	if err != nil {
		panic("failed to parse Uniswap V3 pool ABI: " + err.Error())
	}
	uniswapV3PoolABI = parsed
}

// PoolConfig describes one on-chain Uniswap V3 pool to quote from.
type PoolConfig struct {
	// Address is the pool contract address.
	Address string
	// Invert quotes token1 in token0 terms when the tracked token is
	// token1 of the pool.
	Invert bool
	// Token0Decimals and Token1Decimals adjust the raw sqrt price.
	Token0Decimals int32
	Token1Decimals int32
	// FeeBps is the pool fee tier in basis points times 100 (e.g. 500
	// for the 0.05% tier), used to synthesize the bid/ask width.
	FeeBps int64
}

// OnchainOptions parameterise the on-chain pool quoter.
type OnchainOptions struct {
	RPCURL  string
	Timeout time.Duration
	// Pools maps normalized token symbols onto pool configurations.
	Pools map[string]PoolConfig
}

// Onchain reads Uniswap V3 pool state directly over Ethereum RPC. It
// is the DEX fallback when the subgraph lags or is unavailable.
type Onchain struct {
	opts      OnchainOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewOnchain builds an on-chain pool quoter.
func NewOnchain(opts OnchainOptions, logger zerolog.Logger) *Onchain {
	return &Onchain{opts: opts, logger: logger.With().Str("component", "onchain_feed").Logger()}
}

// VenueName implements PriceFeed.
func (o *Onchain) VenueName() string { return "Uniswap V3 (onchain)" }

// SupportsToken implements PriceFeed.
func (o *Onchain) SupportsToken(symbol string) bool {
	_, ok := o.opts.Pools[strings.ToUpper(symbol)]
	return ok
}

// FetchQuote calls slot0 on the configured pool and derives a quote
// from sqrtPriceX96 and the fee tier.
func (o *Onchain) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	if o.opts.RPCURL == "" {
		return Quote{}, errors.New("ethereum rpc url not configured")
	}
	pool, ok := o.opts.Pools[strings.ToUpper(symbol)]
	if !ok {
		return Quote{}, fmt.Errorf("no pool configured for %s", symbol)
	}
	if !common.IsHexAddress(pool.Address) {
		return Quote{}, fmt.Errorf("malformed pool address %q", pool.Address)
	}

	timeout := o.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := o.getClient(ctx)
	if err != nil {
		return Quote{}, err
	}

	addr := common.HexToAddress(pool.Address)
	payload, err := uniswapV3PoolABI.Pack("slot0")
	if err != nil {
		return Quote{}, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return Quote{}, err
	}

	outputs, err := uniswapV3PoolABI.Unpack("slot0", res)
	if err != nil {
		return Quote{}, err
	}
	if len(outputs) == 0 {
		return Quote{}, errors.New("unexpected slot0 response")
	}
	sqrtPriceX96, ok := outputs[0].(*big.Int)
	if !ok || sqrtPriceX96.Sign() <= 0 {
		return Quote{}, errors.New("failed to decode sqrtPriceX96")
	}

	mid := poolMidPrice(sqrtPriceX96, pool)
	if mid.Sign() <= 0 {
		return Quote{}, errors.New("pool price not positive")
	}

	halfSpread := mid.Mul(decimal.NewFromInt(pool.FeeBps)).Div(decimal.NewFromInt(2_000_000))

	return Quote{
		VenueName:   o.VenueName(),
		TokenSymbol: strings.ToUpper(symbol),
		Bid:         mid.Sub(halfSpread),
		Ask:         mid.Add(halfSpread),
		Timestamp:   time.Now().UTC(),
	}, nil
}

// poolMidPrice converts sqrtPriceX96 into a decimal price of token0 in
// token1 terms (or inverted), adjusted for token decimals.
func poolMidPrice(sqrtPriceX96 *big.Int, pool PoolConfig) decimal.Decimal {
	sqrt := decimal.NewFromBigInt(sqrtPriceX96, 0)
	q96 := decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 96), 0)

	ratio := sqrt.Div(q96)
	price := ratio.Mul(ratio)

	// Raw pool price is token1-per-token0 in atomic units; shift by the
	// decimals difference to get human units.
	price = price.Shift(pool.Token0Decimals - pool.Token1Decimals)

	if pool.Invert {
		if price.Sign() <= 0 {
			return decimal.Zero
		}
		price = decimal.NewFromInt(1).Div(price)
	}

	return price
}

func (o *Onchain) getClient(ctx context.Context) (*ethclient.Client, error) {
	o.clientMux.Lock()
	defer o.clientMux.Unlock()

	if o.client != nil {
		return o.client, nil
	}

	client, err := ethclient.DialContext(ctx, o.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	o.client = client
	return client, nil
}

var _ PriceFeed = (*Onchain)(nil)
