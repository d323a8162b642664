package feed

import (
	"context"
	"math/big"
	"testing"
)

func TestOnchainMissingConfig(t *testing.T) {
	o := NewOnchain(OnchainOptions{}, noopLogger())
	if _, err := o.FetchQuote(context.Background(), "USDY"); err == nil {
		t.Fatal("未配置 RPC 时应报错")
	}

	o = NewOnchain(OnchainOptions{RPCURL: "http://localhost:8545"}, noopLogger())
	if _, err := o.FetchQuote(context.Background(), "USDY"); err == nil {
		t.Fatal("未配置池地址应报错")
	}

	o = NewOnchain(OnchainOptions{
		RPCURL: "http://localhost:8545",
		Pools:  map[string]PoolConfig{"USDY": {Address: "not-an-address"}},
	}, noopLogger())
	if _, err := o.FetchQuote(context.Background(), "USDY"); err == nil {
		t.Fatal("非法池地址应报错")
	}
}

func TestOnchainSupportsToken(t *testing.T) {
	o := NewOnchain(OnchainOptions{
		Pools: map[string]PoolConfig{"USDY": {Address: "0x0000000000000000000000000000000000000001"}},
	}, noopLogger())
	if !o.SupportsToken("usdy") {
		t.Fatal("配置过池的 token 应受支持")
	}
	if o.SupportsToken("OUSG") {
		t.Fatal("未配置池的 token 不应受支持")
	}
}

func TestPoolMidPrice(t *testing.T) {
	// sqrtPriceX96 = 2^96 编码价格 1(同 decimals 时)。
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)

	price := poolMidPrice(q96, PoolConfig{Token0Decimals: 18, Token1Decimals: 18})
	if price.String() != "1" {
		t.Fatalf("期望价格 1, 实际 %s", price)
	}

	// token1 为 6 位小数(USDC 风格)时需按 decimals 差值缩放。
	price = poolMidPrice(q96, PoolConfig{Token0Decimals: 18, Token1Decimals: 6})
	if price.String() != "1000000000000" {
		t.Fatalf("decimals 调整错误, 实际 %s", price)
	}

	// 倒数方向。
	double := new(big.Int).Lsh(big.NewInt(1), 97)
	price = poolMidPrice(double, PoolConfig{Token0Decimals: 18, Token1Decimals: 18, Invert: true})
	if price.String() != "0.25" {
		t.Fatalf("倒数价格应为 0.25, 实际 %s", price)
	}
}
