package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestUniswapMissingConfig(t *testing.T) {
	u := NewUniswap(UniswapOptions{}, noopLogger())
	if _, err := u.FetchQuote(context.Background(), "USDY"); err == nil {
		t.Fatal("未配置 subgraph URL 时应报错")
	}
	if _, err := u.FetchQuote(context.Background(), "NOSUCH"); err == nil {
		t.Fatal("未知 token 应报错")
	}
}

func TestUniswapFetchGraphQLError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]string{{"message": "indexing error"}},
		})
	}))
	defer srv.Close()

	u := NewUniswap(UniswapOptions{SubgraphURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := u.FetchQuote(context.Background(), "USDY"); err == nil {
		t.Fatal("GraphQL errors 应导致错误")
	}
}

func TestUniswapFetchNoPool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"pools": []any{}},
		})
	}))
	defer srv.Close()

	u := NewUniswap(UniswapOptions{SubgraphURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := u.FetchQuote(context.Background(), "USDY"); err == nil {
		t.Fatal("无匹配池时应返回错误")
	}
}

func TestUniswapFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Variables["token"] != uniswapTokens["USDY"] {
			t.Errorf("期望查询 USDY 地址, 实际 %s", req.Variables["token"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"pools": []map[string]string{{
					"id":          "0xpool",
					"feeTier":     "500",
					"token1Price": "1.0900",
					"volumeUSD":   "54321.99",
				}},
			},
		})
	}))
	defer srv.Close()

	u := NewUniswap(UniswapOptions{SubgraphURL: srv.URL, Timeout: time.Second}, noopLogger())
	quote, err := u.FetchQuote(context.Background(), "USDY")
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}

	// mid 1.09, 费率 500 对应 10 bps 宽度, 半边 0.05%。
	if quote.Bid.GreaterThanOrEqual(quote.Ask) {
		t.Fatalf("合成 bid 应低于 ask: %s / %s", quote.Bid, quote.Ask)
	}
	mid := quote.Bid.Add(quote.Ask).Div(decimal.NewFromInt(2))
	if mid.String() != "1.09" {
		t.Fatalf("bid/ask 中点应还原 mid, 实际 %s", mid)
	}
	if quote.Volume24h == nil {
		t.Fatal("应解析 volumeUSD")
	}
}
