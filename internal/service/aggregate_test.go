package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"rwa-price-aggregator/internal/domain"
	"rwa-price-aggregator/internal/pricing"
)

func tradableToken(id int64, symbol string) domain.Token {
	return domain.Token{
		ID:         id,
		Symbol:     symbol,
		Name:       symbol + " Token",
		Category:   domain.CategoryTBill,
		IsActive:   true,
		MarketType: domain.MarketTradable,
	}
}

func snapshotAt(tokenID, venueID int64, bid, ask string, at time.Time) domain.PriceSnapshot {
	return domain.PriceSnapshot{
		TokenID:   tokenID,
		VenueID:   venueID,
		Bid:       decimal.RequireFromString(bid),
		Ask:       decimal.RequireFromString(ask),
		FetchedAt: at,
	}
}

func TestAggregatedPricesUnknownToken(t *testing.T) {
	agg := NewAggregator(&fakeTokens{}, &fakeVenues{}, &fakeSnapshots{}, pricing.NewCalculator(0), noopLogger())

	_, err := agg.AggregatedPrices(context.Background(), "NOPE", true)
	if !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("期望 ErrTokenNotFound, 实际 %v", err)
	}
}

func TestAggregatedPricesNoData(t *testing.T) {
	tokens := &fakeTokens{tokens: []domain.Token{tradableToken(1, "USDY")}}
	agg := NewAggregator(tokens, &fakeVenues{}, &fakeSnapshots{}, pricing.NewCalculator(0), noopLogger())

	_, err := agg.AggregatedPrices(context.Background(), "usdy", true)
	if !errors.Is(err, domain.ErrNoPriceData) {
		t.Fatalf("期望 ErrNoPriceData, 实际 %v", err)
	}
}

func TestAggregatedPricesFullView(t *testing.T) {
	now := time.Now().UTC()
	tokens := &fakeTokens{tokens: []domain.Token{tradableToken(1, "USDY")}}
	venues := &fakeVenues{venues: []domain.Venue{
		{ID: 10, Name: "Kraken", Type: domain.VenueCEX, TradeURLTemplate: "https://kraken.example/{symbol}", IsActive: true},
	}}
	snapshots := &fakeSnapshots{latest: map[int64][]domain.PriceSnapshot{
		1: {
			snapshotAt(1, 10, "1.0901", "1.0915", now.Add(-2*time.Second)),
			// 无元数据的 venue 应退化为合成名称。
			snapshotAt(1, 99, "1.0912", "1.0920", now.Add(-3*time.Second)),
			// 过期条目: 参与 last_updated 但不计入 fresh。
			snapshotAt(1, 11, "1.0800", "1.0990", now.Add(-10*time.Minute)),
		},
	}}

	agg := NewAggregator(tokens, venues, snapshots, pricing.NewCalculator(time.Minute), noopLogger())
	view, err := agg.AggregatedPrices(context.Background(), "USDY", true)
	if err != nil {
		t.Fatalf("聚合不应报错: %v", err)
	}

	if view.Token.Symbol != "USDY" {
		t.Fatalf("token 标识错误: %+v", view.Token)
	}
	if view.NumVenues != 3 {
		t.Fatalf("期望 3 个 venue, 实际 %d", view.NumVenues)
	}
	if view.NumFreshVenues != 2 {
		t.Fatalf("期望 2 个 fresh venue, 实际 %d", view.NumFreshVenues)
	}
	if view.BestBid == nil || view.BestBid.VenueID != 99 {
		t.Fatalf("best bid 应来自 venue 99: %+v", view.BestBid)
	}
	if view.BestBid.VenueName != "Venue 99" {
		t.Fatalf("缺失元数据应使用合成名称, 实际 %s", view.BestBid.VenueName)
	}
	if view.BestAsk == nil || view.BestAsk.VenueID != 10 {
		t.Fatalf("best ask 应来自 venue 10: %+v", view.BestAsk)
	}
	if view.BestAsk.TradeURL != "https://kraken.example/USDY" {
		t.Fatalf("trade url 模板未渲染: %s", view.BestAsk.TradeURL)
	}
	if view.SpreadPct == nil || view.SpreadBps == nil {
		t.Fatal("有 fresh 数据时 spread 不应为 nil")
	}
	// 有效价差: bid 1.0912 (venue 99), ask 1.0915 (venue 10)。
	if view.SpreadBps.LessThanOrEqual(decimal.Zero) {
		t.Fatalf("期望正的 spread bps, 实际 %s", view.SpreadBps)
	}

	// 列表按 bid 降序; 过期条目包含在内。
	if len(view.Venues) != 3 {
		t.Fatalf("include_stale=true 应返回全部 venue, 实际 %d", len(view.Venues))
	}
	if view.Venues[0].VenueID != 99 || view.Venues[1].VenueID != 10 || view.Venues[2].VenueID != 11 {
		t.Fatalf("venue 排序错误: %+v", view.Venues)
	}
	if !view.Venues[2].IsStale {
		t.Fatal("过期 venue 应标记 is_stale")
	}

	// last_updated 覆盖全部快照, 取最大 fetched_at。
	if !view.LastUpdated.Equal(now.Add(-2 * time.Second)) {
		t.Fatalf("last_updated 错误: %s", view.LastUpdated)
	}
}

func TestAggregatedPricesExcludeStale(t *testing.T) {
	now := time.Now().UTC()
	tokens := &fakeTokens{tokens: []domain.Token{tradableToken(1, "USDY")}}
	snapshots := &fakeSnapshots{latest: map[int64][]domain.PriceSnapshot{
		1: {
			snapshotAt(1, 10, "1.09", "1.10", now.Add(-time.Second)),
			snapshotAt(1, 11, "1.08", "1.11", now.Add(-time.Hour)),
		},
	}}

	agg := NewAggregator(tokens, &fakeVenues{}, snapshots, pricing.NewCalculator(time.Minute), noopLogger())
	view, err := agg.AggregatedPrices(context.Background(), "USDY", false)
	if err != nil {
		t.Fatalf("聚合不应报错: %v", err)
	}
	if len(view.Venues) != 1 || view.Venues[0].VenueID != 10 {
		t.Fatalf("include_stale=false 应剔除过期条目: %+v", view.Venues)
	}
	if view.NumVenues != 2 {
		t.Fatal("num_venues 统计全部快照")
	}
	// last_updated 仍覆盖被剔除的快照。
	if !view.LastUpdated.Equal(now.Add(-time.Second)) {
		t.Fatalf("last_updated 错误: %s", view.LastUpdated)
	}
}

func TestAggregatedPricesAllStale(t *testing.T) {
	now := time.Now().UTC()
	tokens := &fakeTokens{tokens: []domain.Token{tradableToken(1, "USDY")}}
	snapshots := &fakeSnapshots{latest: map[int64][]domain.PriceSnapshot{
		1: {snapshotAt(1, 10, "1.09", "1.10", now.Add(-time.Hour))},
	}}

	agg := NewAggregator(tokens, &fakeVenues{}, snapshots, pricing.NewCalculator(time.Minute), noopLogger())
	view, err := agg.AggregatedPrices(context.Background(), "USDY", true)
	if err != nil {
		t.Fatalf("全部过期不是错误: %v", err)
	}
	if view.BestBid != nil || view.BestAsk != nil || view.SpreadPct != nil {
		t.Fatal("全部过期时 best prices 应为空")
	}
	if view.NumFreshVenues != 0 {
		t.Fatalf("期望 0 个 fresh venue, 实际 %d", view.NumFreshVenues)
	}
}
