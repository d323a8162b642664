package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"rwa-price-aggregator/internal/alerting"
	"rwa-price-aggregator/internal/cache"
	"rwa-price-aggregator/internal/domain"
	"rwa-price-aggregator/internal/pricing"
)

func activeAlert(id, tokenID int64, threshold string) domain.Alert {
	email, _ := domain.NewEmailAddress("trader@example.com")
	return domain.Alert{
		ID:            id,
		Email:         email,
		TokenID:       tokenID,
		ThresholdPct:  decimal.RequireFromString(threshold),
		Kind:          domain.AlertSpreadBelow,
		Status:        domain.AlertActive,
		CooldownHours: 1,
		CreatedAt:     time.Now().UTC(),
	}
}

func newTestChecker(alerts *fakeAlerts, tokens *fakeTokens, snapshots *fakeSnapshots, notifier *fakeNotifier, state cache.SpreadStateStore) *Checker {
	return NewChecker(
		alerts,
		tokens,
		&fakeVenues{venues: []domain.Venue{{ID: 10, Name: "Kraken", IsActive: true}}},
		snapshots,
		pricing.NewCalculator(time.Minute),
		alerting.NewPolicy(),
		notifier,
		state,
		noopLogger(),
	)
}

func TestCheckerTriggersAndPersists(t *testing.T) {
	now := time.Now().UTC()
	alerts := newFakeAlerts(activeAlert(1, 1, "0.50"))
	tokens := &fakeTokens{tokens: []domain.Token{tradableToken(1, "USDY")}}
	// spread ~0.13%, 低于 0.50% 阈值。
	snapshots := &fakeSnapshots{latest: map[int64][]domain.PriceSnapshot{
		1: {snapshotAt(1, 10, "1.0901", "1.0915", now.Add(-time.Second))},
	}}
	notifier := &fakeNotifier{}
	state := cache.NewMemorySpreadState()

	c := newTestChecker(alerts, tokens, snapshots, notifier, state)
	if err := c.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("周期不应报错: %v", err)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("期望发送 1 条通知, 实际 %d", len(notifier.sent))
	}
	n := notifier.sent[0]
	if n.TokenSymbol != "USDY" || n.BestBidVenue != "Kraken" {
		t.Fatalf("通知内容错误: %+v", n)
	}
	if _, ok := alerts.triggered[1]; !ok {
		t.Fatal("触发时间应被持久化")
	}

	// 当前价差应写入状态存储供下个周期做 crossing 判断。
	prev, _ := state.Get(context.Background(), 1)
	if prev == nil {
		t.Fatal("评估后应记录本次价差")
	}
}

func TestCheckerNoRefireWhileBelow(t *testing.T) {
	now := time.Now().UTC()
	alert := activeAlert(1, 1, "0.50")
	alert.CooldownHours = 0
	alerts := newFakeAlerts(alert)
	tokens := &fakeTokens{tokens: []domain.Token{tradableToken(1, "USDY")}}
	snapshots := &fakeSnapshots{latest: map[int64][]domain.PriceSnapshot{
		1: {snapshotAt(1, 10, "1.0901", "1.0915", now.Add(-time.Second))},
	}}
	notifier := &fakeNotifier{}
	state := cache.NewMemorySpreadState()

	c := newTestChecker(alerts, tokens, snapshots, notifier, state)

	// 第一个周期: 首次评估, 低于阈值即触发。
	if err := c.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("周期不应报错: %v", err)
	}
	// 第二个周期: 价差持续低于阈值但没有向下穿越, 不应重复触发。
	if err := c.RunCycle(context.Background(), now.Add(time.Minute)); err != nil {
		t.Fatalf("周期不应报错: %v", err)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("持续低于阈值不应重复触发, 实际发送 %d 次", len(notifier.sent))
	}
}

func TestCheckerMarksTriggeredDespiteSendFailure(t *testing.T) {
	now := time.Now().UTC()
	alerts := newFakeAlerts(activeAlert(1, 1, "0.50"))
	tokens := &fakeTokens{tokens: []domain.Token{tradableToken(1, "USDY")}}
	snapshots := &fakeSnapshots{latest: map[int64][]domain.PriceSnapshot{
		1: {snapshotAt(1, 10, "1.0901", "1.0915", now.Add(-time.Second))},
	}}
	notifier := &fakeNotifier{err: errors.New("smtp down")}
	state := cache.NewMemorySpreadState()

	c := newTestChecker(alerts, tokens, snapshots, notifier, state)
	if err := c.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("周期不应报错: %v", err)
	}

	// 发送失败仍计入冷却, 避免邮件服务抖动导致告警风暴。
	if _, ok := alerts.triggered[1]; !ok {
		t.Fatal("发送失败时也应记录触发时间")
	}
}

func TestCheckerSkipsAlertWithoutData(t *testing.T) {
	alerts := newFakeAlerts(
		activeAlert(1, 1, "0.50"),
		activeAlert(2, 2, "0.50"),
	)
	now := time.Now().UTC()
	tokens := &fakeTokens{tokens: []domain.Token{
		tradableToken(1, "USDY"),
		tradableToken(2, "OUSG"),
	}}
	// token 1 无任何快照; token 2 正常。
	snapshots := &fakeSnapshots{latest: map[int64][]domain.PriceSnapshot{
		2: {snapshotAt(2, 10, "105.20", "105.30", now.Add(-time.Second))},
	}}
	notifier := &fakeNotifier{}

	c := newTestChecker(alerts, tokens, snapshots, notifier, cache.NewMemorySpreadState())
	if err := c.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("周期不应报错: %v", err)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].TokenSymbol != "OUSG" {
		t.Fatalf("缺数据的 alert 应被跳过, 其余照常: %+v", notifier.sent)
	}
}

func TestCheckerSkipsUnknownToken(t *testing.T) {
	alerts := newFakeAlerts(activeAlert(1, 42, "0.50"))
	tokens := &fakeTokens{}
	notifier := &fakeNotifier{}

	c := newTestChecker(alerts, tokens, &fakeSnapshots{}, notifier, cache.NewMemorySpreadState())
	if err := c.RunCycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("未知 token 不应中断周期: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatal("未知 token 的 alert 不应触发")
	}
}

func TestCheckerRespectsAboveThreshold(t *testing.T) {
	now := time.Now().UTC()
	// spread ~0.13%, 阈值更紧(0.05%), 不应触发。
	alerts := newFakeAlerts(activeAlert(1, 1, "0.05"))
	tokens := &fakeTokens{tokens: []domain.Token{tradableToken(1, "USDY")}}
	snapshots := &fakeSnapshots{latest: map[int64][]domain.PriceSnapshot{
		1: {snapshotAt(1, 10, "1.0901", "1.0915", now.Add(-time.Second))},
	}}
	notifier := &fakeNotifier{}

	c := newTestChecker(alerts, tokens, snapshots, notifier, cache.NewMemorySpreadState())
	if err := c.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("周期不应报错: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatal("高于阈值不应触发")
	}
}

func TestCheckerSkipsSummaryKind(t *testing.T) {
	now := time.Now().UTC()
	alert := activeAlert(1, 1, "0.50")
	alert.Kind = domain.AlertDailySummary
	alerts := newFakeAlerts(alert)
	tokens := &fakeTokens{tokens: []domain.Token{tradableToken(1, "USDY")}}
	snapshots := &fakeSnapshots{latest: map[int64][]domain.PriceSnapshot{
		1: {snapshotAt(1, 10, "1.0901", "1.0915", now.Add(-time.Second))},
	}}
	notifier := &fakeNotifier{}

	c := newTestChecker(alerts, tokens, snapshots, notifier, cache.NewMemorySpreadState())
	if err := c.RunCycle(context.Background(), now); err != nil {
		t.Fatalf("周期不应报错: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatal("daily_summary 类型不应由 crossing 检查触发")
	}
}
