package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"rwa-price-aggregator/internal/domain"
)

func newTestSubscriptions(alerts *fakeAlerts, tokens *fakeTokens) *Subscriptions {
	return NewSubscriptions(alerts, tokens, noopLogger())
}

func TestSubscriptionsCreate(t *testing.T) {
	alerts := newFakeAlerts()
	tokens := &fakeTokens{tokens: []domain.Token{tradableToken(1, "USDY")}}
	subs := newTestSubscriptions(alerts, tokens)

	alert, token, err := subs.Create(context.Background(), CreateAlertInput{
		Email:         "trader@example.com",
		TokenSymbol:   "usdy",
		ThresholdPct:  decimal.RequireFromString("0.50"),
		CooldownHours: 24,
	})
	if err != nil {
		t.Fatalf("创建不应报错: %v", err)
	}
	if alert.ID == 0 {
		t.Fatal("应分配 alert id")
	}
	if token.Symbol != "USDY" {
		t.Fatalf("symbol 应归一化解析: %s", token.Symbol)
	}
	if alert.Status != domain.AlertActive {
		t.Fatal("新建 alert 应为 active")
	}
	if alert.Kind != domain.AlertSpreadBelow {
		t.Fatal("默认 kind 应为 spread_below")
	}
}

func TestSubscriptionsCreateValidation(t *testing.T) {
	tokens := &fakeTokens{tokens: []domain.Token{tradableToken(1, "USDY")}}
	subs := newTestSubscriptions(newFakeAlerts(), tokens)
	ctx := context.Background()

	if _, _, err := subs.Create(ctx, CreateAlertInput{
		Email:        "not-an-email",
		TokenSymbol:  "USDY",
		ThresholdPct: decimal.RequireFromString("0.50"),
	}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("非法邮箱应返回校验错误, 实际 %v", err)
	}

	if _, _, err := subs.Create(ctx, CreateAlertInput{
		Email:        "trader@example.com",
		TokenSymbol:  "NOPE",
		ThresholdPct: decimal.RequireFromString("0.50"),
	}); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("未知 token 应返回 ErrTokenNotFound, 实际 %v", err)
	}

	if _, _, err := subs.Create(ctx, CreateAlertInput{
		Email:        "trader@example.com",
		TokenSymbol:  "USDY",
		ThresholdPct: decimal.RequireFromString("250"),
	}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("阈值超界应返回校验错误, 实际 %v", err)
	}
}

func TestSubscriptionsCreateNAVOnly(t *testing.T) {
	navToken := tradableToken(2, "BUIDL")
	navToken.MarketType = domain.MarketNAVOnly
	tokens := &fakeTokens{tokens: []domain.Token{navToken}}
	subs := newTestSubscriptions(newFakeAlerts(), tokens)

	_, _, err := subs.Create(context.Background(), CreateAlertInput{
		Email:        "trader@example.com",
		TokenSymbol:  "BUIDL",
		ThresholdPct: decimal.RequireFromString("0.50"),
	})
	if !errors.Is(err, domain.ErrNotTradable) {
		t.Fatalf("NAV-only token 应拒绝订阅, 实际 %v", err)
	}
}

func TestSubscriptionsListByEmail(t *testing.T) {
	a1 := activeAlert(1, 1, "0.50")
	a2 := activeAlert(2, 2, "1.00")
	alerts := newFakeAlerts(a1, a2)
	tokens := &fakeTokens{tokens: []domain.Token{tradableToken(1, "USDY")}}
	subs := newTestSubscriptions(alerts, tokens)

	list, err := subs.ListByEmail(context.Background(), "trader@example.com")
	if err != nil {
		t.Fatalf("查询不应报错: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("期望 2 条订阅, 实际 %d", len(list))
	}
	if list[0].TokenSymbol != "USDY" {
		t.Fatalf("应补充 token 信息: %+v", list[0])
	}
	// token 2 不在注册表中, 信息留空但条目保留。
	if list[1].TokenSymbol != "" {
		t.Fatalf("未知 token 的订阅应保留: %+v", list[1])
	}
}

func TestSubscriptionsDelete(t *testing.T) {
	alerts := newFakeAlerts(activeAlert(1, 1, "0.50"))
	subs := newTestSubscriptions(alerts, &fakeTokens{})
	ctx := context.Background()

	if err := subs.Delete(ctx, 1); err != nil {
		t.Fatalf("删除不应报错: %v", err)
	}
	if alerts.statuses[1] != domain.AlertDeleted {
		t.Fatal("删除应是逻辑状态转换")
	}

	// 重复删除视为不存在。
	if err := subs.Delete(ctx, 1); !errors.Is(err, domain.ErrAlertNotFound) {
		t.Fatalf("重复删除应返回 ErrAlertNotFound, 实际 %v", err)
	}

	if err := subs.Delete(ctx, 99); !errors.Is(err, domain.ErrAlertNotFound) {
		t.Fatalf("未知 id 应返回 ErrAlertNotFound, 实际 %v", err)
	}
}

func TestSubscriptionsPauseActivate(t *testing.T) {
	alerts := newFakeAlerts(activeAlert(1, 1, "0.50"))
	subs := newTestSubscriptions(alerts, &fakeTokens{})
	ctx := context.Background()

	if err := subs.Pause(ctx, 1); err != nil {
		t.Fatalf("暂停不应报错: %v", err)
	}
	if alerts.statuses[1] != domain.AlertPaused {
		t.Fatal("应转换为 paused")
	}

	if err := subs.Activate(ctx, 1); err != nil {
		t.Fatalf("恢复不应报错: %v", err)
	}
	if alerts.statuses[1] != domain.AlertActive {
		t.Fatal("应转换回 active")
	}
}
