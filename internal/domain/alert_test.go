package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustEmail(t *testing.T, v string) EmailAddress {
	t.Helper()
	e, err := NewEmailAddress(v)
	if err != nil {
		t.Fatalf("NewEmailAddress(%q): %v", v, err)
	}
	return e
}

func TestNewAlertValidation(t *testing.T) {
	now := time.Now().UTC()
	email := mustEmail(t, "trader@example.com")

	if _, err := NewAlert(email, 1, decimal.Zero, AlertSpreadBelow, 1, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero threshold: want ErrValidation, got %v", err)
	}
	if _, err := NewAlert(email, 1, dec("100.01"), AlertSpreadBelow, 1, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("threshold above 100: want ErrValidation, got %v", err)
	}
	if _, err := NewAlert(email, 1, dec("2"), AlertSpreadBelow, 169, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("cooldown above 168h: want ErrValidation, got %v", err)
	}
	if _, err := NewAlert(EmailAddress{}, 1, dec("2"), AlertSpreadBelow, 1, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero email: want ErrValidation, got %v", err)
	}

	a, err := NewAlert(email, 1, dec("100"), "", 0, now)
	if err != nil {
		t.Fatalf("threshold exactly 100 must be accepted: %v", err)
	}
	if a.Kind != AlertSpreadBelow {
		t.Fatalf("kind = %s, want default spread_below", a.Kind)
	}
	if a.Status != AlertActive {
		t.Fatalf("status = %s, want active", a.Status)
	}
}

func TestCanTriggerCooldown(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a, err := NewAlert(mustEmail(t, "trader@example.com"), 1, dec("2"), AlertSpreadBelow, 1, now)
	if err != nil {
		t.Fatalf("NewAlert: %v", err)
	}

	if !a.CanTrigger(now) {
		t.Fatal("never-triggered active alert must be eligible")
	}

	a.MarkTriggered(now)
	if a.CanTrigger(now) {
		t.Fatal("alert must not be eligible immediately after triggering")
	}
	if a.CanTrigger(now.Add(30 * time.Minute)) {
		t.Fatal("alert must not be eligible inside the cooldown window")
	}
	// Exactly at the boundary: strict greater-than, still ineligible.
	if a.CanTrigger(now.Add(time.Hour)) {
		t.Fatal("alert must not be eligible exactly at the cooldown boundary")
	}
	if !a.CanTrigger(now.Add(time.Hour + time.Second)) {
		t.Fatal("alert must be eligible once past the cooldown window")
	}
}

func TestCanTriggerStatus(t *testing.T) {
	now := time.Now().UTC()
	a, err := NewAlert(mustEmail(t, "trader@example.com"), 1, dec("2"), AlertSpreadBelow, 0, now)
	if err != nil {
		t.Fatalf("NewAlert: %v", err)
	}

	a.Pause()
	if a.CanTrigger(now) {
		t.Fatal("paused alert must not trigger")
	}
	a.Activate()
	if !a.CanTrigger(now) {
		t.Fatal("re-activated alert must trigger again")
	}
	a.Delete()
	if a.CanTrigger(now) {
		t.Fatal("deleted alert must not trigger")
	}
	if a.Status != AlertDeleted {
		t.Fatalf("status = %s, want deleted", a.Status)
	}
}

func TestEmailAddress(t *testing.T) {
	valid := []string{"a@b.co", "trader+rwa@example.com", "first.last@sub.domain.org"}
	for _, v := range valid {
		if _, err := NewEmailAddress(v); err != nil {
			t.Fatalf("NewEmailAddress(%q): unexpected error %v", v, err)
		}
	}

	invalid := []string{"", "plain", "@no-local.com", "no-domain@", "a@b", "spaces in@example.com"}
	for _, v := range invalid {
		if _, err := NewEmailAddress(v); !errors.Is(err, ErrValidation) {
			t.Fatalf("NewEmailAddress(%q): want ErrValidation, got %v", v, err)
		}
	}
}

func TestMarketTypeTradable(t *testing.T) {
	if !MarketTradable.Tradable() {
		t.Fatal("tradable market type must be tradable")
	}
	if MarketNAVOnly.Tradable() {
		t.Fatal("nav_only market type must not be tradable")
	}
}

func TestVenueTradeURL(t *testing.T) {
	v := Venue{TradeURLTemplate: "https://www.bybit.com/trade/spot/{symbol}/USDT"}
	if got := v.TradeURL("USDY"); got != "https://www.bybit.com/trade/spot/USDY/USDT" {
		t.Fatalf("TradeURL = %s", got)
	}
	if got := (Venue{}).TradeURL("USDY"); got != "" {
		t.Fatalf("TradeURL without template = %q, want empty", got)
	}
}
