package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rwa-price-aggregator/internal/alerting"
	"rwa-price-aggregator/internal/domain"
	"rwa-price-aggregator/internal/feed"
	"rwa-price-aggregator/internal/storage"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

type fakeTokens struct {
	tokens []domain.Token
	err    error
}

func (f *fakeTokens) ListActiveTokens(context.Context) ([]domain.Token, error) {
	return f.tokens, f.err
}

func (f *fakeTokens) GetTokenBySymbol(_ context.Context, symbol string) (domain.Token, error) {
	if f.err != nil {
		return domain.Token{}, f.err
	}
	normalized := domain.NormalizeSymbol(symbol)
	for _, t := range f.tokens {
		if t.Symbol == normalized {
			return t, nil
		}
	}
	return domain.Token{}, fmt.Errorf("%w: %s", domain.ErrTokenNotFound, symbol)
}

type fakeVenues struct {
	venues []domain.Venue
	err    error
}

func (f *fakeVenues) ListActiveVenues(context.Context) ([]domain.Venue, error) {
	return f.venues, f.err
}

func (f *fakeVenues) GetVenueByName(_ context.Context, name string) (domain.Venue, error) {
	for _, v := range f.venues {
		if v.Name == name {
			return v, nil
		}
	}
	return domain.Venue{}, fmt.Errorf("%w: %s", domain.ErrVenueNotFound, name)
}

type fakeSnapshots struct {
	latest      map[int64][]domain.PriceSnapshot
	inserted    []domain.PriceSnapshot
	insertErr   error
	latestErr   error
	deletedUpTo *time.Time
}

func (f *fakeSnapshots) InsertSnapshots(_ context.Context, snapshots []domain.PriceSnapshot) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, snapshots...)
	return nil
}

func (f *fakeSnapshots) LatestSnapshots(_ context.Context, tokenID int64) ([]domain.PriceSnapshot, error) {
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	return f.latest[tokenID], nil
}

func (f *fakeSnapshots) ListSnapshotsBetween(_ context.Context, tokenID int64, from, to time.Time) ([]domain.PriceSnapshot, error) {
	var out []domain.PriceSnapshot
	for _, s := range f.latest[tokenID] {
		if !s.FetchedAt.Before(from) && s.FetchedAt.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSnapshots) SpreadHistory(context.Context, int64, time.Time, time.Time) ([]storage.SpreadHistoryPoint, error) {
	return nil, nil
}

func (f *fakeSnapshots) DeleteSnapshotsBefore(_ context.Context, olderThan time.Time) (int64, error) {
	f.deletedUpTo = &olderThan
	return 0, nil
}

func (f *fakeSnapshots) CountSnapshots(context.Context) (int64, error) {
	return int64(len(f.inserted)), nil
}

type fakeAlerts struct {
	alerts    []domain.Alert
	nextID    int64
	triggered map[int64]time.Time
	statuses  map[int64]domain.AlertStatus
	err       error
}

func newFakeAlerts(alerts ...domain.Alert) *fakeAlerts {
	return &fakeAlerts{
		alerts:    alerts,
		nextID:    int64(len(alerts)) + 1,
		triggered: make(map[int64]time.Time),
		statuses:  make(map[int64]domain.AlertStatus),
	}
}

func (f *fakeAlerts) CreateAlert(_ context.Context, alert domain.Alert) (domain.Alert, error) {
	if f.err != nil {
		return domain.Alert{}, f.err
	}
	alert.ID = f.nextID
	f.nextID++
	f.alerts = append(f.alerts, alert)
	return alert, nil
}

func (f *fakeAlerts) GetAlert(_ context.Context, id int64) (domain.Alert, error) {
	for _, a := range f.alerts {
		if a.ID == id {
			if status, ok := f.statuses[id]; ok {
				a.Status = status
			}
			return a, nil
		}
	}
	return domain.Alert{}, fmt.Errorf("%w: id %d", domain.ErrAlertNotFound, id)
}

func (f *fakeAlerts) ListActiveAlerts(context.Context) ([]domain.Alert, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Alert
	for _, a := range f.alerts {
		status := a.Status
		if override, ok := f.statuses[a.ID]; ok {
			status = override
		}
		if status == domain.AlertActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlerts) ListAlertsByEmail(_ context.Context, email domain.EmailAddress) ([]domain.Alert, error) {
	var out []domain.Alert
	for _, a := range f.alerts {
		status := a.Status
		if override, ok := f.statuses[a.ID]; ok {
			status = override
		}
		if a.Email.String() == email.String() && status != domain.AlertDeleted {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlerts) UpdateAlertTriggered(_ context.Context, id int64, triggeredAt time.Time) error {
	f.triggered[id] = triggeredAt
	return nil
}

func (f *fakeAlerts) UpdateAlertStatus(_ context.Context, id int64, status domain.AlertStatus) error {
	f.statuses[id] = status
	return nil
}

type fakeFetcher struct {
	quotes map[string][]feed.Quote
	err    error
	calls  []string
}

func (f *fakeFetcher) FetchAll(_ context.Context, symbol string) ([]feed.Quote, error) {
	f.calls = append(f.calls, symbol)
	if f.err != nil {
		return nil, f.err
	}
	return f.quotes[symbol], nil
}

type fakeNotifier struct {
	sent []alerting.Notification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, n alerting.Notification) error {
	f.sent = append(f.sent, n)
	return f.err
}

var (
	_ storage.TokenStore    = (*fakeTokens)(nil)
	_ storage.VenueStore    = (*fakeVenues)(nil)
	_ storage.SnapshotStore = (*fakeSnapshots)(nil)
	_ storage.AlertStore    = (*fakeAlerts)(nil)
	_ QuoteFetcher          = (*fakeFetcher)(nil)
	_ alerting.Notifier     = (*fakeNotifier)(nil)
)
