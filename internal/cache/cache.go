// Package cache tracks the last observed spread per alert so the
// checker can distinguish a downward crossing from a spread that was
// already below the threshold.
package cache

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"rwa-price-aggregator/internal/domain"
)

// SpreadStateStore persists the last observed effective spread per
// alert across check cycles. Get returns nil spread (no error) when no
// observation exists yet.
type SpreadStateStore interface {
	Get(ctx context.Context, alertID int64) (*domain.Spread, error)
	Set(ctx context.Context, alertID int64, spread domain.Spread) error
	Clear(ctx context.Context, alertID int64) error
}

// MemorySpreadState is a process-local SpreadStateStore for tests and
// single-instance deployments without Redis.
type MemorySpreadState struct {
	mu     sync.RWMutex
	values map[int64]decimal.Decimal
}

// NewMemorySpreadState builds an empty in-memory store.
func NewMemorySpreadState() *MemorySpreadState {
	return &MemorySpreadState{values: make(map[int64]decimal.Decimal)}
}

// Get implements SpreadStateStore.
func (m *MemorySpreadState) Get(_ context.Context, alertID int64) (*domain.Spread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pct, ok := m.values[alertID]
	if !ok {
		return nil, nil
	}
	spread := domain.SpreadFromPercentage(pct)
	return &spread, nil
}

// Set implements SpreadStateStore.
func (m *MemorySpreadState) Set(_ context.Context, alertID int64, spread domain.Spread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[alertID] = spread.Percentage()
	return nil
}

// Clear implements SpreadStateStore.
func (m *MemorySpreadState) Clear(_ context.Context, alertID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, alertID)
	return nil
}

var _ SpreadStateStore = (*MemorySpreadState)(nil)
