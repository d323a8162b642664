package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"rwa-price-aggregator/internal/domain"
)

const (
	insertAlertSQL = `INSERT INTO alerts (
        email,
        token_id,
        threshold_pct,
        kind,
        status,
        cooldown_hours,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING id;`

	getAlertSQL = `SELECT
        id,
        email,
        token_id,
        threshold_pct,
        kind,
        status,
        cooldown_hours,
        last_triggered_at,
        created_at
    FROM alerts
    WHERE id = $1;`

	listActiveAlertsSQL = `SELECT
        id,
        email,
        token_id,
        threshold_pct,
        kind,
        status,
        cooldown_hours,
        last_triggered_at,
        created_at
    FROM alerts
    WHERE status = 'active'
    ORDER BY id;`

	listAlertsByEmailSQL = `SELECT
        id,
        email,
        token_id,
        threshold_pct,
        kind,
        status,
        cooldown_hours,
        last_triggered_at,
        created_at
    FROM alerts
    WHERE email = $1
      AND status <> 'deleted'
    ORDER BY id;`

	updateAlertTriggeredSQL = `UPDATE alerts
    SET last_triggered_at = $2
    WHERE id = $1;`

	updateAlertStatusSQL = `UPDATE alerts
    SET status = $2
    WHERE id = $1;`
)

// AlertStore defines persistence for alert subscriptions.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert domain.Alert) (domain.Alert, error)
	GetAlert(ctx context.Context, id int64) (domain.Alert, error)
	ListActiveAlerts(ctx context.Context) ([]domain.Alert, error)
	ListAlertsByEmail(ctx context.Context, email domain.EmailAddress) ([]domain.Alert, error)
	UpdateAlertTriggered(ctx context.Context, id int64, triggeredAt time.Time) error
	UpdateAlertStatus(ctx context.Context, id int64, status domain.AlertStatus) error
}

// CreateAlert persists a new subscription and returns it with its id.
func (s *Store) CreateAlert(ctx context.Context, alert domain.Alert) (domain.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Alert{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Email.String(),
		alert.TokenID,
		alert.ThresholdPct.String(),
		string(alert.Kind),
		string(alert.Status),
		alert.CooldownHours,
		alert.CreatedAt,
	)
	if scanErr := row.Scan(&alert.ID); scanErr != nil {
		return domain.Alert{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return alert, nil
}

// GetAlert loads one subscription by id.
func (s *Store) GetAlert(ctx context.Context, id int64) (domain.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Alert{}, err
	}

	rows, queryErr := pool.Query(ctx, getAlertSQL, id)
	if queryErr != nil {
		return domain.Alert{}, fmt.Errorf("get alert: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return domain.Alert{}, rows.Err()
		}
		return domain.Alert{}, fmt.Errorf("%w: id %d", domain.ErrAlertNotFound, id)
	}
	return scanAlert(rows)
}

// ListActiveAlerts lists every subscription eligible for evaluation.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]domain.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveAlertsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// ListAlertsByEmail lists a subscriber's non-deleted alerts.
func (s *Store) ListAlertsByEmail(ctx context.Context, email domain.EmailAddress) ([]domain.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsByEmailSQL, email.String())
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts by email: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// UpdateAlertTriggered records the last firing time.
func (s *Store) UpdateAlertTriggered(ctx context.Context, id int64, triggeredAt time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, updateAlertTriggeredSQL, id, triggeredAt)
	if execErr != nil {
		return fmt.Errorf("update alert triggered: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", domain.ErrAlertNotFound, id)
	}
	return nil
}

// UpdateAlertStatus transitions a subscription's lifecycle state.
func (s *Store) UpdateAlertStatus(ctx context.Context, id int64, status domain.AlertStatus) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, updateAlertStatusSQL, id, string(status))
	if execErr != nil {
		return fmt.Errorf("update alert status: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", domain.ErrAlertNotFound, id)
	}
	return nil
}

func collectAlerts(rows pgx.Rows) ([]domain.Alert, error) {
	alerts := make([]domain.Alert, 0)
	for rows.Next() {
		alert, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanAlert(rows pgx.Rows) (domain.Alert, error) {
	var (
		alert         domain.Alert
		emailStr      string
		thresholdStr  string
		kindStr       string
		statusStr     string
		lastTriggered *time.Time
	)

	if err := rows.Scan(
		&alert.ID,
		&emailStr,
		&alert.TokenID,
		&thresholdStr,
		&kindStr,
		&statusStr,
		&alert.CooldownHours,
		&lastTriggered,
		&alert.CreatedAt,
	); err != nil {
		return domain.Alert{}, err
	}

	email, err := domain.NewEmailAddress(emailStr)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("alert %d: %w", alert.ID, err)
	}
	threshold, err := decimal.NewFromString(thresholdStr)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("parse threshold pct: %w", err)
	}

	alert.Email = email
	alert.ThresholdPct = threshold
	alert.Kind = domain.AlertKind(kindStr)
	alert.Status = domain.AlertStatus(statusStr)
	alert.LastTriggeredAt = lastTriggered
	return alert, nil
}

var _ AlertStore = (*Store)(nil)
