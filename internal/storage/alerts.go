package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	insertAlertEventSQL = `INSERT INTO alerts_sent (
        id, rule_id, rule_name, triggered_at, price_at_trigger,
        message, webhook_sent, webhook_response
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING created_at;`

	markAlertDeliverySQL = `UPDATE alerts_sent
    SET webhook_sent = $2, webhook_response = $3
    WHERE id = $1;`

	listRecentAlertsSQL = `SELECT
        id, rule_id, rule_name, triggered_at, price_at_trigger,
        message, webhook_sent, webhook_response, created_at
    FROM alerts_sent
    ORDER BY triggered_at DESC
    LIMIT $1;`

	lastAlertTimeSQL = `SELECT triggered_at
    FROM alerts_sent
    WHERE rule_id = $1
    ORDER BY triggered_at DESC
    LIMIT 1;`
)

// InsertAlertEvent records one rule firing. The delivery outcome is written
// later by MarkAlertDelivery, addressed by the returned id.
func (s *Store) InsertAlertEvent(ctx context.Context, event AlertEvent) (AlertEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertEvent{}, err
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	row := pool.QueryRow(ctx, insertAlertEventSQL,
		event.ID,
		event.RuleID,
		event.RuleName,
		event.TriggeredAt,
		event.PriceAtTrigger.String(),
		event.Message,
		event.WebhookSent,
		event.WebhookResponse,
	)
	if err := row.Scan(&event.CreatedAt); err != nil {
		return AlertEvent{}, fmt.Errorf("insert alert event: %w", err)
	}
	return event, nil
}

// MarkAlertDelivery records the final delivery outcome for one alert event.
func (s *Store) MarkAlertDelivery(ctx context.Context, id uuid.UUID, sent bool, response string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var resp *string
	if response != "" {
		resp = &response
	}

	tag, execErr := pool.Exec(ctx, markAlertDeliverySQL, id, sent, resp)
	if execErr != nil {
		return fmt.Errorf("mark alert delivery: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecentAlerts lists most recent alert events.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertEvent, 0, limit)
	for rows.Next() {
		event, scanErr := scanAlertEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, event)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// LastAlertTime returns when the rule last fired, if it ever did.
func (s *Store) LastAlertTime(ctx context.Context, ruleID uuid.UUID) (time.Time, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, false, err
	}

	var at time.Time
	scanErr := pool.QueryRow(ctx, lastAlertTimeSQL, ruleID).Scan(&at)
	if scanErr != nil {
		if scanErr == pgx.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("last alert time: %w", scanErr)
	}
	return at, true, nil
}

func scanAlertEvent(rows pgx.Rows) (AlertEvent, error) {
	var (
		event    AlertEvent
		priceStr string
	)

	if err := rows.Scan(
		&event.ID,
		&event.RuleID,
		&event.RuleName,
		&event.TriggeredAt,
		&priceStr,
		&event.Message,
		&event.WebhookSent,
		&event.WebhookResponse,
		&event.CreatedAt,
	); err != nil {
		return AlertEvent{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return AlertEvent{}, fmt.Errorf("parse price at trigger: %w", err)
	}
	event.PriceAtTrigger = price

	return event, nil
}
