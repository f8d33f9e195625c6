package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	createWebhookSQL = `INSERT INTO webhooks (
        id, owner_id, name, url, type, active
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING created_at, updated_at;`

	updateWebhookSQL = `UPDATE webhooks
    SET name = $2, url = $3, type = $4, active = $5, updated_at = now()
    WHERE id = $1
    RETURNING created_at, updated_at;`

	deleteWebhookSQL = `DELETE FROM webhooks WHERE id = $1;`

	webhookColumns = `id, owner_id, name, url, type, active, created_at, updated_at`
)

var (
	getWebhookSQL   = `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = $1;`
	listWebhooksSQL = `SELECT ` + webhookColumns + ` FROM webhooks ORDER BY created_at;`
)

// ValidateWebhook enforces delivery target invariants on create/update.
func ValidateWebhook(hook Webhook) error {
	if hook.Name == "" {
		return errors.New("webhook name is required")
	}
	if hook.URL == "" {
		return errors.New("webhook url is required")
	}
	if !ValidWebhookType(hook.Type) {
		return fmt.Errorf("unknown webhook type %q", hook.Type)
	}
	return nil
}

// CreateWebhook persists a new delivery target.
func (s *Store) CreateWebhook(ctx context.Context, hook Webhook) (Webhook, error) {
	pool, err := s.getPool()
	if err != nil {
		return Webhook{}, err
	}
	if err := ValidateWebhook(hook); err != nil {
		return Webhook{}, err
	}

	if hook.ID == uuid.Nil {
		hook.ID = uuid.New()
	}

	row := pool.QueryRow(ctx, createWebhookSQL,
		hook.ID, hook.OwnerID, hook.Name, hook.URL, hook.Type, hook.Active,
	)
	if err := row.Scan(&hook.CreatedAt, &hook.UpdatedAt); err != nil {
		return Webhook{}, fmt.Errorf("create webhook: %w", err)
	}
	return hook, nil
}

// UpdateWebhook rewrites an existing delivery target.
func (s *Store) UpdateWebhook(ctx context.Context, hook Webhook) (Webhook, error) {
	pool, err := s.getPool()
	if err != nil {
		return Webhook{}, err
	}
	if err := ValidateWebhook(hook); err != nil {
		return Webhook{}, err
	}

	row := pool.QueryRow(ctx, updateWebhookSQL,
		hook.ID, hook.Name, hook.URL, hook.Type, hook.Active,
	)
	if err := row.Scan(&hook.CreatedAt, &hook.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Webhook{}, ErrNotFound
		}
		return Webhook{}, fmt.Errorf("update webhook: %w", err)
	}
	return hook, nil
}

// DeleteWebhook removes a delivery target.
func (s *Store) DeleteWebhook(ctx context.Context, id uuid.UUID) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, deleteWebhookSQL, id)
	if execErr != nil {
		return fmt.Errorf("delete webhook: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetWebhook fetches one delivery target by id.
func (s *Store) GetWebhook(ctx context.Context, id uuid.UUID) (Webhook, error) {
	pool, err := s.getPool()
	if err != nil {
		return Webhook{}, err
	}

	var hook Webhook
	row := pool.QueryRow(ctx, getWebhookSQL, id)
	if err := row.Scan(
		&hook.ID, &hook.OwnerID, &hook.Name, &hook.URL,
		&hook.Type, &hook.Active, &hook.CreatedAt, &hook.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Webhook{}, ErrNotFound
		}
		return Webhook{}, fmt.Errorf("get webhook: %w", err)
	}
	return hook, nil
}

// ListWebhooks lists all delivery targets in creation order.
func (s *Store) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listWebhooksSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list webhooks: %w", queryErr)
	}
	defer rows.Close()

	hooks := make([]Webhook, 0)
	for rows.Next() {
		var hook Webhook
		if err := rows.Scan(
			&hook.ID, &hook.OwnerID, &hook.Name, &hook.URL,
			&hook.Type, &hook.Active, &hook.CreatedAt, &hook.UpdatedAt,
		); err != nil {
			return nil, err
		}
		hooks = append(hooks, hook)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return hooks, nil
}
