package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diegodella1/slackalerts/internal/config"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("storage: not found")
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// SampleStore defines operations for price history persistence.
type SampleStore interface {
	InsertPriceSample(ctx context.Context, sample PriceSample) (PriceSample, error)
	LatestPriceSample(ctx context.Context) (PriceSample, error)
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]PriceSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]PriceSample, error)
	CountSamples(ctx context.Context) (int64, error)
}

// RuleStore defines CRUD operations over alert rules.
type RuleStore interface {
	CreateRule(ctx context.Context, rule Rule) (Rule, error)
	UpdateRule(ctx context.Context, rule Rule) (Rule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
	GetRule(ctx context.Context, id uuid.UUID) (Rule, error)
	ListRules(ctx context.Context) ([]Rule, error)
	ListEnabledRules(ctx context.Context) ([]Rule, error)
}

// AlertStore defines operations for alert event auditing.
type AlertStore interface {
	InsertAlertEvent(ctx context.Context, event AlertEvent) (AlertEvent, error)
	MarkAlertDelivery(ctx context.Context, id uuid.UUID, sent bool, response string) error
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertEvent, error)
	LastAlertTime(ctx context.Context, ruleID uuid.UUID) (time.Time, bool, error)
}

// WebhookStore defines CRUD operations over delivery targets.
type WebhookStore interface {
	CreateWebhook(ctx context.Context, hook Webhook) (Webhook, error)
	UpdateWebhook(ctx context.Context, hook Webhook) (Webhook, error)
	DeleteWebhook(ctx context.Context, id uuid.UUID) error
	GetWebhook(ctx context.Context, id uuid.UUID) (Webhook, error)
	ListWebhooks(ctx context.Context) ([]Webhook, error)
}

// PollerStore persists the durable scheduler flag.
type PollerStore interface {
	GetPollerState(ctx context.Context) (PollerState, error)
	SetPollerEnabled(ctx context.Context, enabled bool) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to price history, rules, alerts, and webhooks.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

const (
	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

var (
	_ SampleStore    = (*Store)(nil)
	_ RuleStore      = (*Store)(nil)
	_ AlertStore     = (*Store)(nil)
	_ WebhookStore   = (*Store)(nil)
	_ PollerStore    = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
