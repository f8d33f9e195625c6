package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	createRuleSQL = `INSERT INTO rules (
        id, owner_id, name, description, condition_type, threshold,
        window_minutes, message_template, webhook_id, enabled
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    RETURNING created_at, updated_at;`

	updateRuleSQL = `UPDATE rules
    SET name = $2,
        description = $3,
        condition_type = $4,
        threshold = $5,
        window_minutes = $6,
        message_template = $7,
        webhook_id = $8,
        enabled = $9,
        updated_at = now()
    WHERE id = $1
    RETURNING created_at, updated_at;`

	deleteRuleSQL = `DELETE FROM rules WHERE id = $1;`

	ruleColumns = `id, owner_id, name, description, condition_type, threshold,
        window_minutes, message_template, webhook_id, enabled, created_at, updated_at`
)

var (
	getRuleSQL          = `SELECT ` + ruleColumns + ` FROM rules WHERE id = $1;`
	listRulesSQL        = `SELECT ` + ruleColumns + ` FROM rules ORDER BY created_at;`
	listEnabledRulesSQL = `SELECT ` + ruleColumns + ` FROM rules WHERE enabled ORDER BY created_at;`
)

// ValidateRule enforces the invariants rules must satisfy on create/update.
func ValidateRule(rule Rule) error {
	if rule.Name == "" {
		return errors.New("rule name is required")
	}
	if !ValidConditionType(rule.ConditionType) {
		return fmt.Errorf("unknown condition type %q", rule.ConditionType)
	}
	if rule.Threshold.IsNegative() {
		return errors.New("threshold cannot be negative")
	}
	if rule.WindowMinutes < 1 {
		return errors.New("window_minutes must be at least 1")
	}
	if rule.MessageTemplate == "" {
		return errors.New("message template is required")
	}
	return nil
}

// CreateRule persists a new rule after validating its invariants.
func (s *Store) CreateRule(ctx context.Context, rule Rule) (Rule, error) {
	pool, err := s.getPool()
	if err != nil {
		return Rule{}, err
	}
	if err := ValidateRule(rule); err != nil {
		return Rule{}, err
	}

	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}

	row := pool.QueryRow(ctx, createRuleSQL,
		rule.ID,
		rule.OwnerID,
		rule.Name,
		rule.Description,
		rule.ConditionType,
		rule.Threshold.String(),
		rule.WindowMinutes,
		rule.MessageTemplate,
		rule.WebhookID,
		rule.Enabled,
	)
	if err := row.Scan(&rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return Rule{}, fmt.Errorf("create rule: %w", err)
	}
	return rule, nil
}

// UpdateRule rewrites an existing rule after validating its invariants.
func (s *Store) UpdateRule(ctx context.Context, rule Rule) (Rule, error) {
	pool, err := s.getPool()
	if err != nil {
		return Rule{}, err
	}
	if err := ValidateRule(rule); err != nil {
		return Rule{}, err
	}

	row := pool.QueryRow(ctx, updateRuleSQL,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.ConditionType,
		rule.Threshold.String(),
		rule.WindowMinutes,
		rule.MessageTemplate,
		rule.WebhookID,
		rule.Enabled,
	)
	if err := row.Scan(&rule.CreatedAt, &rule.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrNotFound
		}
		return Rule{}, fmt.Errorf("update rule: %w", err)
	}
	return rule, nil
}

// DeleteRule removes a rule.
func (s *Store) DeleteRule(ctx context.Context, id uuid.UUID) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, deleteRuleSQL, id)
	if execErr != nil {
		return fmt.Errorf("delete rule: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRule fetches one rule by id.
func (s *Store) GetRule(ctx context.Context, id uuid.UUID) (Rule, error) {
	pool, err := s.getPool()
	if err != nil {
		return Rule{}, err
	}

	rows, queryErr := pool.Query(ctx, getRuleSQL, id)
	if queryErr != nil {
		return Rule{}, fmt.Errorf("get rule: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return Rule{}, rows.Err()
		}
		return Rule{}, ErrNotFound
	}
	return scanRule(rows)
}

// ListRules lists all rules in creation order.
func (s *Store) ListRules(ctx context.Context) ([]Rule, error) {
	return s.queryRules(ctx, listRulesSQL)
}

// ListEnabledRules lists the rules the evaluator must check each pass,
// in storage order.
func (s *Store) ListEnabledRules(ctx context.Context) ([]Rule, error) {
	return s.queryRules(ctx, listEnabledRulesSQL)
}

func (s *Store) queryRules(ctx context.Context, sql string) ([]Rule, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, sql)
	if queryErr != nil {
		return nil, fmt.Errorf("list rules: %w", queryErr)
	}
	defer rows.Close()

	rules := make([]Rule, 0)
	for rows.Next() {
		rule, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rules, nil
}

func scanRule(rows pgx.Rows) (Rule, error) {
	var (
		rule         Rule
		thresholdStr string
	)

	if err := rows.Scan(
		&rule.ID,
		&rule.OwnerID,
		&rule.Name,
		&rule.Description,
		&rule.ConditionType,
		&thresholdStr,
		&rule.WindowMinutes,
		&rule.MessageTemplate,
		&rule.WebhookID,
		&rule.Enabled,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return Rule{}, err
	}

	threshold, err := decimal.NewFromString(thresholdStr)
	if err != nil {
		return Rule{}, fmt.Errorf("parse threshold: %w", err)
	}
	rule.Threshold = threshold

	return rule, nil
}
