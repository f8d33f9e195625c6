package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	getPollerStateSQL = `SELECT enabled, interval_seconds, updated_at
    FROM poller_state
    WHERE id = 1;`

	setPollerEnabledSQL = `INSERT INTO poller_state (id, enabled)
    VALUES (1, $1)
    ON CONFLICT (id) DO UPDATE
    SET enabled = EXCLUDED.enabled, updated_at = now();`
)

// GetPollerState reads the durable scheduler flag. A missing row reads as
// enabled so a fresh database polls out of the box.
func (s *Store) GetPollerState(ctx context.Context) (PollerState, error) {
	pool, err := s.getPool()
	if err != nil {
		return PollerState{}, err
	}

	var (
		state       PollerState
		intervalSec int64
	)
	scanErr := pool.QueryRow(ctx, getPollerStateSQL).Scan(&state.Enabled, &intervalSec, &state.UpdatedAt)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return PollerState{Enabled: true}, nil
		}
		return PollerState{}, fmt.Errorf("get poller state: %w", scanErr)
	}
	state.Interval = time.Duration(intervalSec) * time.Second
	return state, nil
}

// SetPollerEnabled flips the durable scheduler flag.
func (s *Store) SetPollerEnabled(ctx context.Context, enabled bool) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, setPollerEnabledSQL, enabled); execErr != nil {
		return fmt.Errorf("set poller enabled: %w", execErr)
	}
	return nil
}
