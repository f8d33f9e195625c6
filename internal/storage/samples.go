package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	insertPriceSampleSQL = `INSERT INTO price_history (
        symbol,
        price,
        price_change,
        price_change_percent,
        market_cap,
        volume_24h,
        source,
        captured_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id, created_at;`

	latestPriceSampleSQL = `SELECT
        id, symbol, price, price_change, price_change_percent,
        market_cap, volume_24h, source, captured_at, created_at
    FROM price_history
    ORDER BY captured_at DESC
    LIMIT 1;`

	listSamplesBetweenSQL = `SELECT
        id, symbol, price, price_change, price_change_percent,
        market_cap, volume_24h, source, captured_at, created_at
    FROM price_history
    WHERE captured_at >= $1
      AND captured_at < $2
    ORDER BY captured_at;`

	listRecentSamplesSQL = `SELECT
        id, symbol, price, price_change, price_change_percent,
        market_cap, volume_24h, source, captured_at, created_at
    FROM price_history
    ORDER BY captured_at DESC
    LIMIT $1;`

	countSamplesSQL = `SELECT COUNT(*) FROM price_history;`
)

// InsertPriceSample appends one observation to the price history.
func (s *Store) InsertPriceSample(ctx context.Context, sample PriceSample) (PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceSample{}, err
	}

	row := pool.QueryRow(ctx, insertPriceSampleSQL,
		sample.Symbol,
		sample.Price.String(),
		nullableDecimal(sample.Change),
		nullableDecimal(sample.ChangePercent),
		nullableDecimal(sample.MarketCap),
		nullableDecimal(sample.Volume24h),
		sample.Source,
		sample.CapturedAt,
	)

	if err := row.Scan(&sample.ID, &sample.CreatedAt); err != nil {
		return PriceSample{}, fmt.Errorf("insert price sample: %w", err)
	}
	return sample, nil
}

// LatestPriceSample returns the most recent persisted observation.
func (s *Store) LatestPriceSample(ctx context.Context) (PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceSample{}, err
	}

	rows, queryErr := pool.Query(ctx, latestPriceSampleSQL)
	if queryErr != nil {
		return PriceSample{}, fmt.Errorf("latest price sample: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return PriceSample{}, rows.Err()
		}
		return PriceSample{}, ErrNotFound
	}
	return scanPriceSample(rows)
}

// ListSamplesBetween lists samples within a time window.
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, 0)
}

// ListRecentSamples lists the most recent samples ordered by descending capture time.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, limit)
}

// CountSamples counts stored samples.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

func collectSamples(rows pgx.Rows, sizeHint int) ([]PriceSample, error) {
	samples := make([]PriceSample, 0, sizeHint)
	for rows.Next() {
		sample, scanErr := scanPriceSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func scanPriceSample(rows pgx.Rows) (PriceSample, error) {
	var (
		sample     PriceSample
		priceStr   string
		change     *string
		changePct  *string
		marketCap  *string
		volume24h  *string
		capturedAt time.Time
	)

	if err := rows.Scan(
		&sample.ID,
		&sample.Symbol,
		&priceStr,
		&change,
		&changePct,
		&marketCap,
		&volume24h,
		&sample.Source,
		&capturedAt,
		&sample.CreatedAt,
	); err != nil {
		return PriceSample{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceSample{}, fmt.Errorf("parse price: %w", err)
	}
	sample.Price = price
	sample.CapturedAt = capturedAt

	if sample.Change, err = parseNullableDecimal(change); err != nil {
		return PriceSample{}, fmt.Errorf("parse price change: %w", err)
	}
	if sample.ChangePercent, err = parseNullableDecimal(changePct); err != nil {
		return PriceSample{}, fmt.Errorf("parse price change percent: %w", err)
	}
	if sample.MarketCap, err = parseNullableDecimal(marketCap); err != nil {
		return PriceSample{}, fmt.Errorf("parse market cap: %w", err)
	}
	if sample.Volume24h, err = parseNullableDecimal(volume24h); err != nil {
		return PriceSample{}, fmt.Errorf("parse volume: %w", err)
	}

	return sample, nil
}

func nullableDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullableDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// IsNotFound reports whether err means the requested row is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}
