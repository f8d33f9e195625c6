package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/diegodella1/slackalerts/internal/storage"
)

const latestPriceKey = "slackalerts:latest_price"

// Cache keeps the most recent price sample in redis so latest-price reads
// skip the database. All operations are best-effort.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// New wraps a redis client as a latest-price cache.
func New(client *redis.Client, logger zerolog.Logger) *Cache {
	return &Cache{
		client: client,
		ttl:    time.Hour,
		logger: logger.With().Str("component", "price_cache").Logger(),
	}
}

type cachedSample struct {
	Symbol        string    `json:"symbol"`
	Price         string    `json:"price"`
	Change        *string   `json:"change,omitempty"`
	ChangePercent *string   `json:"change_percent,omitempty"`
	Source        string    `json:"source"`
	CapturedAt    time.Time `json:"captured_at"`
}

// SetLatest stores the sample under the latest-price key.
func (c *Cache) SetLatest(ctx context.Context, sample storage.PriceSample) error {
	entry := cachedSample{
		Symbol:     sample.Symbol,
		Price:      sample.Price.String(),
		Source:     sample.Source,
		CapturedAt: sample.CapturedAt,
	}
	if sample.Change != nil {
		s := sample.Change.String()
		entry.Change = &s
	}
	if sample.ChangePercent != nil {
		s := sample.ChangePercent.String()
		entry.ChangePercent = &s
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cached sample: %w", err)
	}
	if err := c.client.Set(ctx, latestPriceKey, body, c.ttl).Err(); err != nil {
		return fmt.Errorf("set latest price: %w", err)
	}
	return nil
}

// GetLatest reads the cached sample. The second return is false on a miss.
func (c *Cache) GetLatest(ctx context.Context) (storage.PriceSample, bool, error) {
	body, err := c.client.Get(ctx, latestPriceKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return storage.PriceSample{}, false, nil
		}
		return storage.PriceSample{}, false, fmt.Errorf("get latest price: %w", err)
	}

	var entry cachedSample
	if err := json.Unmarshal(body, &entry); err != nil {
		return storage.PriceSample{}, false, fmt.Errorf("decode cached sample: %w", err)
	}

	price, err := decimal.NewFromString(entry.Price)
	if err != nil {
		return storage.PriceSample{}, false, fmt.Errorf("parse cached price: %w", err)
	}

	sample := storage.PriceSample{
		Symbol:     entry.Symbol,
		Price:      price,
		Source:     entry.Source,
		CapturedAt: entry.CapturedAt,
	}
	if entry.Change != nil {
		if d, err := decimal.NewFromString(*entry.Change); err == nil {
			sample.Change = &d
		}
	}
	if entry.ChangePercent != nil {
		if d, err := decimal.NewFromString(*entry.ChangePercent); err == nil {
			sample.ChangePercent = &d
		}
	}

	return sample, true, nil
}
