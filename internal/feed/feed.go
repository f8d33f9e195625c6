package feed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is one observation of the upstream price feed.
type Snapshot struct {
	Price         decimal.Decimal
	Change        *decimal.Decimal
	ChangePercent *decimal.Decimal
	MarketCap     *decimal.Decimal
	Volume24h     *decimal.Decimal
	Source        string
	CapturedAt    time.Time
}

// Fetcher retrieves a live price snapshot from the upstream feed.
type Fetcher interface {
	Fetch(ctx context.Context) (Snapshot, error)
}
