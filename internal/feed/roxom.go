package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const roxomInfoPath = "/btc/info"

// RoxomOptions parameterise the Roxom feed client.
type RoxomOptions struct {
	BaseURL   string
	APIKey    string
	Source    string
	Timeout   time.Duration
	UserAgent string
}

// Roxom fetches BTC price snapshots from the Roxom realtime API.
type Roxom struct {
	opts    RoxomOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewRoxom constructs a Roxom feed client.
func NewRoxom(opts RoxomOptions, logger zerolog.Logger) *Roxom {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://rtvapi.roxom.com"
	}

	if opts.Source == "" {
		opts.Source = "roxom_api"
	}

	return &Roxom{
		opts:    opts,
		logger:  logger.With().Str("component", "feed_roxom").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Fetch retrieves the live BTC info document and parses its price text.
func (r *Roxom) Fetch(ctx context.Context) (Snapshot, error) {
	endpoint := r.baseURL + roxomInfoPath
	if r.opts.APIKey != "" {
		endpoint = fmt.Sprintf("%s?apiKey=%s", endpoint, r.opts.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("create feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(r.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "slackalerts/1.0")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read feed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, parseHTTPError(resp.StatusCode, payload)
	}

	var doc infoResponse
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("decode feed response: %w", err)
	}

	info, err := ParsePriceText(doc.Price.LivePrice)
	if err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{
		Price:         info.Price,
		Change:        info.Change,
		ChangePercent: info.ChangePercent,
		Source:        r.opts.Source,
		CapturedAt:    time.Now().UTC(),
	}

	if doc.PriceStats.MarketCap != nil {
		mcap := decimal.NewFromFloat(*doc.PriceStats.MarketCap)
		snapshot.MarketCap = &mcap
	}
	if doc.Trading.DailyBTCTradingVol != nil {
		vol := decimal.NewFromFloat(*doc.Trading.DailyBTCTradingVol)
		snapshot.Volume24h = &vol
	}

	r.logger.Debug().
		Str("price", snapshot.Price.String()).
		Msg("feed snapshot fetched")

	return snapshot, nil
}

type infoResponse struct {
	Price struct {
		LivePrice string `json:"live_price"`
	} `json:"price"`
	PriceStats struct {
		MarketCap *float64 `json:"market_cap"`
	} `json:"price_"`
	Trading struct {
		DailyBTCTradingVol *float64 `json:"daily_btc_trading_vol"`
	} `json:"trading"`
}

type errorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("feed api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("feed api error (%d)", status)
}

var _ Fetcher = (*Roxom)(nil)
