package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestRoxomFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apiKey") != "secret" {
			t.Fatalf("apiKey not forwarded, query %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"price":   map[string]any{"live_price": "$100,533.13 \n -1452.14 [-1.42%]"},
			"price_":  map[string]any{"market_cap": 1.9e12},
			"trading": map[string]any{"daily_btc_trading_vol": 35000.5},
		})
	}))
	defer srv.Close()

	r := NewRoxom(RoxomOptions{
		BaseURL: srv.URL,
		APIKey:  "secret",
		Timeout: time.Second,
	}, noopLogger())

	snap, err := r.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !snap.Price.Equal(decimal.RequireFromString("100533.13")) {
		t.Fatalf("price = %s, want 100533.13", snap.Price)
	}
	if snap.ChangePercent == nil || !snap.ChangePercent.Equal(decimal.RequireFromString("-1.42")) {
		t.Fatalf("change percent = %v, want -1.42", snap.ChangePercent)
	}
	if snap.MarketCap == nil || snap.Volume24h == nil {
		t.Fatalf("market cap and volume should be populated")
	}
	if snap.Source != "roxom_api" {
		t.Fatalf("source = %q, want roxom_api", snap.Source)
	}
}

func TestRoxomFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "upstream down"})
	}))
	defer srv.Close()

	r := NewRoxom(RoxomOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := r.Fetch(context.Background()); err == nil {
		t.Fatal("HTTP 503 should surface as an error")
	}
}

func TestRoxomFetchNoPriceInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"price": map[string]any{"live_price": "loading..."},
		})
	}))
	defer srv.Close()

	r := NewRoxom(RoxomOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := r.Fetch(context.Background()); err == nil {
		t.Fatal("missing dollar amount should surface as an error")
	}
}

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}
