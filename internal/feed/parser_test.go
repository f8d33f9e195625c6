package feed

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParsePriceTextFull(t *testing.T) {
	info, err := ParsePriceText("$100,533.13 \n -1452.14 [-1.42%]")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if !info.Price.Equal(decimal.RequireFromString("100533.13")) {
		t.Fatalf("price = %s, want 100533.13", info.Price)
	}
	if info.Change == nil || !info.Change.Equal(decimal.RequireFromString("-1452.14")) {
		t.Fatalf("change = %v, want -1452.14", info.Change)
	}
	if info.ChangePercent == nil || !info.ChangePercent.Equal(decimal.RequireFromString("-1.42")) {
		t.Fatalf("change percent = %v, want -1.42", info.ChangePercent)
	}
}

func TestParsePriceTextPositiveChange(t *testing.T) {
	info, err := ParsePriceText("$65000.00 \n 1000.00 [1.56%]")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if !info.Price.Equal(decimal.RequireFromString("65000.00")) {
		t.Fatalf("price = %s, want 65000.00", info.Price)
	}
	if info.Change == nil || !info.Change.Equal(decimal.RequireFromString("1000.00")) {
		t.Fatalf("change = %v, want 1000.00", info.Change)
	}
	if info.ChangePercent == nil || !info.ChangePercent.Equal(decimal.RequireFromString("1.56")) {
		t.Fatalf("change percent = %v, want 1.56", info.ChangePercent)
	}
}

func TestParsePriceTextPriceOnly(t *testing.T) {
	info, err := ParsePriceText("$59,999")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if !info.Price.Equal(decimal.RequireFromString("59999")) {
		t.Fatalf("price = %s, want 59999", info.Price)
	}
	if info.Change != nil || info.ChangePercent != nil {
		t.Fatalf("change fields should be nil without a bracketed percent")
	}
}

func TestParsePriceTextNoPrice(t *testing.T) {
	_, err := ParsePriceText("market is closed")
	if !errors.Is(err, ErrNoPrice) {
		t.Fatalf("err = %v, want ErrNoPrice", err)
	}
}

func TestParsePriceTextMalformedChange(t *testing.T) {
	info, err := ParsePriceText("$42,000.50 \n gibberish")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if info.Change != nil || info.ChangePercent != nil {
		t.Fatalf("malformed change should yield nils, got %v / %v", info.Change, info.ChangePercent)
	}
}
