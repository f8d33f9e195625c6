package alerting

import (
	"strings"
	"testing"
	"time"
)

func TestRenderMessageAllTokens(t *testing.T) {
	ctx := RenderContext{
		Price:         dec("100533.13"),
		Threshold:     dec("60000"),
		ChangePercent: decPtr("-1.42"),
		WindowMinutes: 5,
		Timestamp:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	out := RenderMessage("BTC at ${{price}} (target ${{target}}), moved {{variation}}% in {{window}}m at {{timestamp}}", ctx)

	want := "BTC at $100,533.13 (target $60,000.00), moved -1.42% in 5m at 2025-06-01T12:00:00Z"
	if out != want {
		t.Fatalf("rendered %q, want %q", out, want)
	}
	if strings.ContainsAny(out, "{}") {
		t.Fatalf("recognised-only template left placeholder syntax: %q", out)
	}
}

func TestRenderMessageSingleBraceTokens(t *testing.T) {
	ctx := RenderContext{
		Price:     dec("65000"),
		Threshold: dec("60000"),
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	out := RenderMessage("price {price} vs target {target}, change {change}%", ctx)
	want := "price 65,000.00 vs target 60,000.00, change 0%"
	if out != want {
		t.Fatalf("rendered %q, want %q", out, want)
	}
}

func TestRenderMessageUnknownTokenPreserved(t *testing.T) {
	ctx := RenderContext{Price: dec("65000"), Threshold: dec("60000")}

	out := RenderMessage("price {{price}} and {{volume}} stays", ctx)
	if !strings.Contains(out, "{{volume}}") {
		t.Fatalf("unknown placeholder must be preserved verbatim, got %q", out)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"100533.13", "100,533.13"},
		{"65000", "65,000.00"},
		{"999.9", "999.90"},
		{"-1452.14", "-1,452.14"},
		{"1234567.891", "1,234,567.89"},
		{"0", "0.00"},
	}
	for _, tc := range cases {
		if got := FormatAmount(dec(tc.in)); got != tc.want {
			t.Fatalf("FormatAmount(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
