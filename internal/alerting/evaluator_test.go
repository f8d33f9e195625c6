package alerting

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/diegodella1/slackalerts/internal/storage"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestEvaluatePriceAbove(t *testing.T) {
	rule := storage.Rule{ConditionType: storage.ConditionPriceAbove, Threshold: dec("60000")}

	if !Evaluate(rule, dec("65000"), nil) {
		t.Fatal("65000 > 60000 should fire")
	}
	if Evaluate(rule, dec("60000"), nil) {
		t.Fatal("price equal to threshold must not fire")
	}
	if Evaluate(rule, dec("59999.99"), nil) {
		t.Fatal("price below threshold must not fire")
	}
}

func TestEvaluatePriceBelow(t *testing.T) {
	rule := storage.Rule{ConditionType: storage.ConditionPriceBelow, Threshold: dec("50000")}

	if !Evaluate(rule, dec("49999.99"), nil) {
		t.Fatal("price under threshold should fire")
	}
	if Evaluate(rule, dec("50000"), nil) {
		t.Fatal("price equal to threshold must not fire")
	}
}

func TestEvaluateVariationUp(t *testing.T) {
	rule := storage.Rule{ConditionType: storage.ConditionVariationUp, Threshold: dec("2")}

	if !Evaluate(rule, dec("65000"), decPtr("2.5")) {
		t.Fatal("2.5% > 2% should fire")
	}
	if Evaluate(rule, dec("65000"), decPtr("2")) {
		t.Fatal("variation equal to threshold must not fire")
	}
	if Evaluate(rule, dec("65000"), nil) {
		t.Fatal("nil change percent must suppress variation rules")
	}
}

func TestEvaluateVariationDown(t *testing.T) {
	rule := storage.Rule{ConditionType: storage.ConditionVariationDown, Threshold: dec("1.4")}

	if !Evaluate(rule, dec("100533.13"), decPtr("-1.42")) {
		t.Fatal("-1.42% < -1.4% should fire")
	}
	if Evaluate(rule, dec("100533.13"), decPtr("-1.4")) {
		t.Fatal("variation equal to negated threshold must not fire")
	}
	if Evaluate(rule, dec("100533.13"), decPtr("1.42")) {
		t.Fatal("upward move must not fire a variation_down rule")
	}
	if Evaluate(rule, dec("100533.13"), nil) {
		t.Fatal("nil change percent must suppress variation rules")
	}
}

func TestEvaluateUnknownCondition(t *testing.T) {
	rule := storage.Rule{ConditionType: "volume_spike", Threshold: dec("1")}
	if Evaluate(rule, dec("65000"), decPtr("5")) {
		t.Fatal("unknown condition types never fire")
	}
}
