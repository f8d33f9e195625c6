package alerting

import (
	"github.com/shopspring/decimal"

	"github.com/diegodella1/slackalerts/internal/storage"
)

// Evaluate decides whether a rule fires against the current sample.
// Comparisons are strictly greater/less than: a price exactly at the
// threshold does not fire. A nil change percent suppresses variation
// rules for the pass without raising an error.
func Evaluate(rule storage.Rule, price decimal.Decimal, changePercent *decimal.Decimal) bool {
	switch rule.ConditionType {
	case storage.ConditionPriceAbove:
		return price.GreaterThan(rule.Threshold)
	case storage.ConditionPriceBelow:
		return price.LessThan(rule.Threshold)
	case storage.ConditionVariationUp:
		return changePercent != nil && changePercent.GreaterThan(rule.Threshold)
	case storage.ConditionVariationDown:
		return changePercent != nil && changePercent.LessThan(rule.Threshold.Neg())
	}
	return false
}
