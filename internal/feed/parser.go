package feed

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNoPrice indicates the live-price text carried no dollar-prefixed amount.
var ErrNoPrice = errors.New("feed: no price found in live price text")

var (
	priceRe  = regexp.MustCompile(`\$([\d,]+\.?\d*)`)
	changeRe = regexp.MustCompile(`(-?[\d,]+\.?\d*)\s*\[(-?\d+\.?\d*)%\]`)
)

// PriceInfo holds the numeric fields extracted from the live-price text.
// Change and ChangePercent are nil when the upstream format omits them.
type PriceInfo struct {
	Price         decimal.Decimal
	Change        *decimal.Decimal
	ChangePercent *decimal.Decimal
}

// ParsePriceText extracts price, absolute change, and percent change from a
// live-price blob such as "$100,533.13 \n -1452.14 [-1.42%]". The price is
// mandatory; the change pair is optional and nil when absent or malformed.
func ParsePriceText(raw string) (PriceInfo, error) {
	info := PriceInfo{}

	m := priceRe.FindStringSubmatch(raw)
	if m == nil {
		return info, ErrNoPrice
	}

	price, err := decimal.NewFromString(stripSeparators(m[1]))
	if err != nil {
		return info, ErrNoPrice
	}
	info.Price = price

	// The change pair follows the price in the same blob; only look past the
	// price match so "$1,234.00" itself is never misread as a change.
	rest := raw[strings.Index(raw, m[0])+len(m[0]):]
	if cm := changeRe.FindStringSubmatch(rest); cm != nil {
		if change, err := decimal.NewFromString(stripSeparators(cm[1])); err == nil {
			info.Change = &change
		}
		if pct, err := decimal.NewFromString(cm[2]); err == nil {
			info.ChangePercent = &pct
		}
	}

	return info, nil
}

func stripSeparators(s string) string {
	return strings.ReplaceAll(s, ",", "")
}
