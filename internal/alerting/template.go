package alerting

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RenderContext carries the live values substituted into a rule's template.
type RenderContext struct {
	Price         decimal.Decimal
	Threshold     decimal.Decimal
	ChangePercent *decimal.Decimal
	WindowMinutes int
	Timestamp     time.Time
}

// RenderMessage substitutes the recognised placeholder tokens in a rule's
// message template. Both `{{price}}` and `{price}` spellings are accepted;
// the stored templates used each convention in different places. Unknown
// placeholders are left verbatim.
func RenderMessage(template string, ctx RenderContext) string {
	variation := "0"
	if ctx.ChangePercent != nil {
		variation = ctx.ChangePercent.StringFixed(2)
	}

	values := map[string]string{
		"price":     FormatAmount(ctx.Price),
		"target":    FormatAmount(ctx.Threshold),
		"variation": variation,
		"change":    variation,
		"window":    strconv.Itoa(ctx.WindowMinutes),
		"timestamp": ctx.Timestamp.UTC().Format(time.RFC3339),
	}

	replacements := make([]string, 0, len(values)*4)
	for token, value := range values {
		replacements = append(replacements,
			"{{"+token+"}}", value,
			"{"+token+"}", value,
		)
	}
	return strings.NewReplacer(replacements...).Replace(template)
}

// FormatAmount renders a monetary amount with thousands separators and two
// decimal places, e.g. 100533.13 -> "100,533.13".
func FormatAmount(d decimal.Decimal) string {
	fixed := d.StringFixed(2)

	negative := strings.HasPrefix(fixed, "-")
	if negative {
		fixed = fixed[1:]
	}

	intPart, fracPart, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(fracPart)
	return b.String()
}
