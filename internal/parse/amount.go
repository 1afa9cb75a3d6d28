package parse

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// amountJunk matches currency symbols, thousands separators and whitespace
// that frequently decorate amounts in LLM output.
var amountJunk = regexp.MustCompile(`[€$£¥₹,\s]`)

// ParseAmount normalizes a heterogeneous amount value into a decimal.
// Numeric types are accepted directly; strings are stripped of currency
// symbols, separators and whitespace before parsing. It reports ok=false
// (never an error) on any irrecoverable input.
func ParseAmount(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case nil:
		return decimal.Decimal{}, false
	case decimal.Decimal:
		return v, true
	case float64:
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case string:
		cleaned := amountJunk.ReplaceAllString(strings.TrimSpace(v), "")
		if cleaned == "" {
			return decimal.Decimal{}, false
		}
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}
