package validate

import (
	"github.com/shopspring/decimal"
)

// amountTolerance absorbs currency-minor-unit rounding; mismatches at or
// under it are not reported.
var amountTolerance = decimal.RequireFromString("0.02")

// CrossValidate checks derived financial invariants across already-cleaned
// fields and appends to the outcome's warning list. The checks are advisory:
// they never produce errors and never abort processing.
func CrossValidate(o *Outcome) {
	net, tax, total := o.Fields.TotalNet, o.Fields.TotalTax, o.Fields.TotalAmount

	if net != nil && tax != nil && total != nil {
		netD := decimal.NewFromFloat(*net)
		taxD := decimal.NewFromFloat(*tax)
		totalD := decimal.NewFromFloat(*total)
		calculated := netD.Add(taxD)
		difference := calculated.Sub(totalD).Abs()
		if difference.GreaterThan(amountTolerance) {
			o.warnf("Amount calculation mismatch: %s + %s = %s, but total_amount is %s (difference: %s)",
				netD, taxD, calculated, totalD, difference)
		}
	}

	// Fixed net -> tax -> total order so warnings come out stable.
	for _, amt := range []struct {
		field string
		value *float64
	}{
		{"total_net", net},
		{"total_tax", tax},
		{"total_amount", total},
	} {
		if amt.value != nil && *amt.value < 0 {
			o.warnf("Negative amount detected in %s: %s", amt.field, decimal.NewFromFloat(*amt.value))
		}
	}
}
