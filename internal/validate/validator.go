// Package validate applies field-level syntactic checks to normalized invoice
// fields and cross-checks financial invariants across the cleaned values.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/joseph-ayodele/invoice-pipeline/internal/normalize"
	"github.com/joseph-ayodele/invoice-pipeline/internal/parse"
)

// Policy selects how hard the validator pushes back on anomalies. Lenient
// downgrades everything to warnings so a partially-malformed extraction still
// produces a storable record; strict turns the required-field check into a
// hard error and drops non-conforming VAT numbers.
type Policy string

const (
	PolicyLenient Policy = "lenient"
	PolicyStrict  Policy = "strict"
)

// CleanedFields is the canonical flat invoice representation. A field is set
// only when its value passed validation.
type CleanedFields struct {
	SupplierName        *string  `json:"supplier_name,omitempty"`
	SupplierAddress     *string  `json:"supplier_address,omitempty"`
	SupplierEmail       *string  `json:"supplier_email,omitempty"`
	SupplierPhoneNumber *string  `json:"supplier_phone_number,omitempty"`
	SupplierVATNumber   *string  `json:"supplier_vat_number,omitempty"`
	SupplierWebsite     *string  `json:"supplier_website,omitempty"`
	ExpenseDate         *string  `json:"expense_date,omitempty"` // YYYY-MM-DD
	InvoiceNumber       *string  `json:"invoice_number,omitempty"`
	Currency            *string  `json:"currency,omitempty"`
	TotalNet            *float64 `json:"total_net,omitempty"`
	TotalTax            *float64 `json:"total_tax,omitempty"`
	TotalAmount         *float64 `json:"total_amount,omitempty"`
}

// Outcome is the result of one validation pass: cleaned values plus ordered
// error and warning lists. Errors block persistence; warnings do not.
type Outcome struct {
	Fields   CleanedFields `json:"cleaned_data"`
	Errors   []string      `json:"errors"`
	Warnings []string      `json:"warnings"`
}

func (o *Outcome) errorf(format string, args ...any) {
	o.Errors = append(o.Errors, fmt.Sprintf(format, args...))
}

func (o *Outcome) warnf(format string, args ...any) {
	o.Warnings = append(o.Warnings, fmt.Sprintf(format, args...))
}

// IsValid reports whether the pass produced no hard errors.
func (o *Outcome) IsValid() bool {
	return len(o.Errors) == 0
}

// Validator runs the field-level checks under a fixed policy. It holds no
// per-invoice state, so one instance is safe for concurrent pipeline runs.
type Validator struct {
	policy Policy
	now    func() time.Time
}

func NewValidator(policy Policy) *Validator {
	if policy != PolicyStrict {
		policy = PolicyLenient
	}
	return &Validator{policy: policy, now: time.Now}
}

var (
	vatCountryRe = regexp.MustCompile(`^[A-Z]{2}[0-9A-Z]{8,12}$`)
	vatDigitsRe  = regexp.MustCompile(`^\d{8,12}$`)
	phoneJunkRe  = regexp.MustCompile(`[^\d]`)
)

// ValidateInvoice validates a normalized flat field map (see normalize.Flatten)
// and returns a fresh Outcome. Each call starts from empty error/warning lists.
func (v *Validator) ValidateInvoice(flat map[string]any) *Outcome {
	o := &Outcome{Errors: []string{}, Warnings: []string{}}
	v.validateSupplierInfo(flat, o)
	v.validateFinancialData(flat, o)
	v.validateDates(flat, o)
	v.validateContactInfo(flat, o)
	return o
}

func (v *Validator) validateSupplierInfo(flat map[string]any, o *Outcome) {
	name := cleanString(flat[normalize.FieldSupplierName])
	if name != "" {
		if runes := []rune(name); len(runes) > 255 {
			o.warnf("Supplier name truncated to 255 characters")
			name = string(runes[:255])
		}
		o.Fields.SupplierName = &name
	} else if v.policy == PolicyStrict {
		o.errorf("Supplier name is required")
	} else {
		o.warnf("Supplier name is missing or empty")
	}

	if vat := cleanString(flat[normalize.FieldSupplierVATNumber]); vat != "" {
		v.validateVATNumber(vat, o)
	}

	if address := cleanString(flat[normalize.FieldSupplierAddress]); address != "" {
		o.Fields.SupplierAddress = &address
	}

	if website := cleanString(flat[normalize.FieldSupplierWebsite]); website != "" {
		if !strings.HasPrefix(website, "http://") && !strings.HasPrefix(website, "https://") {
			website = "https://" + website
		}
		if err := validation.Validate(website, is.URL); err != nil {
			o.warnf("Invalid website URL: %s", website)
		} else {
			o.Fields.SupplierWebsite = &website
		}
	}
}

// validateVATNumber normalizes (uppercase, spaces stripped) and checks the
// two accepted shapes: 2 letters + 8-12 alphanumerics, or 8-12 digits.
// Lenient policy passes unrecognized values through; strict drops them.
func (v *Validator) validateVATNumber(vat string, o *Outcome) {
	normalized := strings.ToUpper(strings.Join(strings.Fields(vat), ""))
	if vatCountryRe.MatchString(normalized) || vatDigitsRe.MatchString(normalized) {
		o.Fields.SupplierVATNumber = &normalized
		return
	}
	o.warnf("VAT number format not recognized: %s", vat)
	if v.policy == PolicyLenient {
		o.Fields.SupplierVATNumber = &normalized
	}
}

func (v *Validator) validateFinancialData(flat map[string]any, o *Outcome) {
	if currency := cleanString(flat[normalize.FieldCurrency]); currency != "" {
		currency = strings.ToUpper(currency)
		if runes := []rune(currency); len(runes) > 10 {
			o.warnf("Currency code truncated")
			currency = string(runes[:10])
		}
		o.Fields.Currency = &currency
	}

	// Fixed net -> tax -> total order so warnings come out stable.
	for _, amt := range []struct {
		field string
		dst   **float64
	}{
		{normalize.FieldTotalNet, &o.Fields.TotalNet},
		{normalize.FieldTotalTax, &o.Fields.TotalTax},
		{normalize.FieldTotalAmount, &o.Fields.TotalAmount},
	} {
		raw := flat[amt.field]
		amount, ok := parse.ParseAmount(raw)
		if ok {
			f := amount.InexactFloat64()
			*amt.dst = &f
		} else if raw != nil && cleanString(raw) != "" {
			o.warnf("Invalid %s: %v", amt.field, raw)
		}
	}
}

func (v *Validator) validateDates(flat map[string]any, o *Outcome) {
	raw := cleanString(flat[normalize.FieldExpenseDate])
	if raw == "" {
		return
	}
	parsed, ok := parse.ParseDate(raw)
	if !ok {
		o.warnf("Invalid expense date format: %s", raw)
		return
	}
	// Documents far in the past or future-dated invoices are plausible but unusual.
	yearsDiff := v.now().Sub(parsed).Hours() / (24 * 365.25)
	if yearsDiff < 0 {
		yearsDiff = -yearsDiff
	}
	if yearsDiff > 10 {
		o.warnf("Expense date seems unusual: %s", parse.ISODate(parsed))
	}
	iso := parse.ISODate(parsed)
	o.Fields.ExpenseDate = &iso
}

func (v *Validator) validateContactInfo(flat map[string]any, o *Outcome) {
	if email := cleanString(flat[normalize.FieldSupplierEmail]); email != "" {
		if err := validation.Validate(email, is.Email); err != nil {
			o.warnf("Invalid email format: %s", email)
		} else {
			lowered := strings.ToLower(email)
			o.Fields.SupplierEmail = &lowered
		}
	}

	if phone := cleanString(flat[normalize.FieldSupplierPhoneNumber]); phone != "" {
		if cleaned, ok := cleanPhone(phone); ok {
			o.Fields.SupplierPhoneNumber = &cleaned
		} else {
			o.warnf("Invalid phone format: %s", phone)
		}
	}

	if number := cleanString(flat[normalize.FieldInvoiceNumber]); number != "" {
		if runes := []rune(number); len(runes) > 100 {
			o.warnf("Invoice number truncated")
			number = string(runes[:100])
		}
		o.Fields.InvoiceNumber = &number
	}
}

// cleanPhone strips everything but digits (and a leading +) and accepts the
// result only when 7-15 digits remain.
func cleanPhone(phone string) (string, bool) {
	hasPlus := strings.HasPrefix(strings.TrimSpace(phone), "+")
	digits := phoneJunkRe.ReplaceAllString(phone, "")
	if n := len(digits); n < 7 || n > 15 {
		return "", false
	}
	if hasPlus {
		return "+" + digits, true
	}
	return digits, true
}

// cleanString coerces a raw field value to a whitespace-normalized string.
func cleanString(value any) string {
	switch t := value.(type) {
	case nil:
		return ""
	case string:
		return strings.Join(strings.Fields(t), " ")
	default:
		return strings.Join(strings.Fields(fmt.Sprintf("%v", t)), " ")
	}
}
