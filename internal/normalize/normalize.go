// Package normalize maps arbitrarily-shaped LLM extraction output onto the
// canonical flat invoice field set. Upstream models are not guaranteed to emit
// the same schema across prompt versions, so supplier data may arrive nested
// or flat and financial fields under several alias names.
package normalize

// Canonical field names shared by the validator, artifact payloads and the
// invoices table.
const (
	FieldSupplierName        = "supplier_name"
	FieldSupplierAddress     = "supplier_address"
	FieldSupplierEmail       = "supplier_email"
	FieldSupplierPhoneNumber = "supplier_phone_number"
	FieldSupplierVATNumber   = "supplier_vat_number"
	FieldSupplierWebsite     = "supplier_website"
	FieldExpenseDate         = "expense_date"
	FieldInvoiceNumber       = "invoice_number"
	FieldCurrency            = "currency"
	FieldTotalNet            = "total_net"
	FieldTotalTax            = "total_tax"
	FieldTotalAmount         = "total_amount"
)

// supplierSubKeys are the keys flattened out of a nested "supplier" object,
// each prefixed with "supplier_".
var supplierSubKeys = []string{"name", "address", "email", "phone_number", "vat_number", "website"}

// fieldAliases maps a canonical field to its ordered candidate source keys.
// The first non-empty candidate wins. New provider schemas are supported by
// extending this table.
var fieldAliases = map[string][]string{
	FieldExpenseDate: {"expense_date", "invoice_date", "date"},
	FieldTotalNet:    {"total_net", "subtotal", "net_amount"},
	FieldTotalTax:    {"total_tax", "tax_amount", "vat_amount"},
	FieldTotalAmount: {"total_amount", "total_amount_incl_tax", "grand_total", "amount_due"},
}

// Flatten normalizes decoded LLM output into the canonical flat shape
// expected by the validator. The result carries only canonical keys; values
// are passed through untyped for the validator to clean.
func Flatten(data map[string]any) map[string]any {
	normalized := make(map[string]any, 12)

	if supplier, ok := data["supplier"].(map[string]any); ok {
		for _, sub := range supplierSubKeys {
			normalized["supplier_"+sub] = supplier[sub]
		}
	} else {
		for _, sub := range supplierSubKeys {
			normalized["supplier_"+sub] = data["supplier_"+sub]
		}
	}

	normalized[FieldInvoiceNumber] = data[FieldInvoiceNumber]
	normalized[FieldCurrency] = data[FieldCurrency]

	for field, candidates := range fieldAliases {
		normalized[field] = firstNonEmpty(data, candidates)
	}

	return normalized
}

// firstNonEmpty resolves an alias chain: the earliest candidate whose value
// is present and non-empty wins.
func firstNonEmpty(data map[string]any, candidates []string) any {
	for _, key := range candidates {
		v, ok := data[key]
		if !ok || isEmpty(v) {
			continue
		}
		return v
	}
	return nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}
