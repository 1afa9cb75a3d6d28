package llm

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. The schema is deliberately loose: providers emit the supplier
// block either nested or flat and use several alias names for the financial
// fields, so it pins down only the value types we can rely on. Alias
// resolution happens downstream in the normalizer.
func BuildInvoiceJSONSchema() map[string]any {
	amount := map[string]any{"type": []string{"number", "string", "null"}}
	text := map[string]any{"type": []string{"string", "null"}}

	supplierProps := map[string]any{
		"name":         text,
		"address":      text,
		"email":        text,
		"phone_number": text,
		"vat_number":   text,
		"website":      text,
	}

	props := map[string]any{
		"supplier": map[string]any{
			"type":       []string{"object", "null"},
			"properties": supplierProps,
		},
		"supplier_name":         text,
		"supplier_address":      text,
		"supplier_email":        text,
		"supplier_phone_number": text,
		"supplier_vat_number":   text,
		"supplier_website":      text,

		"expense_date": text,
		"invoice_date": text,
		"date":         text,

		"invoice_number": text,
		"currency":       text,

		"total_net":  amount,
		"subtotal":   amount,
		"net_amount": amount,

		"total_tax":  amount,
		"tax_amount": amount,
		"vat_amount": amount,

		"total_amount":          amount,
		"total_amount_incl_tax": amount,
		"grand_total":           amount,
		"amount_due":            amount,
	}

	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}
