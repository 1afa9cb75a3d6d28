package entity

import (
	"time"
)

// Invoice represents a persisted invoice record for data transfer between layers.
type Invoice struct {
	ID                  int64      `json:"id"`
	SupplierName        *string    `json:"supplier_name,omitempty"`
	SupplierAddress     *string    `json:"supplier_address,omitempty"`
	SupplierEmail       *string    `json:"supplier_email,omitempty"`
	SupplierPhoneNumber *string    `json:"supplier_phone_number,omitempty"`
	SupplierVATNumber   *string    `json:"supplier_vat_number,omitempty"`
	SupplierWebsite     *string    `json:"supplier_website,omitempty"`
	ExpenseDate         *time.Time `json:"expense_date,omitempty"`
	InvoiceNumber       *string    `json:"invoice_number,omitempty"`
	Currency            *string    `json:"currency,omitempty"`
	TotalNet            *float64   `json:"total_net,omitempty"`
	TotalTax            *float64   `json:"total_tax,omitempty"`
	TotalAmount         *float64   `json:"total_amount,omitempty"`
	OriginalOCRText     *string    `json:"original_ocr_text,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}
