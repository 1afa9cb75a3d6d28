package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/validate"
)

const invoiceColumns = `id, supplier_name, supplier_address, supplier_email,
	supplier_phone_number, supplier_vat_number, supplier_website, expense_date,
	invoice_number, currency, total_net, total_tax, total_amount,
	original_ocr_text, created_at, updated_at`

type InvoiceRepository interface {
	// NextInvoiceID reserves a new identifier from the invoices sequence.
	NextInvoiceID(ctx context.Context) (int64, error)
	// Upsert writes the cleaned fields for the given invoice id, replacing
	// any previous row so reruns of the same invoice stay idempotent.
	Upsert(ctx context.Context, id int64, fields validate.CleanedFields, ocrText string) (*entity.Invoice, error)
	GetByID(ctx context.Context, id int64) (*entity.Invoice, error)
	List(ctx context.Context, offset, limit int) ([]*entity.Invoice, error)
	ListBetween(ctx context.Context, fromDate, toDate *time.Time) ([]*entity.Invoice, error)
	Search(ctx context.Context, query string, limit int) ([]*entity.Invoice, error)
	Update(ctx context.Context, id int64, fields validate.CleanedFields) (*entity.Invoice, error)
	Delete(ctx context.Context, id int64) error
}

type invoiceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewInvoiceRepository(db *sql.DB, logger *slog.Logger) InvoiceRepository {
	return &invoiceRepository{
		db:     db,
		logger: logger,
	}
}

func (r *invoiceRepository) NextInvoiceID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT nextval(pg_get_serial_sequence('invoices', 'id'))`).Scan(&id)
	if err != nil {
		r.logger.Error("failed to reserve invoice id", "error", err)
		return 0, common.WrapError(err, "database error")
	}
	return id, nil
}

func (r *invoiceRepository) Upsert(ctx context.Context, id int64, fields validate.CleanedFields, ocrText string) (*entity.Invoice, error) {
	expenseDate, err := parseExpenseDate(fields.ExpenseDate)
	if err != nil {
		return nil, common.WrapError(err, "invalid input")
	}

	var ocr *string
	if ocrText != "" {
		ocr = &ocrText
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO invoices (
			id, supplier_name, supplier_address, supplier_email,
			supplier_phone_number, supplier_vat_number, supplier_website,
			expense_date, invoice_number, currency,
			total_net, total_tax, total_amount, original_ocr_text
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			supplier_name         = EXCLUDED.supplier_name,
			supplier_address      = EXCLUDED.supplier_address,
			supplier_email        = EXCLUDED.supplier_email,
			supplier_phone_number = EXCLUDED.supplier_phone_number,
			supplier_vat_number   = EXCLUDED.supplier_vat_number,
			supplier_website      = EXCLUDED.supplier_website,
			expense_date          = EXCLUDED.expense_date,
			invoice_number        = EXCLUDED.invoice_number,
			currency              = EXCLUDED.currency,
			total_net             = EXCLUDED.total_net,
			total_tax             = EXCLUDED.total_tax,
			total_amount          = EXCLUDED.total_amount,
			original_ocr_text     = EXCLUDED.original_ocr_text,
			updated_at            = now()
		RETURNING `+invoiceColumns,
		id, fields.SupplierName, fields.SupplierAddress, fields.SupplierEmail,
		fields.SupplierPhoneNumber, fields.SupplierVATNumber, fields.SupplierWebsite,
		expenseDate, fields.InvoiceNumber, fields.Currency,
		fields.TotalNet, fields.TotalTax, fields.TotalAmount, ocr)

	inv, err := scanInvoice(row)
	if err != nil {
		r.logger.Error("failed to upsert invoice", "invoice_id", id, "error", err)
		return nil, common.WrapError(err, "database error")
	}
	return inv, nil
}

func (r *invoiceRepository) GetByID(ctx context.Context, id int64) (*entity.Invoice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("invoice %d not found", id), common.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get invoice", "invoice_id", id, "error", err)
		return nil, common.WrapError(err, "database error")
	}
	return inv, nil
}

func (r *invoiceRepository) List(ctx context.Context, offset, limit int) ([]*entity.Invoice, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices ORDER BY id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		r.logger.Error("failed to list invoices", "error", err)
		return nil, common.WrapError(err, "database error")
	}
	return collectInvoices(rows)
}

func (r *invoiceRepository) ListBetween(ctx context.Context, fromDate, toDate *time.Time) ([]*entity.Invoice, error) {
	var (
		where []string
		args  []any
	)
	if fromDate != nil {
		args = append(args, *fromDate)
		where = append(where, fmt.Sprintf("expense_date >= $%d", len(args)))
	}
	if toDate != nil {
		args = append(args, *toDate)
		where = append(where, fmt.Sprintf("expense_date <= $%d", len(args)))
	}
	q := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY expense_date"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		r.logger.Error("failed to list invoices by date", "error", err)
		return nil, common.WrapError(err, "database error")
	}
	return collectInvoices(rows)
}

func (r *invoiceRepository) Search(ctx context.Context, query string, limit int) ([]*entity.Invoice, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + query + "%"
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE supplier_name ILIKE $1 OR invoice_number ILIKE $1
		 ORDER BY id LIMIT $2`,
		pattern, limit)
	if err != nil {
		r.logger.Error("failed to search invoices", "query", query, "error", err)
		return nil, common.WrapError(err, "database error")
	}
	return collectInvoices(rows)
}

func (r *invoiceRepository) Update(ctx context.Context, id int64, fields validate.CleanedFields) (*entity.Invoice, error) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if fields.SupplierName != nil {
		set("supplier_name", *fields.SupplierName)
	}
	if fields.SupplierAddress != nil {
		set("supplier_address", *fields.SupplierAddress)
	}
	if fields.SupplierEmail != nil {
		set("supplier_email", *fields.SupplierEmail)
	}
	if fields.SupplierPhoneNumber != nil {
		set("supplier_phone_number", *fields.SupplierPhoneNumber)
	}
	if fields.SupplierVATNumber != nil {
		set("supplier_vat_number", *fields.SupplierVATNumber)
	}
	if fields.SupplierWebsite != nil {
		set("supplier_website", *fields.SupplierWebsite)
	}
	if fields.ExpenseDate != nil {
		expenseDate, err := parseExpenseDate(fields.ExpenseDate)
		if err != nil {
			return nil, common.WrapError(err, "invalid input")
		}
		set("expense_date", expenseDate)
	}
	if fields.InvoiceNumber != nil {
		set("invoice_number", *fields.InvoiceNumber)
	}
	if fields.Currency != nil {
		set("currency", *fields.Currency)
	}
	if fields.TotalNet != nil {
		set("total_net", *fields.TotalNet)
	}
	if fields.TotalTax != nil {
		set("total_tax", *fields.TotalTax)
	}
	if fields.TotalAmount != nil {
		set("total_amount", *fields.TotalAmount)
	}
	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}
	sets = append(sets, "updated_at = now()")

	args = append(args, id)
	q := fmt.Sprintf(`UPDATE invoices SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), invoiceColumns)

	inv, err := scanInvoice(r.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("invoice %d not found", id), common.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to update invoice", "invoice_id", id, "error", err)
		return nil, common.WrapError(err, "database error")
	}
	return inv, nil
}

func (r *invoiceRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("failed to delete invoice", "invoice_id", id, "error", err)
		return common.WrapError(err, "database error")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.NewAppError("NOT_FOUND", fmt.Sprintf("invoice %d not found", id), common.ErrNotFound)
	}
	return nil
}

func parseExpenseDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil, fmt.Errorf("invalid expense_date %q: %w", *s, err)
	}
	return &t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*entity.Invoice, error) {
	var inv entity.Invoice
	err := row.Scan(
		&inv.ID, &inv.SupplierName, &inv.SupplierAddress, &inv.SupplierEmail,
		&inv.SupplierPhoneNumber, &inv.SupplierVATNumber, &inv.SupplierWebsite,
		&inv.ExpenseDate, &inv.InvoiceNumber, &inv.Currency,
		&inv.TotalNet, &inv.TotalTax, &inv.TotalAmount,
		&inv.OriginalOCRText, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func collectInvoices(rows *sql.Rows) ([]*entity.Invoice, error) {
	defer func() { _ = rows.Close() }()
	var result []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, common.WrapError(err, "database error")
		}
		result = append(result, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(err, "database error")
	}
	return result, nil
}
