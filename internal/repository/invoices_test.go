package repository

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/validate"
)

func newMockRepo(t *testing.T) (InvoiceRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewInvoiceRepository(db, slog.Default()), mock
}

func strPtr(s string) *string { return &s }

func f64Ptr(f float64) *float64 { return &f }

func invoiceRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "supplier_name", "supplier_address", "supplier_email",
		"supplier_phone_number", "supplier_vat_number", "supplier_website",
		"expense_date", "invoice_number", "currency",
		"total_net", "total_tax", "total_amount",
		"original_ocr_text", "created_at", "updated_at",
	})
}

func TestNextInvoiceID(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT nextval").
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(42)))

	id, err := repo.NextInvoiceID(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_ReturnsRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	expenseDate := time.Date(2023, 5, 14, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO invoices").
		WithArgs(int64(7), "ACME GmbH", nil, nil, nil, "DE123456789", nil,
			expenseDate, "INV-001", "EUR", 100.0, 19.0, 119.0, "raw ocr text").
		WillReturnRows(invoiceRows().AddRow(
			int64(7), "ACME GmbH", nil, nil, nil, "DE123456789", nil,
			expenseDate, "INV-001", "EUR", 100.0, 19.0, 119.0,
			"raw ocr text", now, now))

	fields := validate.CleanedFields{
		SupplierName:      strPtr("ACME GmbH"),
		SupplierVATNumber: strPtr("DE123456789"),
		ExpenseDate:       strPtr("2023-05-14"),
		InvoiceNumber:     strPtr("INV-001"),
		Currency:          strPtr("EUR"),
		TotalNet:          f64Ptr(100),
		TotalTax:          f64Ptr(19),
		TotalAmount:       f64Ptr(119),
	}
	inv, err := repo.Upsert(context.Background(), 7, fields, "raw ocr text")
	require.NoError(t, err)
	assert.Equal(t, int64(7), inv.ID)
	assert.Equal(t, "ACME GmbH", *inv.SupplierName)
	assert.Equal(t, 119.0, *inv.TotalAmount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_RejectsBadExpenseDate(t *testing.T) {
	repo, _ := newMockRepo(t)

	fields := validate.CleanedFields{ExpenseDate: strPtr("14/05/2023")}
	_, err := repo.Upsert(context.Background(), 1, fields, "")
	assert.Error(t, err)
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM invoices WHERE id").
		WithArgs(int64(99)).
		WillReturnRows(invoiceRows())

	_, err := repo.GetByID(context.Background(), 99)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestList_ReturnsInvoices(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM invoices ORDER BY id").
		WithArgs(50, 0).
		WillReturnRows(invoiceRows().
			AddRow(int64(1), "Alpha Ltd", nil, nil, nil, nil, nil, nil, "A-1", "GBP", nil, nil, 10.0, nil, now, now).
			AddRow(int64(2), "Beta Inc", nil, nil, nil, nil, nil, nil, "B-2", "USD", nil, nil, 20.0, nil, now, now))

	invs, err := repo.List(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, invs, 2)
	assert.Equal(t, "Alpha Ltd", *invs[0].SupplierName)
	assert.Equal(t, int64(2), invs[1].ID)
}

func TestListBetween_BuildsDateFilter(t *testing.T) {
	repo, mock := newMockRepo(t)

	from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM invoices WHERE expense_date >= (.+) AND expense_date <= (.+) ORDER BY expense_date").
		WithArgs(from, to).
		WillReturnRows(invoiceRows())

	invs, err := repo.ListBetween(context.Background(), &from, &to)
	assert.NoError(t, err)
	assert.Empty(t, invs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearch_MatchesSupplierOrNumber(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM invoices\\s+WHERE supplier_name ILIKE").
		WithArgs("%acme%", 50).
		WillReturnRows(invoiceRows().
			AddRow(int64(3), "ACME GmbH", nil, nil, nil, nil, nil, nil, "INV-3", "EUR", nil, nil, 30.0, nil, now, now))

	invs, err := repo.Search(context.Background(), "acme", 0)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, int64(3), invs[0].ID)
}

func TestUpdate_PartialSet(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	mock.ExpectQuery("UPDATE invoices SET supplier_name = (.+), updated_at = now").
		WithArgs("New Name", int64(5)).
		WillReturnRows(invoiceRows().AddRow(
			int64(5), "New Name", nil, nil, nil, nil, nil, nil, nil, nil,
			nil, nil, nil, nil, now, now))

	inv, err := repo.Update(context.Background(), 5, validate.CleanedFields{SupplierName: strPtr("New Name")})
	require.NoError(t, err)
	assert.Equal(t, "New Name", *inv.SupplierName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_NoFieldsFallsBackToGet(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM invoices WHERE id").
		WithArgs(int64(6)).
		WillReturnRows(invoiceRows().AddRow(
			int64(6), "Unchanged", nil, nil, nil, nil, nil, nil, nil, nil,
			nil, nil, nil, nil, now, now))

	inv, err := repo.Update(context.Background(), 6, validate.CleanedFields{})
	require.NoError(t, err)
	assert.Equal(t, "Unchanged", *inv.SupplierName)
}

func TestDelete(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("DELETE FROM invoices WHERE id").
		WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Delete(context.Background(), 8))

	mock.ExpectExec("DELETE FROM invoices WHERE id").
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), 9)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}
