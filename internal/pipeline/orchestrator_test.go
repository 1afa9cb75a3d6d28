package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/artifacts"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/validate"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) key(bucket, object string) string { return bucket + "/" + object }

func (s *memStore) Put(_ context.Context, bucket, object string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[s.key(bucket, object)] = data
	return object, nil
}

func (s *memStore) Get(_ context.Context, bucket, object string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[s.key(bucket, object)]
	if !ok {
		return nil, nil
	}
	return data, nil
}

func (s *memStore) List(_ context.Context, bucket, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for key := range s.objects {
		bkt, object, _ := strings.Cut(key, "/")
		if bkt == bucket && strings.HasPrefix(object, prefix) {
			names = append(names, object)
		}
	}
	return names, nil
}

type fakeOCR struct {
	text  string
	err   error
	calls int
}

func (f *fakeOCR) ExtractText(context.Context, []byte, string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) ExtractInvoice(context.Context, string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.response), nil
}

type fakeRepo struct {
	upserts int
	lastID  int64
	err     error
}

func (f *fakeRepo) NextInvoiceID(context.Context) (int64, error) { return 1, nil }

func (f *fakeRepo) Upsert(_ context.Context, id int64, fields validate.CleanedFields, _ string) (*entity.Invoice, error) {
	f.upserts++
	f.lastID = id
	if f.err != nil {
		return nil, f.err
	}
	return &entity.Invoice{ID: id, SupplierName: fields.SupplierName}, nil
}

func (f *fakeRepo) GetByID(context.Context, int64) (*entity.Invoice, error) { return nil, nil }
func (f *fakeRepo) List(context.Context, int, int) ([]*entity.Invoice, error) {
	return nil, nil
}
func (f *fakeRepo) ListBetween(context.Context, *time.Time, *time.Time) ([]*entity.Invoice, error) {
	return nil, nil
}
func (f *fakeRepo) Search(context.Context, string, int) ([]*entity.Invoice, error) {
	return nil, nil
}
func (f *fakeRepo) Update(context.Context, int64, validate.CleanedFields) (*entity.Invoice, error) {
	return nil, nil
}
func (f *fakeRepo) Delete(context.Context, int64) error { return nil }

type harness struct {
	store *memStore
	ocr   *fakeOCR
	llm   *fakeLLM
	repo  *fakeRepo
	orc   *Orchestrator
}

func newHarness(llmResponse string) *harness {
	h := &harness{
		store: newMemStore(),
		ocr:   &fakeOCR{text: "INVOICE\nACME GmbH\nTotal: 119.00"},
		llm:   &fakeLLM{response: llmResponse},
		repo:  &fakeRepo{},
	}
	h.orc = NewOrchestrator(h.store, h.ocr, h.llm, validate.NewValidator(validate.PolicyLenient), h.repo, NopObserver{}, slog.Default())
	return h
}

const happyExtraction = `{
	"supplier": {"name": "ACME GmbH", "vat_number": "gb123456789"},
	"invoice_number": "INV-001",
	"expense_date": "2024-05-14",
	"currency": "EUR",
	"total_net": 100.00,
	"total_tax": 20.00,
	"total_amount": 120.00
}`

func TestProcessInvoice_HappyPath(t *testing.T) {
	h := newHarness(happyExtraction)

	run := h.orc.ProcessInvoice(context.Background(), 1, "invoice.pdf", []byte("%PDF-1.4"))

	assert.Equal(t, constants.FinalSuccess, run.FinalStatus)
	assert.Empty(t, run.Errors)
	assert.Empty(t, run.Warnings)
	for _, stage := range []constants.Stage{
		constants.StageRawUpload, constants.StageOCRExtraction,
		constants.StageLLMExtraction, constants.StageValidation,
		constants.StageCleanedUpload, constants.StageDatabaseSave,
	} {
		assert.Equal(t, constants.StageSuccess, run.Stages[stage].Status, string(stage))
	}

	require.NotNil(t, run.CleanedData)
	assert.Equal(t, "ACME GmbH", *run.CleanedData.SupplierName)
	assert.Equal(t, "GB123456789", *run.CleanedData.SupplierVATNumber)
	assert.Equal(t, 1, h.repo.upserts)
	assert.Equal(t, int64(1), h.repo.lastID)

	cleaned, err := h.orc.CleanedData(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, cleaned)
	var artifact map[string]any
	require.NoError(t, json.Unmarshal(cleaned, &artifact))
	assert.Equal(t, "ACME GmbH", artifact["supplier_name"])
	results := artifact["validation_results"].(map[string]any)
	assert.Equal(t, true, results["is_valid"])
}

func TestProcessInvoice_AmountMismatchWarns(t *testing.T) {
	h := newHarness(`{
		"supplier": {"name": "ACME GmbH"},
		"total_net": 100.00,
		"total_tax": 20.00,
		"total_amount": 150.00
	}`)

	run := h.orc.ProcessInvoice(context.Background(), 2, "invoice.pdf", []byte("%PDF-1.4"))

	assert.Equal(t, constants.FinalSuccessWithWarnings, run.FinalStatus)
	require.NotEmpty(t, run.Warnings)
	assert.Contains(t, run.Warnings[0], "difference: 30")
	assert.Equal(t, 1, h.repo.upserts)
}

func TestProcessInvoice_MalformedExtractionFails(t *testing.T) {
	h := newHarness(`not json at all`)

	run := h.orc.ProcessInvoice(context.Background(), 3, "invoice.pdf", []byte("%PDF-1.4"))

	assert.Equal(t, constants.FinalFailed, run.FinalStatus)
	assert.Equal(t, constants.StageFailed, run.Stages[constants.StageLLMExtraction].Status)
	assert.Equal(t, constants.StagePending, run.Stages[constants.StageValidation].Status,
		"validation must not run after extraction failure")
	assert.Zero(t, h.repo.upserts)

	cleaned, err := h.orc.CleanedData(context.Background(), 3)
	assert.NoError(t, err)
	assert.Nil(t, cleaned)
}

func TestProcessInvoice_StrictPolicyRecordsSingleValidationError(t *testing.T) {
	h := newHarness(`{"invoice_number": "INV-002", "total_amount": 120.00}`)
	h.orc.validator = validate.NewValidator(validate.PolicyStrict)

	run := h.orc.ProcessInvoice(context.Background(), 10, "invoice.pdf", []byte("%PDF-1.4"))

	assert.Equal(t, constants.FinalFailed, run.FinalStatus)
	assert.Equal(t, constants.StageFailed, run.Stages[constants.StageValidation].Status)
	require.Len(t, run.Errors, 1)
	assert.Contains(t, run.Errors[0], "Supplier name is required")
	assert.Zero(t, h.repo.upserts)
}

func TestProcessInvoice_OCRFailureAborts(t *testing.T) {
	h := newHarness(happyExtraction)
	h.ocr.err = errors.New("ocr service unavailable")

	run := h.orc.ProcessInvoice(context.Background(), 4, "invoice.pdf", []byte("%PDF-1.4"))

	assert.Equal(t, constants.FinalFailed, run.FinalStatus)
	assert.Equal(t, constants.StageFailed, run.Stages[constants.StageOCRExtraction].Status)
	assert.Zero(t, h.llm.calls)
	assert.Zero(t, h.repo.upserts)

	// The raw artifact was written before the failure and stays behind.
	raw, err := h.store.Get(context.Background(), artifacts.BucketRawInvoices, artifacts.RawObjectName(4, "invoice.pdf"))
	assert.NoError(t, err)
	assert.NotNil(t, raw)
}

func TestProcessInvoice_EmptyOCRTextFails(t *testing.T) {
	h := newHarness(happyExtraction)
	h.ocr.text = "   \n  "

	run := h.orc.ProcessInvoice(context.Background(), 5, "invoice.pdf", []byte("%PDF-1.4"))

	assert.Equal(t, constants.FinalFailed, run.FinalStatus)
	assert.Contains(t, run.Stages[constants.StageOCRExtraction].Error, "no text")
}

func TestProcessInvoice_DatabaseFailure(t *testing.T) {
	h := newHarness(happyExtraction)
	h.repo.err = errors.New("connection refused")

	run := h.orc.ProcessInvoice(context.Background(), 6, "invoice.pdf", []byte("%PDF-1.4"))

	assert.Equal(t, constants.FinalFailed, run.FinalStatus)
	assert.Equal(t, constants.StageFailed, run.Stages[constants.StageDatabaseSave].Status)
	// Cleaned artifact is already uploaded by the time the save fails.
	assert.Equal(t, constants.StageSuccess, run.Stages[constants.StageCleanedUpload].Status)
}

func TestStatus_ReflectsArtifacts(t *testing.T) {
	h := newHarness(happyExtraction)
	h.orc.ProcessInvoice(context.Background(), 7, "invoice.pdf", []byte("%PDF-1.4"))

	report, err := h.orc.Status(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, report.Stages["raw_upload"])
	assert.True(t, report.Stages["ocr_extraction"])
	assert.True(t, report.Stages["llm_extraction"])
	assert.True(t, report.Stages["cleaned_data"])

	missing, err := h.orc.Status(context.Background(), 8)
	require.NoError(t, err)
	for key, present := range missing.Stages {
		assert.False(t, present, key)
	}
}

func TestReprocess_UsesStoredExtraction(t *testing.T) {
	h := newHarness(happyExtraction)
	h.orc.ProcessInvoice(context.Background(), 9, "invoice.pdf", []byte("%PDF-1.4"))
	ocrCalls, llmCalls := h.ocr.calls, h.llm.calls

	run, err := h.orc.Reprocess(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, constants.FinalSuccess, run.FinalStatus)
	assert.Equal(t, ocrCalls, h.ocr.calls, "reprocess must not call OCR")
	assert.Equal(t, llmCalls, h.llm.calls, "reprocess must not call the extractor")
	assert.Equal(t, 1, h.repo.upserts, "reprocess must not write to the database")

	cleaned, err := h.orc.CleanedData(context.Background(), 9)
	require.NoError(t, err)
	var artifact map[string]any
	require.NoError(t, json.Unmarshal(cleaned, &artifact))
	results := artifact["validation_results"].(map[string]any)
	assert.NotEmpty(t, results["reprocessed_at"])
}

func TestReprocess_NoPriorExtraction(t *testing.T) {
	h := newHarness(happyExtraction)

	_, err := h.orc.Reprocess(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNoPriorExtraction)
	assert.Zero(t, h.ocr.calls)
	assert.Zero(t, h.llm.calls)
}
