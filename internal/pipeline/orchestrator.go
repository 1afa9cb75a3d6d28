// Package pipeline orchestrates the invoice processing stages: raw upload, OCR,
// LLM extraction, validation, cleaned artifact upload, and database save. Every
// stage writes its artifact before the next stage runs, so a failed run leaves
// the artifacts of the stages that did complete.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/artifacts"
	"github.com/joseph-ayodele/invoice-pipeline/internal/llm"
	"github.com/joseph-ayodele/invoice-pipeline/internal/normalize"
	"github.com/joseph-ayodele/invoice-pipeline/internal/ocr"
	"github.com/joseph-ayodele/invoice-pipeline/internal/repository"
	"github.com/joseph-ayodele/invoice-pipeline/internal/validate"
)

// ErrNoPriorExtraction is returned by Reprocess when no stored LLM artifact
// exists for the invoice, so there is nothing to re-run validation against.
var ErrNoPriorExtraction = errors.New("no prior extraction artifact for invoice")

// Orchestrator drives one invoice through the processing stages.
type Orchestrator struct {
	store     artifacts.Store
	ocr       ocr.TextExtractor
	extractor llm.Extractor
	validator *validate.Validator
	invoices  repository.InvoiceRepository
	observer  Observer
	logger    *slog.Logger
}

func NewOrchestrator(
	store artifacts.Store,
	textExtractor ocr.TextExtractor,
	extractor llm.Extractor,
	validator *validate.Validator,
	invoices repository.InvoiceRepository,
	observer Observer,
	logger *slog.Logger,
) *Orchestrator {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Orchestrator{
		store:     store,
		ocr:       textExtractor,
		extractor: extractor,
		validator: validator,
		invoices:  invoices,
		observer:  observer,
		logger:    logger,
	}
}

// validationResults is embedded in the cleaned artifact so the stored JSON
// carries the warnings and errors that produced it.
type validationResults struct {
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	IsValid       bool     `json:"is_valid"`
	ReprocessedAt *string  `json:"reprocessed_at,omitempty"`
}

type cleanedArtifact struct {
	validate.CleanedFields
	ValidationResults validationResults `json:"validation_results"`
}

// ProcessInvoice runs the full stage sequence for one uploaded document. It
// never returns an error: failures are recorded on the returned Run, the
// failing stage is marked, and later stages are skipped.
func (o *Orchestrator) ProcessInvoice(ctx context.Context, invoiceID int64, filename string, content []byte) *Run {
	run := newRun(invoiceID,
		constants.StageRawUpload,
		constants.StageOCRExtraction,
		constants.StageLLMExtraction,
		constants.StageValidation,
		constants.StageCleanedUpload,
		constants.StageDatabaseSave,
	)
	start := time.Now()
	o.logger.Info("pipeline.run.start", "invoice_id", invoiceID, "filename", filename, "size_bytes", len(content))

	// raw_upload
	rawObject := artifacts.RawObjectName(invoiceID, filename)
	contentType := constants.ContentTypeForExt(constants.ExtFromFilename(filename))
	err := o.runStage(ctx, run, constants.StageRawUpload, rawObject, func(ctx context.Context) error {
		_, err := o.store.Put(ctx, artifacts.BucketRawInvoices, rawObject, content, contentType)
		return err
	})
	if err != nil {
		return o.finishRun(run, start)
	}

	// ocr_extraction
	var ocrText string
	ocrObject := artifacts.OCRObjectName(invoiceID)
	err = o.runStage(ctx, run, constants.StageOCRExtraction, ocrObject, func(ctx context.Context) error {
		text, err := o.ocr.ExtractText(ctx, content, filename)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return errors.New("ocr produced no text")
		}
		ocrText = text
		_, err = o.store.Put(ctx, artifacts.BucketOCROutput, ocrObject, []byte(text), constants.ContentTypeForExt("txt"))
		return err
	})
	if err != nil {
		return o.finishRun(run, start)
	}

	// llm_extraction
	var payload map[string]any
	llmObject := artifacts.LLMObjectName(invoiceID)
	err = o.runStage(ctx, run, constants.StageLLMExtraction, llmObject, func(ctx context.Context) error {
		raw, err := o.extractor.ExtractInvoice(ctx, ocrText)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("extraction returned malformed JSON: %w", err)
		}
		_, err = o.store.Put(ctx, artifacts.BucketLLMOutput, llmObject, raw, constants.ContentTypeForExt("json"))
		return err
	})
	if err != nil {
		return o.finishRun(run, start)
	}

	// data_validation
	var outcome *validate.Outcome
	err = o.runStage(ctx, run, constants.StageValidation, "", func(context.Context) error {
		outcome = o.validate(payload)
		run.Warnings = append(run.Warnings, outcome.Warnings...)
		if !outcome.IsValid() {
			// recordFailure appends the joined message to run.Errors.
			return fmt.Errorf("validation failed: %s", strings.Join(outcome.Errors, "; "))
		}
		return nil
	})
	if err != nil {
		return o.finishRun(run, start)
	}
	run.CleanedData = &outcome.Fields

	// cleaned_upload
	cleanedObject := artifacts.CleanedObjectName(invoiceID)
	err = o.runStage(ctx, run, constants.StageCleanedUpload, cleanedObject, func(ctx context.Context) error {
		return o.putCleaned(ctx, cleanedObject, outcome, nil)
	})
	if err != nil {
		return o.finishRun(run, start)
	}

	// database_save
	err = o.runStage(ctx, run, constants.StageDatabaseSave, "", func(ctx context.Context) error {
		_, err := o.invoices.Upsert(ctx, invoiceID, outcome.Fields, ocrText)
		return err
	})
	return o.finishRun(run, start)
}

// Reprocess re-runs normalization and validation from the stored LLM artifact
// and replaces the cleaned artifact. It performs no OCR, no LLM call, and no
// database write.
func (o *Orchestrator) Reprocess(ctx context.Context, invoiceID int64) (*Run, error) {
	raw, err := o.store.Get(ctx, artifacts.BucketLLMOutput, artifacts.LLMObjectName(invoiceID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNoPriorExtraction
	}

	run := newRun(invoiceID, constants.StageValidation, constants.StageCleanedUpload)
	start := time.Now()
	o.logger.Info("pipeline.reprocess.start", "invoice_id", invoiceID)

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("stored extraction artifact is malformed: %w", err)
	}

	var outcome *validate.Outcome
	err = o.runStage(ctx, run, constants.StageValidation, "", func(context.Context) error {
		outcome = o.validate(payload)
		run.Warnings = append(run.Warnings, outcome.Warnings...)
		if !outcome.IsValid() {
			// recordFailure appends the joined message to run.Errors.
			return fmt.Errorf("validation failed: %s", strings.Join(outcome.Errors, "; "))
		}
		return nil
	})
	if err != nil {
		return o.finishRun(run, start), nil
	}
	run.CleanedData = &outcome.Fields

	cleanedObject := artifacts.CleanedObjectName(invoiceID)
	reprocessedAt := time.Now().UTC().Format(time.RFC3339)
	_ = o.runStage(ctx, run, constants.StageCleanedUpload, cleanedObject, func(ctx context.Context) error {
		return o.putCleaned(ctx, cleanedObject, outcome, &reprocessedAt)
	})
	return o.finishRun(run, start), nil
}

// StatusReport summarizes which artifacts exist for an invoice.
type StatusReport struct {
	InvoiceID int64           `json:"invoice_id"`
	Stages    map[string]bool `json:"stages"`
}

// Status inspects the artifact buckets and reports which stages have left
// output for the invoice.
func (o *Orchestrator) Status(ctx context.Context, invoiceID int64) (*StatusReport, error) {
	prefix := artifacts.InvoicePrefix(invoiceID)
	report := &StatusReport{InvoiceID: invoiceID, Stages: make(map[string]bool)}
	for key, bucket := range map[string]string{
		"raw_upload":     artifacts.BucketRawInvoices,
		"ocr_extraction": artifacts.BucketOCROutput,
		"llm_extraction": artifacts.BucketLLMOutput,
		"cleaned_data":   artifacts.BucketCleanedInvoices,
	} {
		objects, err := o.store.List(ctx, bucket, prefix)
		if err != nil {
			return nil, err
		}
		report.Stages[key] = len(objects) > 0
	}
	return report, nil
}

// CleanedData fetches the stored cleaned artifact. Returns (nil, nil) when no
// cleaned artifact exists for the invoice.
func (o *Orchestrator) CleanedData(ctx context.Context, invoiceID int64) ([]byte, error) {
	return o.store.Get(ctx, artifacts.BucketCleanedInvoices, artifacts.CleanedObjectName(invoiceID))
}

func (o *Orchestrator) validate(payload map[string]any) *validate.Outcome {
	flat := normalize.Flatten(payload)
	outcome := o.validator.ValidateInvoice(flat)
	validate.CrossValidate(outcome)
	return outcome
}

func (o *Orchestrator) putCleaned(ctx context.Context, object string, outcome *validate.Outcome, reprocessedAt *string) error {
	artifact := cleanedArtifact{
		CleanedFields: outcome.Fields,
		ValidationResults: validationResults{
			Errors:        outcome.Errors,
			Warnings:      outcome.Warnings,
			IsValid:       outcome.IsValid(),
			ReprocessedAt: reprocessedAt,
		},
	}
	data, err := json.Marshal(artifact)
	if err != nil {
		return err
	}
	_, err = o.store.Put(ctx, artifacts.BucketCleanedInvoices, object, data, constants.ContentTypeForExt("json"))
	return err
}

// runStage executes fn under the observer, recording the result on the run.
func (o *Orchestrator) runStage(ctx context.Context, run *Run, stage constants.Stage, objectName string, fn func(context.Context) error) error {
	stageCtx := o.observer.StageStart(ctx, run.InvoiceID, stage)
	err := fn(stageCtx)
	o.observer.StageEnd(stageCtx, run.InvoiceID, stage, err)
	if err != nil {
		run.recordFailure(stage, err)
		return err
	}
	run.recordSuccess(stage, objectName)
	return nil
}

func (o *Orchestrator) finishRun(run *Run, start time.Time) *Run {
	run.finish()
	o.logger.Info("pipeline.run.done",
		"invoice_id", run.InvoiceID,
		"final_status", run.FinalStatus,
		"errors", len(run.Errors),
		"warnings", len(run.Warnings),
		"elapsed_ms", time.Since(start).Milliseconds())
	return run
}
