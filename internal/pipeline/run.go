package pipeline

import (
	"time"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/validate"
)

// StageResult records one stage of a run: its terminal status, the artifact it
// produced (when the stage uploads one), and the failure message when it failed.
type StageResult struct {
	Status     constants.StageStatus `json:"status"`
	ObjectName string                `json:"object_name,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// Run is the full outcome of one pipeline pass over a single invoice. It is
// always returned, even when a stage fails partway through.
type Run struct {
	InvoiceID   int64                           `json:"invoice_id"`
	Stages      map[constants.Stage]StageResult `json:"stages"`
	Errors      []string                        `json:"errors"`
	Warnings    []string                        `json:"warnings"`
	FinalStatus constants.FinalStatus           `json:"final_status"`
	CleanedData *validate.CleanedFields         `json:"cleaned_data,omitempty"`
	StartedAt   time.Time                       `json:"started_at"`
	FinishedAt  time.Time                       `json:"finished_at"`
}

// newRun seeds every planned stage as pending so a run that aborts partway
// still reports which stages were never reached.
func newRun(invoiceID int64, stages ...constants.Stage) *Run {
	results := make(map[constants.Stage]StageResult, len(stages))
	for _, stage := range stages {
		results[stage] = StageResult{Status: constants.StagePending}
	}
	return &Run{
		InvoiceID: invoiceID,
		Stages:    results,
		Errors:    []string{},
		Warnings:  []string{},
		StartedAt: time.Now(),
	}
}

func (r *Run) recordSuccess(stage constants.Stage, objectName string) {
	r.Stages[stage] = StageResult{Status: constants.StageSuccess, ObjectName: objectName}
}

func (r *Run) recordFailure(stage constants.Stage, err error) {
	r.Stages[stage] = StageResult{Status: constants.StageFailed, Error: err.Error()}
	r.Errors = append(r.Errors, err.Error())
}

func (r *Run) failed() bool {
	for _, s := range r.Stages {
		if s.Status == constants.StageFailed {
			return true
		}
	}
	return false
}

// finish stamps the end time and derives the terminal status from the stage
// results and the accumulated warnings.
func (r *Run) finish() *Run {
	r.FinishedAt = time.Now()
	switch {
	case r.failed():
		r.FinalStatus = constants.FinalFailed
	case len(r.Warnings) > 0:
		r.FinalStatus = constants.FinalSuccessWithWarnings
	default:
		r.FinalStatus = constants.FinalSuccess
	}
	return r
}
