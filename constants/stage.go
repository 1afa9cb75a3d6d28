package constants

// Stage names the discrete units of pipeline work. The exact strings are part
// of the API surface: they key the per-stage status map in pipeline results.
type Stage string

const (
	StageRawUpload     Stage = "raw_upload"
	StageOCRExtraction Stage = "ocr_extraction"
	StageLLMExtraction Stage = "llm_extraction"
	StageValidation    Stage = "data_validation"
	StageCleanedUpload Stage = "cleaned_upload"
	StageDatabaseSave  Stage = "database_save"
)

// StageStatus is the status of a single stage within one pipeline run.
type StageStatus string

const (
	StagePending StageStatus = "pending"
	StageSuccess StageStatus = "success"
	StageFailed  StageStatus = "failed"
)

// FinalStatus is the terminal status of a whole pipeline run.
type FinalStatus string

const (
	FinalSuccess             FinalStatus = "success"
	FinalSuccessWithWarnings FinalStatus = "success_with_warnings"
	FinalFailed              FinalStatus = "failed"
)
