package models

/*
Task, run and stage constants shared by the client, the sequencer and the
history store. Status strings match what the analysis backend reports.
*/

// Task status constants (preprocessing and classification tasks)
const (
	TaskStatusPending     = "pending"
	TaskStatusRunning     = "running"
	TaskStatusCompleted   = "completed"
	TaskStatusFailed      = "failed"
	TaskStatusNotFound    = "not_found"
	TaskStatusClassifying = "classifying"
	TaskStatusTraining    = "training"
)

// Run status constants, as recorded in history
const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// StageKind identifies one of the three backend jobs of a pipeline run.
type StageKind string

const (
	StageKeywordExtraction StageKind = "keyword-extraction"
	StagePreprocessing     StageKind = "preprocessing"
	StageClassification    StageKind = "classification"
)

// StageOrder is the fixed execution order of a run.
var StageOrder = []StageKind{StageKeywordExtraction, StagePreprocessing, StageClassification}

// Valid reports whether k is one of the known stage kinds.
func (k StageKind) Valid() bool {
	switch k {
	case StageKeywordExtraction, StagePreprocessing, StageClassification:
		return true
	default:
		return false
	}
}

// Known data source types
const (
	SourceLaw    = "law"
	SourcePaper  = "paper"
	SourceReport = "report"
	SourcePolicy = "policy"
	SourceBook   = "book"
)

// KnownSources lists the source types the dashboard offers.
var KnownSources = []string{SourceLaw, SourcePaper, SourceReport, SourcePolicy, SourceBook}
