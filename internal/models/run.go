package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Phase is the state of a pipeline run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseExtracting
	PhasePreprocessing
	PhaseClassifying
	PhaseAggregating
	PhaseCompleted
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseIdle:          "idle",
	PhaseExtracting:    "extracting",
	PhasePreprocessing: "preprocessing",
	PhaseClassifying:   "classifying",
	PhaseAggregating:   "aggregating",
	PhaseCompleted:     "completed",
	PhaseFailed:        "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// Terminal reports whether no further transition can leave p.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// InProgress reports whether p has an active stage or aggregation.
func (p Phase) InProgress() bool {
	return p > PhaseIdle && p < PhaseCompleted
}

// TaskRef is a run's view of one backend task.
type TaskRef struct {
	Kind     StageKind `json:"kind"`
	TaskID   string    `json:"taskId"`
	Status   string    `json:"status"`
	Progress int       `json:"progress"`
}

// PipelineRun is one end-to-end invocation of all three stages for a source.
// It is the state the dashboard renders.
type PipelineRun struct {
	ID             uuid.UUID              `json:"id"`
	Generation     uint64                 `json:"generation"`
	Source         string                 `json:"source"`
	Phase          Phase                  `json:"phase"`
	Stages         []TaskRef              `json:"stages"`
	Progress       int                    `json:"progress"`
	Keywords       []string               `json:"keywords,omitempty"`
	CompletedSteps []string               `json:"completedSteps,omitempty"`
	Metrics        *ClassificationMetrics `json:"metrics,omitempty"`
	CategoryStats  CategoryStats          `json:"categoryStats,omitempty"`
	Result         *AnalysisBundle        `json:"result,omitempty"`
	Error          string                 `json:"error,omitempty"`
	Cancelled      bool                   `json:"cancelled"`
	StartedAt      time.Time              `json:"startedAt"`
	FinishedAt     *time.Time             `json:"finishedAt,omitempty"`
}

// Stage returns the task reference for kind, if the run reached it.
func (r *PipelineRun) Stage(kind StageKind) (TaskRef, bool) {
	for _, s := range r.Stages {
		if s.Kind == kind {
			return s, true
		}
	}
	return TaskRef{}, false
}

// RunRecord mirrors the pipeline_runs history table.
type RunRecord struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	Source               string    `db:"source" json:"source"`
	Status               string    `db:"status" json:"status"`
	Phase                string    `db:"phase" json:"phase"`
	ErrorMessage         *string   `db:"error_message" json:"errorMessage,omitempty"`
	ClassificationTaskID *string   `db:"classification_task_id" json:"classificationTaskId,omitempty"`
	Accuracy             *float64  `db:"accuracy" json:"accuracy,omitempty"`
	F1Score              *float64  `db:"f1_score" json:"f1Score,omitempty"`
	Result               string    `db:"result" json:"-"` // JSON-encoded AnalysisBundle, empty when none
	StartedAt            time.Time `db:"started_at" json:"startedAt"`
	FinishedAt           time.Time `db:"finished_at" json:"finishedAt"`
}
