package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"bigscreen/internal/models"
	"bigscreen/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HistoryService records finished runs and reads them back.
type HistoryService struct {
	runStore store.RunHistoryStore
}

func NewHistoryService(rs store.RunHistoryStore) *HistoryService {
	return &HistoryService{runStore: rs}
}

// RecordRun stores a finished run. It satisfies pipeline.RunRecorder.
func (s *HistoryService) RecordRun(ctx context.Context, run models.PipelineRun) error {
	rec, err := RecordFromRun(run)
	if err != nil {
		return err
	}
	if err := s.runStore.SaveRun(ctx, rec); err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns retrieves recorded runs, newest first.
func (s *HistoryService) ListRuns(ctx context.Context, source, status string, limit, offset int) ([]*models.RunRecord, error) {
	if limit <= 0 {
		limit = 20 // Default limit
	}
	if offset < 0 {
		offset = 0
	}

	runs, err := s.runStore.ListRuns(ctx, store.RunFilter{Source: source, Status: status, Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs from store: %w", err)
	}
	return runs, nil
}

func (s *HistoryService) GetRun(ctx context.Context, id uuid.UUID) (*models.RunRecord, error) {
	return s.runStore.GetRun(ctx, id)
}

// GetResult returns the bundle of a completed run.
func (s *HistoryService) GetResult(ctx context.Context, id uuid.UUID) (*models.AnalysisBundle, error) {
	rec, err := s.runStore.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Result == "" {
		return nil, fmt.Errorf("run %s has no result: %w", id, store.ErrNotFound)
	}
	var bundle models.AnalysisBundle
	if err := json.Unmarshal([]byte(rec.Result), &bundle); err != nil {
		return nil, fmt.Errorf("failed to decode result of run %s: %w", id, err)
	}
	return &bundle, nil
}

// RecordFromRun flattens a run into its history row.
func RecordFromRun(run models.PipelineRun) (*models.RunRecord, error) {
	rec := &models.RunRecord{
		ID:        run.ID,
		Source:    run.Source,
		Phase:     run.Phase.String(),
		StartedAt: run.StartedAt,
	}

	switch {
	case run.Phase == models.PhaseCompleted:
		rec.Status = models.RunStatusCompleted
	case run.Cancelled:
		rec.Status = models.RunStatusCancelled
	default:
		rec.Status = models.RunStatusFailed
	}

	if run.FinishedAt != nil {
		rec.FinishedAt = *run.FinishedAt
	} else {
		rec.FinishedAt = time.Now()
	}
	if run.Error != "" {
		msg := run.Error
		rec.ErrorMessage = &msg
	}
	if ref, ok := run.Stage(models.StageClassification); ok {
		id := ref.TaskID
		rec.ClassificationTaskID = &id
	}
	if run.Metrics != nil {
		acc, f1 := run.Metrics.Accuracy, run.Metrics.F1Score
		rec.Accuracy = &acc
		rec.F1Score = &f1
	}
	if run.Result != nil {
		raw, err := json.Marshal(run.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode result of run %s: %w", run.ID, err)
		}
		rec.Result = string(raw)
	}
	return rec, nil
}
