package primary

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"bigscreen/internal/models"
	"bigscreen/internal/store"
)

const runColumns = `id, source, status, phase, error_message, classification_task_id, accuracy, f1_score, result, started_at, finished_at`

// SaveRun upserts a finished run.
func (s *StoreImpl) SaveRun(ctx context.Context, rec *models.RunRecord) error {
	query := `
		INSERT INTO pipeline_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			phase = EXCLUDED.phase,
			error_message = EXCLUDED.error_message,
			classification_task_id = EXCLUDED.classification_task_id,
			accuracy = EXCLUDED.accuracy,
			f1_score = EXCLUDED.f1_score,
			result = EXCLUDED.result,
			finished_at = EXCLUDED.finished_at`

	_, err := s.db.Exec(ctx, query,
		rec.ID.String(),
		rec.Source,
		rec.Status,
		rec.Phase,
		rec.ErrorMessage,
		rec.ClassificationTaskID,
		rec.Accuracy,
		rec.F1Score,
		rec.Result,
		rec.StartedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.ID, err)
	}
	return nil
}

// GetRun retrieves one run by ID.
func (s *StoreImpl) GetRun(ctx context.Context, id uuid.UUID) (*models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE id = $1`
	rows, err := s.db.Query(ctx, query, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to get run %s: %w", id, err)
		}
		return nil, store.ErrNotFound
	}
	rec, err := scanRun(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run %s: %w", id, err)
	}
	return rec, nil
}

// ListRuns retrieves runs newest first, optionally filtered.
func (s *StoreImpl) ListRuns(ctx context.Context, filter store.RunFilter) ([]*models.RunRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Source != "" {
		args = append(args, filter.Source)
		where = append(where, fmt.Sprintf("source = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + runColumns + ` FROM pipeline_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return runs, nil
}

// scanRun expects the columns in runColumns order.
func scanRun(rows pgx.Rows) (*models.RunRecord, error) {
	var (
		rec models.RunRecord
		id  string
	)
	err := rows.Scan(
		&id,
		&rec.Source,
		&rec.Status,
		&rec.Phase,
		&rec.ErrorMessage,
		&rec.ClassificationTaskID,
		&rec.Accuracy,
		&rec.F1Score,
		&rec.Result,
		&rec.StartedAt,
		&rec.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	rec.ID = parsed
	return &rec, nil
}

var _ store.RunHistoryStore = (*StoreImpl)(nil)
