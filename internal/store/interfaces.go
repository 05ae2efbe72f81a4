package store

import (
	"context"

	"github.com/google/uuid"

	"bigscreen/internal/models"
)

// --- Run History Store ---

// RunFilter narrows ListRuns. Zero values mean "no filter".
type RunFilter struct {
	Source string
	Status string
	Limit  int
	Offset int
}

type RunHistoryStore interface {
	// SaveRun inserts rec, or replaces the record with the same ID.
	SaveRun(ctx context.Context, rec *models.RunRecord) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.RunRecord, error)
	// ListRuns returns records newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]*models.RunRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// Schema is the pipeline_runs table, portable across PostgreSQL and SQLite.
const Schema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id                     TEXT PRIMARY KEY,
	source                 TEXT NOT NULL,
	status                 TEXT NOT NULL,
	phase                  TEXT NOT NULL,
	error_message          TEXT,
	classification_task_id TEXT,
	accuracy               DOUBLE PRECISION,
	f1_score               DOUBLE PRECISION,
	result                 TEXT NOT NULL DEFAULT '',
	started_at             TIMESTAMP NOT NULL,
	finished_at            TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs (started_at DESC);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_source ON pipeline_runs (source);
`
