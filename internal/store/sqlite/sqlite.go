// Package sqlite keeps run history in a local SQLite file, the default for
// a single dashboard host.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"bigscreen/internal/models"
	"bigscreen/internal/store"
)

type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the database at dsn, e.g. "bigscreen.db" or
// ":memory:", and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("sqlite DSN cannot be empty")
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// One writer; also keeps ":memory:" to a single shared database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, store.Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to create schema: %w", err)
	}
	log.Debugf("sqlite run history ready at %s", dsn)
	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

const runColumns = `id, source, status, phase, error_message, classification_task_id, accuracy, f1_score, result, started_at, finished_at`

func (s *Store) SaveRun(ctx context.Context, rec *models.RunRecord) error {
	query := `
		INSERT INTO pipeline_runs (` + runColumns + `)
		VALUES (:id, :source, :status, :phase, :error_message, :classification_task_id, :accuracy, :f1_score, :result, :started_at, :finished_at)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			phase = excluded.phase,
			error_message = excluded.error_message,
			classification_task_id = excluded.classification_task_id,
			accuracy = excluded.accuracy,
			f1_score = excluded.f1_score,
			result = excluded.result,
			finished_at = excluded.finished_at`

	if _, err := s.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*models.RunRecord, error) {
	var rec models.RunRecord
	err := s.db.GetContext(ctx, &rec, `SELECT `+runColumns+` FROM pipeline_runs WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &rec, nil
}

func (s *Store) ListRuns(ctx context.Context, filter store.RunFilter) ([]*models.RunRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + runColumns + ` FROM pipeline_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	runs := []*models.RunRecord{}
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

var _ store.RunHistoryStore = (*Store)(nil)
