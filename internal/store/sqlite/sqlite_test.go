package sqlite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigscreen/internal/models"
	"bigscreen/internal/store"
	"bigscreen/internal/store/sqlite"
)

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func record(source, status string, started time.Time) *models.RunRecord {
	return &models.RunRecord{
		ID:         uuid.New(),
		Source:     source,
		Status:     status,
		Phase:      "completed",
		StartedAt:  started.UTC().Truncate(time.Second),
		FinishedAt: started.Add(time.Minute).UTC().Truncate(time.Second),
	}
}

func TestSaveAndGetRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := record("law", models.RunStatusCompleted, time.Now())
	rec.ClassificationTaskID = strPtr("cls-1")
	rec.Accuracy = floatPtr(0.95)
	rec.F1Score = floatPtr(0.935)
	rec.Result = `{"taskId":"cls-1"}`
	require.NoError(t, s.SaveRun(ctx, rec))

	got, err := s.GetRun(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "law", got.Source)
	require.NotNil(t, got.Accuracy)
	assert.Equal(t, 0.95, *got.Accuracy)
	assert.Nil(t, got.ErrorMessage)
	assert.Equal(t, rec.Result, got.Result)
	assert.True(t, rec.StartedAt.Equal(got.StartedAt))
}

func TestSaveRun_Upserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := record("paper", models.RunStatusCompleted, time.Now())
	require.NoError(t, s.SaveRun(ctx, rec))

	rec.Status = models.RunStatusFailed
	rec.ErrorMessage = strPtr("insufficient data")
	require.NoError(t, s.SaveRun(ctx, rec))

	got, err := s.GetRun(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "insufficient data", *got.ErrorMessage)

	all, err := s.ListRuns(ctx, store.RunFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetRun_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListRuns_NewestFirstWithFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	for i, src := range []string{"law", "paper", "law", "report", "law"} {
		status := models.RunStatusCompleted
		if i == 2 {
			status = models.RunStatusFailed
		}
		rec := record(src, status, base.Add(time.Duration(i)*time.Hour))
		rec.Phase = fmt.Sprintf("phase-%d", i)
		require.NoError(t, s.SaveRun(ctx, rec))
	}

	all, err := s.ListRuns(ctx, store.RunFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "phase-4", all[0].Phase)
	assert.Equal(t, "phase-0", all[4].Phase)

	laws, err := s.ListRuns(ctx, store.RunFilter{Source: "law", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, laws, 3)

	failed, err := s.ListRuns(ctx, store.RunFilter{Source: "law", Status: models.RunStatusFailed, Limit: 10})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "phase-2", failed[0].Phase)

	page, err := s.ListRuns(ctx, store.RunFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "phase-3", page[0].Phase)

	empty, err := s.ListRuns(ctx, store.RunFilter{Source: "book", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}
