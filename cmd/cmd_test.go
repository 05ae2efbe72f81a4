package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigscreen/internal/backendsim"
	"bigscreen/internal/models"
)

func setupBackend(t *testing.T) {
	t.Helper()
	sim := httptest.NewServer(backendsim.New(backendsim.Options{}).Handler())
	t.Cleanup(sim.Close)

	t.Setenv("BIGSCREEN_BACKEND_BASE_URL", sim.URL)
	t.Setenv("BIGSCREEN_DATABASE_DRIVER", "none")
	t.Setenv("BIGSCREEN_PIPELINE_INTERVALS_EXTRACTION", "5ms")
	t.Setenv("BIGSCREEN_PIPELINE_INTERVALS_PREPROCESSING", "5ms")
	t.Setenv("BIGSCREEN_PIPELINE_INTERVALS_CLASSIFICATION", "5ms")
	t.Setenv("BIGSCREEN_LOG_LEVEL", "warning")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommand_JSONOutput(t *testing.T) {
	setupBackend(t)

	out, err := execute(t, "run", "report", "--output", "json", "--quiet")
	require.NoError(t, err)

	var res runResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, models.PhaseCompleted, res.Run.Phase)
	assert.Equal(t, models.SourceReport, res.Run.Source)
	require.NotNil(t, res.Result)
	assert.NotEmpty(t, res.Result.TaskID)
	assert.Len(t, res.Cards, len(res.Result.CategoryStats))
}

func TestRunCommand_UnknownSource(t *testing.T) {
	setupBackend(t)

	_, err := execute(t, "run", "novel", "--quiet")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUnknownSource)
}

func TestSourcesCommand(t *testing.T) {
	setupBackend(t)

	out, err := execute(t, "sources", "--output", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "policy")
	assert.Contains(t, out, "robot, agriculture")
}

func TestHistoryCommand_Disabled(t *testing.T) {
	setupBackend(t)

	_, err := execute(t, "history", "list")
	assert.ErrorContains(t, err, "run history is disabled")
}
