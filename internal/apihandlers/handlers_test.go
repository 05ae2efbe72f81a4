package apihandlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigscreen/internal/analysisapi"
	"bigscreen/internal/apihandlers"
	"bigscreen/internal/app"
	"bigscreen/internal/backendsim"
	"bigscreen/internal/config"
	"bigscreen/internal/pipeline"
	"bigscreen/internal/services"
	"bigscreen/internal/store/sqlite"
)

func newTestRouter(t *testing.T, opts backendsim.Options) (*gin.Engine, *app.App) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sim := httptest.NewServer(backendsim.New(opts).Handler())
	t.Cleanup(sim.Close)

	client, err := analysisapi.New(analysisapi.Options{BaseURL: sim.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	rs, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)

	settings := pipeline.DefaultSettings()
	settings.ExtractionInterval = 5 * time.Millisecond
	settings.PreprocessingInterval = 5 * time.Millisecond
	settings.ClassificationInterval = 5 * time.Millisecond
	settings.MaxPollDuration = 10 * time.Second

	history := services.NewHistoryService(rs)
	a := &app.App{
		Config:         &config.Config{},
		Client:         client,
		RunStore:       rs,
		CatalogService: services.NewCatalogService(client, time.Minute),
		HistoryService: history,
		Sequencer:      pipeline.NewSequencer(client, settings, pipeline.WithRecorder(history)),
	}
	t.Cleanup(a.Close)

	router := gin.New()
	apihandlers.NewAPIHandler(a).Register(router)
	return router, a
}

func doJSON(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Items json.RawMessage `json:"items"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestStartRun_CompletesAndIsRecorded(t *testing.T) {
	router, _ := newTestRouter(t, backendsim.Options{})

	w := doJSON(router, http.MethodPost, "/api/v1/runs", apihandlers.StartRunRequest{Source: "law"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var started apihandlers.StartRunResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &started))
	assert.Equal(t, uint64(1), started.Generation)

	var items []map[string]interface{}
	require.Eventually(t, func() bool {
		w := doJSON(router, http.MethodGet, "/api/v1/runs/history?source=law", nil)
		if w.Code != http.StatusOK {
			return false
		}
		items = nil
		json.Unmarshal(decode(t, w).Items, &items)
		return len(items) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, started.RunID.String(), items[0]["id"])
	assert.Equal(t, "completed", items[0]["status"])

	w = doJSON(router, http.MethodGet, "/api/v1/runs/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var current map[string]interface{}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &current))
	assert.Equal(t, "completed", current["phase"])
	assert.Equal(t, "law", current["source"])

	w = doJSON(router, http.MethodGet, "/api/v1/runs/history/"+started.RunID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail apihandlers.GetRunResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &detail))
	require.NotNil(t, detail.Result)
	assert.Len(t, detail.Cards, len(detail.Result.CategoryStats))
}

func TestStartRun_RejectsBadSources(t *testing.T) {
	router, _ := newTestRouter(t, backendsim.Options{})

	w := doJSON(router, http.MethodPost, "/api/v1/runs", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_request", decode(t, w).Error.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/runs", apihandlers.StartRunRequest{Source: "novel"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w).Error.Message, "unknown source")
}

func TestCurrentRun_NothingStarted(t *testing.T) {
	router, _ := newTestRouter(t, backendsim.Options{})

	w := doJSON(router, http.MethodGet, "/api/v1/runs/current", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodDelete, "/api/v1/runs/current", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode(t, w).Error.Code)
}

func TestCancelRun(t *testing.T) {
	// Slow enough that the run is still extracting when cancelled.
	router, a := newTestRouter(t, backendsim.Options{ExtractionPolls: 1000})

	w := doJSON(router, http.MethodPost, "/api/v1/runs", apihandlers.StartRunRequest{Source: "paper"})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(router, http.MethodDelete, "/api/v1/runs/current", nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		run, ok := a.Sequencer.Board().Snapshot()
		return ok && run.Cancelled && run.FinishedAt != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, a.Sequencer.Guard().Active())
}

func TestSourcesAndHealth(t *testing.T) {
	router, _ := newTestRouter(t, backendsim.Options{})

	w := doJSON(router, http.MethodGet, "/api/v1/sources", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cat services.Catalog
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &cat))
	assert.Len(t, cat.Sources, 5)
	assert.Equal(t, []string{"robot", "vision"}, cat.Mapping["law"])

	w = doJSON(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestHistory_InvalidParams(t *testing.T) {
	router, _ := newTestRouter(t, backendsim.Options{})

	w := doJSON(router, http.MethodGet, "/api/v1/runs/history?limit=-3", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/runs/history/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
