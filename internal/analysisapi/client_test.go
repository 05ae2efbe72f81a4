package analysisapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigscreen/internal/analysisapi"
	"bigscreen/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts analysisapi.Options) *analysisapi.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL
	c, err := analysisapi.New(opts)
	require.NoError(t, err)
	return c
}

func writeEnvelope(w http.ResponseWriter, status, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"code": code, "message": message, "data": data})
}

func TestStartKeywordExtraction(t *testing.T) {
	var gotBody map[string]interface{}
	var gotAuth, gotPath, gotMethod string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotMethod = r.Method
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		writeEnvelope(w, http.StatusOK, 200, "ok", map[string]string{"taskId": "kw-1"})
	}, analysisapi.Options{Token: "tok"})

	taskID, err := c.StartKeywordExtraction(context.Background(), models.KeywordExtractionRequest{SourceType: "law", SampleSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, "kw-1", taskID)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/analysis/keyword-extraction/start", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "law", gotBody["sourceType"])
	assert.EqualValues(t, 1000, gotBody["sampleSize"])
}

func TestStartClassification_SendsEnablePreprocessingFalse(t *testing.T) {
	var gotBody map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		writeEnvelope(w, http.StatusOK, 200, "", map[string]string{"taskId": "cls-1"})
	}, analysisapi.Options{})

	_, err := c.StartClassification(context.Background(), models.ClassificationRequest{
		SourceType: "law",
		Parameters: models.ClassificationParameters{BatchSize: 32, Threshold: 0.8},
	})
	require.NoError(t, err)

	params, ok := gotBody["parameters"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, false, params["enablePreprocessing"])
	assert.EqualValues(t, 32, params["batchSize"])
}

func TestStart_EmptyTaskID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, 200, "", map[string]string{})
	}, analysisapi.Options{})

	_, err := c.StartPreprocessing(context.Background(), models.PreprocessingRequest{SourceType: "law"})
	assert.ErrorIs(t, err, models.ErrEmptyTaskID)
}

func TestEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		message string
		want    string
	}{
		{"backend message", 500, "insufficient data", "insufficient data"},
		{"fallback message", 400, "", "operation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, http.StatusOK, tt.code, tt.message, nil)
			}, analysisapi.Options{})

			_, err := c.ClassificationProgress(context.Background(), "cls-1")
			var apiErr *analysisapi.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestHTTPStatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"unauthorized", http.StatusUnauthorized, "", "unauthorized, please log in again"},
		{"forbidden", http.StatusForbidden, "", "access denied"},
		{"not found", http.StatusNotFound, "", "request address not found"},
		{"server message wins", http.StatusInternalServerError, `{"code":500,"message":"db down"}`, "db down"},
		{"other status", http.StatusBadGateway, "", "request failed (502)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}, analysisapi.Options{})

			_, err := c.ConfusionMatrix(context.Background(), "cls-1")
			var reqErr *analysisapi.RequestError
			require.True(t, errors.As(err, &reqErr))
			assert.Equal(t, tt.status, reqErr.StatusCode)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestTransportErrors(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
			writeEnvelope(w, http.StatusOK, 200, "", nil)
		}, analysisapi.Options{Timeout: 20 * time.Millisecond})

		_, err := c.KeywordExtractionProgress(context.Background(), "kw-1")
		require.Error(t, err)
		assert.Equal(t, "request timed out, please retry later", err.Error())
	})

	t.Run("no response", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		c, err := analysisapi.New(analysisapi.Options{BaseURL: srv.URL})
		require.NoError(t, err)

		_, err = c.DataSources(context.Background())
		require.Error(t, err)
		assert.Equal(t, "server did not respond", err.Error())
	})

	t.Run("caller cancelled", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, http.StatusOK, 200, "", nil)
		}, analysisapi.Options{})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.PreprocessingProgress(ctx, "pre-1")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestResultDecoding(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/analysis/category-stats/cls-1":
			writeEnvelope(w, http.StatusOK, 200, "", map[string]interface{}{
				"robot": map[string]interface{}{"count": 156, "confidence": 0.92, "percentage": 25.5, "samples": 156},
			})
		case "/api/analysis/classification/progress/cls-1":
			writeEnvelope(w, http.StatusOK, 200, "", map[string]interface{}{
				"taskId": "cls-1", "status": "running", "progress": 42.5,
				"metrics": map[string]interface{}{"accuracy": 0.9},
			})
		case "/api/analysis/source-category-mapping":
			writeEnvelope(w, http.StatusOK, 200, "", map[string][]string{"law": {"robot", "vision"}})
		case "/api/analysis/tasks/cls-1/stop":
			writeEnvelope(w, http.StatusOK, 200, "stopped", nil)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, analysisapi.Options{})
	ctx := context.Background()

	stats, err := c.CategoryStats(ctx, "cls-1")
	require.NoError(t, err)
	assert.Equal(t, 156, stats["robot"].Count)
	assert.Equal(t, 0.92, stats["robot"].Confidence)

	task, err := c.ClassificationProgress(ctx, "cls-1")
	require.NoError(t, err)
	assert.Equal(t, 42.5, task.Progress)
	require.NotNil(t, task.Metrics)
	assert.Equal(t, 0.9, task.Metrics.Accuracy)

	mapping, err := c.SourceCategoryMapping(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"robot", "vision"}, mapping["law"])

	assert.NoError(t, c.StopTask(ctx, "cls-1"))
}
