package apihandlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"bigscreen/internal/app"
	"bigscreen/internal/models"
	"bigscreen/internal/store"
)

type APIHandler struct {
	App *app.App
}

func NewAPIHandler(app *app.App) *APIHandler {
	return &APIHandler{App: app}
}

// Register mounts the dashboard API on router.
func (h *APIHandler) Register(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		runGroup := v1.Group("/runs")
		{
			runGroup.POST("", h.StartRunHandler)
			runGroup.GET("/current", h.CurrentRunHandler)
			runGroup.DELETE("/current", h.CancelRunHandler)
			runGroup.GET("/history", h.ListRunsHandler)
			runGroup.GET("/history/:id", h.GetRunHandler)
		}
		v1.GET("/sources", h.SourcesHandler)
	}

	router.GET("/health", h.HealthHandler)
}

// StartRunRequest is the JSON body of POST /api/v1/runs.
type StartRunRequest struct {
	Source string `json:"source" binding:"required"`
}

// StartRunResponse identifies the run that was launched.
type StartRunResponse struct {
	RunID      uuid.UUID `json:"runId"`
	Generation uint64    `json:"generation"`
}

// StartRunHandler launches a run for the requested source. Any run still
// in flight is superseded.
func (h *APIHandler) StartRunHandler(c *gin.Context) {
	var req StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.App.CatalogService.ValidateSource(ctx, req.Source); err != nil {
		RespondError(c, "StartRunHandler", err)
		return
	}

	run, err := h.App.Sequencer.Launch(ctx, req.Source)
	if err != nil {
		RespondError(c, "StartRunHandler: failed to launch run", err)
		return
	}

	log.Infof("API run launched: run_id=%s, generation=%d, source=%q", run.ID, run.Generation, run.Source)
	c.JSON(http.StatusAccepted, gin.H{"data": StartRunResponse{RunID: run.ID, Generation: run.Generation}})
}

// CurrentRunHandler returns the live state of the latest run.
func (h *APIHandler) CurrentRunHandler(c *gin.Context) {
	run, ok := h.App.Sequencer.Board().Snapshot()
	if !ok {
		NotFound(c, "No run has been started")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": run})
}

// CancelRunHandler stops the active run and all of its polls.
func (h *APIHandler) CancelRunHandler(c *gin.Context) {
	if !h.App.Sequencer.CancelCurrent() {
		NotFound(c, "No active run")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"cancelled": true}})
}

func (h *APIHandler) ListRunsHandler(c *gin.Context) {
	if h.App.HistoryService == nil {
		Unavailable(c, "Run history is disabled")
		return
	}

	limit, offset, err := parsePagination(c)
	if err != nil {
		BadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	runs, err := h.App.HistoryService.ListRuns(c.Request.Context(), c.Query("source"), c.Query("status"), limit, offset)
	if err != nil {
		RespondError(c, "ListRunsHandler: failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []*models.RunRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"items": runs})
}

// GetRunHandler returns one recorded run with its result bundle, if any.
func (h *APIHandler) GetRunHandler(c *gin.Context) {
	if h.App.HistoryService == nil {
		Unavailable(c, "Run history is disabled")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequest(c, fmt.Sprintf("Invalid run ID format: %s", c.Param("id")))
		return
	}

	ctx := c.Request.Context()
	rec, err := h.App.HistoryService.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, fmt.Sprintf("Run not found with ID: %s", id))
			return
		}
		RespondError(c, "GetRunHandler: failed to retrieve run", err)
		return
	}

	resp := GetRunResponse{Run: *rec}
	if rec.Result != "" {
		bundle, err := h.App.HistoryService.GetResult(ctx, id)
		if err != nil {
			log.Warnf("Failed to decode result of run %s: %v", id, err)
		} else {
			resp.Result = bundle
			resp.Cards = bundle.Cards()
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetRunResponse is a recorded run with its decoded result.
type GetRunResponse struct {
	Run    models.RunRecord       `json:"run"`
	Result *models.AnalysisBundle `json:"result,omitempty"`
	Cards  []models.ResultCard    `json:"cards,omitempty"`
}

// SourcesHandler lists the backend's data sources and their categories.
func (h *APIHandler) SourcesHandler(c *gin.Context) {
	cat, err := h.App.CatalogService.Catalog(c.Request.Context())
	if err != nil {
		BackendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cat})
}

func (h *APIHandler) HealthHandler(c *gin.Context) {
	status := gin.H{"status": "ok", "active_polls": h.App.Sequencer.Guard().Active()}
	if h.App.RunStore != nil {
		if err := h.App.RunStore.Ping(c.Request.Context()); err != nil {
			log.Warnf("health: run store ping failed: %v", err)
			status["status"] = "degraded"
			status["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
	}
	c.JSON(http.StatusOK, status)
}

// parsePagination reads limit and offset query parameters.
func parsePagination(c *gin.Context) (int, int, error) {
	limit := 20
	offset := 0
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		} else {
			return 0, 0, fmt.Errorf("invalid limit: %s", l)
		}
	}
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		} else {
			return 0, 0, fmt.Errorf("invalid offset: %s", o)
		}
	}
	return limit, offset, nil
}
