// Package backendsim is an in-process stand-in for the analysis backend.
// It serves the same HTTP contract with scripted, deterministic progress
// and can inject failures, so the orchestrator can be exercised end to end
// without the real service.
package backendsim

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"bigscreen/internal/models"
)

// Options scripts the simulated backend.
type Options struct {
	// Polls needed before a task of each stage is done. Defaults to 2, 4 and 5.
	ExtractionPolls     int
	PreprocessingPolls  int
	ClassificationPolls int

	// FailStages makes the final poll of a stage report failure with the
	// given message ("" reports no message).
	FailStages map[models.StageKind]string
	// RejectStarts makes the start call of a stage answer with a non-200
	// envelope code and the given message.
	RejectStarts map[models.StageKind]string
	// FailResults makes confusion-matrix and category-stats fetches fail.
	FailResults bool

	Latency time.Duration // added to every request
}

// Request is one request the simulator received.
type Request struct {
	Method string
	Path   string
	At     time.Time
}

type task struct {
	id      string
	kind    models.StageKind
	source  string
	polls   int
	stopped bool
	started time.Time
}

type Server struct {
	opts Options

	mu       sync.Mutex
	tasks    map[string]*task
	requests []Request
	seq      int
}

func New(opts Options) *Server {
	if opts.ExtractionPolls <= 0 {
		opts.ExtractionPolls = 2
	}
	if opts.PreprocessingPolls <= 0 {
		opts.PreprocessingPolls = 4
	}
	if opts.ClassificationPolls <= 0 {
		opts.ClassificationPolls = 5
	}
	return &Server{opts: opts, tasks: make(map[string]*task)}
}

// Handler returns the gin engine serving the backend contract.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), s.logRequest)

	api := router.Group("/api/analysis")
	{
		api.GET("/data-sources", s.handleDataSources)
		api.GET("/source-category-mapping", s.handleMapping)

		api.POST("/keyword-extraction/start", s.handleStart(models.StageKeywordExtraction))
		api.GET("/keyword-extraction/progress/:taskId", s.handleExtractionProgress)

		api.POST("/preprocessing/start", s.handleStart(models.StagePreprocessing))
		api.GET("/preprocessing/progress/:taskId", s.handlePreprocessingProgress)

		api.POST("/classification/start", s.handleStart(models.StageClassification))
		api.GET("/classification/progress/:taskId", s.handleClassificationProgress)

		api.GET("/confusion-matrix/:taskId", s.handleConfusionMatrix)
		api.GET("/category-stats/:taskId", s.handleCategoryStats)

		api.POST("/tasks/:taskId/stop", s.handleStop)
	}
	return router
}

// Requests returns every request received so far, in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Stopped reports whether a stop was requested for taskID.
func (s *Server) Stopped(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	return ok && t.stopped
}

func (s *Server) logRequest(c *gin.Context) {
	s.mu.Lock()
	s.requests = append(s.requests, Request{Method: c.Request.Method, Path: c.Request.URL.Path, At: time.Now()})
	s.mu.Unlock()
	if s.opts.Latency > 0 {
		select {
		case <-time.After(s.opts.Latency):
		case <-c.Request.Context().Done():
			c.Abort()
			return
		}
	}
	c.Next()
}

// --- envelope helpers ---

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

func fail(c *gin.Context, code int, msg string) {
	c.JSON(http.StatusOK, gin.H{"code": code, "message": msg, "data": nil})
}

// --- handlers ---

func (s *Server) handleDataSources(c *gin.Context) {
	ok(c, dataSources)
}

func (s *Server) handleMapping(c *gin.Context) {
	ok(c, sourceCategories)
}

func (s *Server) handleStart(kind models.StageKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			SourceType string `json:"sourceType"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.SourceType == "" {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "sourceType is required"})
			return
		}
		if msg, reject := s.opts.RejectStarts[kind]; reject {
			fail(c, http.StatusInternalServerError, msg)
			return
		}

		s.mu.Lock()
		s.seq++
		t := &task{
			id:      fmt.Sprintf("%s_%d", kind, s.seq),
			kind:    kind,
			source:  req.SourceType,
			started: time.Now(),
		}
		s.tasks[t.id] = t
		s.mu.Unlock()

		log.Debugf("backendsim: started %s task %s for %s", kind, t.id, req.SourceType)
		ok(c, gin.H{"taskId": t.id})
	}
}

// poll advances the task by one poll and returns a copy plus the fraction done.
func (s *Server) poll(c *gin.Context, kind models.StageKind, needed int) (task, float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, found := s.tasks[c.Param("taskId")]
	if !found || t.kind != kind {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "task not found"})
		return task{}, 0, false
	}
	if !t.stopped {
		t.polls++
	}
	frac := float64(t.polls) / float64(needed)
	if frac > 1 {
		frac = 1
	}
	return *t, frac, true
}

func (s *Server) failing(kind models.StageKind, frac float64) (string, bool) {
	msg, failing := s.opts.FailStages[kind]
	return msg, failing && frac >= 1
}

func (s *Server) handleExtractionProgress(c *gin.Context) {
	t, frac, found := s.poll(c, models.StageKeywordExtraction, s.opts.ExtractionPolls)
	if !found {
		return
	}
	if msg, failed := s.failing(t.kind, frac); failed {
		fail(c, http.StatusInternalServerError, msg)
		return
	}
	all := sourceKeywords[t.source]
	n := int(frac * float64(len(all)))
	ok(c, models.KeywordExtractionProgress{
		Keywords:       all[:n],
		TotalKeywords:  len(all),
		ExtractedCount: n,
		Progress:       frac * 100,
		Confidence:     0.6 + 0.3*frac,
	})
}

func (s *Server) handlePreprocessingProgress(c *gin.Context) {
	t, frac, found := s.poll(c, models.StagePreprocessing, s.opts.PreprocessingPolls)
	if !found {
		return
	}
	names := []string{"数据清洗", "格式标准化", "特征提取"}
	done := int(frac * float64(len(names)))
	steps := make([]models.PreprocessStep, len(names))
	for i, name := range names {
		st := models.PreprocessStep{ID: fmt.Sprintf("step%d", i+1), Name: name, Status: models.TaskStatusPending}
		switch {
		case i < done:
			st.Status, st.Progress = models.TaskStatusCompleted, 100
		case i == done:
			st.Status = models.TaskStatusRunning
		}
		steps[i] = st
	}

	p := models.PreprocessProgress{
		TaskID:         t.id,
		Status:         models.TaskStatusRunning,
		Progress:       frac * 100,
		Steps:          steps,
		TotalSteps:     len(names),
		CompletedSteps: done,
		StartTime:      t.started.Format(time.RFC3339),
	}
	if msg, failed := s.failing(t.kind, frac); failed {
		p.Status, p.Error = models.TaskStatusFailed, msg
	} else if frac >= 1 {
		p.Status = models.TaskStatusCompleted
		p.EndTime = time.Now().Format(time.RFC3339)
		p.Duration = time.Since(t.started).Milliseconds()
		p.Result = &models.PreprocessOutcome{CleanedDataCount: 950, StandardizedDataCount: 950, ExtractedFeatures: 100, QualityScore: 0.92}
	}
	ok(c, p)
}

func (s *Server) handleClassificationProgress(c *gin.Context) {
	t, frac, found := s.poll(c, models.StageClassification, s.opts.ClassificationPolls)
	if !found {
		return
	}
	ct := models.ClassificationTask{
		TaskID:     t.id,
		SourceType: t.source,
		Status:     models.TaskStatusClassifying,
		Progress:   frac * 100,
		StartTime:  t.started.Format(time.RFC3339),
		ModelType:  "bert-base-chinese",
		Metrics:    metricsAt(frac),
	}
	if msg, failed := s.failing(t.kind, frac); failed {
		ct.Status, ct.Error, ct.Metrics = models.TaskStatusFailed, msg, nil
	} else if frac >= 1 {
		ct.Status = models.TaskStatusCompleted
		ct.EndTime = time.Now().Format(time.RFC3339)
		ct.CategoryStats = statsFor(t.source)
	}
	ok(c, ct)
}

func (s *Server) resultTask(c *gin.Context) (task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, found := s.tasks[c.Param("taskId")]
	if !found || t.kind != models.StageClassification {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "task not found"})
		return task{}, false
	}
	if s.opts.FailResults {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "result store unavailable"})
		return task{}, false
	}
	return *t, true
}

func (s *Server) handleConfusionMatrix(c *gin.Context) {
	t, found := s.resultTask(c)
	if !found {
		return
	}
	ok(c, matrixFor(t.source))
}

func (s *Server) handleCategoryStats(c *gin.Context) {
	t, found := s.resultTask(c)
	if !found {
		return
	}
	ok(c, statsFor(t.source))
}

func (s *Server) handleStop(c *gin.Context) {
	s.mu.Lock()
	t, found := s.tasks[c.Param("taskId")]
	if found {
		t.stopped = true
	}
	s.mu.Unlock()
	if !found {
		fail(c, http.StatusNotFound, "task not found")
		return
	}
	ok(c, nil)
}

// --- result generators ---

func metricsAt(frac float64) *models.ClassificationMetrics {
	acc := 0.5 + 0.45*frac
	return &models.ClassificationMetrics{
		Accuracy:  acc,
		Precision: acc - 0.02,
		Recall:    acc - 0.01,
		F1Score:   acc - 0.015,
		Support:   int(1000 * frac),
	}
}

func matrixFor(source string) models.ConfusionMatrix {
	cats := categoriesFor(source)
	m := make([][]int, len(cats))
	labels := make([]string, len(cats))
	total := 0
	for i := range cats {
		m[i] = make([]int, len(cats))
		for j := range cats {
			v := 5
			if i == j {
				v = 90 + 3*i
			}
			m[i][j] = v
			total += v
		}
		labels[i] = categoryLabels[cats[i]]
	}
	return models.ConfusionMatrix{Categories: cats, Matrix: m, Labels: labels, TotalSamples: total}
}

func statsFor(source string) models.CategoryStats {
	mx := matrixFor(source)
	stats := models.CategoryStats{}
	for i, cat := range mx.Categories {
		row := 0
		for _, v := range mx.Matrix[i] {
			row += v
		}
		stats[cat] = models.CategoryStat{
			Count:      row,
			Confidence: float64(mx.Matrix[i][i]) / float64(row),
			Percentage: 100 * float64(row) / float64(mx.TotalSamples),
			Samples:    row,
		}
	}
	return stats
}
