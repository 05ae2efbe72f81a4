package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"bigscreen/internal/models"
)

// fakeScript scripts the backend's answers for one source. Progress fetches
// walk their slice and then repeat the last entry.
type fakeScript struct {
	extraction     []models.KeywordExtractionProgress
	preprocessing  []models.PreprocessProgress
	classification []models.ClassificationTask
	matrix         *models.ConfusionMatrix
	stats          models.CategoryStats

	startErr  map[models.StageKind]error
	fetchErr  map[models.StageKind]error
	matrixErr error

	// block makes progress fetches of a stage wait until the channel is
	// closed, whatever the context says. blocked is signalled on entry.
	block   map[models.StageKind]chan struct{}
	blocked chan models.StageKind
}

type fakeBackend struct {
	mu      sync.Mutex
	scripts map[string]*fakeScript
	tasks   map[string]string // task id -> source
	polls   map[string]int
	events  []string
	seq     int
	stopped []string

	preprocessingReqs  []models.PreprocessingRequest
	classificationReqs []models.ClassificationRequest
	extractionReqs     []models.KeywordExtractionRequest

	onStart func(kind models.StageKind, source string)
}

func newFakeBackend(scripts map[string]*fakeScript) *fakeBackend {
	return &fakeBackend{
		scripts: scripts,
		tasks:   map[string]string{},
		polls:   map[string]int{},
	}
}

func (f *fakeBackend) record(event string) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *fakeBackend) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// EventsFor returns the events of one source, without the source suffix.
func (f *fakeBackend) EventsFor(source string) []string {
	var out []string
	for _, e := range f.Events() {
		if strings.HasSuffix(e, ":"+source) {
			out = append(out, strings.TrimSuffix(e, ":"+source))
		}
	}
	return out
}

func (f *fakeBackend) Count(event string) int {
	n := 0
	for _, e := range f.Events() {
		if e == event {
			n++
		}
	}
	return n
}

func (f *fakeBackend) start(ctx context.Context, kind models.StageKind, source string) (string, error) {
	f.record(fmt.Sprintf("start:%s:%s", kind, source))
	f.mu.Lock()
	hook := f.onStart
	sc := f.scripts[source]
	f.mu.Unlock()
	if hook != nil {
		hook(kind, source)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if sc == nil {
		return "", fmt.Errorf("no script for %s", source)
	}
	if err := sc.startErr[kind]; err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("%s-%s-%d", source, kind, f.seq)
	f.tasks[id] = source
	return id, nil
}

// progress returns the script and the index of this fetch.
func (f *fakeBackend) progress(ctx context.Context, kind models.StageKind, taskID string) (*fakeScript, int, error) {
	f.mu.Lock()
	source := f.tasks[taskID]
	n := f.polls[taskID]
	f.polls[taskID]++
	f.events = append(f.events, fmt.Sprintf("progress:%s:%s", kind, source))
	sc := f.scripts[source]
	f.mu.Unlock()

	if ch := sc.block[kind]; ch != nil {
		if sc.blocked != nil {
			select {
			case sc.blocked <- kind:
			default:
			}
		}
		<-ch
		return sc, n, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if err := sc.fetchErr[kind]; err != nil {
		return nil, 0, err
	}
	return sc, n, nil
}

func pick(n, length int) int {
	if n >= length {
		return length - 1
	}
	return n
}

func (f *fakeBackend) StartKeywordExtraction(ctx context.Context, req models.KeywordExtractionRequest) (string, error) {
	f.mu.Lock()
	f.extractionReqs = append(f.extractionReqs, req)
	f.mu.Unlock()
	return f.start(ctx, models.StageKeywordExtraction, req.SourceType)
}

func (f *fakeBackend) KeywordExtractionProgress(ctx context.Context, taskID string) (*models.KeywordExtractionProgress, error) {
	sc, n, err := f.progress(ctx, models.StageKeywordExtraction, taskID)
	if err != nil {
		return nil, err
	}
	p := sc.extraction[pick(n, len(sc.extraction))]
	return &p, nil
}

func (f *fakeBackend) StartPreprocessing(ctx context.Context, req models.PreprocessingRequest) (string, error) {
	f.mu.Lock()
	f.preprocessingReqs = append(f.preprocessingReqs, req)
	f.mu.Unlock()
	return f.start(ctx, models.StagePreprocessing, req.SourceType)
}

func (f *fakeBackend) PreprocessingProgress(ctx context.Context, taskID string) (*models.PreprocessProgress, error) {
	sc, n, err := f.progress(ctx, models.StagePreprocessing, taskID)
	if err != nil {
		return nil, err
	}
	p := sc.preprocessing[pick(n, len(sc.preprocessing))]
	return &p, nil
}

func (f *fakeBackend) StartClassification(ctx context.Context, req models.ClassificationRequest) (string, error) {
	f.mu.Lock()
	f.classificationReqs = append(f.classificationReqs, req)
	f.mu.Unlock()
	return f.start(ctx, models.StageClassification, req.SourceType)
}

func (f *fakeBackend) ClassificationProgress(ctx context.Context, taskID string) (*models.ClassificationTask, error) {
	sc, n, err := f.progress(ctx, models.StageClassification, taskID)
	if err != nil {
		return nil, err
	}
	t := sc.classification[pick(n, len(sc.classification))]
	return &t, nil
}

func (f *fakeBackend) ConfusionMatrix(ctx context.Context, taskID string) (*models.ConfusionMatrix, error) {
	f.mu.Lock()
	source := f.tasks[taskID]
	sc := f.scripts[source]
	f.mu.Unlock()
	f.record("matrix:" + source)
	if sc.matrixErr != nil {
		return nil, sc.matrixErr
	}
	return sc.matrix, nil
}

func (f *fakeBackend) CategoryStats(ctx context.Context, taskID string) (models.CategoryStats, error) {
	f.mu.Lock()
	source := f.tasks[taskID]
	sc := f.scripts[source]
	f.mu.Unlock()
	f.record("stats:" + source)
	return sc.stats, nil
}

func (f *fakeBackend) StopTask(ctx context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, taskID)
	return nil
}

func (f *fakeBackend) Stopped() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stopped...)
}

// happyScript walks every stage to completion.
func happyScript() *fakeScript {
	steps := func(done int) []models.PreprocessStep {
		names := []string{"数据清洗", "格式标准化", "特征提取"}
		out := make([]models.PreprocessStep, len(names))
		for i, n := range names {
			status := models.TaskStatusPending
			if i < done {
				status = models.TaskStatusCompleted
			}
			out[i] = models.PreprocessStep{ID: fmt.Sprintf("step%d", i+1), Name: n, Status: status}
		}
		return out
	}

	return &fakeScript{
		extraction: []models.KeywordExtractionProgress{
			{Progress: 50, Keywords: []string{"robot"}},
			{Progress: 100, Keywords: []string{"robot", "vision"}, TotalKeywords: 2, ExtractedCount: 2},
		},
		preprocessing: []models.PreprocessProgress{
			{Status: models.TaskStatusRunning, Progress: 33, Steps: steps(1), TotalSteps: 3, CompletedSteps: 1},
			{Status: models.TaskStatusRunning, Progress: 66, Steps: steps(2), TotalSteps: 3, CompletedSteps: 2},
			{Status: models.TaskStatusRunning, Progress: 99, Steps: steps(3), TotalSteps: 3, CompletedSteps: 3},
			{Status: models.TaskStatusCompleted, Progress: 100, Steps: steps(3), TotalSteps: 3, CompletedSteps: 3},
		},
		classification: []models.ClassificationTask{
			{Status: models.TaskStatusRunning, Progress: 40, Metrics: &models.ClassificationMetrics{Accuracy: 0.7}},
			{Status: models.TaskStatusCompleted, Progress: 100, Metrics: &models.ClassificationMetrics{
				Accuracy: 0.95, Precision: 0.93, Recall: 0.94, F1Score: 0.935, Support: 1000,
			}},
		},
		matrix: &models.ConfusionMatrix{
			Categories:   []string{"robot", "vision"},
			Matrix:       [][]int{{90, 10}, {5, 95}},
			Labels:       []string{"Robot", "Vision"},
			TotalSamples: 200,
		},
		stats: models.CategoryStats{
			"robot":  {Count: 100, Confidence: 0.92, Percentage: 50, Samples: 100},
			"vision": {Count: 100, Confidence: 0.88, Percentage: 50, Samples: 100},
		},
	}
}
