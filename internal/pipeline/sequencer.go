package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"bigscreen/internal/models"
)

// Backend is the analysis API as the sequencer uses it.
type Backend interface {
	ResultFetcher

	StartKeywordExtraction(ctx context.Context, req models.KeywordExtractionRequest) (string, error)
	KeywordExtractionProgress(ctx context.Context, taskID string) (*models.KeywordExtractionProgress, error)
	StartPreprocessing(ctx context.Context, req models.PreprocessingRequest) (string, error)
	PreprocessingProgress(ctx context.Context, taskID string) (*models.PreprocessProgress, error)
	StartClassification(ctx context.Context, req models.ClassificationRequest) (string, error)
	ClassificationProgress(ctx context.Context, taskID string) (*models.ClassificationTask, error)
	StopTask(ctx context.Context, taskID string) error
}

// RunRecorder receives every finished run, whatever its outcome.
type RunRecorder interface {
	RecordRun(ctx context.Context, run models.PipelineRun) error
}

// Settings are the stage parameters and poll cadences of a run.
type Settings struct {
	SampleSize              int
	PreprocessingSteps      []string
	PreprocessingParameters map[string]interface{}
	Classification          models.ClassificationParameters

	ExtractionInterval     time.Duration
	PreprocessingInterval  time.Duration
	ClassificationInterval time.Duration

	MaxPollDuration time.Duration
	MaxPollAttempts uint64

	StopAbandonedTasks bool
}

func DefaultSettings() Settings {
	return Settings{
		SampleSize:         1000,
		PreprocessingSteps: []string{"数据清洗", "格式标准化", "特征提取"},
		PreprocessingParameters: map[string]interface{}{
			"cleaningThreshold": 0.8,
			"standardFormat":    "json",
			"featureCount":      100,
		},
		// Preprocessing already ran as its own stage.
		Classification: models.ClassificationParameters{BatchSize: 32, Threshold: 0.8, EnablePreprocessing: false},

		ExtractionInterval:     500 * time.Millisecond,
		PreprocessingInterval:  time.Second,
		ClassificationInterval: 100 * time.Millisecond,
		MaxPollDuration:        10 * time.Minute,
	}
}

const stopTaskTimeout = 5 * time.Second

// Sequencer runs keyword extraction, preprocessing and classification in
// order for one source, then aggregates the results. A new run supersedes
// the previous one: its polls are cancelled and its late results dropped.
type Sequencer struct {
	backend    Backend
	settings   Settings
	guard      *Guard
	board      *Board
	aggregator *Aggregator
	recorder   RunRecorder
	onUpdate   func(models.PipelineRun)

	mu         sync.Mutex
	generation uint64
	cancelRun  context.CancelFunc
	closed     bool
	wg         sync.WaitGroup
}

type Option func(*Sequencer)

func WithRecorder(r RunRecorder) Option {
	return func(s *Sequencer) { s.recorder = r }
}

// WithUpdateHook registers fn to receive every published snapshot of the
// current run. fn runs on the run's goroutine and must not block.
func WithUpdateHook(fn func(models.PipelineRun)) Option {
	return func(s *Sequencer) { s.onUpdate = fn }
}

func WithGuard(g *Guard) Option {
	return func(s *Sequencer) { s.guard = g }
}

func NewSequencer(backend Backend, settings Settings, opts ...Option) *Sequencer {
	s := &Sequencer{
		backend:    backend,
		settings:   settings,
		guard:      NewGuard(),
		board:      NewBoard(),
		aggregator: NewAggregator(backend),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sequencer) Board() *Board { return s.board }

func (s *Sequencer) Guard() *Guard { return s.guard }

// activeRun is the private state of one run. Only the run's own goroutine
// and its poll callbacks touch it, and never concurrently.
type activeRun struct {
	state    *models.PipelineRun
	ctx      context.Context
	cancel   context.CancelFunc
	inflight string // task being polled, cleared when its stage succeeds
	log      *log.Entry
}

// Run executes a full run for source and blocks until it finishes.
func (s *Sequencer) Run(ctx context.Context, source string) (*models.AnalysisBundle, error) {
	r, err := s.begin(ctx, source)
	if err != nil {
		return nil, err
	}
	return s.execute(r)
}

// Launch starts a run in the background and returns its initial snapshot.
// The run outlives ctx's cancellation; use CancelCurrent or Close to stop it.
func (s *Sequencer) Launch(ctx context.Context, source string) (models.PipelineRun, error) {
	r, err := s.begin(context.WithoutCancel(ctx), source)
	if err != nil {
		return models.PipelineRun{}, err
	}
	snap := cloneRun(r.state)
	go s.execute(r)
	return snap, nil
}

// CancelCurrent stops the active run, if any.
func (s *Sequencer) CancelCurrent() bool {
	s.mu.Lock()
	cancel := s.cancelRun
	gen := s.generation
	s.cancelRun = nil
	s.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	s.guard.CancelGeneration(gen)
	return true
}

// Close cancels the active run and every poll, then waits for runs to
// wind down. Later runs fail with ErrSequencerClosed.
func (s *Sequencer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancelRun != nil {
		s.cancelRun()
		s.cancelRun = nil
	}
	s.mu.Unlock()

	if n := s.guard.CancelAll(); n > 0 {
		log.Debugf("sequencer closed, cancelled %d polls", n)
	}
	s.wg.Wait()
}

// begin takes the next generation and retires the previous run before any
// I/O of the new run happens.
func (s *Sequencer) begin(parent context.Context, source string) (*activeRun, error) {
	if source == "" {
		return nil, fmt.Errorf("%w: source is required", models.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSequencerClosed
	}

	prev := s.generation
	s.generation++
	if s.cancelRun != nil {
		s.cancelRun()
	}
	if prev > 0 {
		if n := s.guard.CancelGeneration(prev); n > 0 {
			log.Infof("run generation %d superseded, cancelled %d polls", prev, n)
		}
	}

	ctx, cancel := context.WithCancel(parent)
	s.cancelRun = cancel
	s.wg.Add(1)

	run := &models.PipelineRun{
		ID:         uuid.New(),
		Generation: s.generation,
		Source:     source,
		Phase:      models.PhaseIdle,
		StartedAt:  time.Now(),
	}
	s.board.reset(run)

	return &activeRun{
		state:  run,
		ctx:    ctx,
		cancel: cancel,
		log: log.WithFields(log.Fields{
			"run":        run.ID.String(),
			"generation": run.Generation,
			"source":     source,
		}),
	}, nil
}

func (s *Sequencer) isCurrent(r *activeRun) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == r.state.Generation
}

func (s *Sequencer) execute(r *activeRun) (*models.AnalysisBundle, error) {
	defer s.wg.Done()
	defer r.cancel()

	r.log.Infof("analysis run started")
	bundle, err := s.runStages(r)
	err = s.finish(r, err)

	s.mu.Lock()
	if s.generation == r.state.Generation {
		s.cancelRun = nil
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return bundle, nil
}

func (s *Sequencer) runStages(r *activeRun) (*models.AnalysisBundle, error) {
	if err := s.advance(r, EventStart); err != nil {
		return nil, err
	}
	source := r.state.Source

	// Keyword extraction
	kwID, err := s.submit(r, models.StageKeywordExtraction, func(ctx context.Context) (string, error) {
		return s.backend.StartKeywordExtraction(ctx, models.KeywordExtractionRequest{
			SourceType: source,
			SampleSize: s.settings.SampleSize,
		})
	})
	if err != nil {
		return nil, err
	}
	_, err = awaitStage(s, r, PollSpec[*models.KeywordExtractionProgress]{
		Kind:     models.StageKeywordExtraction,
		TaskID:   kwID,
		Interval: s.settings.ExtractionInterval,
		Fetch:    s.backend.KeywordExtractionProgress,
		Decide:   decideExtraction,
		OnProgress: func(p *models.KeywordExtractionProgress) {
			s.update(r, func(run *models.PipelineRun) {
				run.Keywords = p.Keywords
				setStage(run, models.StageKeywordExtraction, models.TaskStatusRunning, p.Progress)
			})
		},
	})
	if err != nil {
		return nil, err
	}

	// Preprocessing
	preID, err := s.submit(r, models.StagePreprocessing, func(ctx context.Context) (string, error) {
		return s.backend.StartPreprocessing(ctx, models.PreprocessingRequest{
			SourceType: source,
			Steps:      s.settings.PreprocessingSteps,
			Parameters: s.settings.PreprocessingParameters,
		})
	})
	if err != nil {
		return nil, err
	}
	_, err = awaitStage(s, r, PollSpec[*models.PreprocessProgress]{
		Kind:     models.StagePreprocessing,
		TaskID:   preID,
		Interval: s.settings.PreprocessingInterval,
		Fetch:    s.backend.PreprocessingProgress,
		Decide:   decidePreprocessing,
		OnProgress: func(p *models.PreprocessProgress) {
			s.update(r, func(run *models.PipelineRun) {
				run.CompletedSteps = p.CompletedStepNames()
				setStage(run, models.StagePreprocessing, p.Status, p.Progress)
			})
		},
	})
	if err != nil {
		return nil, err
	}

	// Classification
	clsID, err := s.submit(r, models.StageClassification, func(ctx context.Context) (string, error) {
		return s.backend.StartClassification(ctx, models.ClassificationRequest{
			SourceType: source,
			Parameters: s.settings.Classification,
		})
	})
	if err != nil {
		return nil, err
	}
	task, err := awaitStage(s, r, PollSpec[*models.ClassificationTask]{
		Kind:     models.StageClassification,
		TaskID:   clsID,
		Interval: s.settings.ClassificationInterval,
		Fetch:    s.backend.ClassificationProgress,
		Decide:   decideClassification,
		OnProgress: func(t *models.ClassificationTask) {
			s.update(r, func(run *models.PipelineRun) {
				if t.Metrics != nil {
					run.Metrics = t.Metrics
				}
				if t.CategoryStats != nil {
					run.CategoryStats = t.CategoryStats
				}
				setStage(run, models.StageClassification, t.Status, t.Progress)
			})
		},
	})
	if err != nil {
		return nil, err
	}

	// Aggregation
	bundle, err := s.aggregator.Aggregate(r.ctx, clsID, task.Metrics)
	if err != nil {
		if r.ctx.Err() != nil {
			return nil, ErrRunCancelled
		}
		return nil, err
	}
	if !s.isCurrent(r) {
		return nil, ErrRunSuperseded
	}
	s.update(r, func(run *models.PipelineRun) {
		run.Result = bundle
		run.CategoryStats = bundle.CategoryStats
		if bundle.Metrics != nil {
			run.Metrics = bundle.Metrics
		}
	})
	if err := s.advance(r, EventResultsReady); err != nil {
		return nil, err
	}
	return bundle, nil
}

// submit starts a stage. A superseded run never submits.
func (s *Sequencer) submit(r *activeRun, kind models.StageKind, start func(ctx context.Context) (string, error)) (string, error) {
	if !s.isCurrent(r) {
		return "", ErrRunSuperseded
	}
	taskID, err := start(r.ctx)
	if err != nil {
		if r.ctx.Err() != nil {
			return "", ErrRunCancelled
		}
		return "", stageFailure(KindSubmission, kind, "", err)
	}

	r.inflight = taskID
	s.update(r, func(run *models.PipelineRun) {
		run.Stages = append(run.Stages, models.TaskRef{Kind: kind, TaskID: taskID, Status: models.TaskStatusPending})
		run.Progress = 0
	})
	r.log.Infof("%s task %s submitted", kind, taskID)
	return taskID, nil
}

// awaitStage polls a submitted stage until it settles and, on success,
// moves the run to the next phase.
func awaitStage[T any](s *Sequencer, r *activeRun, spec PollSpec[T]) (T, error) {
	var zero T
	spec.Generation = r.state.Generation
	spec.MaxDuration = s.settings.MaxPollDuration
	spec.MaxAttempts = s.settings.MaxPollAttempts
	spec.Guard = s.guard

	v, err := StartPoll(r.ctx, spec).Result()
	if err != nil {
		if errors.Is(err, ErrPollCancelled) {
			return zero, ErrRunCancelled
		}
		return zero, err
	}
	if !s.isCurrent(r) {
		return zero, ErrRunSuperseded
	}

	r.inflight = ""
	s.update(r, func(run *models.PipelineRun) {
		setStage(run, spec.Kind, models.TaskStatusCompleted, 100)
	})
	r.log.Infof("%s task %s completed", spec.Kind, spec.TaskID)
	return v, s.advance(r, EventStageSucceeded)
}

// finish settles the run's final state, records it and maps err to what
// the caller of Run sees.
func (s *Sequencer) finish(r *activeRun, err error) error {
	status := models.RunStatusCompleted
	switch {
	case !s.isCurrent(r):
		// Late success of a superseded run is dropped too.
		err = ErrRunSuperseded
		status = models.RunStatusCancelled
		s.fail(r, err.Error(), true)
		r.log.Infof("run superseded")
	case err == nil:
		r.log.Infof("analysis run completed")
	case errors.Is(err, ErrRunCancelled) || r.ctx.Err() != nil:
		err = ErrRunCancelled
		status = models.RunStatusCancelled
		s.fail(r, err.Error(), true)
		r.log.Infof("run cancelled")
	default:
		status = models.RunStatusFailed
		s.fail(r, UserMessage(err), false)
		r.log.Errorf("run failed: %v", err)
	}

	if status == models.RunStatusCancelled && s.settings.StopAbandonedTasks && r.inflight != "" {
		s.stopTask(r, r.inflight)
	}

	now := time.Now()
	s.update(r, func(run *models.PipelineRun) { run.FinishedAt = &now })

	if s.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if rerr := s.recorder.RecordRun(ctx, cloneRun(r.state)); rerr != nil {
			r.log.Warnf("failed to record run (status %s): %v", status, rerr)
		}
	}
	return err
}

func (s *Sequencer) fail(r *activeRun, msg string, cancelled bool) {
	s.update(r, func(run *models.PipelineRun) {
		if next, err := Transition(run.Phase, EventFail); err == nil {
			run.Phase = next
		}
		run.Error = msg
		run.Cancelled = cancelled
	})
}

// stopTask asks the backend to drop a task nobody waits for anymore.
// Best effort.
func (s *Sequencer) stopTask(r *activeRun, taskID string) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTaskTimeout)
	defer cancel()
	if err := s.backend.StopTask(ctx, taskID); err != nil {
		r.log.Warnf("failed to stop abandoned task %s: %v", taskID, err)
		return
	}
	r.log.Infof("stopped abandoned task %s", taskID)
}

func (s *Sequencer) advance(r *activeRun, ev Event) error {
	next, err := Transition(r.state.Phase, ev)
	if err != nil {
		r.log.Errorf("phase machine: %v", err)
		return err
	}
	s.update(r, func(run *models.PipelineRun) { run.Phase = next })
	r.log.Debugf("phase -> %s", next)
	return nil
}

// update mutates the run's private state and publishes it. Stale runs
// still update their own state, but the board drops them.
func (s *Sequencer) update(r *activeRun, fn func(run *models.PipelineRun)) {
	fn(r.state)
	snap, ok := s.board.publish(r.state)
	if ok && s.onUpdate != nil {
		s.onUpdate(snap)
	}
}

// --- Terminal-state predicates ---

// Extraction has no status field; progress >= 100 is terminal.
func decideExtraction(p *models.KeywordExtractionProgress) (Decision, string) {
	if p.Progress >= 100 {
		return Succeed, ""
	}
	return Continue, ""
}

func decidePreprocessing(p *models.PreprocessProgress) (Decision, string) {
	switch p.Status {
	case models.TaskStatusCompleted:
		return Succeed, ""
	case models.TaskStatusFailed:
		if p.Error != "" {
			return Fail, p.Error
		}
		return Fail, "preprocessing failed"
	default:
		return Continue, ""
	}
}

func decideClassification(t *models.ClassificationTask) (Decision, string) {
	switch t.Status {
	case models.TaskStatusCompleted:
		return Succeed, ""
	case models.TaskStatusFailed:
		if t.Error != "" {
			return Fail, t.Error
		}
		return Fail, "classification failed"
	default:
		return Continue, ""
	}
}

func setStage(run *models.PipelineRun, kind models.StageKind, status string, progress float64) {
	pct := percent(progress)
	for i := range run.Stages {
		if run.Stages[i].Kind == kind {
			if status != "" {
				run.Stages[i].Status = status
			}
			run.Stages[i].Progress = pct
		}
	}
	run.Progress = pct
}

func percent(v float64) int {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return int(math.Floor(v))
	}
}
