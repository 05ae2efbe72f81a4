package app

import (
	"context"
	"fmt"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"

	"bigscreen/internal/analysisapi"
	"bigscreen/internal/config"
	"bigscreen/internal/models"
	"bigscreen/internal/pipeline"
	"bigscreen/internal/services"
	"bigscreen/internal/store"
	"bigscreen/internal/store/primary"
	"bigscreen/internal/store/sqlite"
)

type App struct {
	Config *config.Config

	Client   *analysisapi.Client
	RunStore store.RunHistoryStore // nil when database.driver is "none"

	// --- Initialized Services ---
	CatalogService *services.CatalogService
	HistoryService *services.HistoryService // nil without a run store
	Sequencer      *pipeline.Sequencer

	mu        sync.Mutex
	listeners []func(models.PipelineRun)
}

func NewApp(cfg *config.Config) (*App, error) {
	ctx := context.Background()
	app := &App{Config: cfg}

	ConfigureLogging(cfg)

	if err := app.initClient(); err != nil {
		return nil, err
	}
	if err := app.initRunStore(ctx); err != nil {
		return nil, err
	}
	app.initServices()

	log.Debugf("application initialized (backend %s, history %s)", cfg.Backend.BaseURL, cfg.Database.Driver)
	return app, nil
}

// ConfigureLogging applies log.level and log.format to the global logger.
func ConfigureLogging(cfg *config.Config) {
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	}
	if cfg.Log.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetOutput(os.Stderr)
}

// --- Private Helper Methods ---

func (a *App) initClient() error {
	client, err := analysisapi.New(analysisapi.Options{
		BaseURL:   a.Config.Backend.BaseURL,
		Token:     a.Config.Backend.Token,
		Timeout:   a.Config.Backend.Timeout,
		RateLimit: a.Config.Backend.RateLimit,
	})
	if err != nil {
		return fmt.Errorf("init analysis client: %w", err)
	}
	a.Client = client
	return nil
}

func (a *App) initRunStore(ctx context.Context) error {
	db := a.Config.Database
	switch db.Driver {
	case "postgres":
		ps, err := primary.NewPrimaryStore(ctx, db.DSN)
		if err != nil {
			return fmt.Errorf("init postgres run store: %w", err)
		}
		a.RunStore = ps
	case "sqlite":
		s, err := sqlite.Open(ctx, db.DSN)
		if err != nil {
			return fmt.Errorf("init sqlite run store: %w", err)
		}
		a.RunStore = s
	case "none", "":
		log.Info("database.driver is none, run history disabled")
	default:
		return fmt.Errorf("%w: %s", store.ErrUnsupportedDriver, db.Driver)
	}
	return nil
}

func (a *App) initServices() {
	a.CatalogService = services.NewCatalogService(a.Client, a.Config.Catalog.CacheTTL)

	opts := []pipeline.Option{pipeline.WithUpdateHook(a.notify)}
	if a.RunStore != nil {
		a.HistoryService = services.NewHistoryService(a.RunStore)
		opts = append(opts, pipeline.WithRecorder(a.HistoryService))
	}
	a.Sequencer = pipeline.NewSequencer(a.Client, SettingsFromConfig(a.Config.Pipeline), opts...)
}

// SettingsFromConfig maps the pipeline config section onto sequencer settings.
func SettingsFromConfig(pc config.PipelineConfig) pipeline.Settings {
	steps := make([]string, len(pc.Preprocessing.Steps))
	copy(steps, pc.Preprocessing.Steps)
	return pipeline.Settings{
		SampleSize:         pc.SampleSize,
		PreprocessingSteps: steps,
		PreprocessingParameters: map[string]interface{}{
			"cleaningThreshold": pc.Preprocessing.CleaningThreshold,
			"standardFormat":    pc.Preprocessing.StandardFormat,
			"featureCount":      pc.Preprocessing.FeatureCount,
		},
		Classification: models.ClassificationParameters{
			BatchSize:           pc.Classification.BatchSize,
			Threshold:           pc.Classification.Threshold,
			EnablePreprocessing: pc.Classification.EnablePreprocessing,
		},
		ExtractionInterval:     pc.Intervals.Extraction,
		PreprocessingInterval:  pc.Intervals.Preprocessing,
		ClassificationInterval: pc.Intervals.Classification,
		MaxPollDuration:        pc.MaxPollDuration,
		MaxPollAttempts:        pc.MaxPollAttempts,
		StopAbandonedTasks:     pc.StopAbandonedTasks,
	}
}

// OnRunUpdate registers fn for every published snapshot of the current run.
// fn runs on the run's goroutine and must not block.
func (a *App) OnRunUpdate(fn func(models.PipelineRun)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

func (a *App) notify(run models.PipelineRun) {
	a.mu.Lock()
	listeners := a.listeners
	a.mu.Unlock()
	for _, fn := range listeners {
		fn(run)
	}
}

// Close stops the active run and releases the run store.
func (a *App) Close() {
	if a.Sequencer != nil {
		a.Sequencer.Close()
	}
	if a.RunStore != nil {
		if err := a.RunStore.Close(); err != nil {
			log.Errorf("Error closing run store: %v", err)
		}
	}
}
