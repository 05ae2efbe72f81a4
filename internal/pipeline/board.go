package pipeline

import (
	"sync"

	"bigscreen/internal/models"
)

// Board holds the screen state: a snapshot of the current run. Only the run
// of the current generation may write to it.
type Board struct {
	mu         sync.RWMutex
	generation uint64
	run        *models.PipelineRun
}

func NewBoard() *Board {
	return &Board{}
}

// reset makes run the current one. Callers must hold the sequencer lock so
// generations are installed in order.
func (b *Board) reset(run *models.PipelineRun) {
	snap := cloneRun(run)
	b.mu.Lock()
	b.generation = run.Generation
	b.run = &snap
	b.mu.Unlock()
}

// publish replaces the snapshot with run if run's generation is still
// current. Stale runs are dropped and publish reports false.
func (b *Board) publish(run *models.PipelineRun) (models.PipelineRun, bool) {
	snap := cloneRun(run)
	b.mu.Lock()
	defer b.mu.Unlock()
	if run.Generation != b.generation {
		return models.PipelineRun{}, false
	}
	b.run = &snap
	return cloneRun(&snap), true
}

// Generation returns the generation of the current run, 0 before any run.
func (b *Board) Generation() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.generation
}

// Snapshot returns a copy of the current run. ok is false before the first run.
func (b *Board) Snapshot() (run models.PipelineRun, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.run == nil {
		return models.PipelineRun{}, false
	}
	return cloneRun(b.run), true
}

// cloneRun copies everything a reader could mutate. The result bundle is
// immutable once set and is shared.
func cloneRun(r *models.PipelineRun) models.PipelineRun {
	c := *r
	c.Stages = append([]models.TaskRef(nil), r.Stages...)
	c.Keywords = append([]string(nil), r.Keywords...)
	c.CompletedSteps = append([]string(nil), r.CompletedSteps...)
	if r.Metrics != nil {
		m := *r.Metrics
		c.Metrics = &m
	}
	if r.CategoryStats != nil {
		c.CategoryStats = make(models.CategoryStats, len(r.CategoryStats))
		for k, v := range r.CategoryStats {
			c.CategoryStats[k] = v
		}
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	return c
}
