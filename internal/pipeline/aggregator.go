package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"bigscreen/internal/models"
)

// ResultFetcher loads the artifacts of a completed classification task.
type ResultFetcher interface {
	ConfusionMatrix(ctx context.Context, taskID string) (*models.ConfusionMatrix, error)
	CategoryStats(ctx context.Context, taskID string) (models.CategoryStats, error)
}

// Aggregator merges classification metrics with the confusion matrix and
// category statistics into one bundle. It is all or nothing.
type Aggregator struct {
	fetcher ResultFetcher
}

func NewAggregator(fetcher ResultFetcher) *Aggregator {
	return &Aggregator{fetcher: fetcher}
}

// Aggregate fetches both artifacts concurrently. If either fetch fails the
// other is cancelled and no bundle is returned.
func (a *Aggregator) Aggregate(ctx context.Context, taskID string, metrics *models.ClassificationMetrics) (*models.AnalysisBundle, error) {
	var (
		matrix *models.ConfusionMatrix
		stats  models.CategoryStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := a.fetcher.ConfusionMatrix(gctx, taskID)
		if err != nil {
			return err
		}
		matrix = m
		return nil
	})
	g.Go(func() error {
		s, err := a.fetcher.CategoryStats(gctx, taskID)
		if err != nil {
			return err
		}
		stats = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, stageFailure(KindAggregation, models.StageClassification, taskID, err)
	}

	if stats == nil {
		stats = models.CategoryStats{}
	}
	return &models.AnalysisBundle{
		TaskID:          taskID,
		Metrics:         metrics,
		ConfusionMatrix: matrix,
		CategoryStats:   stats,
	}, nil
}
