package models

import (
	"sort"
)

// DataSource describes one selectable input of the analysis panel.
type DataSource struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Count       int      `json:"count"`
	LastUpdated string   `json:"lastUpdated"`
	Categories  []string `json:"categories"`
}

// --- Keyword extraction ---

type KeywordExtractionRequest struct {
	SourceType string `json:"sourceType"`
	SampleSize int    `json:"sampleSize,omitempty"`
}

// KeywordExtractionProgress has no status field; progress >= 100 is terminal.
type KeywordExtractionProgress struct {
	Keywords       []string `json:"keywords"`
	TotalKeywords  int      `json:"totalKeywords"`
	ExtractedCount int      `json:"extractedCount"`
	Progress       float64  `json:"progress"`
	Confidence     float64  `json:"confidence"`
}

// --- Preprocessing ---

type PreprocessingRequest struct {
	SourceType string                 `json:"sourceType"`
	Steps      []string               `json:"steps"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

type PreprocessStep struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status"`
	Progress    float64 `json:"progress"`
	StartTime   string  `json:"startTime,omitempty"`
	EndTime     string  `json:"endTime,omitempty"`
	Duration    int64   `json:"duration,omitempty"`
}

type PreprocessOutcome struct {
	CleanedDataCount      int     `json:"cleanedDataCount"`
	StandardizedDataCount int     `json:"standardizedDataCount"`
	ExtractedFeatures     int     `json:"extractedFeatures"`
	QualityScore          float64 `json:"qualityScore"`
}

type PreprocessProgress struct {
	TaskID         string             `json:"taskId"`
	Status         string             `json:"status"`
	Progress       float64            `json:"progress"`
	Steps          []PreprocessStep   `json:"steps"`
	TotalSteps     int                `json:"totalSteps"`
	CompletedSteps int                `json:"completedSteps"`
	StartTime      string             `json:"startTime,omitempty"`
	EndTime        string             `json:"endTime,omitempty"`
	Duration       int64              `json:"duration,omitempty"`
	Result         *PreprocessOutcome `json:"result,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// CompletedStepNames returns the names of steps reported as completed, in order.
func (p *PreprocessProgress) CompletedStepNames() []string {
	var names []string
	for _, s := range p.Steps {
		if s.Status == TaskStatusCompleted {
			names = append(names, s.Name)
		}
	}
	return names
}

// --- Classification ---

// ClassificationParameters is always sent in full: the backend must see
// enablePreprocessing=false explicitly once preprocessing already ran.
type ClassificationParameters struct {
	BatchSize           int     `json:"batchSize"`
	Threshold           float64 `json:"threshold"`
	EnablePreprocessing bool    `json:"enablePreprocessing"`
}

type ClassificationRequest struct {
	SourceType string                   `json:"sourceType"`
	ModelID    string                   `json:"modelId,omitempty"`
	Categories []string                 `json:"categories,omitempty"`
	Parameters ClassificationParameters `json:"parameters"`
}

type CategoryReport struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1Score"`
	Support   int     `json:"support"`
}

type ClassificationMetrics struct {
	Accuracy             float64                   `json:"accuracy"`
	Precision            float64                   `json:"precision"`
	Recall               float64                   `json:"recall"`
	F1Score              float64                   `json:"f1Score"`
	Support              int                       `json:"support"`
	ConfusionMatrix      [][]int                   `json:"confusionMatrix,omitempty"`
	ClassificationReport map[string]CategoryReport `json:"classificationReport,omitempty"`
}

type ClassificationTask struct {
	TaskID        string                 `json:"taskId"`
	SourceType    string                 `json:"sourceType,omitempty"`
	Status        string                 `json:"status"`
	Progress      float64                `json:"progress"`
	StartTime     string                 `json:"startTime,omitempty"`
	EndTime       string                 `json:"endTime,omitempty"`
	Duration      int64                  `json:"duration,omitempty"`
	ModelType     string                 `json:"modelType,omitempty"`
	Metrics       *ClassificationMetrics `json:"metrics,omitempty"`
	CategoryStats CategoryStats          `json:"categoryStats,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

// --- Results ---

type ConfusionMatrix struct {
	Categories   []string `json:"categories"`
	Matrix       [][]int  `json:"matrix"`
	Labels       []string `json:"labels"`
	TotalSamples int      `json:"totalSamples"`
}

type CategoryStat struct {
	Count      int     `json:"count"`
	Confidence float64 `json:"confidence"`
	Percentage float64 `json:"percentage"`
	Samples    int     `json:"samples"`
}

// CategoryStats is keyed by category identifier.
type CategoryStats map[string]CategoryStat

// Keys returns the category identifiers in sorted order.
func (s CategoryStats) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AnalysisBundle is the display-ready result of a completed run.
type AnalysisBundle struct {
	TaskID          string                 `json:"taskId"`
	Metrics         *ClassificationMetrics `json:"metrics"`
	ConfusionMatrix *ConfusionMatrix       `json:"confusionMatrix"`
	CategoryStats   CategoryStats          `json:"categoryStats"`
}

// ResultCard is one rendered category card.
type ResultCard struct {
	Category string `json:"category"`
	CategoryStat
}

// Cards returns exactly one card per category-stats key. Categories that
// appear in the confusion matrix come first in matrix order, the rest
// follow sorted by name.
func (b *AnalysisBundle) Cards() []ResultCard {
	if b == nil || len(b.CategoryStats) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(b.CategoryStats))
	cards := make([]ResultCard, 0, len(b.CategoryStats))
	if b.ConfusionMatrix != nil {
		for _, c := range b.ConfusionMatrix.Categories {
			stat, ok := b.CategoryStats[c]
			if !ok || seen[c] {
				continue
			}
			seen[c] = true
			cards = append(cards, ResultCard{Category: c, CategoryStat: stat})
		}
	}
	for _, c := range b.CategoryStats.Keys() {
		if seen[c] {
			continue
		}
		cards = append(cards, ResultCard{Category: c, CategoryStat: b.CategoryStats[c]})
	}
	return cards
}
