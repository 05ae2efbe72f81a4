package pipeline

import (
	"fmt"

	"bigscreen/internal/models"
)

// Event drives the run phase machine.
type Event int

const (
	EventStart Event = iota
	EventStageSucceeded
	EventResultsReady
	EventFail
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventStageSucceeded:
		return "stage-succeeded"
	case EventResultsReady:
		return "results-ready"
	case EventFail:
		return "fail"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Transition returns the phase that follows from on ev.
//
//	Idle -> Extracting -> Preprocessing -> Classifying -> Aggregating -> Completed
//
// Fail moves any in-progress phase to Failed. Everything else is illegal.
func Transition(from models.Phase, ev Event) (models.Phase, error) {
	switch {
	case ev == EventStart && from == models.PhaseIdle:
		return models.PhaseExtracting, nil
	case ev == EventStageSucceeded && from == models.PhaseExtracting:
		return models.PhasePreprocessing, nil
	case ev == EventStageSucceeded && from == models.PhasePreprocessing:
		return models.PhaseClassifying, nil
	case ev == EventStageSucceeded && from == models.PhaseClassifying:
		return models.PhaseAggregating, nil
	case ev == EventResultsReady && from == models.PhaseAggregating:
		return models.PhaseCompleted, nil
	case ev == EventFail && from.InProgress():
		return models.PhaseFailed, nil
	}
	return from, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev, from)
}

