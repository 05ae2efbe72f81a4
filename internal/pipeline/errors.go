package pipeline

import (
	"errors"
	"fmt"

	"bigscreen/internal/models"
)

var (
	ErrPollTimeout       = errors.New("poll timed out")
	ErrPollCancelled     = errors.New("poll cancelled")
	ErrRunSuperseded     = errors.New("run superseded by a newer run")
	ErrRunCancelled      = errors.New("run cancelled")
	ErrIllegalTransition = errors.New("illegal phase transition")
	ErrSequencerClosed   = errors.New("sequencer closed")
)

// ErrorKind classifies why a stage failed.
type ErrorKind string

const (
	KindSubmission     ErrorKind = "submission"
	KindPollFetch      ErrorKind = "poll-fetch"
	KindBackendFailure ErrorKind = "backend-failure"
	KindAggregation    ErrorKind = "aggregation"
	KindTimeout        ErrorKind = "timeout"
)

// StageError is a failure that is fatal to the run it happened in.
type StageError struct {
	Kind    ErrorKind
	Stage   models.StageKind
	TaskID  string
	Message string // shown to the user as-is
	Err     error
}

func (e *StageError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("%s %s (task %s): %s", e.Stage, e.Kind, e.TaskID, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Stage, e.Kind, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// UserMessage returns the text a user should see for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *StageError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}

func stageFailure(kind ErrorKind, stage models.StageKind, taskID string, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, TaskID: taskID, Message: UserMessage(err), Err: err}
}
