package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"bigscreen/internal/models"
)

// Decision is what a status payload means for its poll loop.
type Decision int

const (
	Continue Decision = iota
	Succeed
	Fail
)

// PollSpec describes one poll loop over a backend task.
type PollSpec[T any] struct {
	Kind       models.StageKind
	TaskID     string
	Generation uint64

	Interval    time.Duration
	MaxDuration time.Duration // 0 polls until a terminal payload
	MaxAttempts uint64        // 0 means no attempt bound

	Fetch func(ctx context.Context, taskID string) (T, error)
	// Decide maps a payload to a decision. The reason is used for Fail.
	Decide func(T) (Decision, string)
	// OnProgress sees every fetched payload, terminal ones included.
	OnProgress func(T)

	Guard *Guard // optional
}

// Poll is a running poll loop that settles exactly once.
type Poll[T any] struct {
	Handle *PollHandle

	value       T
	err         error
	settleCount atomic.Int32
}

// errKeepPolling marks a non-terminal payload so backoff schedules another fetch.
var errKeepPolling = errors.New("task not finished")

// StartPoll starts polling in the background. The first fetch happens one
// interval after the call, then at a fixed cadence.
func StartPoll[T any](ctx context.Context, spec PollSpec[T]) *Poll[T] {
	pollCtx, cancel := context.WithCancelCause(ctx)
	p := &Poll[T]{Handle: newPollHandle(spec.Kind, spec.Generation, cancel)}
	if spec.Guard != nil {
		spec.Guard.Track(p.Handle)
	}
	go p.run(pollCtx, spec)
	return p
}

func (p *Poll[T]) run(ctx context.Context, spec PollSpec[T]) {
	if spec.MaxDuration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeoutCause(ctx, spec.MaxDuration, ErrPollTimeout)
		defer stop()
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(spec.Interval)
	if spec.MaxAttempts > 0 {
		// WithMaxRetries counts retries, the first attempt is free.
		b = backoff.WithMaxRetries(b, spec.MaxAttempts-1)
	}
	b = backoff.WithContext(b, ctx)

	var zero T
	attempts := 0
	op := func() (T, error) {
		attempts++
		v, err := spec.Fetch(ctx, spec.TaskID)
		if ctx.Err() != nil {
			return zero, backoff.Permanent(ctx.Err())
		}
		if err != nil {
			return zero, backoff.Permanent(stageFailure(KindPollFetch, spec.Kind, spec.TaskID, err))
		}
		if spec.OnProgress != nil {
			spec.OnProgress(v)
		}
		decision, reason := spec.Decide(v)
		switch decision {
		case Succeed:
			return v, nil
		case Fail:
			return zero, backoff.Permanent(&StageError{
				Kind:    KindBackendFailure,
				Stage:   spec.Kind,
				TaskID:  spec.TaskID,
				Message: reason,
			})
		default:
			return zero, errKeepPolling
		}
	}

	var (
		v   T
		err error
	)
	timer := time.NewTimer(spec.Interval)
	select {
	case <-ctx.Done():
		timer.Stop()
		err = ctx.Err()
	case <-timer.C:
		v, err = backoff.RetryWithData(op, b)
	}

	switch {
	case err == nil:
	case ctx.Err() != nil:
		if errors.Is(context.Cause(ctx), ErrPollTimeout) {
			err = &StageError{
				Kind:    KindTimeout,
				Stage:   spec.Kind,
				TaskID:  spec.TaskID,
				Message: fmt.Sprintf("%s did not finish within %s", spec.Kind, spec.MaxDuration),
				Err:     ErrPollTimeout,
			}
		} else {
			err = ErrPollCancelled
		}
	case errors.Is(err, errKeepPolling):
		err = &StageError{
			Kind:    KindTimeout,
			Stage:   spec.Kind,
			TaskID:  spec.TaskID,
			Message: fmt.Sprintf("%s did not finish after %d polls", spec.Kind, attempts),
			Err:     ErrPollTimeout,
		}
	}

	log.Debugf("poll %s for %s task %s settled after %d fetches (err=%v)", p.Handle.ID, spec.Kind, spec.TaskID, attempts, err)
	p.settle(v, err, spec.Guard)
}

func (p *Poll[T]) settle(v T, err error, guard *Guard) {
	p.value, p.err = v, err
	p.settleCount.Add(1)
	p.Handle.release(false)
	if guard != nil {
		guard.Release(p.Handle)
	}
	close(p.Handle.done)
}

// Settled is closed once the loop has a result.
func (p *Poll[T]) Settled() <-chan struct{} {
	return p.Handle.done
}

// Result returns the settled payload. It blocks until the loop settles.
func (p *Poll[T]) Result() (T, error) {
	<-p.Handle.done
	return p.value, p.err
}

// Wait is Result bounded by ctx.
func (p *Poll[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.Handle.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel stops the loop; see PollHandle.Cancel.
func (p *Poll[T]) Cancel() bool {
	return p.Handle.Cancel()
}
