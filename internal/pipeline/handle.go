package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"bigscreen/internal/models"
)

// PollHandle identifies one running poll loop. It is released exactly once,
// either when the loop settles or when it is cancelled.
type PollHandle struct {
	ID         uuid.UUID
	Kind       models.StageKind
	Generation uint64

	cancel    context.CancelCauseFunc
	once      sync.Once
	cancelled atomic.Bool
	done      chan struct{}
}

func newPollHandle(kind models.StageKind, generation uint64, cancel context.CancelCauseFunc) *PollHandle {
	return &PollHandle{
		ID:         uuid.New(),
		Kind:       kind,
		Generation: generation,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Cancel stops the loop. It reports true only for the call that actually
// stopped a live loop; later calls, or calls after settlement, are no-ops.
func (h *PollHandle) Cancel() bool {
	return h.release(true)
}

func (h *PollHandle) release(forced bool) bool {
	released := false
	h.once.Do(func() {
		released = true
		if forced {
			h.cancelled.Store(true)
			h.cancel(ErrPollCancelled)
			return
		}
		h.cancel(nil)
	})
	return released
}

// Done is closed once the loop has settled.
func (h *PollHandle) Done() <-chan struct{} {
	return h.done
}

// Cancelled reports whether the loop was stopped by Cancel.
func (h *PollHandle) Cancelled() bool {
	return h.cancelled.Load()
}
