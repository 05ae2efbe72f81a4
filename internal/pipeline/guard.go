package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// Guard tracks every live poll handle so they can be torn down together,
// per run generation or all at once.
type Guard struct {
	mu      sync.Mutex
	handles map[uuid.UUID]*PollHandle
}

func NewGuard() *Guard {
	return &Guard{handles: make(map[uuid.UUID]*PollHandle)}
}

func (g *Guard) Track(h *PollHandle) {
	g.mu.Lock()
	g.handles[h.ID] = h
	g.mu.Unlock()
}

// Release forgets a handle whose loop settled on its own.
func (g *Guard) Release(h *PollHandle) {
	g.mu.Lock()
	delete(g.handles, h.ID)
	g.mu.Unlock()
}

// CancelGeneration cancels every handle of generation gen and returns how
// many were live.
func (g *Guard) CancelGeneration(gen uint64) int {
	return g.cancelWhere(func(h *PollHandle) bool { return h.Generation == gen })
}

// CancelAll cancels every tracked handle.
func (g *Guard) CancelAll() int {
	return g.cancelWhere(func(*PollHandle) bool { return true })
}

func (g *Guard) cancelWhere(match func(*PollHandle) bool) int {
	g.mu.Lock()
	var victims []*PollHandle
	for id, h := range g.handles {
		if match(h) {
			victims = append(victims, h)
			delete(g.handles, id)
		}
	}
	g.mu.Unlock()

	n := 0
	for _, h := range victims {
		if h.Cancel() {
			n++
		}
	}
	return n
}

// Active returns the number of tracked handles.
func (g *Guard) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.handles)
}
