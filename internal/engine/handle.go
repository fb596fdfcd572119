package engine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/kiln/kiln/pkg/types"
)

// Handle is the deferred result of a build or clean operation. The caller
// explicitly starts it, then waits on it or polls IsCompleted while
// draining the event queue on its own cadence.
type Handle struct {
	id     string
	run    func() types.Outcome
	finish func()

	once sync.Once
	done chan struct{}

	mu      sync.Mutex
	outcome types.Outcome
}

// newHandle pairs the operation with a finish callback releasing the
// engine's operation slot. finish runs exactly once, whether the handle
// executes or is abandoned.
func newHandle(run func() types.Outcome, finish func()) *Handle {
	return &Handle{
		id:     uuid.New().String(),
		run:    run,
		finish: finish,
		done:   make(chan struct{}),
	}
}

// ID returns the operation's unique id
func (h *Handle) ID() string {
	return h.id
}

// Start launches the operation. Subsequent calls are no-ops.
func (h *Handle) Start() {
	h.once.Do(func() {
		go func() {
			outcome := h.run()

			h.mu.Lock()
			h.outcome = outcome
			h.mu.Unlock()
			close(h.done)
			h.finish()
		}()
	})
}

// abandon resolves a never-started handle as cancelled and releases its
// operation slot. A no-op once Start has won the race.
func (h *Handle) abandon() {
	h.once.Do(func() {
		h.mu.Lock()
		h.outcome = types.Outcome{Status: types.BuildStatusCancelled}
		h.mu.Unlock()
		close(h.done)
		h.finish()
	})
}

// Wait blocks until the operation completes and returns its outcome.
// Start is implied.
func (h *Handle) Wait() types.Outcome {
	h.Start()
	<-h.done
	return h.Outcome()
}

// Done returns a channel closed on completion
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// IsCompleted reports whether the operation has finished
func (h *Handle) IsCompleted() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Outcome returns the result; the zero Outcome before completion
func (h *Handle) Outcome() types.Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}
