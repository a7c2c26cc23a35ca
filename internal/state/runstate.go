package state

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// RunState is the lifecycle of one probing run. A new value is created for
// every run so runners of an old run never observe a newer run's flags.
type RunState struct {
	id              string
	running         atomic.Bool
	cancelRequested atomic.Bool
	done            chan struct{}
}

// NewRunState returns a running state with a fresh run ID.
func NewRunState() *RunState {
	rs := &RunState{
		id:   uuid.NewString(),
		done: make(chan struct{}),
	}
	rs.running.Store(true)
	return rs
}

// ID identifies the run in events and logs.
func (r *RunState) ID() string {
	return r.id
}

// Running reports whether the run is still active.
func (r *RunState) Running() bool {
	return r.running.Load()
}

// CancelRequested reports whether Cancel has been called.
func (r *RunState) CancelRequested() bool {
	return r.cancelRequested.Load()
}

// Cancel requests cooperative cancellation. It reports whether this call
// flipped the flag.
func (r *RunState) Cancel() bool {
	return r.cancelRequested.CompareAndSwap(false, true)
}

// Finish marks the run complete and releases Done waiters. Only the first
// call has an effect.
func (r *RunState) Finish() {
	if r.running.CompareAndSwap(true, false) {
		close(r.done)
	}
}

// Done is closed once Finish has been called.
func (r *RunState) Done() <-chan struct{} {
	return r.done
}
