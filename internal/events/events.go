package events

import "github.com/doridoridoriand/latcheck/internal/state"

// Event is a state change published by the scheduler or a runner.
type Event interface {
	isEvent()
}

// RunStarted is published once when a run begins.
type RunStarted struct {
	RunID      string
	ProbeCount int
	Targets    int
	Workers    int
}

// TargetUpdated carries the snapshot taken after each probe.
type TargetUpdated struct {
	TargetID string
	Stats    state.Snapshot
}

// TargetFinished is the last event for a target in a run.
type TargetFinished struct {
	TargetID string
	Stats    state.Snapshot
}

// RunCompleted is published after every runner has exited.
type RunCompleted struct {
	RunID     string
	Cancelled bool
}

func (RunStarted) isEvent()     {}
func (TargetUpdated) isEvent()  {}
func (TargetFinished) isEvent() {}
func (RunCompleted) isEvent()   {}
