package collector

import (
	"github.com/Sumatoshi-tech/loctrail/pkg/history"
	"github.com/Sumatoshi-tech/loctrail/pkg/observability"
)

// State is the phase of a collection run.
type State int

// Run states. Aborted is reachable only from Initializing.
const (
	StateIdle State = iota
	StateInitializing
	StateResolving
	StateExtracting
	StateMeasuring
	StateAppending
	StateAborted
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateInitializing: "initializing",
	StateResolving:    "resolving",
	StateExtracting:   "extracting",
	StateMeasuring:    "measuring",
	StateAppending:    "appending",
	StateAborted:      "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}

	return stateNames[s]
}

// Outcome is how one commit day ended.
type Outcome string

// Day outcomes.
const (
	OutcomeAppended Outcome = observability.StatusAppended
	OutcomeDegraded Outcome = observability.StatusDegraded
	OutcomeSkipped  Outcome = observability.StatusSkipped
)

// DayReport describes one finished day step.
type DayReport struct {
	Day   history.Day
	Index int // 1-based position among the pending days.
	Total int
	Ref   history.CommitRef
	// Outcome is empty when the run was cancelled during the step.
	Outcome   Outcome
	TotalCode int
	// Reason explains a skipped or degraded day.
	Reason error
}

// Observer receives progress of a run. Calls are serialized.
type Observer interface {
	StateChanged(state State, day history.Day)
	DayFinished(report DayReport)
}

// NopObserver ignores all progress.
type NopObserver struct{}

// StateChanged implements Observer.
func (NopObserver) StateChanged(State, history.Day) {}

// DayFinished implements Observer.
func (NopObserver) DayFinished(DayReport) {}
