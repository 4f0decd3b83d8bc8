package model

import "time"

// RunStatus enumerates the lifecycle states of a Run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSuccess   RunStatus = "success"
	RunFailure   RunStatus = "failure"
	RunTimeout   RunStatus = "timeout"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether s is a sticky terminal run status.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunSuccess, RunFailure, RunTimeout, RunCancelled:
		return true
	default:
		return false
	}
}

// Run is one execution attempt of a Task.
type Run struct {
	ID           string
	TaskID       string
	WorkerID     string
	RunNumber    int
	Status       RunStatus
	Phase        string
	StartedAt    time.Time
	CompletedAt  *time.Time
	ResultData   map[string]any
	ErrorMessage string
	OutputLog    string
	Transcript   string
}

// runTransitions encodes the legal edges of the run state machine: a
// claimed run starts pending, a worker moves it to running, and from
// there (or directly from pending, if the worker never gets that far)
// it reaches exactly one terminal disposition.
var runTransitions = map[RunStatus]map[RunStatus]bool{
	RunPending: {RunRunning: true, RunFailure: true, RunTimeout: true, RunCancelled: true},
	RunRunning: {RunSuccess: true, RunFailure: true, RunTimeout: true, RunCancelled: true},
}

// CanTransitionRun reports whether moving a run from `from` to `to` is
// legal. Terminal statuses are sticky: once reached, no further
// transition (other than the identity no-op) is permitted.
func CanTransitionRun(from, to RunStatus) bool {
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	edges, ok := runTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// IsTerminal reports whether the run has reached a sticky terminal status.
func (r *Run) IsTerminal() bool { return r.Status.Terminal() }

// IsRunning reports whether the run is actively executing.
func (r *Run) IsRunning() bool { return r.Status == RunRunning }

// Duration returns the run's elapsed time once terminal, and zero
// otherwise.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
