// Package engine abstracts how a single workflow phase's agent action is
// actually carried out — in-process for local runs and tests, or durably
// via Temporal for production — so the generic phase executor (package
// workflow) never depends on a specific execution backend. Grounded on
// runtime/agent/engine/engine.go's Engine/ActivityDefinition shape,
// narrowed to this module's single unit of durable work: one phase's
// agent.action(params) call (spec.md §4.7's "Suspension points").
package engine

import (
	"context"
	"time"
)

// ActivityRequest names the phase action to execute and its assembled
// parameters (spec.md §4.7 "per-phase params-in mapping").
type ActivityRequest struct {
	// Agent is the agent *type* the phase delegates to (e.g.
	// "e2e-tester-agent"), resolved against the Agent Registry by the
	// caller — not a specific agent instance id.
	Agent string
	// Action is the action name passed to Agent.Execute.
	Action string
	// Params is the phase's action parameters, interpreted only by the
	// receiving agent.
	Params map[string]any
	// Timeout bounds this phase action's execution. Zero means no
	// deadline is imposed beyond ctx's own.
	Timeout time.Duration
}

// ActivityFunc performs one phase action. Implementations are supplied by
// the caller (package workflow) and resolve Agent/Action against the Agent
// Registry; Engine implementations are responsible only for scheduling
// and, where the backend supports it, durability and replay.
type ActivityFunc func(ctx context.Context, req ActivityRequest) (map[string]any, error)

// Engine executes a single phase action, optionally durably. Implementations
// bound execution by req.Timeout and return an error if the action does not
// complete in time. These errors are not classified into an orcherrors
// Kind.
type Engine interface {
	// ExecuteActivity runs fn for req, returning its result or an error if
	// fn fails, panics (recovered and reported as an error), or exceeds
	// req.Timeout.
	ExecuteActivity(ctx context.Context, req ActivityRequest, fn ActivityFunc) (map[string]any, error)
}
