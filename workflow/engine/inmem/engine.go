// Package inmem provides a non-durable Engine implementation suitable for
// local development and tests, grounded on
// runtime/agent/engine/inmem/engine.go's goroutine-per-call + channel
// pattern (not copied verbatim: the retrieved file referenced api.RunOutput
// and engine.RunStatus types absent from the pack's own engine.go,
// confirming the pack snapshot was partial; this rewrite targets this
// module's own engine.ActivityRequest/ActivityFunc).
package inmem

import (
	"context"
	"fmt"

	"github.com/hiveflow/orchestrator/workflow/engine"
)

// Engine runs each activity on its own goroutine and waits for either its
// completion or req.Timeout, whichever comes first. It provides no replay
// or durability guarantees and is not safe across process restarts.
type Engine struct{}

// New constructs an in-memory Engine.
func New() *Engine { return &Engine{} }

type result struct {
	out map[string]any
	err error
}

func (e *Engine) ExecuteActivity(ctx context.Context, req engine.ActivityRequest, fn engine.ActivityFunc) (map[string]any, error) {
	runCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("activity %s.%s panicked: %v", req.Agent, req.Action, r)}
			}
		}()
		out, err := fn(runCtx, req)
		done <- result{out: out, err: err}
	}()

	select {
	case <-runCtx.Done():
		return nil, fmt.Errorf("activity %s.%s: %w", req.Agent, req.Action, runCtx.Err())
	case r := <-done:
		return r.out, r.err
	}
}

var _ engine.Engine = (*Engine)(nil)
