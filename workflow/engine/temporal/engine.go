// Package temporal backs engine.Engine with Temporal as the durable
// execution backend (SPEC_FULL.md §11), grounded on
// runtime/agent/engine/temporal/engine.go's worker/client wiring and OTEL
// interceptor setup, narrowed to this module's single unit of durable
// work: one phase action. Each ExecuteActivity call starts a short-lived
// Temporal workflow that wraps exactly one activity invocation, giving the
// phase action Temporal's retry policy, history, and replay durability
// without requiring the generic phase executor itself to run as
// Temporal-deterministic code.
package temporal

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/hiveflow/orchestrator/workflow/engine"
)

const phaseActionWorkflowName = "orchestrator.phase_action"
const phaseActionActivityName = "orchestrator.execute_phase_action"

// Options configures the Temporal-backed Engine.
type Options struct {
	// Client is a pre-configured Temporal client. If nil, ClientOptions is
	// used to lazily construct one.
	Client client.Client
	// ClientOptions constructs a client when Client is nil.
	ClientOptions *client.Options
	// TaskQueue is the queue the worker polls and workflows are started on.
	TaskQueue string
	// DisableTracing skips installing the OTEL tracing interceptor.
	DisableTracing bool
}

// Engine implements engine.Engine by starting a single-activity Temporal
// workflow per ExecuteActivity call.
type Engine struct {
	client      client.Client
	closeClient bool
	queue       string
	worker      worker.Worker
	fn          engine.ActivityFunc
}

// New constructs a Temporal-backed Engine and registers its worker. The
// activity handler is bound at New time: a process runs one Temporal
// engine per ActivityFunc (the phase-executor's agent-dispatch closure).
func New(opts Options, fn engine.ActivityFunc) (*Engine, error) {
	if opts.TaskQueue == "" {
		return nil, fmt.Errorf("temporal engine: task queue is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("temporal engine: activity handler is required")
	}

	cli := opts.Client
	closeClient := false
	if cli == nil {
		if opts.ClientOptions == nil {
			return nil, fmt.Errorf("temporal engine: client options are required when Client is nil")
		}
		clientOpts := *opts.ClientOptions
		if !opts.DisableTracing {
			tracer, err := temporalotel.NewTracingInterceptor(temporalotel.TracerOptions{})
			if err != nil {
				return nil, fmt.Errorf("temporal engine: configure tracing interceptor: %w", err)
			}
			clientOpts.Interceptors = append(clientOpts.Interceptors, tracer)
		}
		var err error
		cli, err = client.NewLazyClient(clientOpts)
		if err != nil {
			return nil, fmt.Errorf("temporal engine: create client: %w", err)
		}
		closeClient = true
	}

	e := &Engine{client: cli, closeClient: closeClient, queue: opts.TaskQueue, fn: fn}

	w := worker.New(cli, opts.TaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(phaseActionWorkflow, workflow.RegisterOptions{Name: phaseActionWorkflowName})
	w.RegisterActivityWithOptions(e.runActivity, activity.RegisterOptions{Name: phaseActionActivityName})
	e.worker = w
	return e, nil
}

// Start begins polling opts.TaskQueue. Callers must invoke this before the
// first ExecuteActivity call.
func (e *Engine) Start() error {
	return e.worker.Start()
}

// Close stops the worker and, if this Engine created the client, closes it.
func (e *Engine) Close() {
	e.worker.Stop()
	if e.closeClient {
		e.client.Close()
	}
}

// ExecuteActivity starts a phaseActionWorkflow on req and blocks for its
// result. fn is ignored at call time (the bound handler from New is used)
// but accepted to satisfy engine.Engine's signature uniformly with the
// in-memory adapter.
func (e *Engine) ExecuteActivity(ctx context.Context, req engine.ActivityRequest, _ engine.ActivityFunc) (map[string]any, error) {
	run, err := e.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		TaskQueue: e.queue,
	}, phaseActionWorkflowName, req)
	if err != nil {
		return nil, fmt.Errorf("temporal engine: start phase action workflow: %w", err)
	}
	var result map[string]any
	if err := run.Get(ctx, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// phaseActionWorkflow is the deterministic Temporal workflow wrapping a
// single activity invocation.
func phaseActionWorkflow(ctx workflow.Context, req engine.ActivityRequest) (map[string]any, error) {
	opts := workflow.ActivityOptions{StartToCloseTimeout: req.Timeout}
	if opts.StartToCloseTimeout <= 0 {
		opts.StartToCloseTimeout = defaultActivityTimeout
	}
	actCtx := workflow.WithActivityOptions(ctx, opts)
	var result map[string]any
	err := workflow.ExecuteActivity(actCtx, phaseActionActivityName, req).Get(actCtx, &result)
	return result, err
}

func (e *Engine) runActivity(ctx context.Context, req engine.ActivityRequest) (map[string]any, error) {
	return e.fn(ctx, req)
}

const defaultActivityTimeout = 10 * time.Minute

var _ engine.Engine = (*Engine)(nil)
