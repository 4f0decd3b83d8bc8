// Package workflow implements the generic phase-based Workflow Executor
// (C7) of spec.md §4.7: a single loop that walks any model.WorkflowDefinition
// phase by phase, dispatching each phase's action to a registered agent and
// deciding the next phase from the action's reported status, with the
// Chimera generate-test/implement/review/deploy/validate loop as the
// reference instance (chimera.go). Grounded on
// original_source/.../workflows/chimera_executor.py's execute_workflow loop,
// restructured around this module's Store/Agent Registry/Event Bus/Engine
// abstractions instead of a single in-process object graph.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/hiveflow/orchestrator/agentregistry"
	"github.com/hiveflow/orchestrator/eventbus"
	"github.com/hiveflow/orchestrator/model"
	"github.com/hiveflow/orchestrator/orcherrors"
	"github.com/hiveflow/orchestrator/store"
	"github.com/hiveflow/orchestrator/tasks"
	"github.com/hiveflow/orchestrator/telemetry"
	"github.com/hiveflow/orchestrator/workflow/engine"
)

// Executor runs Definitions against tasks, one phase action at a time.
type Executor struct {
	store     store.Store
	tasksRepo *tasks.Repository
	agents    *agentregistry.Registry
	bus       *eventbus.Bus
	engine    engine.Engine
	logger    telemetry.Logger
	metrics   telemetry.Metrics
}

// Option configures an Executor at construction.
type Option func(*Executor)

func WithLogger(l telemetry.Logger) Option   { return func(x *Executor) { x.logger = l } }
func WithMetrics(m telemetry.Metrics) Option { return func(x *Executor) { x.metrics = m } }

// New constructs an Executor. eng carries out each phase's agent action;
// use engine/inmem for local runs and tests, engine/temporal for durable
// production execution.
func New(s store.Store, tasksRepo *tasks.Repository, agents *agentregistry.Registry, bus *eventbus.Bus, eng engine.Engine, opts ...Option) *Executor {
	x := &Executor{
		store:     s,
		tasksRepo: tasksRepo,
		agents:    agents,
		bus:       bus,
		engine:    eng,
		logger:    telemetry.NoopLogger{},
		metrics:   telemetry.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// ExecuteWorkflow drives task taskID through def, one phase at a time,
// until it reaches a terminal phase or maxIterations elapses (falling back
// to def.MaxIterations, then 10, if maxIterations <= 0). Each phase
// transition is persisted before the next phase starts (spec.md §5
// ordering), and workflow.phase_entered is published after each successful
// commit. A task that is still queued or assigned is moved to in_progress
// (a queued task passes through assigned) before the first phase.
func (x *Executor) ExecuteWorkflow(ctx context.Context, def *Definition, taskID string, maxIterations int) (*model.Workflow, error) {
	if maxIterations <= 0 {
		maxIterations = def.MaxIterations
	}
	if maxIterations <= 0 {
		maxIterations = 10
	}

	task, err := x.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Workflow == nil {
		task.Workflow = model.NewWorkflow(def.WorkflowDefinition)
	}
	if task.Status == model.TaskQueued {
		if err := x.tasksRepo.UpdateTaskStatus(ctx, tasks.UpdateStatusInput{
			TaskID: taskID, NewStatus: model.TaskAssigned,
		}); err != nil {
			return nil, err
		}
		task.Status = model.TaskAssigned
	}
	if task.Status == model.TaskAssigned {
		if err := x.tasksRepo.UpdateTaskStatus(ctx, tasks.UpdateStatusInput{
			TaskID: taskID, NewStatus: model.TaskInProgress,
		}); err != nil {
			return nil, err
		}
	}

	wf := task.Workflow
	iterations := 0
	for !wf.IsTerminal(def.WorkflowDefinition) && iterations < maxIterations {
		if err := ctx.Err(); err != nil {
			return wf, err
		}

		phase, ok := def.Phase(wf.CurrentPhase)
		if !ok {
			return wf, orcherrors.ConfigurationErrorf("workflow %q: unknown phase %q", def.Name, wf.CurrentPhase)
		}

		candidates := x.agents.GetByType(phase.Agent)
		if len(candidates) == 0 {
			return wf, orcherrors.ConfigurationErrorf("no agent registered for type %q (phase %q)", phase.Agent, phase.Name)
		}
		agent := candidates[0]

		params := def.BuildParams(phase.Name, task.Payload, wf.Artifacts)
		result, nextPhase, success := x.runPhase(ctx, def, phase, agent, params, wf)

		if success {
			def.CaptureArtifacts(nextPhase, result, wf.Artifacts)
		}
		wf.CurrentPhase = nextPhase
		iterations++

		if err := x.persistWorkflow(ctx, taskID, wf); err != nil {
			return wf, err
		}
		x.metrics.IncCounter("workflow.phase_transitions", 1, "workflow", def.Name, "phase", nextPhase)
		x.bus.Publish(ctx, model.Event{
			Type:          model.EventWorkflowEntered,
			CorrelationID: taskID,
			Timestamp:     time.Now().UTC(),
			Payload:       map[string]any{"task_id": taskID, "phase": nextPhase, "retry_count": wf.RetryCount},
		})
	}

	switch wf.CurrentPhase {
	case def.SuccessTerminal:
		return wf, x.tasksRepo.UpdateTaskStatus(ctx, tasks.UpdateStatusInput{TaskID: taskID, NewStatus: model.TaskCompleted})
	case def.FailureTerminal:
		errMsg := wf.ErrorMessage
		return wf, x.tasksRepo.UpdateTaskStatus(ctx, tasks.UpdateStatusInput{TaskID: taskID, NewStatus: model.TaskFailed, ErrorMessage: &errMsg})
	default:
		// Exhausted maxIterations without reaching a terminal phase; the
		// task stays in_progress so a later call can resume from the
		// persisted CurrentPhase.
		return wf, nil
	}
}

// runPhase invokes phase's action via x.engine and computes the next phase
// name, applying the retry-loop accounting of spec.md §4.7: an on_failure
// transition targeting the same-or-earlier phase (by Order) counts toward
// RetryCount, and once RetryCount has already reached MaxRetries, the next
// on_failure is promoted to the workflow's failure terminal instead of
// being taken as another loopback. The returned bool reports whether the
// phase succeeded, so callers only capture artifacts on the success edge.
func (x *Executor) runPhase(ctx context.Context, def *Definition, phase model.PhaseDefinition, agent agentregistry.Agent, params map[string]any, wf *model.Workflow) (map[string]any, string, bool) {
	result, err := x.engine.ExecuteActivity(ctx, engine.ActivityRequest{
		Agent:   phase.Agent,
		Action:  phase.Action,
		Params:  params,
		Timeout: time.Duration(phase.TimeoutSec) * time.Second,
	}, func(actCtx context.Context, req engine.ActivityRequest) (map[string]any, error) {
		return agent.Execute(actCtx, req.Action, req.Params)
	})
	if err != nil {
		result = map[string]any{"status": "error", "error": err.Error()}
	}

	status, _ := result["status"].(string)
	success := status == "success" || status == "passed"
	if success {
		return result, phase.OnSuccess, true
	}

	nextPhase := phase.OnFailure
	if nextDef, ok := def.Phase(nextPhase); ok && nextDef.Order <= phase.Order {
		if wf.RetryCount >= wf.MaxRetries {
			nextPhase = def.FailureTerminal
			wf.ErrorMessage = fmt.Sprintf("phase %q exceeded max retries (%d)", phase.Name, wf.MaxRetries)
		} else {
			wf.RetryCount++
		}
	}
	if nextPhase == def.FailureTerminal && wf.ErrorMessage == "" {
		if errMsg, ok := result["error"].(string); ok {
			wf.ErrorMessage = errMsg
		} else {
			wf.ErrorMessage = fmt.Sprintf("phase %q failed", phase.Name)
		}
	}
	return result, nextPhase, false
}

func (x *Executor) loadTask(ctx context.Context, taskID string) (*model.Task, error) {
	var t *model.Task
	err := x.store.View(ctx, func(tx store.Tx) error {
		got, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		t = got
		return nil
	})
	return t, err
}

// persistWorkflow writes wf back onto taskID's task record, bumping Version
// for optimistic concurrency control (mirroring tasks.Repository's own
// status-update path).
func (x *Executor) persistWorkflow(ctx context.Context, taskID string, wf *model.Workflow) error {
	return store.WithTx(ctx, x.store, func(tx store.Tx) error {
		t, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		t.Workflow = wf
		t.CurrentPhase = wf.CurrentPhase
		t.UpdatedAt = time.Now().UTC()
		t.Version++
		return tx.UpsertTask(ctx, t)
	})
}
