// Package plan implements the Plan Engine (C6): materializing a declarative
// ExecutionPlan into concrete Tasks, tracking subtask dependency readiness,
// and rolling per-task progress up into plan-level status (spec.md §4.6).
package plan

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hiveflow/orchestrator/eventbus"
	"github.com/hiveflow/orchestrator/model"
	"github.com/hiveflow/orchestrator/orcherrors"
	"github.com/hiveflow/orchestrator/store"
	"github.com/hiveflow/orchestrator/store/rediscache"
	"github.com/hiveflow/orchestrator/telemetry"
)

// Engine implements the Plan Engine operations of spec.md §4.6. It
// subscribes to task.status_changed to keep plan progress counters and
// terminal status current as the tasks materialized from a plan execute.
type Engine struct {
	store   store.Store
	bus     *eventbus.Bus
	cache   *rediscache.PlanStatusCache
	logger  telemetry.Logger
	metrics telemetry.Metrics
}

// Option configures an Engine at construction.
type Option func(*Engine)

func WithCache(c *rediscache.PlanStatusCache) Option { return func(e *Engine) { e.cache = c } }
func WithLogger(l telemetry.Logger) Option           { return func(e *Engine) { e.logger = l } }
func WithMetrics(m telemetry.Metrics) Option         { return func(e *Engine) { e.metrics = m } }

// New constructs an Engine backed by s, publishing/subscribing on bus. It
// registers its task.status_changed progress-tracking handler immediately.
func New(s store.Store, bus *eventbus.Bus, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		bus:     bus,
		logger:  telemetry.NoopLogger{},
		metrics: telemetry.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	bus.Subscribe(model.EventTaskStatusChanged, e.onTaskStatusChanged)
	return e
}

// CreatePlannedSubtasksFromPlan materializes every SubTask template on the
// plan into a Task, all inside a single transaction (all-or-nothing), and
// records the subtask_id -> task_id mapping on the plan so later
// dependency edges (declared in SubTask.Dependencies, referencing subtask
// ids) can be translated to task ids (spec.md §4.6). It returns the number
// of tasks created.
func (e *Engine) CreatePlannedSubtasksFromPlan(ctx context.Context, planID string) (int, error) {
	var created int
	err := store.WithTx(ctx, e.store, func(tx store.Tx) error {
		p, err := tx.GetPlan(ctx, planID)
		if err != nil {
			return err
		}
		if len(p.Subtasks) == 0 {
			return orcherrors.ValidationErrorf("plan %q has no subtask templates to materialize", planID)
		}
		graph := make(map[string][]string, len(p.Subtasks))
		for _, st := range p.Subtasks {
			graph[st.ID] = st.Dependencies
		}
		if !model.DependencyGraphAcyclic(graph) {
			return orcherrors.ValidationErrorf("plan %q subtask dependency graph contains a cycle", planID)
		}

		if p.SubtaskToTaskID == nil {
			p.SubtaskToTaskID = map[string]string{}
		}
		// First pass: allocate a task id per subtask so dependency
		// references (subtask_id -> subtask_id) can be translated to
		// task_id -> task_id regardless of declaration order.
		for _, st := range p.Subtasks {
			if _, ok := p.SubtaskToTaskID[st.ID]; ok {
				continue // already materialized (idempotent re-run)
			}
			p.SubtaskToTaskID[st.ID] = uuid.NewString()
		}

		now := time.Now().UTC()
		for _, st := range p.Subtasks {
			taskID := p.SubtaskToTaskID[st.ID]
			if existing, err := tx.GetTask(ctx, taskID); err == nil && existing != nil {
				continue // idempotent re-run: subtask already materialized
			}
			deps := make([]string, 0, len(st.Dependencies))
			for _, depSubtaskID := range st.Dependencies {
				depTaskID, ok := p.SubtaskToTaskID[depSubtaskID]
				if !ok {
					return orcherrors.ValidationErrorf("subtask %q depends on unknown subtask %q", st.ID, depSubtaskID)
				}
				deps = append(deps, depTaskID)
			}
			planIDCopy := planID
			task := &model.Task{
				ID:           taskID,
				Title:        st.Title,
				Description:  st.Description,
				TaskType:     st.TaskType,
				Priority:     st.Priority,
				Status:       model.TaskQueued,
				CurrentPhase: "start",
				Payload:      st.Payload,
				MaxRetries:   3,
				PlanID:       &planIDCopy,
				Dependencies: deps,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if p.ParentTaskID != nil {
				task.ParentTaskID = p.ParentTaskID
			}
			if err := tx.UpsertTask(ctx, task); err != nil {
				return err
			}
			p.SubtaskIDs = append(p.SubtaskIDs, taskID)
			if p.DependencyGraph == nil {
				p.DependencyGraph = map[string][]string{}
			}
			p.DependencyGraph[taskID] = deps
			created++
		}

		p.TotalSubtasks = len(p.Subtasks)
		p.UpdatedAt = now
		return tx.UpsertPlan(ctx, p)
	})
	if err != nil {
		return 0, err
	}
	e.invalidateCache(ctx, planID)
	e.metrics.IncCounter("plan.subtasks_materialized", float64(created), "plan_id", planID)
	return created, nil
}

// GetExecutionPlanStatus returns the current plan snapshot, uncached.
func (e *Engine) GetExecutionPlanStatus(ctx context.Context, planID string) (*model.ExecutionPlan, error) {
	var p *model.ExecutionPlan
	err := e.store.View(ctx, func(tx store.Tx) error {
		got, err := tx.GetPlan(ctx, planID)
		if err != nil {
			return err
		}
		p = got
		return nil
	})
	return p, err
}

// GetExecutionPlanStatusCached returns the plan status, preferring the
// Redis cache when configured. A cache miss falls through to the store and
// repopulates the cache.
func (e *Engine) GetExecutionPlanStatusCached(ctx context.Context, planID string) (rediscache.PlanSnapshot, error) {
	if e.cache == nil {
		p, err := e.GetExecutionPlanStatus(ctx, planID)
		if err != nil {
			return rediscache.PlanSnapshot{}, err
		}
		return rediscache.SnapshotOf(p), nil
	}
	if snap, ok, err := e.cache.Get(ctx, planID); err == nil && ok {
		return snap, nil
	}
	p, err := e.GetExecutionPlanStatus(ctx, planID)
	if err != nil {
		return rediscache.PlanSnapshot{}, err
	}
	snap := rediscache.SnapshotOf(p)
	_ = e.cache.Set(ctx, planID, snap)
	return snap, nil
}

func (e *Engine) invalidateCache(ctx context.Context, planID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, planID); err != nil {
		e.logger.Error(ctx, "plan cache invalidation failed", "plan_id", planID, "error", err)
	}
}

// CheckSubtaskDependencies reports whether every dependency of taskID has
// status=completed.
func (e *Engine) CheckSubtaskDependencies(ctx context.Context, taskID string) (bool, error) {
	results, err := e.CheckSubtaskDependenciesBatch(ctx, []string{taskID})
	if err != nil {
		return false, err
	}
	return results[taskID], nil
}

// CheckSubtaskDependenciesBatch resolves readiness for every id in taskIDs
// using a single batched dependency lookup (spec.md §4.6 "MUST batch"),
// mirroring tasks.Repository.resolvedDependencies.
func (e *Engine) CheckSubtaskDependenciesBatch(ctx context.Context, taskIDs []string) (map[string]bool, error) {
	results := make(map[string]bool, len(taskIDs))
	err := e.store.View(ctx, func(tx store.Tx) error {
		tasksByID := make(map[string]*model.Task, len(taskIDs))
		depIDs := map[string]bool{}
		for _, id := range taskIDs {
			t, err := tx.GetTask(ctx, id)
			if err != nil {
				return err
			}
			tasksByID[id] = t
			for _, d := range t.Dependencies {
				depIDs[d] = true
			}
		}
		resolved := make(map[string]bool, len(depIDs))
		for id := range depIDs {
			dep, err := tx.GetTask(ctx, id)
			if err != nil {
				resolved[id] = false
				continue
			}
			resolved[id] = dep.Status == model.TaskCompleted
		}
		for id, t := range tasksByID {
			results[id] = t.Ready(resolved)
		}
		return nil
	})
	return results, err
}

// GetNextPlannedSubtask returns the highest-priority ready task belonging
// to planID and still queued, or a not_found error if none is ready.
func (e *Engine) GetNextPlannedSubtask(ctx context.Context, planID string) (*model.Task, error) {
	var best *model.Task
	err := e.store.View(ctx, func(tx store.Tx) error {
		all, err := tx.ListTasksByPlan(ctx, planID)
		if err != nil {
			return err
		}
		var candidates []*model.Task
		for _, t := range all {
			if t.Status == model.TaskQueued {
				candidates = append(candidates, t)
			}
		}
		resolved, err := e.resolveDeps(ctx, tx, candidates)
		if err != nil {
			return err
		}
		for _, t := range candidates {
			if !t.Ready(resolved) {
				continue
			}
			if best == nil || t.Priority > best.Priority ||
				(t.Priority == best.Priority && t.CreatedAt.Before(best.CreatedAt)) {
				best = t
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, orcherrors.NotFoundf("plan %q has no ready subtask", planID)
	}
	return best, nil
}

func (e *Engine) resolveDeps(ctx context.Context, tx store.Tx, candidates []*model.Task) (map[string]bool, error) {
	depIDs := map[string]bool{}
	for _, t := range candidates {
		for _, d := range t.Dependencies {
			depIDs[d] = true
		}
	}
	resolved := make(map[string]bool, len(depIDs))
	for id := range depIDs {
		dep, err := tx.GetTask(ctx, id)
		if err != nil {
			resolved[id] = false
			continue
		}
		resolved[id] = dep.Status == model.TaskCompleted
	}
	return resolved, nil
}

// MarkPlanExecutionStarted transitions a pending plan to in_progress and
// emits plan.started. Idempotent: calling it again on an already
// in_progress plan is a no-op.
func (e *Engine) MarkPlanExecutionStarted(ctx context.Context, planID string) error {
	now := time.Now().UTC()
	var already bool
	err := store.WithTx(ctx, e.store, func(tx store.Tx) error {
		p, err := tx.GetPlan(ctx, planID)
		if err != nil {
			return err
		}
		if p.Status == model.PlanInProgress {
			already = true
			return nil
		}
		if p.Status != model.PlanPending {
			return orcherrors.StateErrorf("plan %q cannot start execution from status %s", planID, p.Status)
		}
		p.Status = model.PlanInProgress
		p.UpdatedAt = now
		return tx.UpsertPlan(ctx, p)
	})
	if err != nil || already {
		return err
	}
	e.invalidateCache(ctx, planID)
	e.bus.Publish(ctx, model.Event{
		Type: model.EventPlanStarted, CorrelationID: planID, Timestamp: now,
		Payload: map[string]any{"plan_id": planID},
	})
	return nil
}

// onTaskStatusChanged is the progress-tracking handler required by spec.md
// §4.6: every task.status_changed event for a task belonging to a plan
// rolls up into that plan's completed_subtasks/failed_subtasks counters,
// evaluates the plan's terminal condition, and on a critical-path failure
// cancels subtasks that have not yet started.
func (e *Engine) onTaskStatusChanged(ctx context.Context, evt model.Event) {
	taskID, _ := evt.Payload["task_id"].(string)
	newStatus, _ := evt.Payload["new_status"].(string)
	if taskID == "" {
		return
	}
	status := model.TaskStatus(newStatus)
	if status != model.TaskCompleted && status != model.TaskFailed {
		return
	}

	var planID string
	var terminal model.PlanStatus
	var cancelled []string
	err := store.WithTx(ctx, e.store, func(tx store.Tx) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.PlanID == nil {
			return nil // not part of a plan
		}
		planID = *task.PlanID
		p, err := tx.GetPlan(ctx, planID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		switch status {
		case model.TaskCompleted:
			p.CompletedSubtask++
		case model.TaskFailed:
			p.FailedSubtasks++
		}

		switch {
		case p.CompletedSubtask+p.FailedSubtasks >= p.TotalSubtasks && p.FailedSubtasks == 0:
			p.Status = model.PlanCompleted
			terminal = model.PlanCompleted
		case status == model.TaskFailed && hasDependents(p.DependencyGraph, taskID):
			// A subtask failure only fails the whole plan when it sits on
			// the critical path (some other subtask depends on it); a
			// failed leaf branch is reflected in the counters above and
			// the plan keeps running its unrelated subtasks to completion
			// (partial success). Subtasks that have not yet started are
			// cancelled so they never race an already-terminal plan.
			p.Status = model.PlanFailed
			terminal = model.PlanFailed
			all, err := tx.ListTasksByPlan(ctx, planID)
			if err != nil {
				return err
			}
			for _, t := range all {
				if t.Status == model.TaskQueued && model.CanTransition(t.Status, model.TaskCancelled) {
					t.Status = model.TaskCancelled
					t.UpdatedAt = now
					t.Version++
					if err := tx.UpsertTask(ctx, t); err != nil {
						return err
					}
					cancelled = append(cancelled, t.ID)
				}
			}
		}
		p.UpdatedAt = now
		return tx.UpsertPlan(ctx, p)
	})
	if err != nil {
		e.logger.Error(ctx, "plan progress update failed", "task_id", taskID, "error", err)
		return
	}
	if planID == "" {
		return
	}
	e.invalidateCache(ctx, planID)
	now := time.Now().UTC()
	for _, cancelledID := range cancelled {
		e.bus.Publish(ctx, model.Event{
			Type: model.EventTaskStatusChanged, CorrelationID: cancelledID, Timestamp: now,
			Payload: map[string]any{"task_id": cancelledID, "new_status": string(model.TaskCancelled)},
		})
	}
	switch terminal {
	case model.PlanCompleted:
		e.bus.Publish(ctx, model.Event{
			Type: model.EventPlanCompleted, CorrelationID: planID, Timestamp: now,
			Payload: map[string]any{"plan_id": planID},
		})
	case model.PlanFailed:
		e.bus.Publish(ctx, model.Event{
			Type: model.EventPlanFailed, CorrelationID: planID, Timestamp: now,
			Payload: map[string]any{"plan_id": planID, "failed_task_id": taskID},
		})
	}
}

// hasDependents reports whether taskID is listed as a prerequisite of any
// other subtask in graph (subtask id -> its prerequisite ids), i.e.
// whether it sits on the plan's critical path.
func hasDependents(graph map[string][]string, taskID string) bool {
	for _, deps := range graph {
		for _, d := range deps {
			if d == taskID {
				return true
			}
		}
	}
	return false
}
