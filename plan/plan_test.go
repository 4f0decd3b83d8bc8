package plan

import (
	"context"
	"testing"
	"time"

	"github.com/hiveflow/orchestrator/eventbus"
	"github.com/hiveflow/orchestrator/model"
	"github.com/hiveflow/orchestrator/orcherrors"
	"github.com/hiveflow/orchestrator/store"
	"github.com/hiveflow/orchestrator/store/memstore"
)

func newTestEngine() (*Engine, store.Store, *eventbus.Bus) {
	st := memstore.New()
	bus := eventbus.New()
	return New(st, bus), st, bus
}

func seedPlan(t *testing.T, st store.Store, p *model.ExecutionPlan) {
	t.Helper()
	ctx := context.Background()
	if err := store.WithTx(ctx, st, func(tx store.Tx) error {
		return tx.UpsertPlan(ctx, p)
	}); err != nil {
		t.Fatalf("failed to seed plan: %v", err)
	}
}

func TestCreatePlannedSubtasksFromPlan(t *testing.T) {
	e, st, _ := newTestEngine()
	ctx := context.Background()

	seedPlan(t, st, &model.ExecutionPlan{
		ID:     "plan1",
		Status: model.PlanPending,
		Subtasks: []model.SubTask{
			{ID: "s1", Title: "generate tests", TaskType: "generic"},
			{ID: "s2", Title: "implement", TaskType: "generic", Dependencies: []string{"s1"}},
		},
	})

	created, err := e.CreatePlannedSubtasksFromPlan(ctx, "plan1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 tasks created, got %d", created)
	}

	p, err := e.GetExecutionPlanStatus(ctx, "plan1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.TotalSubtasks != 2 {
		t.Errorf("expected TotalSubtasks=2, got %d", p.TotalSubtasks)
	}
	s2TaskID := p.SubtaskToTaskID["s2"]
	s1TaskID := p.SubtaskToTaskID["s1"]
	if len(p.DependencyGraph[s2TaskID]) != 1 || p.DependencyGraph[s2TaskID][0] != s1TaskID {
		t.Errorf("expected s2's materialized task to depend on s1's, got %v", p.DependencyGraph[s2TaskID])
	}
}

func TestCreatePlannedSubtasksRejectsCycle(t *testing.T) {
	e, st, _ := newTestEngine()
	ctx := context.Background()

	seedPlan(t, st, &model.ExecutionPlan{
		ID:     "plan1",
		Status: model.PlanPending,
		Subtasks: []model.SubTask{
			{ID: "s1", Title: "a", TaskType: "generic", Dependencies: []string{"s2"}},
			{ID: "s2", Title: "b", TaskType: "generic", Dependencies: []string{"s1"}},
		},
	})

	_, err := e.CreatePlannedSubtasksFromPlan(ctx, "plan1")
	if !orcherrors.Is(err, orcherrors.ValidationError) {
		t.Errorf("expected validation_error for a cyclic subtask graph, got %v", err)
	}
}

func TestCreatePlannedSubtasksIsIdempotent(t *testing.T) {
	e, st, _ := newTestEngine()
	ctx := context.Background()

	seedPlan(t, st, &model.ExecutionPlan{
		ID:       "plan1",
		Status:   model.PlanPending,
		Subtasks: []model.SubTask{{ID: "s1", Title: "a", TaskType: "generic"}},
	})

	first, err := e.CreatePlannedSubtasksFromPlan(ctx, "plan1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := e.CreatePlannedSubtasksFromPlan(ctx, "plan1")
	if err != nil {
		t.Fatalf("unexpected error on re-run: %v", err)
	}
	if first != 1 || second != 0 {
		t.Errorf("expected idempotent re-run to materialize 0 new tasks, got first=%d second=%d", first, second)
	}
}

func TestCheckSubtaskDependenciesBatch(t *testing.T) {
	e, st, _ := newTestEngine()
	ctx := context.Background()

	now := time.Now().UTC()
	_ = store.WithTx(ctx, st, func(tx store.Tx) error {
		if err := tx.UpsertTask(ctx, &model.Task{ID: "dep", Status: model.TaskCompleted, CreatedAt: now}); err != nil {
			return err
		}
		if err := tx.UpsertTask(ctx, &model.Task{ID: "ready", Dependencies: []string{"dep"}, Status: model.TaskQueued, CreatedAt: now}); err != nil {
			return err
		}
		return tx.UpsertTask(ctx, &model.Task{ID: "blocked", Dependencies: []string{"missing"}, Status: model.TaskQueued, CreatedAt: now})
	})

	results, err := e.CheckSubtaskDependenciesBatch(ctx, []string{"ready", "blocked"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !results["ready"] {
		t.Error("expected 'ready' task to report dependencies resolved")
	}
	if results["blocked"] {
		t.Error("expected 'blocked' task to report dependencies unresolved")
	}
}

func TestOnTaskStatusChangedCompletesPlan(t *testing.T) {
	e, st, bus := newTestEngine()
	ctx := context.Background()

	planIDCopy := "plan1"
	_ = store.WithTx(ctx, st, func(tx store.Tx) error {
		if err := tx.UpsertPlan(ctx, &model.ExecutionPlan{ID: "plan1", Status: model.PlanInProgress, TotalSubtasks: 1}); err != nil {
			return err
		}
		return tx.UpsertTask(ctx, &model.Task{ID: "t1", PlanID: &planIDCopy, Status: model.TaskInProgress})
	})

	var completedEvt bool
	bus.Subscribe(model.EventPlanCompleted, func(ctx context.Context, evt model.Event) { completedEvt = true })

	bus.Publish(ctx, model.Event{
		Type:    model.EventTaskStatusChanged,
		Payload: map[string]any{"task_id": "t1", "new_status": string(model.TaskCompleted)},
	})

	p, err := e.GetExecutionPlanStatus(ctx, "plan1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != model.PlanCompleted {
		t.Errorf("expected plan status completed, got %s", p.Status)
	}
	if !completedEvt {
		t.Error("expected plan.completed to be published")
	}
}

func TestOnTaskStatusChangedFailsPlanAndCancelsQueued(t *testing.T) {
	e, st, bus := newTestEngine()
	ctx := context.Background()

	planIDCopy := "plan1"
	_ = store.WithTx(ctx, st, func(tx store.Tx) error {
		plan := &model.ExecutionPlan{
			ID: "plan1", Status: model.PlanInProgress, TotalSubtasks: 2,
			DependencyGraph: map[string][]string{"t2": {"t1"}},
		}
		if err := tx.UpsertPlan(ctx, plan); err != nil {
			return err
		}
		if err := tx.UpsertTask(ctx, &model.Task{ID: "t1", PlanID: &planIDCopy, Status: model.TaskInProgress}); err != nil {
			return err
		}
		return tx.UpsertTask(ctx, &model.Task{ID: "t2", PlanID: &planIDCopy, Status: model.TaskQueued})
	})

	var failedEvt bool
	bus.Subscribe(model.EventPlanFailed, func(ctx context.Context, evt model.Event) { failedEvt = true })

	bus.Publish(ctx, model.Event{
		Type:    model.EventTaskStatusChanged,
		Payload: map[string]any{"task_id": "t1", "new_status": string(model.TaskFailed)},
	})

	p, err := e.GetExecutionPlanStatus(ctx, "plan1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != model.PlanFailed {
		t.Errorf("expected plan status failed, got %s", p.Status)
	}
	if !failedEvt {
		t.Error("expected plan.failed to be published")
	}

	var t2 *model.Task
	_ = st.View(ctx, func(tx store.Tx) error {
		var e error
		t2, e = tx.GetTask(ctx, "t2")
		return e
	})
	if t2.Status != model.TaskCancelled {
		t.Errorf("expected the not-yet-started subtask to be cancelled, got %s", t2.Status)
	}
}

// TestOnTaskStatusChangedLeafFailureDoesNotFailPlan covers the
// partial-success path of spec.md §4.6/§7: a failed subtask with no
// dependents does not sit on the critical path, so the plan keeps running
// its unrelated branches instead of failing outright or cancelling them.
func TestOnTaskStatusChangedLeafFailureDoesNotFailPlan(t *testing.T) {
	e, st, bus := newTestEngine()
	ctx := context.Background()

	planIDCopy := "plan1"
	_ = store.WithTx(ctx, st, func(tx store.Tx) error {
		if err := tx.UpsertPlan(ctx, &model.ExecutionPlan{ID: "plan1", Status: model.PlanInProgress, TotalSubtasks: 2}); err != nil {
			return err
		}
		if err := tx.UpsertTask(ctx, &model.Task{ID: "t1", PlanID: &planIDCopy, Status: model.TaskInProgress}); err != nil {
			return err
		}
		return tx.UpsertTask(ctx, &model.Task{ID: "t2", PlanID: &planIDCopy, Status: model.TaskQueued})
	})

	var failedEvt bool
	bus.Subscribe(model.EventPlanFailed, func(ctx context.Context, evt model.Event) { failedEvt = true })

	bus.Publish(ctx, model.Event{
		Type:    model.EventTaskStatusChanged,
		Payload: map[string]any{"task_id": "t1", "new_status": string(model.TaskFailed)},
	})

	p, err := e.GetExecutionPlanStatus(ctx, "plan1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != model.PlanInProgress {
		t.Errorf("expected plan to stay in_progress after a non-critical-path failure, got %s", p.Status)
	}
	if p.FailedSubtasks != 1 {
		t.Errorf("expected failed_subtasks=1, got %d", p.FailedSubtasks)
	}
	if failedEvt {
		t.Error("expected no plan.failed for a leaf subtask with no dependents")
	}

	var t2 *model.Task
	_ = st.View(ctx, func(tx store.Tx) error {
		var e error
		t2, e = tx.GetTask(ctx, "t2")
		return e
	})
	if t2.Status != model.TaskQueued {
		t.Errorf("expected the unrelated subtask to remain queued, got %s", t2.Status)
	}
}

func TestMarkPlanExecutionStartedIdempotent(t *testing.T) {
	e, st, bus := newTestEngine()
	ctx := context.Background()
	seedPlan(t, st, &model.ExecutionPlan{ID: "plan1", Status: model.PlanPending})

	calls := 0
	bus.Subscribe(model.EventPlanStarted, func(ctx context.Context, evt model.Event) { calls++ })

	if err := e.MarkPlanExecutionStarted(ctx, "plan1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.MarkPlanExecutionStarted(ctx, "plan1"); err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected plan.started published exactly once, got %d", calls)
	}
}
