package workers

import (
	"context"
	"testing"
	"time"

	"github.com/hiveflow/orchestrator/eventbus"
	"github.com/hiveflow/orchestrator/model"
	"github.com/hiveflow/orchestrator/orcherrors"
	"github.com/hiveflow/orchestrator/store"
	"github.com/hiveflow/orchestrator/store/memstore"
	"github.com/hiveflow/orchestrator/tasks"
)

func newTestService() (*Service, *tasks.Repository) {
	st := memstore.New()
	bus := eventbus.New()
	return New(st, bus), tasks.New(st, bus)
}

func TestRegisterWorkerIsIdempotentOnRegisteredAt(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	if err := s.RegisterWorker(ctx, "w1", "coder", []string{"generic"}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w1, _ := s.GetWorker(ctx, "w1")

	time.Sleep(time.Millisecond)
	if err := s.RegisterWorker(ctx, "w1", "coder", []string{"generic"}, nil); err != nil {
		t.Fatalf("unexpected error on re-registration: %v", err)
	}
	w2, _ := s.GetWorker(ctx, "w1")

	if !w1.RegisteredAt.Equal(w2.RegisteredAt) {
		t.Errorf("expected RegisteredAt to survive re-registration: %v != %v", w1.RegisteredAt, w2.RegisteredAt)
	}
	if w2.Status != model.WorkerActive {
		t.Errorf("expected re-registration to reset status to active, got %s", w2.Status)
	}
}

func TestUpdateWorkerHeartbeatUnknownWorker(t *testing.T) {
	s, _ := newTestService()
	found, err := s.UpdateWorkerHeartbeat(context.Background(), "ghost", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected UpdateWorkerHeartbeat on an unknown worker to report not found, not auto-register")
	}
}

func TestGetActiveWorkersFiltersStaleAndRole(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	s.heartbeatTimeout = time.Minute

	_ = s.RegisterWorker(ctx, "fresh", "coder", nil, nil)
	_ = s.RegisterWorker(ctx, "other-role", "reviewer", nil, nil)
	_ = s.RegisterWorker(ctx, "stale", "coder", nil, nil)

	_ = store.WithTx(ctx, s.store, func(tx store.Tx) error {
		w, err := tx.GetWorker(ctx, "stale")
		if err != nil {
			return err
		}
		w.LastHeartbeat = time.Now().Add(-time.Hour)
		return tx.UpsertWorker(ctx, w)
	})

	active, err := s.GetActiveWorkers(ctx, "coder")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 1 || active[0].ID != "fresh" {
		t.Errorf("expected only the fresh coder worker, got %v", active)
	}
}

func TestUnregisterWorkerRequeuesCurrentTask(t *testing.T) {
	s, taskRepo := newTestService()
	ctx := context.Background()

	_ = s.RegisterWorker(ctx, "w1", "coder", nil, nil)
	taskID, _ := taskRepo.CreateTask(ctx, tasks.CreateInput{Title: "x", TaskType: "generic"})

	result, err := s.Claim(ctx, "w1", nil)
	if err != nil {
		t.Fatalf("unexpected error claiming: %v", err)
	}
	if result.Task.ID != taskID {
		t.Fatalf("expected claimed task %s, got %s", taskID, result.Task.ID)
	}

	if err := s.UnregisterWorker(ctx, "w1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	task, err := taskRepo.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Status != model.TaskQueued {
		t.Errorf("expected task requeued to queued after worker unregistered, got %s", task.Status)
	}
	if task.AssignedWorker != nil {
		t.Error("expected assigned_worker cleared after requeue")
	}

	var run *model.Run
	_ = s.store.View(ctx, func(tx store.Tx) error {
		runs, err := tx.ListRunsByTask(ctx, taskID)
		if err != nil {
			return err
		}
		if len(runs) != 1 {
			t.Fatalf("expected exactly 1 run, got %d", len(runs))
		}
		run = runs[0]
		return nil
	})
	if !run.Status.Terminal() {
		t.Errorf("expected run terminated when its worker is unregistered, got status %s", run.Status)
	}
	if run.CompletedAt == nil {
		t.Error("expected completed_at set on the terminated run")
	}
}

// TestUpdateRunStatusPublishesRunCompletedAndFreesWorker reproduces S1:
// a worker claims a task, transitions its run pending -> running ->
// success, exactly one run.completed event fires, and the worker is freed
// to claim again.
func TestUpdateRunStatusPublishesRunCompletedAndFreesWorker(t *testing.T) {
	s, taskRepo := newTestService()
	ctx := context.Background()
	_ = s.RegisterWorker(ctx, "w1", "coder", nil, nil)
	_, _ = taskRepo.CreateTask(ctx, tasks.CreateInput{Title: "x", TaskType: "generic"})

	res, err := s.Claim(ctx, "w1", nil)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	var completed int
	s.bus.Subscribe(model.EventRunCompleted, func(context.Context, model.Event) { completed++ })

	if err := s.UpdateRunStatus(ctx, UpdateRunStatusInput{RunID: res.Run.ID, NewStatus: model.RunRunning}); err != nil {
		t.Fatalf("transition to running: %v", err)
	}
	if err := s.UpdateRunStatus(ctx, UpdateRunStatusInput{RunID: res.Run.ID, NewStatus: model.RunSuccess}); err != nil {
		t.Fatalf("transition to success: %v", err)
	}
	if completed != 1 {
		t.Fatalf("expected exactly 1 run.completed event, got %d", completed)
	}

	var run *model.Run
	_ = s.store.View(ctx, func(tx store.Tx) error {
		run, err = tx.GetRun(ctx, res.Run.ID)
		return err
	})
	if run.Status != model.RunSuccess {
		t.Errorf("expected run status success, got %s", run.Status)
	}
	if run.CompletedAt == nil {
		t.Fatal("expected completed_at set on terminal run")
	}
	if run.Duration() <= 0 {
		t.Errorf("expected positive duration once completed, got %v", run.Duration())
	}

	worker, err := s.GetWorker(ctx, "w1")
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if worker.CurrentTaskID != nil {
		t.Error("expected worker freed (current_task_id cleared) after its run completed")
	}
	if worker.Status != model.WorkerIdle {
		t.Errorf("expected worker idle after completing its task, got %s", worker.Status)
	}
}

func TestUpdateRunStatusRejectsIllegalTransition(t *testing.T) {
	s, taskRepo := newTestService()
	ctx := context.Background()
	_ = s.RegisterWorker(ctx, "w1", "coder", nil, nil)
	_, _ = taskRepo.CreateTask(ctx, tasks.CreateInput{Title: "x", TaskType: "generic"})
	res, err := s.Claim(ctx, "w1", nil)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.UpdateRunStatus(ctx, UpdateRunStatusInput{RunID: res.Run.ID, NewStatus: model.RunRunning}); err != nil {
		t.Fatalf("transition to running: %v", err)
	}
	if err := s.UpdateRunStatus(ctx, UpdateRunStatusInput{RunID: res.Run.ID, NewStatus: model.RunSuccess}); err != nil {
		t.Fatalf("transition to success: %v", err)
	}
	if err := s.UpdateRunStatus(ctx, UpdateRunStatusInput{RunID: res.Run.ID, NewStatus: model.RunRunning}); !orcherrors.Is(err, orcherrors.StateError) {
		t.Errorf("expected state_error reopening a terminal run, got %v", err)
	}
}

func TestClaimPicksHighestPriorityReadyTask(t *testing.T) {
	s, taskRepo := newTestService()
	ctx := context.Background()
	_ = s.RegisterWorker(ctx, "w1", "coder", nil, nil)

	_, _ = taskRepo.CreateTask(ctx, tasks.CreateInput{Title: "low", TaskType: "generic", Priority: 1})
	highID, _ := taskRepo.CreateTask(ctx, tasks.CreateInput{Title: "high", TaskType: "generic", Priority: 9})

	result, err := s.Claim(ctx, "w1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Task.ID != highID {
		t.Errorf("expected highest-priority task claimed, got %s", result.Task.ID)
	}
	if result.Run.RunNumber != 1 {
		t.Errorf("expected first run to be run_number 1, got %d", result.Run.RunNumber)
	}
}

func TestClaimRespectsCapabilityFilter(t *testing.T) {
	s, taskRepo := newTestService()
	ctx := context.Background()
	_ = s.RegisterWorker(ctx, "w1", "coder", nil, nil)

	_, _ = taskRepo.CreateTask(ctx, tasks.CreateInput{Title: "other", TaskType: "other_type"})

	_, err := s.Claim(ctx, "w1", []string{"generic"})
	if !orcherrors.Is(err, orcherrors.NotFound) {
		t.Errorf("expected not_found when no task matches the capability filter, got %v", err)
	}
}

func TestClaimNoReadyTasks(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	_ = s.RegisterWorker(ctx, "w1", "coder", nil, nil)

	_, err := s.Claim(ctx, "w1", nil)
	if !orcherrors.Is(err, orcherrors.NotFound) {
		t.Errorf("expected not_found with an empty queue, got %v", err)
	}
}
