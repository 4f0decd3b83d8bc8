package workers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hiveflow/orchestrator/model"
	"github.com/hiveflow/orchestrator/orcherrors"
	"github.com/hiveflow/orchestrator/store"
)

// Claim implements spec.md §4.5's claim semantics: the repository
// atomically selects the highest-priority ready queued task matching the
// capability filter, transitions it queued→assigned, sets
// assigned_worker, allocates a new Run with run_number =
// max(run_number)+1 and status=pending, and returns (task, run).
//
// "capability match delegated to task_type/tags" (spec.md §4.4): this
// implementation's documented, deterministic rule is that a worker
// capability filter matches a task iff the filter is empty, or the task's
// task_type is present in the filter, or any of the task's tags is
// present in the filter (spec.md §9, "implementation-defined... deterministic
// and documented").
func (s *Service) Claim(ctx context.Context, workerID string, capabilityFilter []string) (*ClaimResult, error) {
	var result *ClaimResult
	err := store.WithTx(ctx, s.store, func(tx store.Tx) error {
		worker, err := tx.GetWorker(ctx, workerID)
		if err != nil {
			return err
		}
		queued, err := tx.ListTasksByStatus(ctx, model.TaskQueued)
		if err != nil {
			return err
		}
		resolved, err := resolveDeps(ctx, tx, queued)
		if err != nil {
			return err
		}

		var best *model.Task
		for _, t := range queued {
			if !t.Ready(resolved) {
				continue
			}
			if !matchesFilter(t, capabilityFilter) {
				continue
			}
			if best == nil || higherPriority(t, best) {
				best = t
			}
		}
		if best == nil {
			return orcherrors.NotFoundf("no ready queued task available for worker %q", workerID)
		}

		now := time.Now().UTC()
		best.Status = model.TaskAssigned
		workerIDCopy := workerID
		best.AssignedWorker = &workerIDCopy
		best.UpdatedAt = now
		best.Version++
		if err := tx.UpsertTask(ctx, best); err != nil {
			return err
		}

		existingRuns, err := tx.ListRunsByTask(ctx, best.ID)
		if err != nil {
			return err
		}
		maxRunNumber := 0
		for _, r := range existingRuns {
			if r.RunNumber > maxRunNumber {
				maxRunNumber = r.RunNumber
			}
		}
		run := &model.Run{
			ID:        uuid.NewString(),
			TaskID:    best.ID,
			WorkerID:  workerID,
			RunNumber: maxRunNumber + 1,
			Status:    model.RunPending,
			StartedAt: now,
		}
		if err := tx.UpsertRun(ctx, run); err != nil {
			return err
		}

		worker.AssignTask(best.ID)
		if err := tx.UpsertWorker(ctx, worker); err != nil {
			return err
		}

		result = &ClaimResult{Task: best, Run: run}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncCounter("workers.claimed", 1)
	s.bus.Publish(ctx, model.Event{
		Type: model.EventTaskAssigned, CorrelationID: result.Task.ID, Timestamp: time.Now().UTC(),
		Payload: map[string]any{"task_id": result.Task.ID, "worker_id": workerID},
	})
	s.bus.Publish(ctx, model.Event{
		Type: model.EventRunStarted, CorrelationID: result.Task.ID, Timestamp: time.Now().UTC(),
		Payload: map[string]any{"run_id": result.Run.ID, "task_id": result.Task.ID, "run_number": result.Run.RunNumber},
	})
	return result, nil
}

func matchesFilter(t *model.Task, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == t.TaskType {
			return true
		}
		for _, tag := range t.Tags {
			if f == tag {
				return true
			}
		}
	}
	return false
}

func higherPriority(a, b *model.Task) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func resolveDeps(ctx context.Context, tx store.Tx, candidates []*model.Task) (map[string]bool, error) {
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
