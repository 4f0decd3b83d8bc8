// Package workers implements the Worker Service (C5): registration,
// heartbeat, liveness sweep, and claim semantics, enforcing the worker
// state machine of spec.md §4.5. Grounded on
// original_source/.../models/worker.py (is_available, update_heartbeat,
// assign_task, complete_task, mark_offline) plus the heartbeat-freshness
// condition spec.md adds.
package workers

import (
	"context"
	"sort"
	"time"

	"github.com/hiveflow/orchestrator/eventbus"
	"github.com/hiveflow/orchestrator/model"
	"github.com/hiveflow/orchestrator/orcherrors"
	"github.com/hiveflow/orchestrator/store"
	"github.com/hiveflow/orchestrator/telemetry"
)

// Service implements the Worker Service operations of spec.md §4.5.
type Service struct {
	store            store.Store
	bus              *eventbus.Bus
	heartbeatTimeout time.Duration
	logger           telemetry.Logger
	metrics          telemetry.Metrics
}

// Option configures a Service at construction.
type Option func(*Service)

func WithHeartbeatTimeout(d time.Duration) Option {
	return func(s *Service) { s.heartbeatTimeout = d }
}
func WithLogger(l telemetry.Logger) Option   { return func(s *Service) { s.logger = l } }
func WithMetrics(m telemetry.Metrics) Option { return func(s *Service) { s.metrics = m } }

// New constructs a Service backed by st, publishing lifecycle events on
// bus.
func New(st store.Store, bus *eventbus.Bus, opts ...Option) *Service {
	s := &Service{
		store:            st,
		bus:              bus,
		heartbeatTimeout: model.DefaultHeartbeatTimeout,
		logger:           telemetry.NoopLogger{},
		metrics:          telemetry.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterWorker upserts a worker: re-registering an existing id resets
// last_heartbeat and status to active (spec.md §4.5, idempotent).
func (s *Service) RegisterWorker(ctx context.Context, id, role string, capabilities []string, metadata map[string]any) error {
	if id == "" {
		return orcherrors.ValidationErrorf("worker id is required")
	}
	now := time.Now().UTC()
	err := store.WithTx(ctx, s.store, func(tx store.Tx) error {
		existing, err := tx.GetWorker(ctx, id)
		registeredAt := now
		if err == nil {
			registeredAt = existing.RegisteredAt
		}
		w := &model.Worker{
			ID:            id,
			Role:          role,
			Status:        model.WorkerActive,
			LastHeartbeat: now,
			Capabilities:  capabilities,
			RegisteredAt:  registeredAt,
			Metadata:      metadata,
		}
		return tx.UpsertWorker(ctx, w)
	})
	if err != nil {
		return err
	}
	s.metrics.IncCounter("workers.registered", 1, "role", role)
	s.bus.Publish(ctx, model.Event{
		Type: model.EventWorkerRegistered, CorrelationID: id, Timestamp: now,
		Payload: map[string]any{"worker_id": id, "role": role},
	})
	return nil
}

// UpdateWorkerHeartbeat refreshes last_heartbeat and optionally the
// status. Returns false if id is unknown (no implicit registration).
func (s *Service) UpdateWorkerHeartbeat(ctx context.Context, id string, status *model.WorkerStatus) (bool, error) {
	now := time.Now().UTC()
	found := true
	err := store.WithTx(ctx, s.store, func(tx store.Tx) error {
		w, err := tx.GetWorker(ctx, id)
		if err != nil {
			found = false
			return nil
		}
		w.LastHeartbeat = now
		if status != nil {
			w.Status = *status
		}
		return tx.UpsertWorker(ctx, w)
	})
	if err != nil || !found {
		return false, err
	}
	s.bus.Publish(ctx, model.Event{
		Type: model.EventWorkerHeartbeat, CorrelationID: id, Timestamp: now,
		Payload: map[string]any{"worker_id": id},
	})
	return true, nil
}

// GetActiveWorkers returns workers with status=active and fresh
// heartbeat, optionally filtered by role.
func (s *Service) GetActiveWorkers(ctx context.Context, role string) ([]*model.Worker, error) {
	var out []*model.Worker
	now := time.Now().UTC()
	err := s.store.View(ctx, func(tx store.Tx) error {
		all, err := tx.ListWorkers(ctx)
		if err != nil {
			return err
		}
		for _, w := range all {
			if w.Status != model.WorkerActive {
				continue
			}
			if now.Sub(w.LastHeartbeat) > s.heartbeatTimeout {
				continue
			}
			if role != "" && w.Role != role {
				continue
			}
			out = append(out, w)
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// GetWorker returns the worker snapshot, or a not_found error if absent.
func (s *Service) GetWorker(ctx context.Context, id string) (*model.Worker, error) {
	var w *model.Worker
	err := s.store.View(ctx, func(tx store.Tx) error {
		got, err := tx.GetWorker(ctx, id)
		if err != nil {
			return err
		}
		w = got
		return nil
	})
	return w, err
}

// UnregisterWorker removes the worker. If it held a task, that task is
// moved back to queued with assigned_worker cleared (redelivery) and the
// in-flight run is closed out so it does not outlive the worker that was
// executing it.
func (s *Service) UnregisterWorker(ctx context.Context, id string) error {
	var closed *model.Run
	err := store.WithTx(ctx, s.store, func(tx store.Tx) error {
		w, err := tx.GetWorker(ctx, id)
		if err != nil {
			return err
		}
		if w.CurrentTaskID != nil {
			r, err := requeue(ctx, tx, *w.CurrentTaskID)
			if err != nil {
				return err
			}
			closed = r
		}
		return tx.DeleteWorker(ctx, id)
	})
	if err != nil {
		return err
	}
	s.publishRunClosed(ctx, closed)
	return nil
}

// requeue moves taskID back to queued (unless it's already terminal) and
// closes out its latest non-terminal run, since the worker that was
// executing it is gone. Shared by UnregisterWorker and the Sweeper's
// eviction of unresponsive workers.
func requeue(ctx context.Context, tx store.Tx, taskID string) (*model.Run, error) {
	task, err := tx.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return nil, nil
	}
	task.Status = model.TaskQueued
	task.AssignedWorker = nil
	task.UpdatedAt = time.Now().UTC()
	task.Version++
	if err := tx.UpsertTask(ctx, task); err != nil {
		return nil, err
	}
	return closeActiveRun(ctx, tx, taskID, model.RunFailure, "worker became unavailable; task requeued")
}

// closeActiveRun terminates the latest non-terminal run for taskID, if
// any, so the run state machine's terminal/completed_at invariants hold
// even when the claiming worker never reports back.
func closeActiveRun(ctx context.Context, tx store.Tx, taskID string, status model.RunStatus, reason string) (*model.Run, error) {
	runs, err := tx.ListRunsByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	var latest *model.Run
	for _, r := range runs {
		if latest == nil || r.RunNumber > latest.RunNumber {
			latest = r
		}
	}
	if latest == nil || latest.Status.Terminal() {
		return nil, nil
	}
	now := time.Now().UTC()
	latest.Status = status
	latest.CompletedAt = &now
	latest.ErrorMessage = reason
	if err := tx.UpsertRun(ctx, latest); err != nil {
		return nil, err
	}
	return latest, nil
}

func (s *Service) publishRunClosed(ctx context.Context, r *model.Run) {
	if r == nil {
		return
	}
	s.bus.Publish(ctx, model.Event{
		Type: model.EventRunFailed, CorrelationID: r.TaskID, Timestamp: time.Now().UTC(),
		Payload: map[string]any{"run_id": r.ID, "task_id": r.TaskID, "run_number": r.RunNumber, "status": string(r.Status)},
	})
}

// ClaimResult is the outcome of a successful Claim.
type ClaimResult struct {
	Task *model.Task
	Run  *model.Run
}

// UpdateRunStatusInput is the argument set for UpdateRunStatus.
type UpdateRunStatusInput struct {
	RunID         string
	NewStatus     model.RunStatus
	Phase         string
	ResultData    map[string]any
	ErrorMessage  string
	OutputLog     string
	Transcript    string
	CorrelationID string
}

// UpdateRunStatus applies a run-status transition on behalf of the
// claiming worker (spec.md §3: "Runs ... mutated only by the claiming
// worker"). Reaching a terminal status frees the worker that was
// executing it for its next claim and publishes run.completed (success)
// or run.failed (failure/timeout/cancelled).
func (s *Service) UpdateRunStatus(ctx context.Context, in UpdateRunStatusInput) error {
	if in.RunID == "" {
		return orcherrors.ValidationErrorf("run_id is required")
	}
	if in.NewStatus == "" {
		return orcherrors.ValidationErrorf("new_status is required")
	}
	now := time.Now().UTC()
	var run *model.Run
	var noop bool
	err := store.WithTx(ctx, s.store, func(tx store.Tx) error {
		r, err := tx.GetRun(ctx, in.RunID)
		if err != nil {
			return err
		}
		if !model.CanTransitionRun(r.Status, in.NewStatus) {
			return orcherrors.StateErrorf("cannot transition run %q from %s to %s", in.RunID, r.Status, in.NewStatus)
		}
		noop = r.Status == in.NewStatus
		if noop {
			run = r
			return nil
		}
		r.Status = in.NewStatus
		if in.Phase != "" {
			r.Phase = in.Phase
		}
		if in.ResultData != nil {
			r.ResultData = in.ResultData
		}
		if in.ErrorMessage != "" {
			r.ErrorMessage = in.ErrorMessage
		}
		if in.OutputLog != "" {
			r.OutputLog = in.OutputLog
		}
		if in.Transcript != "" {
			r.Transcript = in.Transcript
		}
		if in.NewStatus.Terminal() {
			r.CompletedAt = &now
		}
		if err := tx.UpsertRun(ctx, r); err != nil {
			return err
		}
		if in.NewStatus.Terminal() {
			if w, werr := tx.GetWorker(ctx, r.WorkerID); werr == nil && w.CurrentTaskID != nil && *w.CurrentTaskID == r.TaskID {
				w.CompleteTask()
				if err := tx.UpsertWorker(ctx, w); err != nil {
					return err
				}
			}
		}
		run = r
		return nil
	})
	if err != nil || noop {
		return err
	}

	s.metrics.IncCounter("workers.run_status_changed", 1, "new_status", string(in.NewStatus))
	correlationID := in.CorrelationID
	if correlationID == "" {
		correlationID = run.TaskID
	}
	switch {
	case run.Status == model.RunSuccess:
		s.bus.Publish(ctx, model.Event{
			Type: model.EventRunCompleted, CorrelationID: correlationID, Timestamp: now,
			Payload: map[string]any{"run_id": run.ID, "task_id": run.TaskID, "run_number": run.RunNumber},
		})
	case run.Status.Terminal():
		s.bus.Publish(ctx, model.Event{
			Type: model.EventRunFailed, CorrelationID: correlationID, Timestamp: now,
			Payload: map[string]any{"run_id": run.ID, "task_id": run.TaskID, "run_number": run.RunNumber, "status": string(run.Status)},
		})
	}
	return nil
}
