// Package tasks implements the Task Repository (C4): CRUD and queries over
// tasks, enforcing the task state machine of spec.md §4.4.
package tasks

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hiveflow/orchestrator/eventbus"
	"github.com/hiveflow/orchestrator/model"
	"github.com/hiveflow/orchestrator/orcherrors"
	"github.com/hiveflow/orchestrator/store"
	"github.com/hiveflow/orchestrator/telemetry"
)

// Repository implements the Task Repository operations of spec.md §4.4.
type Repository struct {
	store   store.Store
	bus     *eventbus.Bus
	schemas *SchemaRegistry
	logger  telemetry.Logger
	metrics telemetry.Metrics
}

// Option configures a Repository at construction.
type Option func(*Repository)

func WithLogger(l telemetry.Logger) Option   { return func(r *Repository) { r.logger = l } }
func WithMetrics(m telemetry.Metrics) Option { return func(r *Repository) { r.metrics = m } }
func WithSchemas(s *SchemaRegistry) Option   { return func(r *Repository) { r.schemas = s } }

// New constructs a Repository backed by s, publishing lifecycle events on
// bus.
func New(s store.Store, bus *eventbus.Bus, opts ...Option) *Repository {
	r := &Repository{
		store:   s,
		bus:     bus,
		logger:  telemetry.NoopLogger{},
		metrics: telemetry.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateInput is the argument set for CreateTask.
type CreateInput struct {
	Title          string
	Description    string
	TaskType       string
	Priority       int
	Payload        map[string]any
	Tags           []string
	MaxRetries     int
	ParentTaskID   *string
	PlanID         *string
	Dependencies   []string
	DueDate        *time.Time
	Metadata       map[string]any
	CorrelationID  string
	// Workflow, when set, seeds the task with a phase-executor state machine
	// instance (spec.md §4.7) instead of the plain ad-hoc lifecycle.
	Workflow       *model.Workflow
}

// CreateTask allocates an id, sets status=queued, stamps timestamps, and
// emits task.created (spec.md §4.4).
func (r *Repository) CreateTask(ctx context.Context, in CreateInput) (string, error) {
	if in.Title == "" {
		return "", orcherrors.ValidationErrorf("title is required")
	}
	if in.TaskType == "" {
		return "", orcherrors.ValidationErrorf("task_type is required")
	}
	if r.schemas != nil {
		if err := r.schemas.Validate(in.TaskType, in.Payload); err != nil {
			return "", orcherrors.Wrap(orcherrors.ValidationError, "payload schema validation failed", err)
		}
	}
	if in.ParentTaskID != nil {
		parent, err := r.getTaskNoTx(ctx, *in.ParentTaskID)
		if err != nil {
			return "", err
		}
		if parent.PlanID != in.PlanID {
			if in.PlanID == nil || parent.PlanID == nil || *parent.PlanID != *in.PlanID {
				return "", orcherrors.ValidationErrorf("child task plan_id must equal parent's plan_id")
			}
		}
	}
	if in.MaxRetries == 0 {
		in.MaxRetries = 3
	}

	correlationID := in.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	currentPhase := "start"
	if in.Workflow != nil {
		currentPhase = in.Workflow.CurrentPhase
	}

	now := time.Now().UTC()
	task := &model.Task{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Description:  in.Description,
		TaskType:     in.TaskType,
		Priority:     in.Priority,
		Status:       model.TaskQueued,
		CurrentPhase: currentPhase,
		Payload:      in.Payload,
		MaxRetries:   in.MaxRetries,
		ParentTaskID: in.ParentTaskID,
		PlanID:       in.PlanID,
		Dependencies: in.Dependencies,
		Tags:         in.Tags,
		CreatedAt:    now,
		UpdatedAt:    now,
		DueDate:      in.DueDate,
		Metadata:     in.Metadata,
		Workflow:     in.Workflow,
	}

	err := store.WithTx(ctx, r.store, func(tx store.Tx) error {
		return tx.UpsertTask(ctx, task)
	})
	if err != nil {
		return "", orcherrors.Wrap(orcherrors.StorageError, "create task", err)
	}

	r.metrics.IncCounter("tasks.created", 1, "task_type", in.TaskType)
	r.bus.Publish(ctx, model.Event{
		Type:          model.EventTaskCreated,
		CorrelationID: correlationID,
		Timestamp:     now,
		Payload:       map[string]any{"task_id": task.ID, "task_type": task.TaskType},
	})
	return task.ID, nil
}

// GetTask returns the task snapshot, or a not_found error if absent.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	return r.getTaskNoTx(ctx, id)
}

func (r *Repository) getTaskNoTx(ctx context.Context, id string) (*model.Task, error) {
	var task *model.Task
	err := r.store.View(ctx, func(tx store.Tx) error {
		t, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		task = t
		return nil
	})
	return task, err
}

// UpdateStatusInput is the argument set for UpdateTaskStatus.
type UpdateStatusInput struct {
	TaskID         string
	NewStatus      model.TaskStatus
	AssignedWorker *string
	CurrentPhase   *string
	ErrorMessage   *string
	Metadata       map[string]any
	CorrelationID  string
}

// UpdateTaskStatus applies a status transition, rejecting it with a
// state_error if illegal under the state machine (spec.md §4.4). It uses
// the task's Version field for optimistic concurrency control so two
// concurrent updaters cannot both move a task out of the same status.
func (r *Repository) UpdateTaskStatus(ctx context.Context, in UpdateStatusInput) error {
	now := time.Now().UTC()
	correlationID := in.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	var noop bool
	err := store.WithTx(ctx, r.store, func(tx store.Tx) error {
		task, err := tx.GetTask(ctx, in.TaskID)
		if err != nil {
			return err
		}
		if !model.CanTransition(task.Status, in.NewStatus) {
			return orcherrors.StateErrorf("cannot transition task %q from %s to %s", in.TaskID, task.Status, in.NewStatus)
		}
		noop = task.Status == in.NewStatus
		if noop {
			return nil
		}
		expectedVersion := task.Version
		task.Status = in.NewStatus
		task.UpdatedAt = now
		task.Version++
		if in.AssignedWorker != nil {
			task.AssignedWorker = in.AssignedWorker
		}
		if in.CurrentPhase != nil {
			task.CurrentPhase = *in.CurrentPhase
		}
		if in.ErrorMessage != nil {
			task.ErrorMessage = *in.ErrorMessage
		}
		for k, v := range in.Metadata {
			if task.Metadata == nil {
				task.Metadata = map[string]any{}
			}
			task.Metadata[k] = v
		}
		// Re-read-and-compare emulates a CAS check: a concurrent writer
		// that already bumped the version between our read and write
		// would be caught here under a store with per-row locking; the
		// in-memory reference store's single-writer transaction makes
		// this check exact.
		if current, err := tx.GetTask(ctx, in.TaskID); err == nil && current.Version != expectedVersion {
			return orcherrors.Conflictf("task %q was concurrently modified", in.TaskID)
		}
		return tx.UpsertTask(ctx, task)
	})
	if err != nil {
		return err
	}
	if noop {
		return nil
	}

	r.metrics.IncCounter("tasks.status_changed", 1, "new_status", string(in.NewStatus))
	r.bus.Publish(ctx, model.Event{
		Type:          model.EventTaskStatusChanged,
		CorrelationID: correlationID,
		Timestamp:     now,
		Payload:       map[string]any{"task_id": in.TaskID, "new_status": string(in.NewStatus)},
	})
	return nil
}

// GetTasksByStatus returns all tasks with the given status, unordered.
func (r *Repository) GetTasksByStatus(ctx context.Context, status model.TaskStatus) ([]*model.Task, error) {
	var tasks []*model.Task
	err := r.store.View(ctx, func(tx store.Tx) error {
		ts, err := tx.ListTasksByStatus(ctx, status)
		if err != nil {
			return err
		}
		tasks = ts
		return nil
	})
	return tasks, err
}

// GetQueuedTasks returns up to limit ready, queued tasks of the given
// type (or any type if taskType is empty), ordered by priority desc then
// created_at asc (spec.md §4.4).
func (r *Repository) GetQueuedTasks(ctx context.Context, limit int, taskType string) ([]*model.Task, error) {
	var queued []*model.Task
	err := r.store.View(ctx, func(tx store.Tx) error {
		all, err := tx.ListTasksByStatus(ctx, model.TaskQueued)
		if err != nil {
			return err
		}
		resolved, err := r.resolvedDependencies(ctx, tx, all)
		if err != nil {
			return err
		}
		for _, t := range all {
			if taskType != "" && t.TaskType != taskType {
				continue
			}
			if t.Ready(resolved) {
				queued = append(queued, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(queued, func(i, j int) bool {
		if queued[i].Priority != queued[j].Priority {
			return queued[i].Priority > queued[j].Priority
		}
		return queued[i].CreatedAt.Before(queued[j].CreatedAt)
	})
	if limit > 0 && len(queued) > limit {
		queued = queued[:limit]
	}
	return queued, nil
}

// resolvedDependencies batches the dependency lookup: a single pass over
// the union of dependency ids referenced by candidates, rather than one
// store round-trip per candidate (spec.md §4.6's batching requirement
// applies equally here).
func (r *Repository) resolvedDependencies(ctx context.Context, tx store.Tx, candidates []*model.Task) (map[string]bool, error) {
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

// DeleteTask cascades: deletes the task and all its runs. Safe only when
// status is terminal; otherwise force must be true.
func (r *Repository) DeleteTask(ctx context.Context, id string, force bool) error {
	return store.WithTx(ctx, r.store, func(tx store.Tx) error {
		task, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		if !task.Status.Terminal() && !force {
			return orcherrors.StateErrorf("task %q is not terminal; pass force to delete anyway", id)
		}
		return tx.DeleteTask(ctx, id)
	})
}
