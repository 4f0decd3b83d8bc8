// Package client implements the Client/Facade (C8): a thin, strongly-typed
// operation surface over the Task Repository, Worker Service, Plan Engine,
// and Workflow Executor for application code, per spec.md §4.8. Its sole
// responsibilities are argument validation, correlation-ID allocation when
// the caller leaves one blank, and normalizing every returned error into
// the orcherrors taxonomy — it adds no business logic of its own. Grounded
// on cmd/demo's runtime.New() → register → MustClientFor → Run wiring
// style, generalized to the orchestration domain's operation set.
package client

import (
	"context"

	"github.com/google/uuid"

	"github.com/hiveflow/orchestrator/agentregistry"
	"github.com/hiveflow/orchestrator/eventbus"
	"github.com/hiveflow/orchestrator/model"
	"github.com/hiveflow/orchestrator/orcherrors"
	"github.com/hiveflow/orchestrator/plan"
	"github.com/hiveflow/orchestrator/store/rediscache"
	"github.com/hiveflow/orchestrator/tasks"
	"github.com/hiveflow/orchestrator/workers"
	"github.com/hiveflow/orchestrator/workflow"
)

// Client is the public facade over C4–C7. Construct one with New, wiring in
// the already-constructed component instances (each owns its own Store/
// EventBus dependency; Client itself holds no persistent state).
type Client struct {
	tasks    *tasks.Repository
	workers  *workers.Service
	plans    *plan.Engine
	workflow *workflow.Executor
	agents   *agentregistry.Registry
	bus      *eventbus.Bus
}

// New constructs a Client over the given components. Any of workflowExec or
// agents may be nil if the deployment does not use phase-based workflows.
func New(taskRepo *tasks.Repository, workerSvc *workers.Service, planEngine *plan.Engine, workflowExec *workflow.Executor, agents *agentregistry.Registry, bus *eventbus.Bus) *Client {
	return &Client{
		tasks:    taskRepo,
		workers:  workerSvc,
		plans:    planEngine,
		workflow: workflowExec,
		agents:   agents,
		bus:      bus,
	}
}

// GetEventBus returns the bus callers may subscribe to for lifecycle
// notifications (spec.md §6).
func (c *Client) GetEventBus() *eventbus.Bus { return c.bus }

// normalize guarantees every error returned across the facade boundary
// satisfies orcherrors.As, per spec.md §7's propagation policy: lower
// layers may return driver-native errors; the Client facade is the layer
// that must wrap them.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	var oe *orcherrors.Error
	if orcherrors.As(err, &oe) {
		return err
	}
	return orcherrors.Wrap(orcherrors.InternalError, "unclassified error", err)
}

func requireNonEmpty(field, value string) error {
	if value == "" {
		return orcherrors.ValidationErrorf("%s is required", field)
	}
	return nil
}

// ---- Task operations (spec.md §6 "Task:") ----

// CreateTaskInput mirrors tasks.CreateInput; a blank CorrelationID is
// allocated here before the call reaches the repository.
type CreateTaskInput = tasks.CreateInput

// CreateTask allocates a task id, per spec.md §4.4.
func (c *Client) CreateTask(ctx context.Context, in CreateTaskInput) (string, error) {
	if err := requireNonEmpty("title", in.Title); err != nil {
		return "", err
	}
	if err := requireNonEmpty("task_type", in.TaskType); err != nil {
		return "", err
	}
	if in.CorrelationID == "" {
		in.CorrelationID = uuid.NewString()
	}
	id, err := c.tasks.CreateTask(ctx, in)
	return id, normalize(err)
}

// GetTask returns the task snapshot, or a not_found error if absent.
func (c *Client) GetTask(ctx context.Context, id string) (*model.Task, error) {
	if err := requireNonEmpty("id", id); err != nil {
		return nil, err
	}
	t, err := c.tasks.GetTask(ctx, id)
	return t, normalize(err)
}

// UpdateTaskStatusInput mirrors tasks.UpdateStatusInput.
type UpdateTaskStatusInput = tasks.UpdateStatusInput

// UpdateTaskStatus applies a status transition, per spec.md §4.4.
func (c *Client) UpdateTaskStatus(ctx context.Context, in UpdateTaskStatusInput) error {
	if err := requireNonEmpty("task_id", in.TaskID); err != nil {
		return err
	}
	if in.NewStatus == "" {
		return orcherrors.ValidationErrorf("new_status is required")
	}
	if in.CorrelationID == "" {
		in.CorrelationID = uuid.NewString()
	}
	return normalize(c.tasks.UpdateTaskStatus(ctx, in))
}

// GetTasksByStatus returns all tasks with the given status, unordered.
func (c *Client) GetTasksByStatus(ctx context.Context, status model.TaskStatus) ([]*model.Task, error) {
	ts, err := c.tasks.GetTasksByStatus(ctx, status)
	return ts, normalize(err)
}

// GetQueuedTasks returns up to limit ready, queued tasks of taskType (or
// any type if blank), ordered by priority desc then created_at asc.
func (c *Client) GetQueuedTasks(ctx context.Context, limit int, taskType string) ([]*model.Task, error) {
	ts, err := c.tasks.GetQueuedTasks(ctx, limit, taskType)
	return ts, normalize(err)
}

// DeleteTask cascades: deletes the task and all its runs.
func (c *Client) DeleteTask(ctx context.Context, id string, force bool) error {
	if err := requireNonEmpty("id", id); err != nil {
		return err
	}
	return normalize(c.tasks.DeleteTask(ctx, id, force))
}

// ---- Worker operations (spec.md §6 "Worker:") ----

// RegisterWorker upserts a worker, per spec.md §4.5.
func (c *Client) RegisterWorker(ctx context.Context, id, role string, capabilities []string, metadata map[string]any) error {
	if err := requireNonEmpty("id", id); err != nil {
		return err
	}
	return normalize(c.workers.RegisterWorker(ctx, id, role, capabilities, metadata))
}

// UpdateWorkerHeartbeat refreshes last_heartbeat and optionally status.
func (c *Client) UpdateWorkerHeartbeat(ctx context.Context, id string, status *model.WorkerStatus) (bool, error) {
	if err := requireNonEmpty("id", id); err != nil {
		return false, err
	}
	ok, err := c.workers.UpdateWorkerHeartbeat(ctx, id, status)
	return ok, normalize(err)
}

// GetActiveWorkers returns workers with status=active and a fresh
// heartbeat, optionally filtered by role.
func (c *Client) GetActiveWorkers(ctx context.Context, role string) ([]*model.Worker, error) {
	ws, err := c.workers.GetActiveWorkers(ctx, role)
	return ws, normalize(err)
}

// GetWorker returns the worker snapshot, or a not_found error if absent.
func (c *Client) GetWorker(ctx context.Context, id string) (*model.Worker, error) {
	if err := requireNonEmpty("id", id); err != nil {
		return nil, err
	}
	w, err := c.workers.GetWorker(ctx, id)
	return w, normalize(err)
}

// UnregisterWorker removes the worker, requeuing any held task.
func (c *Client) UnregisterWorker(ctx context.Context, id string) error {
	if err := requireNonEmpty("id", id); err != nil {
		return err
	}
	return normalize(c.workers.UnregisterWorker(ctx, id))
}

// ClaimTask implements the claim semantics of spec.md §4.5: atomically
// selects the highest-priority ready queued task matching capabilityFilter,
// transitions it to assigned, and allocates a new Run.
func (c *Client) ClaimTask(ctx context.Context, workerID string, capabilityFilter []string) (*workers.ClaimResult, error) {
	if err := requireNonEmpty("worker_id", workerID); err != nil {
		return nil, err
	}
	res, err := c.workers.Claim(ctx, workerID, capabilityFilter)
	return res, normalize(err)
}

// UpdateRunStatusInput mirrors workers.UpdateRunStatusInput.
type UpdateRunStatusInput = workers.UpdateRunStatusInput

// UpdateRunStatus applies a run-status transition on behalf of the
// claiming worker, per spec.md §3 ("Runs ... mutated only by the
// claiming worker").
func (c *Client) UpdateRunStatus(ctx context.Context, in UpdateRunStatusInput) error {
	if err := requireNonEmpty("run_id", in.RunID); err != nil {
		return err
	}
	if in.NewStatus == "" {
		return orcherrors.ValidationErrorf("new_status is required")
	}
	return normalize(c.workers.UpdateRunStatus(ctx, in))
}

// ---- Plan operations (spec.md §6 "Plan:") ----

// CreatePlannedSubtasksFromPlan materializes plan_id's subtask templates
// into Tasks, per spec.md §4.6.
func (c *Client) CreatePlannedSubtasksFromPlan(ctx context.Context, planID string) (int, error) {
	if err := requireNonEmpty("plan_id", planID); err != nil {
		return 0, err
	}
	n, err := c.plans.CreatePlannedSubtasksFromPlan(ctx, planID)
	return n, normalize(err)
}

// GetExecutionPlanStatus returns the current plan snapshot, uncached.
func (c *Client) GetExecutionPlanStatus(ctx context.Context, planID string) (*model.ExecutionPlan, error) {
	if err := requireNonEmpty("plan_id", planID); err != nil {
		return nil, err
	}
	p, err := c.plans.GetExecutionPlanStatus(ctx, planID)
	return p, normalize(err)
}

// GetExecutionPlanStatusCached returns the plan status, preferring the
// Redis cache when configured.
func (c *Client) GetExecutionPlanStatusCached(ctx context.Context, planID string) (rediscache.PlanSnapshot, error) {
	if err := requireNonEmpty("plan_id", planID); err != nil {
		return rediscache.PlanSnapshot{}, err
	}
	snap, err := c.plans.GetExecutionPlanStatusCached(ctx, planID)
	return snap, normalize(err)
}

// CheckSubtaskDependencies reports whether every dependency of taskID has
// status=completed.
func (c *Client) CheckSubtaskDependencies(ctx context.Context, taskID string) (bool, error) {
	if err := requireNonEmpty("task_id", taskID); err != nil {
		return false, err
	}
	ok, err := c.plans.CheckSubtaskDependencies(ctx, taskID)
	return ok, normalize(err)
}

// CheckSubtaskDependenciesBatch resolves readiness for every id in taskIDs
// using a single batched dependency lookup.
func (c *Client) CheckSubtaskDependenciesBatch(ctx context.Context, taskIDs []string) (map[string]bool, error) {
	out, err := c.plans.CheckSubtaskDependenciesBatch(ctx, taskIDs)
	return out, normalize(err)
}

// GetNextPlannedSubtask returns the highest-priority ready queued task
// belonging to planID, or a not_found error if none is ready.
func (c *Client) GetNextPlannedSubtask(ctx context.Context, planID string) (*model.Task, error) {
	if err := requireNonEmpty("plan_id", planID); err != nil {
		return nil, err
	}
	t, err := c.plans.GetNextPlannedSubtask(ctx, planID)
	return t, normalize(err)
}

// MarkPlanExecutionStarted transitions a pending plan to in_progress.
// Idempotent.
func (c *Client) MarkPlanExecutionStarted(ctx context.Context, planID string) error {
	if err := requireNonEmpty("plan_id", planID); err != nil {
		return err
	}
	return normalize(c.plans.MarkPlanExecutionStarted(ctx, planID))
}

// ---- Workflow operations (spec.md §6 "Workflow:") ----

// CreateChimeraTask creates a task running the reference Chimera workflow
// (generate-test → implement → review → deploy → validate), defaulting
// priority to 3 when unset, per spec.md §6.
func (c *Client) CreateChimeraTask(ctx context.Context, featureDescription, targetURL, stagingURL string, priority int) (string, error) {
	if err := requireNonEmpty("feature_description", featureDescription); err != nil {
		return "", err
	}
	if priority == 0 {
		priority = 3
	}
	in := workflow.CreateChimeraTask(workflow.CreateChimeraTaskInput{
		FeatureDescription: featureDescription,
		TargetURL:          targetURL,
		StagingURL:         stagingURL,
		Priority:           priority,
	})
	id, err := c.tasks.CreateTask(ctx, in)
	return id, normalize(err)
}

// ExecuteWorkflow drives task taskID through def one phase at a time until
// it reaches a terminal phase or maxIterations elapses (default 10 when
// <=0), per spec.md §4.7.
func (c *Client) ExecuteWorkflow(ctx context.Context, def *workflow.Definition, taskID string, maxIterations int) (*model.Workflow, error) {
	if err := requireNonEmpty("task_id", taskID); err != nil {
		return nil, err
	}
	if c.workflow == nil {
		return nil, orcherrors.ConfigurationErrorf("no workflow executor configured on this client")
	}
	if maxIterations <= 0 {
		maxIterations = 10
	}
	wf, err := c.workflow.ExecuteWorkflow(ctx, def, taskID, maxIterations)
	return wf, normalize(err)
}

// ---- Agent registry pass-through (spec.md §4.3) ----

// RegisterAgent adds agent to the registry.
func (c *Client) RegisterAgent(agent agentregistry.Agent) error {
	if c.agents == nil {
		return orcherrors.ConfigurationErrorf("no agent registry configured on this client")
	}
	return normalize(c.agents.Register(agent))
}

// AgentHealth reports the health of every registered agent.
func (c *Client) AgentHealth(ctx context.Context) map[string]agentregistry.Health {
	if c.agents == nil {
		return map[string]agentregistry.Health{}
	}
	return c.agents.HealthCheckAll(ctx)
}
