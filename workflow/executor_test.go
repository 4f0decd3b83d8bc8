package workflow_test

import (
	"context"
	"testing"

	"github.com/hiveflow/orchestrator/agentregistry"
	"github.com/hiveflow/orchestrator/eventbus"
	"github.com/hiveflow/orchestrator/model"
	"github.com/hiveflow/orchestrator/orcherrors"
	"github.com/hiveflow/orchestrator/store/memstore"
	"github.com/hiveflow/orchestrator/tasks"
	"github.com/hiveflow/orchestrator/workflow"
	"github.com/hiveflow/orchestrator/workflow/engine/inmem"
)

// scriptedAgent returns a fixed sequence of results, one per Execute call
// for a given action, cycling on the last entry once exhausted.
type scriptedAgent struct {
	id           string
	agentType    string
	byAction     map[string][]map[string]any
	calls        map[string]int
}

func newScriptedAgent(agentType string, byAction map[string][]map[string]any) *scriptedAgent {
	return &scriptedAgent{id: agentType + "-1", agentType: agentType, byAction: byAction, calls: map[string]int{}}
}

func (a *scriptedAgent) ID() string                          { return a.id }
func (a *scriptedAgent) Type() string                         { return a.agentType }
func (a *scriptedAgent) Capabilities() []agentregistry.Capability { return nil }
func (a *scriptedAgent) HealthCheck(ctx context.Context) (agentregistry.Health, error) {
	return agentregistry.Health{Status: agentregistry.HealthHealthy}, nil
}
func (a *scriptedAgent) Execute(ctx context.Context, action string, taskData map[string]any) (map[string]any, error) {
	results := a.byAction[action]
	i := a.calls[action]
	a.calls[action]++
	if i >= len(results) {
		i = len(results) - 1
	}
	return results[i], nil
}

func newHappyPathRegistry() *agentregistry.Registry {
	reg := agentregistry.New()
	_ = reg.Register(newScriptedAgent("e2e-tester-agent", map[string][]map[string]any{
		"generate_test": {{"status": "success", "test_path": "tests/e2e/feature_test.go"}},
		"execute_test":  {{"status": "success", "staging_url": "https://staging.example.com/run/1"}},
	}))
	_ = reg.Register(newScriptedAgent("coder-agent", map[string][]map[string]any{
		"implement_feature": {{"status": "success", "pr_id": "pr-42", "commit_sha": "abc123"}},
	}))
	_ = reg.Register(newScriptedAgent("guardian-agent", map[string][]map[string]any{
		"review_pr": {{"status": "success", "decision": "approved"}},
	}))
	_ = reg.Register(newScriptedAgent("deployment-agent", map[string][]map[string]any{
		"deploy_to_staging": {{"status": "success", "staging_url": "https://staging.example.com/run/1"}},
	}))
	return reg
}

func TestExecuteWorkflow_ChimeraHappyPath(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	bus := eventbus.New()
	tasksRepo := tasks.New(st, bus)
	reg := newHappyPathRegistry()
	eng := inmem.New()
	exec := workflow.New(st, tasksRepo, reg, bus, eng)

	in := workflow.CreateChimeraTask(workflow.CreateChimeraTaskInput{
		FeatureDescription: "add login button",
		TargetURL:          "https://example.com",
		StagingURL:         "https://staging.example.com",
	})
	taskID, err := tasksRepo.CreateTask(ctx, in)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := tasksRepo.UpdateTaskStatus(ctx, tasks.UpdateStatusInput{TaskID: taskID, NewStatus: model.TaskAssigned}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	wf, err := exec.ExecuteWorkflow(ctx, workflow.ChimeraDefinition(), taskID, 0)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	if wf.CurrentPhase != workflow.PhaseComplete {
		t.Fatalf("expected terminal phase %q, got %q", workflow.PhaseComplete, wf.CurrentPhase)
	}
	if wf.Artifacts["test_path"] != "tests/e2e/feature_test.go" {
		t.Fatalf("expected test_path artifact captured, got %v", wf.Artifacts["test_path"])
	}
	if wf.Artifacts["deployment_url"] == nil {
		t.Fatalf("expected deployment_url artifact captured")
	}

	task, err := tasksRepo.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != model.TaskCompleted {
		t.Fatalf("expected task completed, got %s", task.Status)
	}
}

func TestExecuteWorkflow_ConfigurationErrorOnMissingAgent(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	bus := eventbus.New()
	tasksRepo := tasks.New(st, bus)
	reg := agentregistry.New() // no agents registered
	eng := inmem.New()
	exec := workflow.New(st, tasksRepo, reg, bus, eng)

	in := workflow.CreateChimeraTask(workflow.CreateChimeraTaskInput{
		FeatureDescription: "add login button",
		TargetURL:          "https://example.com",
	})
	taskID, err := tasksRepo.CreateTask(ctx, in)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	_, err = exec.ExecuteWorkflow(ctx, workflow.ChimeraDefinition(), taskID, 0)
	if !orcherrors.Is(err, orcherrors.ConfigurationErr) {
		t.Fatalf("expected configuration_error, got %v", err)
	}
}

func TestExecuteWorkflow_FailureLoopbackDoesNotClobberEarlierArtifacts(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	bus := eventbus.New()
	tasksRepo := tasks.New(st, bus)
	reg := agentregistry.New()
	_ = reg.Register(newScriptedAgent("e2e-tester-agent", map[string][]map[string]any{
		"generate_test": {{"status": "success", "test_path": "t.py"}},
		"execute_test":  {{"status": "success", "staging_url": "https://staging.example.com/run/1"}},
	}))
	_ = reg.Register(newScriptedAgent("coder-agent", map[string][]map[string]any{
		"implement_feature": {
			{"status": "success", "pr_id": "pr-1", "commit_sha": "sha1"},
			{"status": "success", "pr_id": "pr-2", "commit_sha": "sha2"},
		},
	}))
	_ = reg.Register(newScriptedAgent("guardian-agent", map[string][]map[string]any{
		"review_pr": {
			{"status": "error"},
			{"status": "success", "decision": "approved"},
		},
	}))
	_ = reg.Register(newScriptedAgent("deployment-agent", map[string][]map[string]any{
		"deploy_to_staging": {{"status": "success"}},
	}))
	eng := inmem.New()
	exec := workflow.New(st, tasksRepo, reg, bus, eng)

	in := workflow.CreateChimeraTask(workflow.CreateChimeraTaskInput{FeatureDescription: "x", TargetURL: "y"})
	taskID, err := tasksRepo.CreateTask(ctx, in)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	wf, err := exec.ExecuteWorkflow(ctx, workflow.ChimeraDefinition(), taskID, 20)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	if wf.CurrentPhase != workflow.PhaseComplete {
		t.Fatalf("expected terminal phase %q, got %q", workflow.PhaseComplete, wf.CurrentPhase)
	}
	if wf.Artifacts["test_path"] != "t.py" {
		t.Fatalf("expected test_path to survive the guardian failure loopback, got %v", wf.Artifacts["test_path"])
	}
}

func TestExecuteWorkflow_RetryLoopPromotesToFailedAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	bus := eventbus.New()
	tasksRepo := tasks.New(st, bus)
	reg := agentregistry.New()
	_ = reg.Register(newScriptedAgent("e2e-tester-agent", map[string][]map[string]any{
		"generate_test": {{"status": "success", "test_path": "tests/e2e/feature_test.go"}},
	}))
	_ = reg.Register(newScriptedAgent("coder-agent", map[string][]map[string]any{
		"implement_feature": {{"status": "success", "pr_id": "pr-1", "commit_sha": "sha1"}},
	}))
	_ = reg.Register(newScriptedAgent("guardian-agent", map[string][]map[string]any{
		"review_pr": {{"status": "rejected", "error": "changes requested"}},
	}))
	eng := inmem.New()
	exec := workflow.New(st, tasksRepo, reg, bus, eng)

	in := workflow.CreateChimeraTask(workflow.CreateChimeraTaskInput{FeatureDescription: "x", TargetURL: "y"})
	taskID, err := tasksRepo.CreateTask(ctx, in)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	wf, err := exec.ExecuteWorkflow(ctx, workflow.ChimeraDefinition(), taskID, 20)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	if wf.CurrentPhase != workflow.PhaseFailed {
		t.Fatalf("expected failed terminal after exhausting retries, got %q", wf.CurrentPhase)
	}
	if wf.RetryCount < wf.MaxRetries {
		t.Fatalf("expected retry_count >= max_retries, got %d/%d", wf.RetryCount, wf.MaxRetries)
	}
}
