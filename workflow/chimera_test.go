package workflow_test

import (
	"testing"

	"github.com/hiveflow/orchestrator/workflow"
)

func TestCreateChimeraTask_PreservesRequestorAndContextData(t *testing.T) {
	in := workflow.CreateChimeraTaskInput{
		FeatureDescription: "add login button",
		TargetURL:          "https://example.com",
		StagingURL:         "https://staging.example.com",
		Priority:           7,
		Requestor:          "alice",
		ContextData:        map[string]any{"ticket": "JIRA-123"},
	}
	out := workflow.CreateChimeraTask(in)

	if out.TaskType != workflow.WorkflowChimera {
		t.Fatalf("expected task_type %q, got %q", workflow.WorkflowChimera, out.TaskType)
	}
	if out.Priority != 7 {
		t.Fatalf("expected priority 7, got %d", out.Priority)
	}
	if out.Metadata["requestor"] != "alice" {
		t.Fatalf("expected requestor preserved, got %v", out.Metadata["requestor"])
	}
	ctxData, ok := out.Metadata["context_data"].(map[string]any)
	if !ok || ctxData["ticket"] != "JIRA-123" {
		t.Fatalf("expected context_data preserved, got %v", out.Metadata["context_data"])
	}
	if out.Workflow == nil || out.Workflow.CurrentPhase != workflow.PhaseE2ETestGeneration {
		t.Fatalf("expected workflow initialized at initial phase, got %+v", out.Workflow)
	}
}

func TestCreateChimeraTask_DefaultsPriority(t *testing.T) {
	out := workflow.CreateChimeraTask(workflow.CreateChimeraTaskInput{FeatureDescription: "x", TargetURL: "y"})
	if out.Priority != 3 {
		t.Fatalf("expected default priority 3, got %d", out.Priority)
	}
	if out.Metadata["requestor"] != nil {
		t.Fatalf("expected no requestor when unset, got %v", out.Metadata["requestor"])
	}
}

func TestChimeraDefinition_PhaseTable(t *testing.T) {
	def := workflow.ChimeraDefinition()
	phase, ok := def.Phase(workflow.PhaseGuardianReview)
	if !ok {
		t.Fatalf("expected guardian_review phase present")
	}
	if phase.OnFailure != workflow.PhaseCodeImplementation {
		t.Fatalf("expected guardian_review on_failure to loop back to code_implementation, got %q", phase.OnFailure)
	}
	if phase.OnSuccess != workflow.PhaseStagingDeployment {
		t.Fatalf("expected guardian_review on_success to be staging_deployment, got %q", phase.OnSuccess)
	}

	complete, ok := def.Phase(workflow.PhaseComplete)
	if !ok || !complete.Terminal {
		t.Fatalf("expected complete to be a terminal phase")
	}
}
