package workflow

import (
	"fmt"

	"github.com/hiveflow/orchestrator/model"
	"github.com/hiveflow/orchestrator/tasks"
)

// Chimera phase names, matching original_source's ChimeraPhase exactly.
const (
	PhaseE2ETestGeneration = "e2e_test_generation"
	PhaseCodeImplementation = "code_implementation"
	PhaseGuardianReview     = "guardian_review"
	PhaseStagingDeployment  = "staging_deployment"
	PhaseE2EValidation      = "e2e_validation"
	PhaseComplete           = "complete"
	PhaseFailed             = "failed"

	WorkflowChimera = "chimera_workflow"
)

// ChimeraDefinition reproduces the reference Chimera phase table of
// spec.md §4.7 exactly (phase/agent/action/on_success/on_failure/timeout),
// grounded on original_source/.../workflows/chimera.py's
// get_state_machine(), plus the params-assembly and artifact-capture logic
// of chimera.py's get_next_action()/transition_to() (SPEC_FULL.md §12
// item 4).
func ChimeraDefinition() *Definition {
	def := &model.WorkflowDefinition{
		Name:            WorkflowChimera,
		InitialPhase:    PhaseE2ETestGeneration,
		SuccessTerminal: PhaseComplete,
		FailureTerminal: PhaseFailed,
		MaxIterations:   10,
		MaxRetries:      3,
		Phases: map[string]model.PhaseDefinition{
			PhaseE2ETestGeneration: {
				Name: PhaseE2ETestGeneration, Agent: "e2e-tester-agent", Action: "generate_test",
				OnSuccess: PhaseCodeImplementation, OnFailure: PhaseFailed, TimeoutSec: 300, Order: 0,
			},
			PhaseCodeImplementation: {
				Name: PhaseCodeImplementation, Agent: "coder-agent", Action: "implement_feature",
				OnSuccess: PhaseGuardianReview, OnFailure: PhaseFailed, TimeoutSec: 1800, Order: 1,
			},
			PhaseGuardianReview: {
				Name: PhaseGuardianReview, Agent: "guardian-agent", Action: "review_pr",
				OnSuccess: PhaseStagingDeployment, OnFailure: PhaseCodeImplementation, TimeoutSec: 600, Order: 2,
			},
			PhaseStagingDeployment: {
				Name: PhaseStagingDeployment, Agent: "deployment-agent", Action: "deploy_to_staging",
				OnSuccess: PhaseE2EValidation, OnFailure: PhaseFailed, TimeoutSec: 900, Order: 3,
			},
			PhaseE2EValidation: {
				Name: PhaseE2EValidation, Agent: "e2e-tester-agent", Action: "execute_test",
				OnSuccess: PhaseComplete, OnFailure: PhaseCodeImplementation, TimeoutSec: 600, Order: 4,
			},
			PhaseComplete: {Name: PhaseComplete, Terminal: true, Order: 5},
			PhaseFailed:   {Name: PhaseFailed, Terminal: true, Order: 5},
		},
	}

	return &Definition{
		WorkflowDefinition: def,
		BuildParams:        chimeraBuildParams,
		CaptureArtifacts:   chimeraCaptureArtifacts,
	}
}

// chimeraBuildParams assembles the action parameters for phaseName from the
// task's payload (feature_description, target_url, staging_url — set once
// at task creation and never mutated) and the workflow's accumulated
// artifacts, matching chimera.py's get_next_action() param blocks exactly.
func chimeraBuildParams(phaseName string, payload, artifacts map[string]any) map[string]any {
	switch phaseName {
	case PhaseE2ETestGeneration:
		return map[string]any{
			"feature": payload["feature_description"],
			"url":     payload["target_url"],
		}
	case PhaseCodeImplementation:
		return map[string]any{
			"test_path": artifacts["test_path"],
			"feature":   payload["feature_description"],
		}
	case PhaseGuardianReview:
		return map[string]any{
			"pr_id": artifacts["code_pr_id"],
		}
	case PhaseStagingDeployment:
		return map[string]any{
			"commit_sha": artifacts["commit_sha"],
		}
	case PhaseE2EValidation:
		url := artifacts["deployment_url"]
		if url == nil {
			url = payload["staging_url"]
		}
		return map[string]any{
			"test_path": artifacts["test_path"],
			"url":       url,
		}
	default:
		return map[string]any{}
	}
}

// chimeraCaptureArtifacts merges phase-specific result fields into artifacts
// on a successful transition *into* nextPhase, matching chimera.py's
// transition_to().
func chimeraCaptureArtifacts(nextPhase string, result map[string]any, artifacts map[string]any) {
	switch nextPhase {
	case PhaseCodeImplementation:
		artifacts["test_path"] = result["test_path"]
	case PhaseGuardianReview:
		artifacts["code_pr_id"] = result["pr_id"]
		artifacts["commit_sha"] = result["commit_sha"]
	case PhaseStagingDeployment:
		artifacts["review_decision"] = result["decision"]
	case PhaseE2EValidation:
		artifacts["deployment_url"] = result["staging_url"]
	case PhaseComplete:
		artifacts["validation_status"] = result["status"]
	case PhaseFailed:
		if errMsg, ok := result["error"]; ok {
			artifacts["error_message"] = errMsg
		} else {
			artifacts["error_message"] = "unknown error"
		}
	}
}

// CreateChimeraTaskInput is the argument set for CreateChimeraTask,
// reproducing create_chimera_task's full original parameter set
// (SPEC_FULL.md §12 item 5): requestor and context_data are preserved as
// opaque fields, not interpreted by the core.
type CreateChimeraTaskInput struct {
	FeatureDescription string
	TargetURL          string
	StagingURL         string
	Priority           int
	Requestor          string
	ContextData        map[string]any
}

// CreateChimeraTask builds the tasks.CreateInput for a new Chimera workflow
// task: title, task_type, payload, and the initial Workflow state at
// ChimeraDefinition's initial phase. Callers pass the result to
// tasks.Repository.CreateTask.
func CreateChimeraTask(in CreateChimeraTaskInput) tasks.CreateInput {
	priority := in.Priority
	if priority == 0 {
		priority = 3
	}
	metadata := map[string]any{}
	if in.Requestor != "" {
		metadata["requestor"] = in.Requestor
	}
	if in.ContextData != nil {
		metadata["context_data"] = in.ContextData
	}
	return tasks.CreateInput{
		Title:    fmt.Sprintf("Chimera: %s", truncate(in.FeatureDescription, 50)),
		TaskType: WorkflowChimera,
		Priority: priority,
		Payload: map[string]any{
			"feature_description": in.FeatureDescription,
			"target_url":          in.TargetURL,
			"staging_url":         in.StagingURL,
		},
		Metadata: metadata,
		Workflow: model.NewWorkflow(ChimeraDefinition().WorkflowDefinition),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
