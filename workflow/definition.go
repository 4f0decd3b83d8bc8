package workflow

import "github.com/hiveflow/orchestrator/model"

// Definition bundles a declarative model.WorkflowDefinition with the two
// pieces of per-workflow logic the generic Executor cannot infer from data
// alone: how to assemble a phase's action parameters, and how to fold a
// phase action's result into the workflow's accumulated artifacts. Keeping
// these as closures lets model.WorkflowDefinition itself stay pure data
// (loadable from YAML, per SPEC_FULL.md's domain-stack wiring) while still
// supporting workflow-specific behavior like Chimera's.
type Definition struct {
	*model.WorkflowDefinition

	// BuildParams assembles the action parameters passed to the agent for
	// phaseName, given the task's immutable payload and the workflow's
	// artifacts accumulated so far.
	BuildParams func(phaseName string, payload, artifacts map[string]any) map[string]any

	// CaptureArtifacts folds a successful phase action's result into
	// artifacts on the transition into nextPhase. It mutates artifacts in
	// place.
	CaptureArtifacts func(nextPhase string, result, artifacts map[string]any)
}
