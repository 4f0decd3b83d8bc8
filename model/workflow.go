package model

// PhaseDefinition describes one phase of a Workflow definition (spec.md
// §4.7).
type PhaseDefinition struct {
	Name       string
	Agent      string
	Action     string
	OnSuccess  string
	OnFailure  string
	TimeoutSec int
	Terminal   bool
	// Order is this phase's position in the workflow's declared sequence.
	// The executor uses it to decide whether an on_failure transition
	// targets the same-or-earlier phase (a retry loop) or a distinct
	// later/terminal phase.
	Order int
}

// WorkflowDefinition is the declarative shape of a phase-based state
// machine: its full phase table, initial phase, and the two distinguished
// terminal phase names.
type WorkflowDefinition struct {
	Name            string
	Phases          map[string]PhaseDefinition
	InitialPhase    string
	SuccessTerminal string
	FailureTerminal string
	MaxIterations   int
	MaxRetries      int
}

// Phase looks up a phase by name.
func (d *WorkflowDefinition) Phase(name string) (PhaseDefinition, bool) {
	p, ok := d.Phases[name]
	return p, ok
}

// Workflow is a phase state machine instance embedded in a Task.
type Workflow struct {
	DefinitionName string
	CurrentPhase   string
	RetryCount     int
	MaxRetries     int
	ErrorMessage   string
	// Artifacts holds phase-specific result fields accumulated across
	// phase transitions, keyed by field name (e.g. "test_path",
	// "code_pr_id", "commit_sha", "review_decision", "deployment_url",
	// "validation_status").
	Artifacts map[string]any
}

// NewWorkflow constructs a fresh workflow instance at def's initial phase.
func NewWorkflow(def *WorkflowDefinition) *Workflow {
	return &Workflow{
		DefinitionName: def.Name,
		CurrentPhase:   def.InitialPhase,
		MaxRetries:     def.MaxRetries,
		Artifacts:      map[string]any{},
	}
}

// IsTerminal reports whether the workflow sits at one of def's terminal
// phases.
func (w *Workflow) IsTerminal(def *WorkflowDefinition) bool {
	return w.CurrentPhase == def.SuccessTerminal || w.CurrentPhase == def.FailureTerminal
}

// CanRetry reports whether the workflow has retry budget remaining.
func (w *Workflow) CanRetry() bool { return w.RetryCount < w.MaxRetries }
