package model

import "testing"

func sampleDefinition() *WorkflowDefinition {
	return &WorkflowDefinition{
		Name: "sample",
		Phases: map[string]PhaseDefinition{
			"start": {Name: "start", Order: 0, OnSuccess: "done", OnFailure: "failed"},
			"done":  {Name: "done", Order: 1, Terminal: true},
		},
		InitialPhase:    "start",
		SuccessTerminal: "done",
		FailureTerminal: "failed",
		MaxRetries:      3,
	}
}

func TestNewWorkflowStartsAtInitialPhase(t *testing.T) {
	def := sampleDefinition()
	wf := NewWorkflow(def)
	if wf.CurrentPhase != "start" {
		t.Errorf("expected initial phase start, got %s", wf.CurrentPhase)
	}
	if wf.IsTerminal(def) {
		t.Error("freshly constructed workflow should not be terminal")
	}
	if wf.Artifacts == nil {
		t.Error("expected Artifacts to be initialized, not nil")
	}
}

func TestWorkflowIsTerminal(t *testing.T) {
	def := sampleDefinition()
	wf := NewWorkflow(def)
	wf.CurrentPhase = def.SuccessTerminal
	if !wf.IsTerminal(def) {
		t.Error("expected success terminal phase to be terminal")
	}
	wf.CurrentPhase = def.FailureTerminal
	if !wf.IsTerminal(def) {
		t.Error("expected failure terminal phase to be terminal")
	}
}

func TestWorkflowCanRetry(t *testing.T) {
	wf := &Workflow{MaxRetries: 2, RetryCount: 1}
	if !wf.CanRetry() {
		t.Error("expected retry budget remaining at RetryCount < MaxRetries")
	}
	wf.RetryCount = 2
	if wf.CanRetry() {
		t.Error("expected no retry budget once RetryCount reaches MaxRetries")
	}
}

func TestPhaseLookup(t *testing.T) {
	def := sampleDefinition()
	p, ok := def.Phase("start")
	if !ok || p.OnSuccess != "done" {
		t.Fatalf("expected to find phase start with OnSuccess=done, got %+v ok=%v", p, ok)
	}
	if _, ok := def.Phase("missing"); ok {
		t.Error("expected lookup of an undefined phase to report not-found")
	}
}
