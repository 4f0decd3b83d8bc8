package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hiveflow/orchestrator/model"
)

// yamlPhase mirrors model.PhaseDefinition's fields in the on-disk YAML
// shape (definitions/*.yaml), matching blueman82-conductor's convention of
// loading declarative workflow/task plans from YAML instead of Go literals.
type yamlPhase struct {
	Agent      string `yaml:"agent"`
	Action     string `yaml:"action"`
	OnSuccess  string `yaml:"on_success"`
	OnFailure  string `yaml:"on_failure"`
	TimeoutSec int    `yaml:"timeout_sec"`
	Terminal   bool   `yaml:"terminal"`
	Order      int    `yaml:"order"`
}

type yamlDefinition struct {
	Name            string               `yaml:"name"`
	InitialPhase    string               `yaml:"initial_phase"`
	SuccessTerminal string               `yaml:"success_terminal"`
	FailureTerminal string               `yaml:"failure_terminal"`
	MaxIterations   int                  `yaml:"max_iterations"`
	MaxRetries      int                  `yaml:"max_retries"`
	Phases          map[string]yamlPhase `yaml:"phases"`
}

// LoadWorkflowDefinition reads a phase table from a YAML file at path. The
// resulting model.WorkflowDefinition carries no BuildParams/CaptureArtifacts
// logic; callers wrap it in a Definition themselves, supplying closures
// appropriate to the loaded workflow's phases.
func LoadWorkflowDefinition(path string) (*model.WorkflowDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load workflow definition %s: %w", path, err)
	}
	var doc yamlDefinition
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse workflow definition %s: %w", path, err)
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("workflow definition %s: name is required", path)
	}

	phases := make(map[string]model.PhaseDefinition, len(doc.Phases))
	for name, p := range doc.Phases {
		phases[name] = model.PhaseDefinition{
			Name:       name,
			Agent:      p.Agent,
			Action:     p.Action,
			OnSuccess:  p.OnSuccess,
			OnFailure:  p.OnFailure,
			TimeoutSec: p.TimeoutSec,
			Terminal:   p.Terminal,
			Order:      p.Order,
		}
	}

	return &model.WorkflowDefinition{
		Name:            doc.Name,
		Phases:          phases,
		InitialPhase:    doc.InitialPhase,
		SuccessTerminal: doc.SuccessTerminal,
		FailureTerminal: doc.FailureTerminal,
		MaxIterations:   doc.MaxIterations,
		MaxRetries:      doc.MaxRetries,
	}, nil
}
