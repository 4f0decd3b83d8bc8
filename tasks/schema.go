package tasks

import (
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hiveflow/orchestrator/orcherrors"
)

// SchemaRegistry validates task and subtask payloads against a JSON
// Schema registered per task_type, surfacing the validation_error kind of
// spec.md §7 on mismatch.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// NewSchemaRegistry constructs an empty registry; unregistered task types
// are not validated.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: map[string]*jsonschema.Schema{}}
}

// Register compiles schemaJSON and associates it with taskType.
func (s *SchemaRegistry) Register(taskType string, schemaJSON []byte) error {
	var doc any
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return orcherrors.Wrap(orcherrors.ValidationError, "invalid schema json", err)
	}
	compiler := jsonschema.NewCompiler()
	resource := "mem://" + taskType + ".json"
	if err := compiler.AddResource(resource, doc); err != nil {
		return orcherrors.Wrap(orcherrors.ValidationError, "add schema resource", err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return orcherrors.Wrap(orcherrors.ValidationError, "compile schema", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[taskType] = schema
	return nil
}

// Validate checks payload against the schema registered for taskType, if
// any. Unregistered task types are not validated.
func (s *SchemaRegistry) Validate(taskType string, payload map[string]any) error {
	s.mu.RLock()
	schema, ok := s.schemas[taskType]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return schema.Validate(payload)
}
