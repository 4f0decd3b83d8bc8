// Package agentregistry implements the Agent Registry (C3): maps agent-id
// to agent handle, indexed by agent-type and by capability, with health
// aggregation. Grounded on original_source/.../agents/registry.py
// (_agents/_by_type/_by_capability dicts, register/unregister conflict
// semantics, health_check_all per-agent isolation, get_stats,
// auto_register_adapters), restructured using the sync.RWMutex
// multi-index pattern of runtime/registry/manager.go.
package agentregistry

import (
	"context"
	"sync"

	"github.com/hiveflow/orchestrator/orcherrors"
)

// Capability is one of the closed set of agent capabilities (spec.md
// glossary).
type Capability string

const (
	CapabilityReview      Capability = "review"
	CapabilityPlan        Capability = "plan"
	CapabilityCode        Capability = "code"
	CapabilityDeploy      Capability = "deploy"
	CapabilityTest        Capability = "test"
	CapabilityMonitor     Capability = "monitor"
	CapabilityOrchestrate Capability = "orchestrate"
	CapabilityCustom      Capability = "custom"
)

// HealthStatus is the outcome of an agent's health check.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Health is a single agent's health check result.
type Health struct {
	Status  HealthStatus
	Message string
}

// Agent is the contract every registered agent must satisfy (spec.md
// §4.3). The core treats task data and result data as opaque maps; only
// the workflow definition's action parameters and phase-transition logic
// interpret them.
type Agent interface {
	ID() string
	Type() string
	Capabilities() []Capability
	Execute(ctx context.Context, action string, taskData map[string]any) (map[string]any, error)
	HealthCheck(ctx context.Context) (Health, error)
}

// LegacyAgent is a narrower contract (single Execute method, no
// HealthCheck) that AutoRegisterAdapter wraps transparently into the full
// Agent contract, per original_source's auto_register_adapters.
type LegacyAgent interface {
	ID() string
	Type() string
	Capabilities() []Capability
	Execute(ctx context.Context, action string, taskData map[string]any) (map[string]any, error)
}

// Stats reports registry cardinalities.
type Stats struct {
	TotalAgents int
	ByType      map[string]int
	ByCapability map[Capability]int
}

// Registry maintains the three indices described by spec.md §4.3.
type Registry struct {
	mu           sync.RWMutex
	byID         map[string]Agent
	byType       map[string][]string
	byCapability map[Capability][]string
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		byID:         map[string]Agent{},
		byType:       map[string][]string{},
		byCapability: map[Capability][]string{},
	}
}

// Register adds agent to the registry. Duplicate registration under an
// id already present is rejected with a conflict error.
func (r *Registry) Register(agent Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := agent.ID()
	if _, exists := r.byID[id]; exists {
		return orcherrors.Conflictf("agent %q already registered", id)
	}
	r.byID[id] = agent
	r.byType[agent.Type()] = append(r.byType[agent.Type()], id)
	for _, cap := range agent.Capabilities() {
		r.byCapability[cap] = append(r.byCapability[cap], id)
	}
	return nil
}

// Unregister removes the agent identified by id.
func (r *Registry) Unregister(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.byID[agentID]
	if !ok {
		return orcherrors.NotFoundf("agent %q not found", agentID)
	}
	delete(r.byID, agentID)
	r.byType[agent.Type()] = removeID(r.byType[agent.Type()], agentID)
	for _, cap := range agent.Capabilities() {
		r.byCapability[cap] = removeID(r.byCapability[cap], agentID)
	}
	return nil
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// Get returns the agent registered under id.
func (r *Registry) Get(agentID string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.byID[agentID]
	if !ok {
		return nil, orcherrors.NotFoundf("agent %q not found", agentID)
	}
	return agent, nil
}

// GetByType returns every agent registered under the given agent-type.
func (r *Registry) GetByType(agentType string) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byType[agentType]
	out := make([]Agent, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	return out
}

// GetByCapability returns every agent declaring the given capability.
func (r *Registry) GetByCapability(cap Capability) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byCapability[cap]
	out := make([]Agent, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	return out
}

// HealthCheckAll runs every registered agent's health check, isolating
// individual failures: an agent whose HealthCheck returns an error is
// reported unhealthy, not propagated.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]Health {
	r.mu.RLock()
	agents := make([]Agent, 0, len(r.byID))
	for _, a := range r.byID {
		agents = append(agents, a)
	}
	r.mu.RUnlock()

	out := make(map[string]Health, len(agents))
	for _, agent := range agents {
		out[agent.ID()] = safeHealthCheck(ctx, agent)
	}
	return out
}

func safeHealthCheck(ctx context.Context, agent Agent) (h Health) {
	defer func() {
		if r := recover(); r != nil {
			h = Health{Status: HealthUnhealthy, Message: "health check panicked"}
		}
	}()
	health, err := agent.HealthCheck(ctx)
	if err != nil {
		return Health{Status: HealthUnhealthy, Message: err.Error()}
	}
	return health
}

// StatsOf reports registry cardinalities.
func (r *Registry) StatsOf() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{
		TotalAgents:  len(r.byID),
		ByType:       map[string]int{},
		ByCapability: map[Capability]int{},
	}
	for t, ids := range r.byType {
		s.ByType[t] = len(ids)
	}
	for c, ids := range r.byCapability {
		s.ByCapability[c] = len(ids)
	}
	return s
}

// legacyAdapter wraps a LegacyAgent into the full Agent contract with a
// default healthy HealthCheck, matching original_source's
// auto_register_adapters.
type legacyAdapter struct {
	LegacyAgent
}

func (a legacyAdapter) HealthCheck(ctx context.Context) (Health, error) {
	return Health{Status: HealthHealthy}, nil
}

// AutoRegisterAdapter wraps legacy and registers it.
func (r *Registry) AutoRegisterAdapter(legacy LegacyAgent) error {
	return r.Register(legacyAdapter{LegacyAgent: legacy})
}
