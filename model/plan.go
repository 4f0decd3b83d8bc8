package model

import "time"

// PlanStatus enumerates the lifecycle states of an ExecutionPlan.
type PlanStatus string

const (
	PlanPending    PlanStatus = "pending"
	PlanInProgress PlanStatus = "in_progress"
	PlanCompleted  PlanStatus = "completed"
	PlanFailed     PlanStatus = "failed"
	PlanCancelled  PlanStatus = "cancelled"
)

// ExecutionPlan is a declarative multi-subtask program.
type ExecutionPlan struct {
	ID               string
	Title            string
	Description      string
	ParentTaskID     *string
	Status           PlanStatus
	TotalSubtasks    int
	CompletedSubtask int
	FailedSubtasks   int
	SubtaskIDs       []string
	// DependencyGraph maps a subtask id to the list of subtask ids it
	// depends on.
	DependencyGraph map[string][]string
	// Subtasks holds the declarative subtask templates supplied by the
	// planner agent before materialization. Materialization
	// (create_planned_subtasks_from_plan) turns each into a Task.
	Subtasks []SubTask
	// SubtaskToTaskID maps a subtask template id to the Task id created
	// for it, populated by materialization — the "stable mapping" spec.md
	// §4.6 requires when translating subtask_id → task_id dependencies.
	SubtaskToTaskID map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsComplete reports whether every subtask has completed.
func (p *ExecutionPlan) IsComplete() bool {
	return p.CompletedSubtask == p.TotalSubtasks
}

// IsFailed reports whether the plan has been marked failed.
func (p *ExecutionPlan) IsFailed() bool { return p.Status == PlanFailed }

// IsInProgress reports whether the plan is actively executing.
func (p *ExecutionPlan) IsInProgress() bool { return p.Status == PlanInProgress }

// ProgressPercentage returns completed+failed as a percentage of total,
// zero when there are no subtasks.
func (p *ExecutionPlan) ProgressPercentage() float64 {
	if p.TotalSubtasks == 0 {
		return 0
	}
	done := p.CompletedSubtask + p.FailedSubtasks
	return 100 * float64(done) / float64(p.TotalSubtasks)
}

// Dependencies returns the prerequisite subtask ids for subtaskID.
func (p *ExecutionPlan) Dependencies(subtaskID string) []string {
	return p.DependencyGraph[subtaskID]
}

// AddDependency records that subtaskID depends on dependsOn.
func (p *ExecutionPlan) AddDependency(subtaskID, dependsOn string) {
	if p.DependencyGraph == nil {
		p.DependencyGraph = map[string][]string{}
	}
	p.DependencyGraph[subtaskID] = append(p.DependencyGraph[subtaskID], dependsOn)
}

// SubTask is a lightweight plan node; it becomes a Task when the plan is
// materialized.
type SubTask struct {
	ID                 string
	Title              string
	Description        string
	TaskType           string
	Priority           int
	Payload            map[string]any
	Dependencies       []string
	EstimatedDuration  *time.Duration
}

// HasDependencies reports whether the subtask declares prerequisites.
func (s *SubTask) HasDependencies() bool { return len(s.Dependencies) > 0 }

// DependencyGraphAcyclic reports whether graph (subtask id -> prerequisite
// ids) contains no cycle, using DFS with white/gray/black coloring in the
// style of blueman82-conductor's HasCyclicDependencies.
func DependencyGraphAcyclic(graph map[string][]string) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(graph))

	var visit func(string) bool
	visit = func(node string) bool {
		switch color[node] {
		case gray:
			return false // back edge: cycle
		case black:
			return true
		}
		color[node] = gray
		for _, dep := range graph[node] {
			if !visit(dep) {
				return false
			}
		}
		color[node] = black
		return true
	}

	for node := range graph {
		if color[node] == white {
			if !visit(node) {
				return false
			}
		}
	}
	return true
}
