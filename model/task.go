// Package model defines the durable entities of the orchestration core —
// Task, Run, Worker, ExecutionPlan, SubTask, Workflow, and Event — together
// with the pure state-machine validation each entity enforces. Nothing in
// this package performs I/O; persistence lives in package store.
package model

import (
	"time"
)

// TaskStatus enumerates the lifecycle states of a Task.
type TaskStatus string

const (
	TaskQueued        TaskStatus = "queued"
	TaskAssigned      TaskStatus = "assigned"
	TaskInProgress    TaskStatus = "in_progress"
	TaskReviewPending TaskStatus = "review_pending"
	TaskApproved      TaskStatus = "approved"
	TaskRejected      TaskStatus = "rejected"
	TaskReworkNeeded  TaskStatus = "rework_needed"
	TaskEscalated     TaskStatus = "escalated"
	TaskCompleted     TaskStatus = "completed"
	TaskFailed        TaskStatus = "failed"
	TaskCancelled     TaskStatus = "cancelled"
)

// Terminal reports whether s is a sticky terminal status.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// taskTransitions encodes the task state machine of SPEC_FULL.md §4.4. The
// map lists, for each source status, the set of statuses it may move to.
var taskTransitions = map[TaskStatus]map[TaskStatus]bool{
	TaskQueued:        set(TaskAssigned, TaskCancelled),
	TaskAssigned:      set(TaskInProgress, TaskCancelled),
	TaskInProgress:    set(TaskReviewPending, TaskCompleted, TaskFailed, TaskCancelled),
	TaskReviewPending: set(TaskApproved, TaskRejected, TaskReworkNeeded, TaskEscalated, TaskCancelled),
	TaskReworkNeeded:  set(TaskAssigned, TaskCancelled),
	TaskRejected:      set(TaskFailed, TaskCancelled),
	TaskApproved:      set(TaskCompleted, TaskCancelled),
	TaskEscalated:     set(TaskApproved, TaskRejected, TaskCancelled),
}

func set(ss ...TaskStatus) map[TaskStatus]bool {
	m := make(map[TaskStatus]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}

// CanTransition reports whether moving from `from` to `to` is a legal edge
// in the task state machine. A no-op transition (from == to) is always
// legal so that update_task_status is idempotent, per spec.md's
// round-trip properties, including on a terminal status; every other
// transition out of a terminal status is illegal.
func CanTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	edges, ok := taskTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Task is a durable unit of work.
type Task struct {
	ID                 string
	Title              string
	Description        string
	TaskType           string
	Priority           int
	Status             TaskStatus
	CurrentPhase       string
	Workflow           *Workflow
	Payload            map[string]any
	AssignedWorker     *string
	MaxRetries         int
	ParentTaskID       *string
	PlanID             *string
	Dependencies       []string
	Tags               []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DueDate            *time.Time
	ErrorMessage       string
	Metadata           map[string]any
	Summary            map[string]any
	GeneratedArtifacts map[string]any
	RelatedDocumentIDs []string
	KnowledgeFragments map[string]any

	// Version supports optimistic concurrency control on status
	// transitions (spec.md §4.4 "Concurrency").
	Version int
}

// Ready reports whether the task, if queued, is ready for dispatch: either
// it has no dependencies, or every dependency id is in resolved (mapped to
// true meaning "completed").
func (t *Task) Ready(resolved map[string]bool) bool {
	if len(t.Dependencies) == 0 {
		return true
	}
	for _, dep := range t.Dependencies {
		if !resolved[dep] {
			return false
		}
	}
	return true
}
