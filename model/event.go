package model

import "time"

// EventType enumerates the lifecycle notifications the core emits
// (spec.md §3).
type EventType string

const (
	EventTaskCreated        EventType = "task.created"
	EventTaskStatusChanged  EventType = "task.status_changed"
	EventTaskAssigned       EventType = "task.assigned"
	EventRunStarted         EventType = "run.started"
	EventRunCompleted       EventType = "run.completed"
	EventRunFailed          EventType = "run.failed"
	EventWorkerRegistered   EventType = "worker.registered"
	EventWorkerHeartbeat    EventType = "worker.heartbeat"
	EventWorkerOffline      EventType = "worker.offline"
	EventPlanStarted        EventType = "plan.started"
	EventPlanSubtaskReady   EventType = "plan.subtask_ready"
	EventPlanCompleted      EventType = "plan.completed"
	EventPlanFailed         EventType = "plan.failed"
	EventWorkflowEntered    EventType = "workflow.phase_entered"
	EventWorkflowCompletedP EventType = "workflow.phase_completed"
	EventWorkflowCompleted  EventType = "workflow.completed"
	EventWorkflowFailed     EventType = "workflow.failed"
	EventReviewRequested    EventType = "review.requested"
	EventReviewCompleted    EventType = "review.completed"
	EventDeploymentRequest  EventType = "deployment.requested"
	EventDeploymentComplete EventType = "deployment.completed"
	EventDeploymentFailed   EventType = "deployment.failed"
	EventPlanRequested      EventType = "plan.requested"
	EventPlanGenerated      EventType = "plan.generated"
	EventAgentError         EventType = "agent.error"
)

// Event is a lifecycle notification published on the Event Bus.
type Event struct {
	Type          EventType
	CorrelationID string
	SourceAgent   string
	Payload       map[string]any
	Timestamp     time.Time
}
