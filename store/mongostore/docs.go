package mongostore

import (
	"time"

	"github.com/hiveflow/orchestrator/model"
)

// bsonTask mirrors the tasks(...) column list of SPEC_FULL.md §6.
type bsonTask struct {
	ID                 string         `bson:"_id"`
	Title              string         `bson:"title"`
	Description        string         `bson:"description"`
	TaskType           string         `bson:"task_type"`
	Priority           int            `bson:"priority"`
	Status             string         `bson:"status"`
	CurrentPhase       string         `bson:"current_phase"`
	Workflow           *bsonWorkflow  `bson:"workflow,omitempty"`
	Payload            map[string]any `bson:"payload,omitempty"`
	AssignedWorker     *string        `bson:"assigned_worker,omitempty"`
	MaxRetries         int            `bson:"max_retries"`
	ParentTaskID       *string        `bson:"parent_task_id,omitempty"`
	PlanID             *string        `bson:"plan_id,omitempty"`
	Dependencies       []string       `bson:"dependencies,omitempty"`
	Tags               []string       `bson:"tags,omitempty"`
	CreatedAt          time.Time      `bson:"created_at"`
	UpdatedAt          time.Time      `bson:"updated_at"`
	DueDate            *time.Time     `bson:"due_date,omitempty"`
	ErrorMessage       string         `bson:"error_message,omitempty"`
	Metadata           map[string]any `bson:"metadata,omitempty"`
	Summary            map[string]any `bson:"summary,omitempty"`
	GeneratedArtifacts map[string]any `bson:"generated_artifacts,omitempty"`
	RelatedDocumentIDs []string       `bson:"related_document_ids,omitempty"`
	KnowledgeFragments map[string]any `bson:"knowledge_fragments,omitempty"`
	Version            int            `bson:"version"`
}

type bsonWorkflow struct {
	DefinitionName string         `bson:"definition_name"`
	CurrentPhase   string         `bson:"current_phase"`
	RetryCount     int            `bson:"retry_count"`
	MaxRetries     int            `bson:"max_retries"`
	ErrorMessage   string         `bson:"error_message,omitempty"`
	Artifacts      map[string]any `bson:"artifacts,omitempty"`
}

func taskDoc(t *model.Task) bsonTask {
	var wf *bsonWorkflow
	if t.Workflow != nil {
		wf = &bsonWorkflow{
			DefinitionName: t.Workflow.DefinitionName,
			CurrentPhase:   t.Workflow.CurrentPhase,
			RetryCount:     t.Workflow.RetryCount,
			MaxRetries:     t.Workflow.MaxRetries,
			ErrorMessage:   t.Workflow.ErrorMessage,
			Artifacts:      t.Workflow.Artifacts,
		}
	}
	return bsonTask{
		ID: t.ID, Title: t.Title, Description: t.Description, TaskType: t.TaskType,
		Priority: t.Priority, Status: string(t.Status), CurrentPhase: t.CurrentPhase,
		Workflow: wf, Payload: t.Payload, AssignedWorker: t.AssignedWorker,
		MaxRetries: t.MaxRetries, ParentTaskID: t.ParentTaskID, PlanID: t.PlanID,
		Dependencies: t.Dependencies, Tags: t.Tags, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
		DueDate: t.DueDate, ErrorMessage: t.ErrorMessage, Metadata: t.Metadata,
		Summary: t.Summary, GeneratedArtifacts: t.GeneratedArtifacts,
		RelatedDocumentIDs: t.RelatedDocumentIDs, KnowledgeFragments: t.KnowledgeFragments,
		Version: t.Version,
	}
}

func (d *bsonTask) toModel() *model.Task {
	var wf *model.Workflow
	if d.Workflow != nil {
		wf = &model.Workflow{
			DefinitionName: d.Workflow.DefinitionName,
			CurrentPhase:   d.Workflow.CurrentPhase,
			RetryCount:     d.Workflow.RetryCount,
			MaxRetries:     d.Workflow.MaxRetries,
			ErrorMessage:   d.Workflow.ErrorMessage,
			Artifacts:      d.Workflow.Artifacts,
		}
	}
	return &model.Task{
		ID: d.ID, Title: d.Title, Description: d.Description, TaskType: d.TaskType,
		Priority: d.Priority, Status: model.TaskStatus(d.Status), CurrentPhase: d.CurrentPhase,
		Workflow: wf, Payload: d.Payload, AssignedWorker: d.AssignedWorker,
		MaxRetries: d.MaxRetries, ParentTaskID: d.ParentTaskID, PlanID: d.PlanID,
		Dependencies: d.Dependencies, Tags: d.Tags, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
		DueDate: d.DueDate, ErrorMessage: d.ErrorMessage, Metadata: d.Metadata,
		Summary: d.Summary, GeneratedArtifacts: d.GeneratedArtifacts,
		RelatedDocumentIDs: d.RelatedDocumentIDs, KnowledgeFragments: d.KnowledgeFragments,
		Version: d.Version,
	}
}

type bsonRun struct {
	ID           string         `bson:"_id"`
	TaskID       string         `bson:"task_id"`
	WorkerID     string         `bson:"worker_id"`
	RunNumber    int            `bson:"run_number"`
	Status       string         `bson:"status"`
	Phase        string         `bson:"phase,omitempty"`
	StartedAt    time.Time      `bson:"started_at"`
	CompletedAt  *time.Time     `bson:"completed_at,omitempty"`
	ResultData   map[string]any `bson:"result_data,omitempty"`
	ErrorMessage string         `bson:"error_message,omitempty"`
	OutputLog    string         `bson:"output_log,omitempty"`
	Transcript   string         `bson:"transcript,omitempty"`
}

func runDoc(r *model.Run) bsonRun {
	return bsonRun{
		ID: r.ID, TaskID: r.TaskID, WorkerID: r.WorkerID, RunNumber: r.RunNumber,
		Status: string(r.Status), Phase: r.Phase, StartedAt: r.StartedAt, CompletedAt: r.CompletedAt,
		ResultData: r.ResultData, ErrorMessage: r.ErrorMessage, OutputLog: r.OutputLog, Transcript: r.Transcript,
	}
}

func (d *bsonRun) toModel() *model.Run {
	return &model.Run{
		ID: d.ID, TaskID: d.TaskID, WorkerID: d.WorkerID, RunNumber: d.RunNumber,
		Status: model.RunStatus(d.Status), Phase: d.Phase, StartedAt: d.StartedAt, CompletedAt: d.CompletedAt,
		ResultData: d.ResultData, ErrorMessage: d.ErrorMessage, OutputLog: d.OutputLog, Transcript: d.Transcript,
	}
}

type bsonWorker struct {
	ID            string         `bson:"_id"`
	Role          string         `bson:"role"`
	Status        string         `bson:"status"`
	LastHeartbeat time.Time      `bson:"last_heartbeat"`
	Capabilities  []string       `bson:"capabilities,omitempty"`
	CurrentTaskID *string        `bson:"current_task_id,omitempty"`
	RegisteredAt  time.Time      `bson:"registered_at"`
	Metadata      map[string]any `bson:"metadata,omitempty"`
}

func workerDoc(w *model.Worker) bsonWorker {
	return bsonWorker{
		ID: w.ID, Role: w.Role, Status: string(w.Status), LastHeartbeat: w.LastHeartbeat,
		Capabilities: w.Capabilities, CurrentTaskID: w.CurrentTaskID, RegisteredAt: w.RegisteredAt,
		Metadata: w.Metadata,
	}
}

func (d *bsonWorker) toModel() *model.Worker {
	return &model.Worker{
		ID: d.ID, Role: d.Role, Status: model.WorkerStatus(d.Status), LastHeartbeat: d.LastHeartbeat,
		Capabilities: d.Capabilities, CurrentTaskID: d.CurrentTaskID, RegisteredAt: d.RegisteredAt,
		Metadata: d.Metadata,
	}
}

type bsonSubtask struct {
	ID          string         `bson:"id"`
	Title       string         `bson:"title"`
	Description string         `bson:"description"`
	TaskType    string         `bson:"task_type"`
	Priority    int            `bson:"priority"`
	Payload     map[string]any `bson:"payload,omitempty"`
	Dependencies []string      `bson:"dependencies,omitempty"`
}

type bsonPlan struct {
	ID               string              `bson:"_id"`
	Title            string              `bson:"title"`
	Description      string              `bson:"description"`
	ParentTaskID     *string             `bson:"parent_task_id,omitempty"`
	Status           string              `bson:"status"`
	TotalSubtasks    int                 `bson:"total_subtasks"`
	CompletedSubtask int                 `bson:"completed_subtasks"`
	FailedSubtasks   int                 `bson:"failed_subtasks"`
	SubtaskIDs       []string            `bson:"subtask_ids,omitempty"`
	DependencyGraph  map[string][]string `bson:"dependency_graph,omitempty"`
	Subtasks         []bsonSubtask       `bson:"subtasks,omitempty"`
	SubtaskToTaskID  map[string]string   `bson:"subtask_to_task_id,omitempty"`
	CreatedAt        time.Time           `bson:"created_at"`
	UpdatedAt        time.Time           `bson:"updated_at"`
}

func planDoc(p *model.ExecutionPlan) bsonPlan {
	subtasks := make([]bsonSubtask, len(p.Subtasks))
	for i, st := range p.Subtasks {
		subtasks[i] = bsonSubtask{
			ID: st.ID, Title: st.Title, Description: st.Description, TaskType: st.TaskType,
			Priority: st.Priority, Payload: st.Payload, Dependencies: st.Dependencies,
		}
	}
	return bsonPlan{
		ID: p.ID, Title: p.Title, Description: p.Description, ParentTaskID: p.ParentTaskID,
		Status: string(p.Status), TotalSubtasks: p.TotalSubtasks, CompletedSubtask: p.CompletedSubtask,
		FailedSubtasks: p.FailedSubtasks, SubtaskIDs: p.SubtaskIDs, DependencyGraph: p.DependencyGraph,
		Subtasks: subtasks, SubtaskToTaskID: p.SubtaskToTaskID,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func (d *bsonPlan) toModel() *model.ExecutionPlan {
	subtasks := make([]model.SubTask, len(d.Subtasks))
	for i, st := range d.Subtasks {
		subtasks[i] = model.SubTask{
			ID: st.ID, Title: st.Title, Description: st.Description, TaskType: st.TaskType,
			Priority: st.Priority, Payload: st.Payload, Dependencies: st.Dependencies,
		}
	}
	return &model.ExecutionPlan{
		ID: d.ID, Title: d.Title, Description: d.Description, ParentTaskID: d.ParentTaskID,
		Status: model.PlanStatus(d.Status), TotalSubtasks: d.TotalSubtasks, CompletedSubtask: d.CompletedSubtask,
		FailedSubtasks: d.FailedSubtasks, SubtaskIDs: d.SubtaskIDs, DependencyGraph: d.DependencyGraph,
		Subtasks: subtasks, SubtaskToTaskID: d.SubtaskToTaskID,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}
