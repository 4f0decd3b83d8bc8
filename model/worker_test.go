package model

import (
	"testing"
	"time"
)

func TestWorkerAvailable(t *testing.T) {
	now := time.Now()
	w := &Worker{Status: WorkerActive, LastHeartbeat: now}
	if !w.Available(now, time.Minute) {
		t.Error("active worker with a fresh heartbeat and no current task should be available")
	}

	stale := &Worker{Status: WorkerActive, LastHeartbeat: now.Add(-2 * time.Minute)}
	if stale.Available(now, time.Minute) {
		t.Error("worker with a stale heartbeat must not be available")
	}

	taskID := "t1"
	busy := &Worker{Status: WorkerActive, LastHeartbeat: now, CurrentTaskID: &taskID}
	if busy.Available(now, time.Minute) {
		t.Error("worker already holding a task must not be available")
	}

	offline := &Worker{Status: WorkerOffline, LastHeartbeat: now}
	if offline.Available(now, time.Minute) {
		t.Error("offline worker must not be available")
	}
}

func TestWorkerHasCapability(t *testing.T) {
	w := &Worker{Capabilities: []string{"code_generation", "review"}}
	if !w.HasCapability("review") {
		t.Error("expected HasCapability(review) to be true")
	}
	if w.HasCapability("deploy") {
		t.Error("expected HasCapability(deploy) to be false")
	}
}

func TestWorkerAssignAndCompleteTask(t *testing.T) {
	w := &Worker{Status: WorkerIdle}
	w.AssignTask("t1")
	if w.CurrentTaskID == nil || *w.CurrentTaskID != "t1" {
		t.Fatalf("expected CurrentTaskID to be t1, got %v", w.CurrentTaskID)
	}
	if w.Status != WorkerActive {
		t.Errorf("expected status active after assignment, got %s", w.Status)
	}

	w.CompleteTask()
	if w.CurrentTaskID != nil {
		t.Error("expected CurrentTaskID cleared after CompleteTask")
	}
	if w.Status != WorkerIdle {
		t.Errorf("expected status idle after CompleteTask, got %s", w.Status)
	}
}

func TestWorkerMarkOfflineClearsTask(t *testing.T) {
	taskID := "t1"
	w := &Worker{Status: WorkerActive, CurrentTaskID: &taskID}
	w.MarkOffline()
	if w.Status != WorkerOffline {
		t.Errorf("expected offline status, got %s", w.Status)
	}
	if w.CurrentTaskID != nil {
		t.Error("expected CurrentTaskID cleared on MarkOffline")
	}
}
