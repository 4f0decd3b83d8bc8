package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hiveflow/orchestrator/model"
	"github.com/hiveflow/orchestrator/orcherrors"
	"github.com/hiveflow/orchestrator/store"
)

func sampleTask(id string) *model.Task {
	return &model.Task{
		ID:        id,
		Title:     "do the thing",
		TaskType:  "generic",
		Status:    model.TaskQueued,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestUpsertAndGetTaskRoundTrips(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := store.WithTx(ctx, s, func(tx store.Tx) error {
		return tx.UpsertTask(ctx, sampleTask("t1"))
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got *model.Task
	err = s.View(ctx, func(tx store.Tx) error {
		var e error
		got, e = tx.GetTask(ctx, "t1")
		return e
	})
	if err != nil {
		t.Fatalf("unexpected error reading back task: %v", err)
	}
	if got.ID != "t1" || got.Title != "do the thing" {
		t.Errorf("got %+v, want round-tripped task", got)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.View(ctx, func(tx store.Tx) error {
		_, e := tx.GetTask(ctx, "missing")
		return e
	})
	if !orcherrors.Is(err, orcherrors.NotFound) {
		t.Errorf("expected a not_found error, got %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithTx(ctx, s, func(tx store.Tx) error {
		if e := tx.UpsertTask(ctx, sampleTask("t1")); e != nil {
			return e
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected WithTx to propagate the original error, got %v", err)
	}

	err = s.View(ctx, func(tx store.Tx) error {
		_, e := tx.GetTask(ctx, "t1")
		return e
	})
	if !orcherrors.Is(err, orcherrors.NotFound) {
		t.Error("expected the upsert to be rolled back after the transaction failed")
	}
}

func TestRollbackRestoresPriorValue(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := store.WithTx(ctx, s, func(tx store.Tx) error {
		return tx.UpsertTask(ctx, sampleTask("t1"))
	}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	boom := errors.New("boom")
	_ = store.WithTx(ctx, s, func(tx store.Tx) error {
		task := sampleTask("t1")
		task.Title = "mutated"
		if e := tx.UpsertTask(ctx, task); e != nil {
			return e
		}
		return boom
	})

	var got *model.Task
	err := s.View(ctx, func(tx store.Tx) error {
		var e error
		got, e = tx.GetTask(ctx, "t1")
		return e
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title != "do the thing" {
		t.Errorf("expected rollback to restore the original title, got %q", got.Title)
	}
}

func TestListTasksByStatus(t *testing.T) {
	s := New()
	ctx := context.Background()

	queued := sampleTask("t1")
	inProgress := sampleTask("t2")
	inProgress.Status = model.TaskInProgress

	_ = store.WithTx(ctx, s, func(tx store.Tx) error {
		if e := tx.UpsertTask(ctx, queued); e != nil {
			return e
		}
		return tx.UpsertTask(ctx, inProgress)
	})

	var got []*model.Task
	err := s.View(ctx, func(tx store.Tx) error {
		var e error
		got, e = tx.ListTasksByStatus(ctx, model.TaskQueued)
		return e
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "t1" {
		t.Errorf("got %v, want exactly task t1", got)
	}
}

func TestDeleteTaskCascadesRuns(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := store.WithTx(ctx, s, func(tx store.Tx) error {
		if e := tx.UpsertTask(ctx, sampleTask("t1")); e != nil {
			return e
		}
		return tx.UpsertRun(ctx, &model.Run{ID: "r1", TaskID: "t1", Status: model.RunRunning})
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	err = store.WithTx(ctx, s, func(tx store.Tx) error {
		return tx.DeleteTask(ctx, "t1")
	})
	if err != nil {
		t.Fatalf("unexpected error deleting task: %v", err)
	}

	err = s.View(ctx, func(tx store.Tx) error {
		runs, e := tx.ListRunsByTask(ctx, "t1")
		if e != nil {
			return e
		}
		if len(runs) != 0 {
			t.Errorf("expected runs to be cascade-deleted with their task, found %d", len(runs))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCommitAfterCommitIsAnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("unexpected error on first commit: %v", err)
	}
	if err := tx.Commit(ctx); err == nil {
		t.Error("expected committing an already-finalized transaction to error")
	}
}
