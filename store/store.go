// Package store defines the durable persistence contract (C1): a
// transactional interface over the tasks, runs, workers and execution-plan
// tables, plus the dual-write wrapper in this package and reference
// (in-memory), Mongo-backed, and Redis-cache implementations in its
// subpackages.
package store

import (
	"context"

	"github.com/hiveflow/orchestrator/model"
)

// Store opens transactions over the durable tables.
type Store interface {
	// Begin starts a new transaction. All multi-row state changes MUST be
	// issued through the returned Tx and finalized with Commit or
	// Rollback (spec.md §4.1).
	Begin(ctx context.Context) (Tx, error)

	// View runs fn against a read-only snapshot without starting a
	// write transaction. Reads outside a transaction may observe any
	// committed snapshot (spec.md §4.1).
	View(ctx context.Context, fn func(Tx) error) error
}

// Tx is a transaction handle exposing typed access to every table.
// Implementations MUST make all writes issued through a Tx visible
// atomically at Commit, and invisible entirely after Rollback.
type Tx interface {
	// Tasks
	UpsertTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ListTasksByStatus(ctx context.Context, status model.TaskStatus) ([]*model.Task, error)
	ListTasksByPlan(ctx context.Context, planID string) ([]*model.Task, error)
	ListAllTasks(ctx context.Context) ([]*model.Task, error)

	// Runs
	UpsertRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRunsByTask(ctx context.Context, taskID string) ([]*model.Run, error)
	DeleteRunsByTask(ctx context.Context, taskID string) error

	// Workers
	UpsertWorker(ctx context.Context, w *model.Worker) error
	GetWorker(ctx context.Context, id string) (*model.Worker, error)
	DeleteWorker(ctx context.Context, id string) error
	ListWorkers(ctx context.Context) ([]*model.Worker, error)

	// Execution plans
	UpsertPlan(ctx context.Context, p *model.ExecutionPlan) error
	GetPlan(ctx context.Context, id string) (*model.ExecutionPlan, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// WithTx runs fn inside a transaction opened on s, committing on success
// and rolling back on any error (including a panic, which is re-raised
// after rollback).
func WithTx(ctx context.Context, s Store, fn func(Tx) error) (err error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
