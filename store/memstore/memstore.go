// Package memstore is the in-memory reference implementation of
// store.Store, acceptable per spec.md §4.1 "if it provides the same
// transactional semantics." It serializes writers with a single mutex
// (grounded on runtime/registry/manager.go's sync.RWMutex-guarded
// map-of-indices pattern) and supports Rollback via an undo log, so the
// transactional contract holds without a full copy-on-write engine.
package memstore

import (
	"context"
	"sync"

	"github.com/hiveflow/orchestrator/model"
	"github.com/hiveflow/orchestrator/orcherrors"
	"github.com/hiveflow/orchestrator/store"
)

// Store is the in-memory reference Store.
type Store struct {
	mu sync.RWMutex

	tasks   map[string]*model.Task
	runs    map[string]*model.Run
	workers map[string]*model.Worker
	plans   map[string]*model.ExecutionPlan
}

// New constructs an empty in-memory Store.
func New() *Store {
	return &Store{
		tasks:   map[string]*model.Task{},
		runs:    map[string]*model.Run{},
		workers: map[string]*model.Worker{},
		plans:   map[string]*model.ExecutionPlan{},
	}
}

// Begin acquires the store's write lock for the lifetime of the
// transaction and returns a tx that records an undo log for Rollback.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	s.mu.Lock()
	return &tx{s: s}, nil
}

// View runs fn under a read lock, without allowing writes to commit (the
// tx returned still implements the full write surface, but any caller
// using View for writes violates its own contract — matching the "reads
// outside a transaction" clause of spec.md §4.1 being the caller's
// responsibility to honor).
func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{s: s, readOnly: true})
}

type undoFn func()

type tx struct {
	s        *Store
	readOnly bool
	undo     []undoFn
	done     bool
}

func cloneTask(t *model.Task) *model.Task {
	c := *t
	return &c
}

func (t *tx) checkWritable() error {
	if t.done {
		return orcherrors.New(orcherrors.InternalError, "transaction already finalized")
	}
	return nil
}

func (t *tx) UpsertTask(ctx context.Context, task *model.Task) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	prev, existed := t.s.tasks[task.ID]
	t.undo = append(t.undo, func() {
		if existed {
			t.s.tasks[task.ID] = prev
		} else {
			delete(t.s.tasks, task.ID)
		}
	})
	t.s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (t *tx) GetTask(ctx context.Context, id string) (*model.Task, error) {
	task, ok := t.s.tasks[id]
	if !ok {
		return nil, orcherrors.NotFoundf("task %q not found", id)
	}
	return cloneTask(task), nil
}

func (t *tx) DeleteTask(ctx context.Context, id string) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	prev, existed := t.s.tasks[id]
	if !existed {
		return orcherrors.NotFoundf("task %q not found", id)
	}
	t.undo = append(t.undo, func() { t.s.tasks[id] = prev })
	delete(t.s.tasks, id)
	return t.DeleteRunsByTask(ctx, id)
}

func (t *tx) ListTasksByStatus(ctx context.Context, status model.TaskStatus) ([]*model.Task, error) {
	var out []*model.Task
	for _, task := range t.s.tasks {
		if task.Status == status {
			out = append(out, cloneTask(task))
		}
	}
	return out, nil
}

func (t *tx) ListTasksByPlan(ctx context.Context, planID string) ([]*model.Task, error) {
	var out []*model.Task
	for _, task := range t.s.tasks {
		if task.PlanID != nil && *task.PlanID == planID {
			out = append(out, cloneTask(task))
		}
	}
	return out, nil
}

func (t *tx) ListAllTasks(ctx context.Context) ([]*model.Task, error) {
	out := make([]*model.Task, 0, len(t.s.tasks))
	for _, task := range t.s.tasks {
		out = append(out, cloneTask(task))
	}
	return out, nil
}

func cloneRun(r *model.Run) *model.Run {
	c := *r
	return &c
}

func (t *tx) UpsertRun(ctx context.Context, r *model.Run) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	prev, existed := t.s.runs[r.ID]
	t.undo = append(t.undo, func() {
		if existed {
			t.s.runs[r.ID] = prev
		} else {
			delete(t.s.runs, r.ID)
		}
	})
	t.s.runs[r.ID] = cloneRun(r)
	return nil
}

func (t *tx) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r, ok := t.s.runs[id]
	if !ok {
		return nil, orcherrors.NotFoundf("run %q not found", id)
	}
	return cloneRun(r), nil
}

func (t *tx) ListRunsByTask(ctx context.Context, taskID string) ([]*model.Run, error) {
	var out []*model.Run
	for _, r := range t.s.runs {
		if r.TaskID == taskID {
			out = append(out, cloneRun(r))
		}
	}
	return out, nil
}

func (t *tx) DeleteRunsByTask(ctx context.Context, taskID string) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	for id, r := range t.s.runs {
		if r.TaskID == taskID {
			prev := r
			t.undo = append(t.undo, func() { t.s.runs[id] = prev })
			delete(t.s.runs, id)
		}
	}
	return nil
}

func cloneWorker(w *model.Worker) *model.Worker {
	c := *w
	return &c
}

func (t *tx) UpsertWorker(ctx context.Context, w *model.Worker) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	prev, existed := t.s.workers[w.ID]
	t.undo = append(t.undo, func() {
		if existed {
			t.s.workers[w.ID] = prev
		} else {
			delete(t.s.workers, w.ID)
		}
	})
	t.s.workers[w.ID] = cloneWorker(w)
	return nil
}

func (t *tx) GetWorker(ctx context.Context, id string) (*model.Worker, error) {
	w, ok := t.s.workers[id]
	if !ok {
		return nil, orcherrors.NotFoundf("worker %q not found", id)
	}
	return cloneWorker(w), nil
}

func (t *tx) DeleteWorker(ctx context.Context, id string) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	prev, existed := t.s.workers[id]
	if !existed {
		return orcherrors.NotFoundf("worker %q not found", id)
	}
	t.undo = append(t.undo, func() { t.s.workers[id] = prev })
	delete(t.s.workers, id)
	return nil
}

func (t *tx) ListWorkers(ctx context.Context) ([]*model.Worker, error) {
	out := make([]*model.Worker, 0, len(t.s.workers))
	for _, w := range t.s.workers {
		out = append(out, cloneWorker(w))
	}
	return out, nil
}

func clonePlan(p *model.ExecutionPlan) *model.ExecutionPlan {
	c := *p
	return &c
}

func (t *tx) UpsertPlan(ctx context.Context, p *model.ExecutionPlan) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	prev, existed := t.s.plans[p.ID]
	t.undo = append(t.undo, func() {
		if existed {
			t.s.plans[p.ID] = prev
		} else {
			delete(t.s.plans, p.ID)
		}
	})
	t.s.plans[p.ID] = clonePlan(p)
	return nil
}

func (t *tx) GetPlan(ctx context.Context, id string) (*model.ExecutionPlan, error) {
	p, ok := t.s.plans[id]
	if !ok {
		return nil, orcherrors.NotFoundf("plan %q not found", id)
	}
	return clonePlan(p), nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return orcherrors.New(orcherrors.InternalError, "transaction already finalized")
	}
	t.done = true
	if !t.readOnly {
		t.s.mu.Unlock()
	}
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.done = true
	if !t.readOnly {
		t.s.mu.Unlock()
	}
	return nil
}
