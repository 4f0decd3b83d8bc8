package store

import (
	"context"

	"github.com/hiveflow/orchestrator/model"
)

// DualWriteStore writes every mutation to both a canonical Store and a
// legacy-shaped Store inside the same logical transaction, rolling back
// both if either fails. Grounded on
// original_source/.../database/dual_writer.py's DualWriteTaskRepository
// (session + legacy_session, disable_dual_write()).
type DualWriteStore struct {
	canonical Store
	legacy    Store
	enabled   bool
}

// NewDualWriteStore constructs a DualWriteStore with dual-write enabled.
func NewDualWriteStore(canonical, legacy Store) *DualWriteStore {
	return &DualWriteStore{canonical: canonical, legacy: legacy, enabled: true}
}

// DisableDualWrite switches off legacy writes; canonical writes continue.
// Matches the original's disable_dual_write() control (spec.md §9).
func (d *DualWriteStore) DisableDualWrite() { d.enabled = false }

// EnableDualWrite switches legacy writes back on.
func (d *DualWriteStore) EnableDualWrite() { d.enabled = true }

// Begin opens a transaction against the canonical store and, if dual-write
// is enabled, a paired transaction against the legacy store. Every write
// issued against the returned Tx is mirrored to both; Commit/Rollback are
// applied to both, with the legacy transaction finalized first so a
// legacy-side failure still rolls back the canonical side.
func (d *DualWriteStore) Begin(ctx context.Context) (Tx, error) {
	canonTx, err := d.canonical.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if !d.enabled {
		return canonTx, nil
	}
	legacyTx, err := d.legacy.Begin(ctx)
	if err != nil {
		_ = canonTx.Rollback(ctx)
		return nil, err
	}
	return &dualTx{canon: canonTx, legacy: legacyTx}, nil
}

// View runs fn against the canonical store only; reads never consult the
// legacy schema.
func (d *DualWriteStore) View(ctx context.Context, fn func(Tx) error) error {
	return d.canonical.View(ctx, fn)
}

// dualTx mirrors every write onto both the canonical and legacy
// transactions. Reads are served from the canonical side.
type dualTx struct {
	canon  Tx
	legacy Tx
}

func (t *dualTx) mirror(ctx context.Context, canon, legacy func() error) error {
	if err := canon(); err != nil {
		return err
	}
	if err := legacy(); err != nil {
		return err
	}
	return nil
}

func (t *dualTx) UpsertTask(ctx context.Context, task *model.Task) error {
	return t.mirror(ctx,
		func() error { return t.canon.UpsertTask(ctx, task) },
		func() error { return t.legacy.UpsertTask(ctx, task) })
}

func (t *dualTx) GetTask(ctx context.Context, id string) (*model.Task, error) {
	return t.canon.GetTask(ctx, id)
}

func (t *dualTx) DeleteTask(ctx context.Context, id string) error {
	return t.mirror(ctx,
		func() error { return t.canon.DeleteTask(ctx, id) },
		func() error { return t.legacy.DeleteTask(ctx, id) })
}

func (t *dualTx) ListTasksByStatus(ctx context.Context, status model.TaskStatus) ([]*model.Task, error) {
	return t.canon.ListTasksByStatus(ctx, status)
}

func (t *dualTx) ListTasksByPlan(ctx context.Context, planID string) ([]*model.Task, error) {
	return t.canon.ListTasksByPlan(ctx, planID)
}

func (t *dualTx) ListAllTasks(ctx context.Context) ([]*model.Task, error) {
	return t.canon.ListAllTasks(ctx)
}

func (t *dualTx) UpsertRun(ctx context.Context, r *model.Run) error {
	return t.mirror(ctx,
		func() error { return t.canon.UpsertRun(ctx, r) },
		func() error { return t.legacy.UpsertRun(ctx, r) })
}

func (t *dualTx) GetRun(ctx context.Context, id string) (*model.Run, error) {
	return t.canon.GetRun(ctx, id)
}

func (t *dualTx) ListRunsByTask(ctx context.Context, taskID string) ([]*model.Run, error) {
	return t.canon.ListRunsByTask(ctx, taskID)
}

func (t *dualTx) DeleteRunsByTask(ctx context.Context, taskID string) error {
	return t.mirror(ctx,
		func() error { return t.canon.DeleteRunsByTask(ctx, taskID) },
		func() error { return t.legacy.DeleteRunsByTask(ctx, taskID) })
}

func (t *dualTx) UpsertWorker(ctx context.Context, w *model.Worker) error {
	return t.mirror(ctx,
		func() error { return t.canon.UpsertWorker(ctx, w) },
		func() error { return t.legacy.UpsertWorker(ctx, w) })
}

func (t *dualTx) GetWorker(ctx context.Context, id string) (*model.Worker, error) {
	return t.canon.GetWorker(ctx, id)
}

func (t *dualTx) DeleteWorker(ctx context.Context, id string) error {
	return t.mirror(ctx,
		func() error { return t.canon.DeleteWorker(ctx, id) },
		func() error { return t.legacy.DeleteWorker(ctx, id) })
}

func (t *dualTx) ListWorkers(ctx context.Context) ([]*model.Worker, error) {
	return t.canon.ListWorkers(ctx)
}

func (t *dualTx) UpsertPlan(ctx context.Context, p *model.ExecutionPlan) error {
	return t.mirror(ctx,
		func() error { return t.canon.UpsertPlan(ctx, p) },
		func() error { return t.legacy.UpsertPlan(ctx, p) })
}

func (t *dualTx) GetPlan(ctx context.Context, id string) (*model.ExecutionPlan, error) {
	return t.canon.GetPlan(ctx, id)
}

func (t *dualTx) Commit(ctx context.Context) error {
	if err := t.legacy.Commit(ctx); err != nil {
		_ = t.canon.Rollback(ctx)
		return err
	}
	return t.canon.Commit(ctx)
}

func (t *dualTx) Rollback(ctx context.Context) error {
	_ = t.legacy.Rollback(ctx)
	return t.canon.Rollback(ctx)
}
