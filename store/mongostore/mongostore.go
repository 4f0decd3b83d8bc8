// Package mongostore is the Mongo-backed implementation of store.Store.
// It is grounded on features/run/mongo/store.go's Options/NewStore shape,
// adapted to call go.mongodb.org/mongo-driver/v2 directly instead of
// through a codegen'd clientsmongo.Client — that generated client package
// is not part of this tree (see DESIGN.md).
package mongostore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hiveflow/orchestrator/model"
	"github.com/hiveflow/orchestrator/orcherrors"
	"github.com/hiveflow/orchestrator/store"
)

// Options configures the Mongo-backed store.
type Options struct {
	// Client is an already-connected Mongo client. Required.
	Client *mongo.Client
	// Database names the database holding the core's collections.
	Database string
}

// Store implements store.Store against a Mongo database.
type Store struct {
	db *mongo.Database
}

// New builds a Store using the provided client and database name.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongostore: client is required")
	}
	db := opts.Database
	if db == "" {
		db = "orchestrator"
	}
	return &Store{db: opts.Client.Database(db)}, nil
}

// EnsureIndices creates the secondary indices named in spec.md §4.1.
func (s *Store) EnsureIndices(ctx context.Context) error {
	_, err := s.db.Collection("tasks").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "priority", Value: -1}}},
		{Keys: bson.D{{Key: "plan_id", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.db.Collection("runs").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "task_id", Value: 1}}},
		{Keys: bson.D{{Key: "worker_id", Value: 1}}},
		{Keys: bson.D{{Key: "task_id", Value: 1}, {Key: "run_number", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return err
	}
	_, err = s.db.Collection("workers").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "role", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.db.Collection("execution_plans").Indexes().CreateOne(ctx,
		mongo.IndexModel{Keys: bson.D{{Key: "status", Value: 1}}})
	return err
}

// Begin starts a Mongo session-backed transaction.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	session, err := s.db.Client().StartSession()
	if err != nil {
		return nil, orcherrors.Wrap(orcherrors.StorageError, "start session", err)
	}
	if err := session.StartTransaction(); err != nil {
		session.EndSession(ctx)
		return nil, orcherrors.Wrap(orcherrors.StorageError, "start transaction", err)
	}
	sctx := mongo.NewSessionContext(ctx, session)
	return &tx{s: s, session: session, ctx: sctx}, nil
}

// View runs fn without starting a write transaction.
func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	return fn(&tx{s: s, ctx: ctx, readOnly: true})
}

type tx struct {
	s        *Store
	session  mongo.Session
	ctx      context.Context
	readOnly bool
	done     bool
}

func (t *tx) coll(name string) *mongo.Collection { return t.s.db.Collection(name) }

func (t *tx) UpsertTask(ctx context.Context, task *model.Task) error {
	_, err := t.coll("tasks").ReplaceOne(t.ctx, bson.M{"_id": task.ID}, taskDoc(task),
		options.Replace().SetUpsert(true))
	return wrapStorageErr(err)
}

func (t *tx) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var doc bsonTask
	err := t.coll("tasks").FindOne(t.ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, orcherrors.NotFoundf("task %q not found", id)
	}
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	return doc.toModel(), nil
}

func (t *tx) DeleteTask(ctx context.Context, id string) error {
	res, err := t.coll("tasks").DeleteOne(t.ctx, bson.M{"_id": id})
	if err != nil {
		return wrapStorageErr(err)
	}
	if res.DeletedCount == 0 {
		return orcherrors.NotFoundf("task %q not found", id)
	}
	return t.DeleteRunsByTask(ctx, id)
}

func (t *tx) ListTasksByStatus(ctx context.Context, status model.TaskStatus) ([]*model.Task, error) {
	return t.queryTasks(bson.M{"status": string(status)})
}

func (t *tx) ListTasksByPlan(ctx context.Context, planID string) ([]*model.Task, error) {
	return t.queryTasks(bson.M{"plan_id": planID})
}

func (t *tx) ListAllTasks(ctx context.Context) ([]*model.Task, error) {
	return t.queryTasks(bson.M{})
}

func (t *tx) queryTasks(filter bson.M) ([]*model.Task, error) {
	cur, err := t.coll("tasks").Find(t.ctx, filter)
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	defer cur.Close(t.ctx)
	var out []*model.Task
	for cur.Next(t.ctx) {
		var doc bsonTask
		if err := cur.Decode(&doc); err != nil {
			return nil, wrapStorageErr(err)
		}
		out = append(out, doc.toModel())
	}
	return out, wrapStorageErr(cur.Err())
}

func (t *tx) UpsertRun(ctx context.Context, r *model.Run) error {
	_, err := t.coll("runs").ReplaceOne(t.ctx, bson.M{"_id": r.ID}, runDoc(r),
		options.Replace().SetUpsert(true))
	return wrapStorageErr(err)
}

func (t *tx) GetRun(ctx context.Context, id string) (*model.Run, error) {
	var doc bsonRun
	err := t.coll("runs").FindOne(t.ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, orcherrors.NotFoundf("run %q not found", id)
	}
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	return doc.toModel(), nil
}

func (t *tx) ListRunsByTask(ctx context.Context, taskID string) ([]*model.Run, error) {
	cur, err := t.coll("runs").Find(t.ctx, bson.M{"task_id": taskID})
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	defer cur.Close(t.ctx)
	var out []*model.Run
	for cur.Next(t.ctx) {
		var doc bsonRun
		if err := cur.Decode(&doc); err != nil {
			return nil, wrapStorageErr(err)
		}
		out = append(out, doc.toModel())
	}
	return out, wrapStorageErr(cur.Err())
}

func (t *tx) DeleteRunsByTask(ctx context.Context, taskID string) error {
	_, err := t.coll("runs").DeleteMany(t.ctx, bson.M{"task_id": taskID})
	return wrapStorageErr(err)
}

func (t *tx) UpsertWorker(ctx context.Context, w *model.Worker) error {
	_, err := t.coll("workers").ReplaceOne(t.ctx, bson.M{"_id": w.ID}, workerDoc(w),
		options.Replace().SetUpsert(true))
	return wrapStorageErr(err)
}

func (t *tx) GetWorker(ctx context.Context, id string) (*model.Worker, error) {
	var doc bsonWorker
	err := t.coll("workers").FindOne(t.ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, orcherrors.NotFoundf("worker %q not found", id)
	}
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	return doc.toModel(), nil
}

func (t *tx) DeleteWorker(ctx context.Context, id string) error {
	res, err := t.coll("workers").DeleteOne(t.ctx, bson.M{"_id": id})
	if err != nil {
		return wrapStorageErr(err)
	}
	if res.DeletedCount == 0 {
		return orcherrors.NotFoundf("worker %q not found", id)
	}
	return nil
}

func (t *tx) ListWorkers(ctx context.Context) ([]*model.Worker, error) {
	cur, err := t.coll("workers").Find(t.ctx, bson.M{})
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	defer cur.Close(t.ctx)
	var out []*model.Worker
	for cur.Next(t.ctx) {
		var doc bsonWorker
		if err := cur.Decode(&doc); err != nil {
			return nil, wrapStorageErr(err)
		}
		out = append(out, doc.toModel())
	}
	return out, wrapStorageErr(cur.Err())
}

func (t *tx) UpsertPlan(ctx context.Context, p *model.ExecutionPlan) error {
	_, err := t.coll("execution_plans").ReplaceOne(t.ctx, bson.M{"_id": p.ID}, planDoc(p),
		options.Replace().SetUpsert(true))
	return wrapStorageErr(err)
}

func (t *tx) GetPlan(ctx context.Context, id string) (*model.ExecutionPlan, error) {
	var doc bsonPlan
	err := t.coll("execution_plans").FindOne(t.ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, orcherrors.NotFoundf("plan %q not found", id)
	}
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	return doc.toModel(), nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if t.readOnly {
		return nil
	}
	defer t.session.EndSession(ctx)
	return wrapStorageErr(t.session.CommitTransaction(ctx))
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if t.readOnly {
		return nil
	}
	defer t.session.EndSession(ctx)
	return wrapStorageErr(t.session.AbortTransaction(ctx))
}

func wrapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	return orcherrors.Wrap(orcherrors.StorageError, "mongo operation failed", err)
}
