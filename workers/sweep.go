package workers

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/hiveflow/orchestrator/model"
	"github.com/hiveflow/orchestrator/store"
)

// Sweeper periodically marks workers whose heartbeat age exceeds
// heartbeat_timeout as offline and requeues any task they held (spec.md
// §4.5 "Liveness sweep"). A rate.Limiter paces the requeue fan-out so a
// large batch of simultaneously-expired workers does not produce a
// requeue thundering herd against the store.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	limiter  *rate.Limiter
}

// NewSweeper constructs a Sweeper that runs every interval, requeuing at
// most requeuesPerSecond evictions per second.
func NewSweeper(svc *Service, interval time.Duration, requeuesPerSecond float64) *Sweeper {
	if requeuesPerSecond <= 0 {
		requeuesPerSecond = 50
	}
	return &Sweeper{
		svc:      svc,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Limit(requeuesPerSecond), int(requeuesPerSecond)),
	}
}

// Run blocks, sweeping every interval until ctx is cancelled.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.sweepOnce(ctx)
		}
	}
}

// sweepOnce performs a single sweep pass and returns the number of workers
// evicted, for test observability.
func (sw *Sweeper) sweepOnce(ctx context.Context) int {
	now := time.Now().UTC()
	var stale []*model.Worker
	_ = sw.svc.store.View(ctx, func(tx store.Tx) error {
		all, err := tx.ListWorkers(ctx)
		if err != nil {
			return err
		}
		for _, w := range all {
			if w.Status == model.WorkerOffline {
				continue
			}
			if now.Sub(w.LastHeartbeat) > sw.svc.heartbeatTimeout {
				stale = append(stale, w)
			}
		}
		return nil
	})

	evicted := 0
	for _, w := range stale {
		if err := sw.limiter.Wait(ctx); err != nil {
			return evicted
		}
		if err := sw.evict(ctx, w.ID); err == nil {
			evicted++
		}
	}
	sw.svc.metrics.RecordGauge("workers.evicted_per_sweep", float64(evicted))
	return evicted
}

func (sw *Sweeper) evict(ctx context.Context, workerID string) error {
	now := time.Now().UTC()
	var closed *model.Run
	err := store.WithTx(ctx, sw.svc.store, func(tx store.Tx) error {
		w, err := tx.GetWorker(ctx, workerID)
		if err != nil {
			return err
		}
		if now.Sub(w.LastHeartbeat) <= sw.svc.heartbeatTimeout {
			return nil // heartbeat refreshed between selection and eviction
		}
		heldTask := w.CurrentTaskID
		w.MarkOffline()
		if err := tx.UpsertWorker(ctx, w); err != nil {
			return err
		}
		if heldTask != nil {
			r, err := requeue(ctx, tx, *heldTask)
			if err != nil {
				return err
			}
			closed = r
		}
		return nil
	})
	if err != nil {
		return err
	}
	sw.svc.bus.Publish(ctx, model.Event{
		Type: model.EventWorkerOffline, CorrelationID: workerID, Timestamp: now,
		Payload: map[string]any{"worker_id": workerID},
	})
	sw.svc.publishRunClosed(ctx, closed)
	return nil
}
