// Package rediscache implements the Redis-backed cache behind
// get_execution_plan_status_cached (spec.md §4.6): "the cache MUST be
// invalidated on every plan mutation."
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hiveflow/orchestrator/model"
)

// PlanStatusCache caches ExecutionPlan status snapshots in Redis.
type PlanStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New constructs a PlanStatusCache with the given entry TTL as a backstop
// against a missed invalidation; callers are still expected to call
// Invalidate on every plan mutation.
func New(client *redis.Client, ttl time.Duration) *PlanStatusCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &PlanStatusCache{client: client, ttl: ttl}
}

func key(planID string) string { return "orchestrator:plan_status:" + planID }

// Get returns the cached status snapshot for planID, or ok=false on a
// cache miss.
func (c *PlanStatusCache) Get(ctx context.Context, planID string) (snapshot PlanSnapshot, ok bool, err error) {
	raw, err := c.client.Get(ctx, key(planID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return PlanSnapshot{}, false, nil
	}
	if err != nil {
		return PlanSnapshot{}, false, err
	}
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return PlanSnapshot{}, false, err
	}
	return snapshot, true, nil
}

// Set stores a status snapshot for planID.
func (c *PlanStatusCache) Set(ctx context.Context, planID string, snapshot PlanSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(planID), raw, c.ttl).Err()
}

// Invalidate removes the cached entry for planID. Callers MUST invoke this
// on every plan mutation (spec.md §4.6).
func (c *PlanStatusCache) Invalidate(ctx context.Context, planID string) error {
	return c.client.Del(ctx, key(planID)).Err()
}

// PlanSnapshot is the cached projection of an ExecutionPlan's status.
type PlanSnapshot struct {
	Status           model.PlanStatus `json:"status"`
	TotalSubtasks    int              `json:"total_subtasks"`
	CompletedSubtask int              `json:"completed_subtasks"`
	FailedSubtasks   int              `json:"failed_subtasks"`
}

// SnapshotOf projects an ExecutionPlan into its cacheable status snapshot.
func SnapshotOf(p *model.ExecutionPlan) PlanSnapshot {
	return PlanSnapshot{
		Status:           p.Status,
		TotalSubtasks:    p.TotalSubtasks,
		CompletedSubtask: p.CompletedSubtask,
		FailedSubtasks:   p.FailedSubtasks,
	}
}
