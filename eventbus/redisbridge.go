package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hiveflow/orchestrator/model"
)

// RedisBridge republishes bus events onto a Redis stream so out-of-process
// subscribers can observe them. This does not change the in-process bus's
// own "no persistence" contract (spec.md §4.2); it is an additive sink,
// grounded on the envelope/publish shape of features/stream/pulse/sink.go
// but wired directly onto redis/go-redis/v9 instead of a codegen'd Pulse
// client (see DESIGN.md).
type RedisBridge struct {
	client *redis.Client
	stream func(model.Event) string
}

// NewRedisBridge constructs a bridge publishing to Redis streams named by
// streamFn, or "orchestrator:events" by default.
func NewRedisBridge(client *redis.Client, streamFn func(model.Event) string) *RedisBridge {
	if streamFn == nil {
		streamFn = func(model.Event) string { return "orchestrator:events" }
	}
	return &RedisBridge{client: client, stream: streamFn}
}

// Forward subscribes the bridge to every event type on bus, publishing
// each onto its Redis stream. Handler failures (a broken Redis connection,
// e.g.) are swallowed by Bus's panic recovery like any other handler.
func (r *RedisBridge) Forward(bus *Bus, types ...model.EventType) {
	for _, t := range types {
		bus.Subscribe(t, r.handle)
	}
}

func (r *RedisBridge) handle(ctx context.Context, evt model.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		panic(fmt.Errorf("redisbridge: marshal event: %w", err))
	}
	streamName := r.stream(evt)
	cmd := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		Values: map[string]any{
			"type":           string(evt.Type),
			"correlation_id": evt.CorrelationID,
			"payload":        payload,
		},
	})
	if err := cmd.Err(); err != nil {
		panic(fmt.Errorf("redisbridge: xadd %s: %w", streamName, err))
	}
}
