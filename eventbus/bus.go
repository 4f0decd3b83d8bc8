// Package eventbus implements the in-process, typed publish/subscribe bus
// of SPEC_FULL.md §4.2 (C2), generalized from the teacher's and original
// source's module-singleton event bus into an explicitly constructed value
// (§9 design note on re-architecting module-level registries).
package eventbus

import (
	"context"
	"sync"

	"github.com/hiveflow/orchestrator/model"
	"github.com/hiveflow/orchestrator/telemetry"
)

// Handler receives published events. A Handler that panics MUST NOT
// prevent other handlers from receiving the event — Bus recovers and
// swallows the panic (spec.md §4.2).
type Handler func(ctx context.Context, evt model.Event)

// Handle identifies a subscription for later Unsubscribe.
type Handle struct {
	eventType model.EventType
	id        uint64
}

// Bus is an in-process, typed publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	subs     map[model.EventType][]subscription
	nextID   uint64
	logger   telemetry.Logger
	metrics  telemetry.Metrics
}

type subscription struct {
	id      uint64
	handler Handler
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithLogger attaches a logger used to report handler failures.
func WithLogger(l telemetry.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// New constructs a Bus. Call sites own the instance; there is no implicit
// process-wide singleton (§9).
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:    map[model.EventType][]subscription{},
		logger:  telemetry.NoopLogger{},
		metrics: telemetry.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for eventType and returns a Handle usable
// with Unsubscribe. Handlers for a given type are invoked in registration
// order (spec.md §4.2).
func (b *Bus) Subscribe(eventType model.EventType, handler Handler) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	return Handle{eventType: eventType, id: id}
}

// Unsubscribe removes the subscription identified by h.
func (b *Bus) Unsubscribe(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[h.eventType]
	for i, s := range subs {
		if s.id == h.id {
			b.subs[h.eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers evt to all subscribers currently registered for
// evt.Type, in registration order. Publish is non-blocking from the
// caller's perspective only in the sense that it does not wait on any
// external I/O of its own; handlers themselves run synchronously on the
// calling goroutine, so handlers SHOULD offload long work (spec.md §4.2,
// §5 "Suspension points"). A handler that panics is recovered and logged;
// it never prevents delivery to subsequent handlers.
func (b *Bus) Publish(ctx context.Context, evt model.Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[evt.Type]...)
	b.mu.RUnlock()

	b.metrics.IncCounter("eventbus.published", 1, "event_type", string(evt.Type))
	for _, s := range subs {
		b.invoke(ctx, s, evt)
	}
}

func (b *Bus) invoke(ctx context.Context, s subscription, evt model.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(ctx, "event handler panicked",
				"event_type", string(evt.Type),
				"correlation_id", evt.CorrelationID,
				"panic", r,
			)
			b.metrics.IncCounter("eventbus.handler_panic", 1, "event_type", string(evt.Type))
		}
	}()
	s.handler(ctx, evt)
}
