package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hiveflow/orchestrator/eventbus"
	"github.com/hiveflow/orchestrator/model"
	"github.com/hiveflow/orchestrator/telemetry"
)

// WebhookBridge subscribes to the Event Bus and POSTs every event as JSON to
// a fixed set of webhook URLs, per SPEC_FULL.md §11: "golang.org/x/time/rate
// ... throttles the HTTP boundary adapter's webhook fan-out." It is a C9
// boundary adapter, not part of the hard core; dropping it entirely loses
// nothing the core's own invariants depend on.
type WebhookBridge struct {
	urls    []string
	client  *http.Client
	limiter *rate.Limiter
	logger  telemetry.Logger
}

// NewWebhookBridge constructs a bridge posting to urls, throttled to at most
// requestsPerSecond outbound requests per second across all urls combined.
func NewWebhookBridge(urls []string, requestsPerSecond float64, logger telemetry.Logger) *WebhookBridge {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 20
	}
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	return &WebhookBridge{
		urls:    urls,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(requestsPerSecond)),
		logger:  logger,
	}
}

// Attach subscribes the bridge to every event type it forwards. Callers
// pass the same bus the rest of the core publishes on.
func (b *WebhookBridge) Attach(bus *eventbus.Bus, types ...model.EventType) {
	for _, t := range types {
		bus.Subscribe(t, b.onEvent)
	}
}

func (b *WebhookBridge) onEvent(ctx context.Context, evt model.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		b.logger.Error(ctx, "webhook bridge: marshal event failed", "error", err)
		return
	}
	for _, url := range b.urls {
		if err := b.limiter.Wait(ctx); err != nil {
			return
		}
		b.post(ctx, url, payload)
	}
}

func (b *WebhookBridge) post(ctx context.Context, url string, payload []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		b.logger.Error(ctx, "webhook bridge: build request failed", "url", url, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		b.logger.Error(ctx, "webhook bridge: delivery failed", "url", url, "error", err)
		return
	}
	_ = resp.Body.Close()
}
