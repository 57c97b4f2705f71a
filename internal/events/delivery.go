package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-engine/internal/obs"
	"github.com/noah-isme/toko-engine/internal/queue"
	"github.com/noah-isme/toko-engine/internal/resilience"
)

// KindDeliver is the queue kind carrying events to the broker.
const KindDeliver = "events.deliver"

// Publisher sends an event to an external broker.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Enqueuer is implemented by queue.Enqueuer.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) error
}

// QueueScheduler defers broker delivery to the Redis task queue. The event id
// is the idempotency key, so re-scheduling an event is a no-op.
type QueueScheduler struct {
	Queue       Enqueuer
	MaxAttempts int
}

// Schedule enqueues the event for delivery.
func (s QueueScheduler) Schedule(ctx context.Context, ev Event) error {
	if s.Queue == nil {
		return errors.New("events: queue not configured")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.Queue.Enqueue(ctx, queue.Task{
		Kind:           KindDeliver,
		Payload:        raw,
		IdempotencyKey: ev.ID.String(),
		MaxAttempts:    s.MaxAttempts,
	})
}

// PublishedMarker records successful publication.
type PublishedMarker interface {
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
}

// DeliveryHandler is the queue handler publishing scheduled events. A breaker
// guards the broker so an outage turns into fast retries instead of timeouts.
type DeliveryHandler struct {
	Publisher Publisher
	Marker    PublishedMarker
	Breaker   *resilience.Breaker
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Handle implements the queue.Worker handler signature.
func (h DeliveryHandler) Handle(ctx context.Context, task queue.Task) error {
	if h.Publisher == nil {
		return errors.New("events: publisher not configured")
	}
	var ev Event
	if err := json.Unmarshal(task.Payload, &ev); err != nil {
		// A corrupt payload will never succeed; drop it.
		h.Logger.Error().Err(err).Msg("event_payload_corrupt")
		return nil
	}
	if h.Breaker != nil && !h.Breaker.Allow(ctx) {
		obs.Inc(obs.EventDeliveriesTotal, ev.Topic, "circuit_open")
		return resilience.ErrOpenCircuit
	}
	err := h.Publisher.Publish(ctx, ev)
	if h.Breaker != nil {
		h.Breaker.Report(ctx, err == nil)
	}
	if err != nil {
		obs.Inc(obs.EventDeliveriesTotal, ev.Topic, "error")
		h.Logger.Warn().Err(err).Str("topic", ev.Topic).Str("event_id", ev.ID.String()).Int("attempt", task.Attempt).Msg("event_publish_failed")
		return fmt.Errorf("events: publish %s: %w", ev.ID, err)
	}
	obs.Inc(obs.EventDeliveriesTotal, ev.Topic, "success")
	if h.Marker != nil {
		if err := h.Marker.MarkPublished(ctx, ev.ID, h.now()); err != nil {
			h.Logger.Warn().Err(err).Str("event_id", ev.ID.String()).Msg("event_mark_published_failed")
		}
	}
	return nil
}

func (h DeliveryHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}
