package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-engine/internal/events"
	"github.com/noah-isme/toko-engine/internal/queue"
	"github.com/noah-isme/toko-engine/internal/resilience"
)

type stubStore struct {
	topic   string
	payload []byte
}

func (s *stubStore) InsertDomainEvent(_ context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.Event, error) {
	s.topic = topic
	s.payload = payload
	return events.Event{
		ID:          uuid.New(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  time.Now(),
	}, nil
}

type captureScheduler struct {
	events []events.Event
}

func (c *captureScheduler) Schedule(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	scheduler := &captureScheduler{}
	notifier := &captureNotifier{}
	bus := events.Bus{
		Store:     store,
		Scheduler: scheduler,
		Notifiers: []events.Notifier{notifier},
	}

	aggregate := uuid.New()
	payload := map[string]any{"order_number": "RC-20240315-0042"}
	event, err := bus.Emit(context.Background(), events.TopicOrderCreated, aggregate, payload)
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderCreated, store.topic)
	require.JSONEq(t, `{"order_number":"RC-20240315-0042"}`, string(store.payload))
	require.Len(t, scheduler.events, 1)
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, scheduler.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "RC-20240315-0042", decoded["order_number"])
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	ctx := context.Background()

	_, err := bus.Emit(ctx, " ", uuid.New(), nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicOrderPaid, uuid.Nil, nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicOrderPaid, uuid.New(), "{not json")
	require.Error(t, err)

	var nilBus *events.Bus
	_, err = nilBus.Emit(ctx, events.TopicOrderPaid, uuid.New(), nil)
	require.Error(t, err)
}

func TestEmitReturnsEventWhenNotifierFails(t *testing.T) {
	notifier := &captureNotifier{err: errors.New("down")}
	bus := events.Bus{Store: &stubStore{}, Notifiers: []events.Notifier{nil, notifier}}

	ev, err := bus.Emit(context.Background(), events.TopicRefundCreated, uuid.New(), []byte(`{"amount":"50.00"}`))
	require.Error(t, err)
	require.NotEqual(t, uuid.Nil, ev.ID)
	require.Len(t, notifier.events, 1)
}

func TestKafkaPublisherKeysByAggregate(t *testing.T) {
	writer := &captureWriter{}
	pub := events.KafkaPublisher{Writer: writer}
	ev := events.Event{ID: uuid.New(), Topic: events.TopicOrderPaid, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), OccurredAt: time.Now()}

	require.NoError(t, pub.Notify(context.Background(), ev))
	require.Len(t, writer.msgs, 1)
	require.Equal(t, ev.AggregateID.String(), string(writer.msgs[0].Key))
	require.Equal(t, "topic", writer.msgs[0].Headers[0].Key)
	require.Equal(t, events.TopicOrderPaid, string(writer.msgs[0].Headers[0].Value))

	var decoded events.Event
	require.NoError(t, json.Unmarshal(writer.msgs[0].Value, &decoded))
	require.Equal(t, ev.ID, decoded.ID)
}

type captureMarker struct {
	ids []uuid.UUID
}

func (m *captureMarker) MarkPublished(_ context.Context, id uuid.UUID, _ time.Time) error {
	m.ids = append(m.ids, id)
	return nil
}

func TestQueueSchedulerAndDelivery(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	enq := queue.Enqueuer{R: client, Prefix: "ev"}
	scheduler := events.QueueScheduler{Queue: enq}
	ev := events.Event{ID: uuid.New(), Topic: events.TopicOrderCreated, AggregateID: uuid.New(), Payload: json.RawMessage(`{"total":"120.00"}`)}

	require.NoError(t, scheduler.Schedule(ctx, ev))
	require.NoError(t, scheduler.Schedule(ctx, ev))
	depth, err := enq.Depth(ctx, events.KindDeliver)
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	writer := &captureWriter{}
	marker := &captureMarker{}
	handler := events.DeliveryHandler{Publisher: events.KafkaPublisher{Writer: writer}, Marker: marker}
	require.NoError(t, handler.Handle(ctx, queue.Task{Kind: events.KindDeliver, Payload: raw, Attempt: 1}))
	require.Len(t, writer.msgs, 1)
	require.Equal(t, []uuid.UUID{ev.ID}, marker.ids)

	require.NoError(t, handler.Handle(ctx, queue.Task{Kind: events.KindDeliver, Payload: []byte("garbage")}))
}

func TestDeliveryHandlerOpensBreaker(t *testing.T) {
	writer := &captureWriter{err: errors.New("broker down")}
	breaker := resilience.NewBreaker(1, 0.5, time.Minute)
	handler := events.DeliveryHandler{Publisher: events.KafkaPublisher{Writer: writer}, Breaker: breaker}
	raw, err := json.Marshal(events.Event{ID: uuid.New(), Topic: events.TopicOrderPaid, AggregateID: uuid.New()})
	require.NoError(t, err)

	ctx := context.Background()
	require.Error(t, handler.Handle(ctx, queue.Task{Payload: raw}))
	require.ErrorIs(t, handler.Handle(ctx, queue.Task{Payload: raw}), resilience.ErrOpenCircuit)
}

func TestKnownTopics(t *testing.T) {
	require.True(t, events.IsKnown(events.TopicRefundCreated))
	require.False(t, events.IsKnown("shipment.delivered"))
}
