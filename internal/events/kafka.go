package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is implemented by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter builds a writer that waits for all in-sync replicas.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
}

// KafkaPublisher publishes events keyed by aggregate id so every event of an
// order lands on the same partition.
type KafkaPublisher struct {
	Writer MessageWriter
}

// Publish writes one event to the broker.
func (p KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if p.Writer == nil {
		return errors.New("events: kafka writer not configured")
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.AggregateID.String()),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "topic", Value: []byte(ev.Topic)},
			{Key: "event_id", Value: []byte(ev.ID.String())},
		},
	}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: write message to kafka: %w", err)
	}
	return nil
}

// Notify lets the publisher act as a synchronous bus notifier.
func (p KafkaPublisher) Notify(ctx context.Context, ev Event) error {
	return p.Publish(ctx, ev)
}
