package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx used by the store.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore persists events in the domain_events table.
type PGStore struct {
	DB DBTX
}

// InsertDomainEvent stores the event and returns it with its generated id and timestamp.
func (s PGStore) InsertDomainEvent(ctx context.Context, topic string, aggregateID uuid.UUID, payload []byte) (Event, error) {
	if s.DB == nil {
		return Event{}, errors.New("events: database not configured")
	}
	ev := Event{Topic: topic, AggregateID: aggregateID, Payload: payload}
	err := s.DB.QueryRow(ctx, `INSERT INTO domain_events (topic, aggregate_id, payload)
VALUES ($1, $2, $3) RETURNING id, occurred_at`, topic, aggregateID, payload).Scan(&ev.ID, &ev.OccurredAt)
	if err != nil {
		return Event{}, fmt.Errorf("insert domain event: %w", err)
	}
	return ev, nil
}

// MarkPublished stamps the event as delivered to the broker.
func (s PGStore) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	if s.DB == nil {
		return errors.New("events: database not configured")
	}
	_, err := s.DB.Exec(ctx, `UPDATE domain_events SET published_at = $2 WHERE id = $1 AND published_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}
