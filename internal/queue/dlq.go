package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrStoreUnavailable is returned when no DLQ store is configured.
	ErrStoreUnavailable = errors.New("queue: store unavailable")
	ErrEntryNotFound    = errors.New("queue: dlq entry not found")
)

// Store keeps tasks that exhausted their attempts.
type Store interface {
	Insert(ctx context.Context, entry DLQEntry) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (DLQEntry, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f DLQFilter) ([]DLQEntry, error)
	Count(ctx context.Context, kind string) (int64, error)
	SizeByKind(ctx context.Context) (map[string]int64, error)
}

// DLQEntry is a dead-lettered task.
type DLQEntry struct {
	ID             uuid.UUID `json:"id"`
	Kind           string    `json:"kind"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Payload        []byte    `json:"payload"`
	Attempts       int       `json:"attempts"`
	LastError      *string   `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// DLQFilter pages through entries newest first. An empty Kind matches all.
type DLQFilter struct {
	Kind   string
	Limit  int
	Offset int
}

func (f DLQFilter) normalize() DLQFilter {
	f.Kind = strings.TrimSpace(f.Kind)
	switch {
	case f.Limit <= 0:
		f.Limit = 50
	case f.Limit > 500:
		f.Limit = 500
	}
	f.Offset = max(f.Offset, 0)
	return f
}

// DBTX is the subset of pgx used by the store; *pgxpool.Pool and pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewStore returns a Store over the queue_dlq table.
func NewStore(db DBTX) Store {
	return pgStore{db: db}
}

type pgStore struct {
	db DBTX
}

const selectDLQ = `SELECT id, kind, idem_key, payload, attempts, last_error, created_at FROM queue_dlq`

func (s pgStore) Insert(ctx context.Context, e DLQEntry) (uuid.UUID, error) {
	if s.db == nil {
		return uuid.Nil, ErrStoreUnavailable
	}
	var id uuid.UUID
	err := s.db.QueryRow(ctx,
		`INSERT INTO queue_dlq (kind, idem_key, payload, attempts, last_error) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		e.Kind, e.IdempotencyKey, e.Payload, e.Attempts, e.LastError,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("queue: insert dlq: %w", err)
	}
	return id, nil
}

func (s pgStore) Get(ctx context.Context, id uuid.UUID) (DLQEntry, error) {
	if s.db == nil {
		return DLQEntry{}, ErrStoreUnavailable
	}
	e, err := scanDLQ(s.db.QueryRow(ctx, selectDLQ+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return DLQEntry{}, ErrEntryNotFound
	}
	if err != nil {
		return DLQEntry{}, fmt.Errorf("queue: get dlq %s: %w", id, err)
	}
	return e, nil
}

func (s pgStore) Delete(ctx context.Context, id uuid.UUID) error {
	if s.db == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM queue_dlq WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("queue: delete dlq %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s pgStore) List(ctx context.Context, f DLQFilter) ([]DLQEntry, error) {
	if s.db == nil {
		return nil, ErrStoreUnavailable
	}
	f = f.normalize()
	rows, err := s.db.Query(ctx,
		selectDLQ+` WHERE ($1 = '' OR kind = $1) ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		f.Kind, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("queue: list dlq: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (DLQEntry, error) {
		return scanDLQ(row)
	})
	if err != nil {
		return nil, fmt.Errorf("queue: list dlq: %w", err)
	}
	return out, nil
}

func (s pgStore) Count(ctx context.Context, kind string) (int64, error) {
	if s.db == nil {
		return 0, ErrStoreUnavailable
	}
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM queue_dlq WHERE ($1 = '' OR kind = $1)`, strings.TrimSpace(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue: count dlq: %w", err)
	}
	return n, nil
}

func (s pgStore) SizeByKind(ctx context.Context) (map[string]int64, error) {
	if s.db == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.db.Query(ctx, `SELECT kind, COUNT(*) FROM queue_dlq GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("queue: dlq sizes: %w", err)
	}
	defer rows.Close()
	sizes := map[string]int64{}
	for rows.Next() {
		var (
			kind string
			n    int64
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("queue: dlq sizes: %w", err)
		}
		sizes[kind] = n
	}
	return sizes, rows.Err()
}

func scanDLQ(row pgx.Row) (DLQEntry, error) {
	var e DLQEntry
	err := row.Scan(&e.ID, &e.Kind, &e.IdempotencyKey, &e.Payload, &e.Attempts, &e.LastError, &e.CreatedAt)
	return e, err
}

// Replay re-enqueues a dead-lettered task with a fresh attempt budget and
// removes the entry.
func Replay(ctx context.Context, store Store, enq Enqueuer, id uuid.UUID) error {
	if store == nil {
		return ErrStoreUnavailable
	}
	e, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := enq.Enqueue(ctx, Task{Kind: e.Kind, Payload: e.Payload, IdempotencyKey: e.IdempotencyKey}); err != nil {
		return fmt.Errorf("queue: replay %s: %w", id, err)
	}
	return store.Delete(ctx, id)
}

// RefreshDLQGauge publishes the per-kind DLQ sizes.
func RefreshDLQGauge(ctx context.Context, store Store) error {
	if store == nil {
		return ErrStoreUnavailable
	}
	sizes, err := store.SizeByKind(ctx)
	if err != nil {
		return err
	}
	QueueDLQSize.Reset()
	for kind, n := range sizes {
		QueueDLQSize.WithLabelValues(kind).Set(float64(n))
	}
	return nil
}
