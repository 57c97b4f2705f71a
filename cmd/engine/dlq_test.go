package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-engine/internal/queue"
)

type oneEntryStore struct {
	entry   queue.DLQEntry
	deleted bool
}

func (s *oneEntryStore) Insert(context.Context, queue.DLQEntry) (uuid.UUID, error) {
	return uuid.Nil, nil
}

func (s *oneEntryStore) Get(_ context.Context, id uuid.UUID) (queue.DLQEntry, error) {
	if s.deleted || id != s.entry.ID {
		return queue.DLQEntry{}, queue.ErrEntryNotFound
	}
	return s.entry, nil
}

func (s *oneEntryStore) Delete(context.Context, uuid.UUID) error {
	s.deleted = true
	return nil
}

func (s *oneEntryStore) List(_ context.Context, f queue.DLQFilter) ([]queue.DLQEntry, error) {
	if s.deleted || (f.Kind != "" && f.Kind != s.entry.Kind) {
		return nil, nil
	}
	return []queue.DLQEntry{s.entry}, nil
}

func (s *oneEntryStore) Count(ctx context.Context, kind string) (int64, error) {
	list, _ := s.List(ctx, queue.DLQFilter{Kind: kind})
	return int64(len(list)), nil
}

func (s *oneEntryStore) SizeByKind(context.Context) (map[string]int64, error) {
	return nil, nil
}

func TestDLQListAndReplay(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &oneEntryStore{entry: queue.DLQEntry{ID: uuid.New(), Kind: "events.deliver", Payload: []byte(`{}`), Attempts: 10}}
	enq := queue.Enqueuer{R: client, Prefix: "ops"}
	router := chi.NewRouter()
	router.Route("/ops/dlq", dlqHandler{store: store, queue: enq, logger: zerolog.Nop()}.routes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ops/dlq/?kind=events.deliver&limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Entries []queue.DLQEntry `json:"entries"`
		Total   int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(1), body.Total)
	require.Equal(t, store.entry.ID, body.Entries[0].ID)

	replay := "/ops/dlq/" + store.entry.ID.String() + "/replay"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, replay, nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	depth, err := enq.Depth(context.Background(), "events.deliver")
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, replay, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ops/dlq/nope/replay", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
