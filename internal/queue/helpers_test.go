package queue_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-engine/internal/queue"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

var quiet = zerolog.New(io.Discard)

// start runs w until the test ends.
func start(t *testing.T, w queue.Worker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

type memStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]queue.DLQEntry
}

func newMemStore() *memStore {
	return &memStore{entries: map[uuid.UUID]queue.DLQEntry{}}
}

func (m *memStore) Insert(_ context.Context, e queue.DLQEntry) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	m.entries[e.ID] = e
	return e.ID, nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (queue.DLQEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return queue.DLQEntry{}, queue.ErrEntryNotFound
	}
	return e, nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return queue.ErrEntryNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *memStore) List(_ context.Context, f queue.DLQFilter) ([]queue.DLQEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []queue.DLQEntry{}
	for _, e := range m.entries {
		if f.Kind == "" || e.Kind == f.Kind {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) Count(ctx context.Context, kind string) (int64, error) {
	list, err := m.List(ctx, queue.DLQFilter{Kind: kind})
	return int64(len(list)), err
}

func (m *memStore) SizeByKind(context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sizes := map[string]int64{}
	for _, e := range m.entries {
		sizes[e.Kind]++
	}
	return sizes, nil
}
