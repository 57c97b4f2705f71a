package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-engine/internal/events"
	"github.com/noah-isme/toko-engine/internal/lock"
	"github.com/noah-isme/toko-engine/internal/order"
)

type memRepo struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]order.Order
	refunds map[uuid.UUID][]order.Refund
}

func newMemRepo() *memRepo {
	return &memRepo{orders: map[uuid.UUID]order.Order{}, refunds: map[uuid.UUID][]order.Refund{}}
}

func (r *memRepo) Create(_ context.Context, o order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
	return nil
}

func (r *memRepo) Get(_ context.Context, id uuid.UUID) (order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (r *memRepo) GetByNumber(_ context.Context, number string) (order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.Number == number {
			return o, nil
		}
	}
	return order.Order{}, order.ErrNotFound
}

func (r *memRepo) Update(_ context.Context, o order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[o.ID]
	if !ok {
		return order.ErrNotFound
	}
	if cur.Version != o.Version {
		return order.ErrConcurrentUpdate
	}
	o.Version++
	r.orders[o.ID] = o
	return nil
}

func (r *memRepo) ListRefunds(_ context.Context, orderID uuid.UUID) ([]order.Refund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]order.Refund(nil), r.refunds[orderID]...), nil
}

func (r *memRepo) InsertRefund(_ context.Context, ref order.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refunds[ref.OrderID] = append(r.refunds[ref.OrderID], ref)
	return nil
}

func (r *memRepo) CountByStatus(_ context.Context, status order.Status) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.orders {
		if o.Status == status {
			n++
		}
	}
	return n, nil
}

type captureEmitter struct {
	topics []string
}

func (c *captureEmitter) Emit(_ context.Context, topic string, aggregateID uuid.UUID, _ any) (events.Event, error) {
	c.topics = append(c.topics, topic)
	return events.Event{ID: uuid.New(), Topic: topic, AggregateID: aggregateID}, nil
}

type stockStub struct {
	committed []uuid.UUID
	released  []uuid.UUID
}

func (s *stockStub) Commit(_ context.Context, id uuid.UUID) error {
	s.committed = append(s.committed, id)
	return nil
}

func (s *stockStub) Release(_ context.Context, id uuid.UUID) error {
	s.released = append(s.released, id)
	return nil
}

func newManager(t *testing.T) (*order.Manager, *memRepo, *captureEmitter, *stockStub) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemRepo()
	emitter := &captureEmitter{}
	stock := &stockStub{}
	m := &order.Manager{
		Repo:    repo,
		Locker:  lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond, Prefix: "test"},
		Events:  emitter,
		Stock:   stock,
		LockTTL: time.Second,
		Now:     func() time.Time { return created.Add(time.Hour) },
	}
	return m, repo, emitter, stock
}

func TestManagerPaymentAndRefundFlow(t *testing.T) {
	m, repo, emitter, stock := newManager(t)
	ctx := context.Background()
	o := newOrder()
	require.NoError(t, repo.Create(ctx, o))

	paid, err := m.MarkPaid(ctx, o.ID, "txn-1", "gateway")
	require.NoError(t, err)
	require.Equal(t, order.StatusProcessing, paid.Status)
	require.Equal(t, "txn-1", paid.TransactionID)
	require.Equal(t, 1, paid.Version)
	require.Equal(t, []uuid.UUID{o.ID}, stock.committed)

	_, err = m.MarkPaid(ctx, o.ID, "txn-2", "gateway")
	require.ErrorIs(t, err, order.ErrAlreadyPaid)

	_, err = m.UpdateStatus(ctx, o.ID, order.StatusCompleted, "", "admin")
	require.NoError(t, err)

	_, _, err = m.Refund(ctx, o.ID, order.RefundRequest{Amount: dec("50.00"), Reason: "damaged", Actor: "admin"})
	require.NoError(t, err)
	_, _, err = m.Refund(ctx, o.ID, order.RefundRequest{Amount: dec("80.00")})
	require.ErrorIs(t, err, order.ErrCannotRefund)
	_, final, err := m.Refund(ctx, o.ID, order.RefundRequest{Amount: dec("70.00")})
	require.NoError(t, err)
	require.Equal(t, order.StatusRefunded, final.Status)
	require.True(t, final.Totals.Total.Equal(dec("120.00")))

	refunds, err := m.Refunds(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, refunds, 2)
	require.True(t, order.RefundedTotal(refunds).Equal(dec("120.00")))

	require.Contains(t, emitter.topics, events.TopicOrderPaid)
	require.Contains(t, emitter.topics, events.TopicOrderCompleted)
	require.Contains(t, emitter.topics, events.TopicRefundCreated)
	require.Equal(t, events.TopicOrderStatusChanged, emitter.topics[len(emitter.topics)-1])
}

func TestManagerCancelReleasesStock(t *testing.T) {
	m, repo, emitter, stock := newManager(t)
	ctx := context.Background()
	o := newOrder()
	require.NoError(t, repo.Create(ctx, o))

	cancelled, err := m.Cancel(ctx, o.ID, "customer changed mind", "customer")
	require.NoError(t, err)
	require.Equal(t, order.StatusCancelled, cancelled.Status)
	require.Equal(t, []uuid.UUID{o.ID}, stock.released)
	require.Equal(t, []string{events.TopicOrderStatusChanged, events.TopicOrderCancelled}, emitter.topics)

	_, err = m.UpdateStatus(ctx, o.ID, order.StatusCompleted, "", "")
	require.ErrorIs(t, err, order.ErrInvalidStatusTransition)

	_, err = m.Get(ctx, uuid.New())
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestManagerEditAndNotes(t *testing.T) {
	m, repo, _, _ := newManager(t)
	ctx := context.Background()
	o := newOrder()
	require.NoError(t, repo.Create(ctx, o))

	edited, err := m.Edit(ctx, o.ID, func(o *order.Order, now time.Time) error {
		_, err := o.AddFeeLine(order.FeeLine{Name: "Gift wrap", Amount: dec("5.00")}, now)
		return err
	})
	require.NoError(t, err)
	require.True(t, edited.Totals.Total.Equal(dec("125.00")))

	note, err := m.AddNote(ctx, o.ID, "  Leave at the door ", true, "customer")
	require.NoError(t, err)
	require.Equal(t, "Leave at the door", note.Content)

	stored, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, stored.CustomerNotes(), 1)
	require.Equal(t, 2, stored.Version)

	counts, err := m.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, counts[order.StatusProcessing])
}
