package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/toko-engine/internal/events"
	"github.com/noah-isme/toko-engine/internal/obs"
)

// Repository persists orders and their refund ledger.
type Repository interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id uuid.UUID) (Order, error)
	GetByNumber(ctx context.Context, number string) (Order, error)
	// Update stores o when the stored version equals o.Version and bumps it.
	Update(ctx context.Context, o Order) error
	ListRefunds(ctx context.Context, orderID uuid.UUID) ([]Refund, error)
	InsertRefund(ctx context.Context, r Refund) error
	CountByStatus(ctx context.Context, status Status) (int, error)
}

// Locker serialises writes per order id. lock.Locker satisfies it.
type Locker interface {
	OrderKey(orderID uuid.UUID) string
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// StockSettler finalises stock held at checkout. inventory.Reserver satisfies it.
type StockSettler interface {
	Commit(ctx context.Context, orderID uuid.UUID) error
	Release(ctx context.Context, orderID uuid.UUID) error
}

// Manager applies lifecycle operations to stored orders.
type Manager struct {
	Repo    Repository
	Locker  Locker
	Events  events.Emitter
	Stock   StockSettler
	LockTTL time.Duration
	Now     func() time.Time
	Logger  zerolog.Logger
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func (m *Manager) lockTTL() time.Duration {
	if m.LockTTL > 0 {
		return m.LockTTL
	}
	return 10 * time.Second
}

// Get loads an order.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	return m.Repo.Get(ctx, id)
}

// withLock runs fn holding the order lock when a locker is configured.
func (m *Manager) withLock(ctx context.Context, id uuid.UUID, fn func(context.Context) error) error {
	if m.Locker == nil {
		return fn(ctx)
	}
	return m.Locker.WithLock(ctx, m.Locker.OrderKey(id), m.lockTTL(), fn)
}

// mutate loads the order, applies fn and stores the result under the lock.
func (m *Manager) mutate(ctx context.Context, id uuid.UUID, fn func(o *Order, now time.Time) error) (Order, error) {
	var out Order
	err := m.withLock(ctx, id, func(ctx context.Context) error {
		o, err := m.Repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&o, m.now()); err != nil {
			return err
		}
		if err := m.Repo.Update(ctx, o); err != nil {
			return fmt.Errorf("order: update %s: %w", o.Number, err)
		}
		o.Version++
		out = o
		return nil
	})
	return out, err
}

// UpdateStatus transitions the order and settles held stock where the new
// status makes that final.
func (m *Manager) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, note, actor string) (Order, error) {
	ctx, span := obs.Tracer("order").Start(ctx, "order.update_status", trace.WithAttributes(
		attribute.String("order.id", id.String()),
		attribute.String("order.to", string(to)),
	))
	var from Status
	o, err := m.mutate(ctx, id, func(o *Order, now time.Time) error {
		from = o.Status
		return o.UpdateStatus(to, note, actor, now)
	})
	obs.EndSpan(span, err)
	if err != nil {
		return Order{}, err
	}
	if from != to {
		m.afterTransition(ctx, o, from)
	}
	return o, nil
}

// MarkPaid records the transaction and moves the order to processing.
func (m *Manager) MarkPaid(ctx context.Context, id uuid.UUID, transactionID, actor string) (Order, error) {
	var from Status
	o, err := m.mutate(ctx, id, func(o *Order, now time.Time) error {
		if o.IsPaid() {
			return ErrAlreadyPaid
		}
		from = o.Status
		o.TransactionID = transactionID
		return o.UpdateStatus(StatusProcessing, "Payment received", actor, now)
	})
	if err != nil {
		return Order{}, err
	}
	m.afterTransition(ctx, o, from)
	return o, nil
}

// Cancel moves the order to cancelled.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID, reason, actor string) (Order, error) {
	return m.UpdateStatus(ctx, id, StatusCancelled, reason, actor)
}

// AddNote appends a note to the order log.
func (m *Manager) AddNote(ctx context.Context, id uuid.UUID, content string, customerNote bool, author string) (Note, error) {
	var note Note
	_, err := m.mutate(ctx, id, func(o *Order, now time.Time) error {
		note = o.AddNote(content, customerNote, author, now)
		return nil
	})
	return note, err
}

// Edit applies line edits; fn should call the Order editing methods, which
// fail with ErrOrderLocked outside editable states.
func (m *Manager) Edit(ctx context.Context, id uuid.UUID, fn func(o *Order, now time.Time) error) (Order, error) {
	o, err := m.mutate(ctx, id, fn)
	if err != nil {
		return Order{}, err
	}
	m.emit(ctx, events.TopicOrderUpdated, o, map[string]any{
		"number": o.Number,
		"total":  o.Totals.Total.StringFixed(o.scale()),
	})
	return o, nil
}

// Refund appends a refund to the ledger. Once nothing is left to refund the
// order moves to refunded when that transition is allowed.
func (m *Manager) Refund(ctx context.Context, id uuid.UUID, req RefundRequest) (Refund, Order, error) {
	ctx, span := obs.Tracer("order").Start(ctx, "order.refund", trace.WithAttributes(
		attribute.String("order.id", id.String()),
		attribute.String("refund.amount", req.Amount.String()),
	))
	var (
		refund Refund
		from   Status
	)
	o, err := m.mutate(ctx, id, func(o *Order, now time.Time) error {
		existing, err := m.Repo.ListRefunds(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("order: list refunds: %w", err)
		}
		refund, err = CreateRefund(*o, existing, req, now)
		if err != nil {
			return err
		}
		if err := m.Repo.InsertRefund(ctx, refund); err != nil {
			return fmt.Errorf("order: insert refund: %w", err)
		}
		from = o.Status
		o.AddNote(fmt.Sprintf("Refunded %s", refund.Amount.StringFixed(o.scale())), false, req.Actor, now)
		remaining := RemainingRefundable(*o, append(existing, refund))
		if remaining.IsZero() && CanTransition(o.Status, StatusRefunded) {
			return o.UpdateStatus(StatusRefunded, "", req.Actor, now)
		}
		o.UpdatedAt = now
		return nil
	})
	obs.EndSpan(span, err)
	if err != nil {
		obs.Inc(obs.RefundsTotal, "rejected")
		return Refund{}, Order{}, err
	}
	obs.Inc(obs.RefundsTotal, "created")
	m.Logger.Info().
		Str("order_number", o.Number).
		Str("amount", refund.Amount.String()).
		Str("reason", refund.Reason).
		Msg("refund_created")
	m.emit(ctx, events.TopicRefundCreated, o, map[string]any{
		"refund_id": refund.ID,
		"number":    o.Number,
		"amount":    refund.Amount.StringFixed(o.scale()),
		"reason":    refund.Reason,
	})
	if o.Status != from {
		m.afterTransition(ctx, o, from)
	}
	return refund, o, nil
}

// Refunds lists the ledger of an order.
func (m *Manager) Refunds(ctx context.Context, id uuid.UUID) ([]Refund, error) {
	return m.Repo.ListRefunds(ctx, id)
}

// Counts returns how many orders need attention.
func (m *Manager) Counts(ctx context.Context) (map[Status]int, error) {
	out := make(map[Status]int, 2)
	for _, s := range []Status{StatusProcessing, StatusOnHold} {
		n, err := m.Repo.CountByStatus(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("order: count %s: %w", s, err)
		}
		out[s] = n
	}
	return out, nil
}

func (m *Manager) afterTransition(ctx context.Context, o Order, from Status) {
	obs.Inc(obs.OrderTransitionsTotal, string(from), string(o.Status))
	m.Logger.Info().
		Str("order_number", o.Number).
		Str("from", string(from)).
		Str("to", string(o.Status)).
		Msg("order_status_changed")

	if m.Stock != nil {
		var err error
		switch o.Status {
		case StatusProcessing:
			err = m.Stock.Commit(ctx, o.ID)
		case StatusCancelled, StatusFailed:
			err = m.Stock.Release(ctx, o.ID)
		}
		if err != nil {
			m.Logger.Warn().Err(err).Str("order_number", o.Number).Msg("stock_settle_failed")
		}
	}

	payload := map[string]any{
		"number": o.Number,
		"from":   from,
		"to":     o.Status,
		"total":  o.Totals.Total.StringFixed(o.scale()),
	}
	m.emit(ctx, events.TopicOrderStatusChanged, o, payload)
	switch o.Status {
	case StatusProcessing:
		m.emit(ctx, events.TopicOrderPaid, o, payload)
	case StatusCancelled:
		m.emit(ctx, events.TopicOrderCancelled, o, payload)
	case StatusCompleted:
		m.emit(ctx, events.TopicOrderCompleted, o, payload)
	}
}

func (m *Manager) emit(ctx context.Context, topic string, o Order, payload any) {
	if m.Events == nil {
		return
	}
	if _, err := m.Events.Emit(ctx, topic, o.ID, payload); err != nil {
		m.Logger.Warn().Err(err).Str("topic", topic).Str("order_number", o.Number).Msg("order_event_failed")
	}
}
