package payment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-engine/internal/events"
	"github.com/noah-isme/toko-engine/internal/order"
	"github.com/noah-isme/toko-engine/internal/payment"
	"github.com/noah-isme/toko-engine/internal/resilience"
)

var now = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type memOrders struct {
	orders map[uuid.UUID]order.Order
}

func (m *memOrders) Get(_ context.Context, id uuid.UUID) (order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (m *memOrders) MarkPaid(ctx context.Context, id uuid.UUID, txn, actor string) (order.Order, error) {
	o, err := m.Get(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	o.TransactionID = txn
	if err := o.UpdateStatus(order.StatusProcessing, "", actor, now); err != nil {
		return order.Order{}, err
	}
	m.orders[id] = o
	return o, nil
}

func (m *memOrders) UpdateStatus(ctx context.Context, id uuid.UUID, to order.Status, note, actor string) (order.Order, error) {
	o, err := m.Get(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	if err := o.UpdateStatus(to, note, actor, now); err != nil {
		return order.Order{}, err
	}
	m.orders[id] = o
	return o, nil
}

type stubGateway struct {
	result payment.Result
	err    error
	calls  int
}

func (g *stubGateway) ID() string    { return "card" }
func (g *stubGateway) Title() string { return "Card" }

func (g *stubGateway) Process(context.Context, payment.Request) (payment.Result, error) {
	g.calls++
	return g.result, g.err
}

func (g *stubGateway) Refund(context.Context, payment.RefundRequest) (payment.RefundResult, error) {
	return payment.RefundResult{Reference: "re_1"}, nil
}

type captureEmitter struct {
	topics []string
}

func (c *captureEmitter) Emit(_ context.Context, topic string, id uuid.UUID, _ any) (events.Event, error) {
	c.topics = append(c.topics, topic)
	return events.Event{ID: uuid.New(), Topic: topic, AggregateID: id}, nil
}

func pendingOrder(method string) order.Order {
	return order.Order{
		ID:            uuid.New(),
		Number:        "RC-20240315-0007",
		Status:        order.StatusPending,
		PaymentMethod: method,
		Scale:         2,
		Totals:        order.Totals{Total: decimal.RequireFromString("120.00")},
	}
}

func setup(gateways ...payment.Gateway) (*payment.Processor, *memOrders, *captureEmitter) {
	orders := &memOrders{orders: map[uuid.UUID]order.Order{}}
	emitter := &captureEmitter{}
	p := &payment.Processor{
		Gateways: payment.NewRegistry(gateways...),
		Orders:   orders,
		Breakers: resilience.NewSet(1, 0.5, time.Minute),
		Events:   emitter,
	}
	return p, orders, emitter
}

func TestOfflineGatewayPutsOrderOnHold(t *testing.T) {
	p, orders, _ := setup(payment.COD(), payment.BACS("IBAN DE00 1234"))
	o := pendingOrder("BACS")
	orders.orders[o.ID] = o

	res, updated, err := p.Pay(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, payment.ResultPending, res.Status)
	require.Contains(t, res.Message, "IBAN DE00 1234")
	require.Equal(t, order.StatusOnHold, updated.Status)
	require.Len(t, updated.Notes, 1)

	refund, err := p.Refund(context.Background(), updated, order.Refund{Amount: decimal.RequireFromString("10")})
	require.NoError(t, err)
	require.True(t, refund.Manual)
}

func TestSuccessfulPaymentMarksOrderPaid(t *testing.T) {
	gw := &stubGateway{result: payment.Result{Status: payment.ResultSuccess, TransactionID: "ch_42"}}
	p, orders, _ := setup(gw)
	o := pendingOrder("card")
	orders.orders[o.ID] = o

	_, paid, err := p.Pay(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusProcessing, paid.Status)
	require.Equal(t, "ch_42", paid.TransactionID)
	require.NotNil(t, paid.PaidAt)

	_, _, err = p.Pay(context.Background(), o.ID)
	require.ErrorIs(t, err, order.ErrAlreadyPaid)
	require.Equal(t, 1, gw.calls)
}

func TestFailedPaymentEmitsEvent(t *testing.T) {
	gw := &stubGateway{result: payment.Result{Status: payment.ResultFailed, Error: "card declined"}}
	p, orders, emitter := setup(gw)
	o := pendingOrder("card")
	orders.orders[o.ID] = o

	res, failed, err := p.Pay(context.Background(), o.ID)
	require.NoError(t, err)
	require.False(t, res.Success())
	require.Equal(t, order.StatusFailed, failed.Status)
	require.Equal(t, []string{events.TopicPaymentFailed}, emitter.topics)
}

func TestGatewayErrorsOpenBreaker(t *testing.T) {
	gw := &stubGateway{err: errors.New("connection reset")}
	p, orders, _ := setup(gw)
	o := pendingOrder("card")
	orders.orders[o.ID] = o

	_, _, err := p.Pay(context.Background(), o.ID)
	var gerr *payment.GatewayError
	require.True(t, errors.As(err, &gerr))
	require.Equal(t, "card", gerr.Gateway)

	_, _, err = p.Pay(context.Background(), o.ID)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, 1, gw.calls)
	require.Equal(t, order.StatusPending, orders.orders[o.ID].Status)
}

func TestRegistry(t *testing.T) {
	reg := payment.NewRegistry(payment.COD(), payment.BACS(""))
	_, err := reg.Get("paypal")
	require.ErrorIs(t, err, payment.ErrUnknownGateway)

	gw, err := reg.Get(" COD ")
	require.NoError(t, err)
	require.Equal(t, "Cash on delivery", gw.Title())

	ids := []string{}
	for _, g := range reg.Available() {
		ids = append(ids, g.ID())
	}
	require.Equal(t, []string{"cod", "bacs"}, ids)

	res, err := payment.COD().Process(context.Background(), payment.Request{Amount: decimal.Zero})
	require.NoError(t, err)
	require.Equal(t, payment.ResultFailed, res.Status)
}
