package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/toko-engine/internal/events"
	"github.com/noah-isme/toko-engine/internal/obs"
	"github.com/noah-isme/toko-engine/internal/order"
	"github.com/noah-isme/toko-engine/internal/resilience"
)

// Orders is the slice of order.Manager the processor drives.
type Orders interface {
	Get(ctx context.Context, id uuid.UUID) (order.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID, transactionID, actor string) (order.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to order.Status, note, actor string) (order.Order, error)
}

// Processor charges orders through their gateway and moves them along the
// lifecycle: success to processing, pending to on_hold, failure to failed.
type Processor struct {
	Gateways *Registry
	Orders   Orders
	// Breakers guards each gateway; nil disables the breaker.
	Breakers  *resilience.Set
	Events    events.Emitter
	ReturnURL string
	Logger    zerolog.Logger
}

// Pay charges the order's chosen payment method.
func (p *Processor) Pay(ctx context.Context, orderID uuid.UUID) (Result, order.Order, error) {
	ctx, span := obs.Tracer("payment").Start(ctx, "payment.pay", trace.WithAttributes(
		attribute.String("order.id", orderID.String()),
	))
	res, o, err := p.pay(ctx, orderID)
	span.SetAttributes(attribute.String("payment.result", string(res.Status)))
	obs.EndSpan(span, err)
	return res, o, err
}

func (p *Processor) pay(ctx context.Context, orderID uuid.UUID) (Result, order.Order, error) {
	if p.Orders == nil {
		return Result{}, order.Order{}, errors.New("payment: orders not configured")
	}
	o, err := p.Orders.Get(ctx, orderID)
	if err != nil {
		return Result{}, order.Order{}, err
	}
	if o.IsPaid() {
		return Result{}, o, order.ErrAlreadyPaid
	}
	gw, err := p.Gateways.Get(o.PaymentMethod)
	if err != nil {
		return Result{}, o, err
	}
	req := Request{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Amount:      o.Totals.Total,
		Currency:    o.Currency,
		Email:       o.Billing.Email,
		ReturnURL:   p.ReturnURL,
	}

	var res Result
	call := func(ctx context.Context) error {
		var err error
		res, err = gw.Process(ctx, req)
		return err
	}
	start := time.Now()
	if p.Breakers != nil {
		err = p.Breakers.Get(gw.ID()).Do(ctx, call)
	} else {
		err = call(ctx)
	}
	obs.ObserveMillis(obs.PaymentLatency, obs.DurationMillis(time.Since(start)), gw.ID())
	if err != nil {
		outcome := "error"
		if errors.Is(err, resilience.ErrOpenCircuit) {
			outcome = "circuit_open"
		}
		obs.Inc(obs.PaymentAttemptsTotal, gw.ID(), outcome)
		p.Logger.Warn().Err(err).Str("gateway", gw.ID()).Str("order_number", o.Number).Msg("payment_gateway_error")
		if errors.Is(err, resilience.ErrOpenCircuit) {
			return Result{}, o, err
		}
		return Result{}, o, &GatewayError{Gateway: gw.ID(), Err: err}
	}
	obs.Inc(obs.PaymentAttemptsTotal, gw.ID(), string(res.Status))

	switch res.Status {
	case ResultSuccess:
		o, err = p.Orders.MarkPaid(ctx, o.ID, res.TransactionID, gw.ID())
	case ResultPending:
		note := res.Message
		if note == "" {
			note = fmt.Sprintf("Awaiting %s payment", gw.Title())
		}
		o, err = p.Orders.UpdateStatus(ctx, o.ID, order.StatusOnHold, note, gw.ID())
	default:
		reason := res.Error
		if reason == "" {
			reason = "Payment failed"
		}
		o, err = p.Orders.UpdateStatus(ctx, o.ID, order.StatusFailed, reason, gw.ID())
		p.emitFailure(ctx, orderID, gw.ID(), reason)
	}
	if err != nil {
		return res, order.Order{}, err
	}
	p.Logger.Info().
		Str("order_number", o.Number).
		Str("gateway", gw.ID()).
		Str("result", string(res.Status)).
		Msg("payment_processed")
	return res, o, nil
}

// Refund asks the order's gateway to return money for a recorded refund.
func (p *Processor) Refund(ctx context.Context, o order.Order, r order.Refund) (RefundResult, error) {
	gw, err := p.Gateways.Get(o.PaymentMethod)
	if err != nil {
		return RefundResult{}, err
	}
	res, err := gw.Refund(ctx, RefundRequest{
		OrderID:       o.ID,
		TransactionID: o.TransactionID,
		Amount:        r.Amount,
		Reason:        r.Reason,
	})
	if err != nil {
		return RefundResult{}, &GatewayError{Gateway: gw.ID(), Err: err}
	}
	return res, nil
}

func (p *Processor) emitFailure(ctx context.Context, orderID uuid.UUID, gateway, reason string) {
	if p.Events == nil {
		return
	}
	payload := map[string]any{"gateway": gateway, "reason": reason}
	if _, err := p.Events.Emit(ctx, events.TopicPaymentFailed, orderID, payload); err != nil {
		p.Logger.Warn().Err(err).Str("order_id", orderID.String()).Msg("payment_event_failed")
	}
}
