package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ResultStatus is the outcome reported by a gateway.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultPending ResultStatus = "pending"
	ResultFailed  ResultStatus = "failed"
)

// Request describes the charge for one order.
type Request struct {
	OrderID     uuid.UUID
	OrderNumber string
	Amount      decimal.Decimal
	Currency    string
	Email       string
	ReturnURL   string
}

// Result is what a gateway returns for a charge. ActionURL is set when the
// shopper must complete the payment elsewhere.
type Result struct {
	Status        ResultStatus `json:"status"`
	TransactionID string       `json:"transaction_id,omitempty"`
	Error         string       `json:"error,omitempty"`
	ActionURL     string       `json:"action_url,omitempty"`
	Message       string       `json:"message,omitempty"`
}

// Success reports whether payment was captured.
func (r Result) Success() bool { return r.Status == ResultSuccess }

// RefundRequest asks a gateway to return money.
type RefundRequest struct {
	OrderID       uuid.UUID
	TransactionID string
	Amount        decimal.Decimal
	Reason        string
}

// RefundResult reports how a refund was handled. Manual refunds must be paid
// out by staff.
type RefundResult struct {
	Manual    bool   `json:"manual"`
	Reference string `json:"reference,omitempty"`
}

// Gateway is a payment method.
type Gateway interface {
	ID() string
	Title() string
	Process(ctx context.Context, req Request) (Result, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// GatewayError wraps a transport or provider failure.
type GatewayError struct {
	Gateway string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment: gateway %s: %v", e.Gateway, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

var (
	// ErrUnknownGateway is returned for unregistered payment methods.
	ErrUnknownGateway = errors.New("payment: unknown gateway")
	// ErrInvalidAmount rejects non-positive charges.
	ErrInvalidAmount = errors.New("payment: amount must be positive")
)

// Offline is a gateway settled outside the engine: charges stay pending until
// staff confirm them and refunds are manual.
type Offline struct {
	GatewayID    string
	GatewayTitle string
	Instructions string
}

// COD is cash on delivery.
func COD() Offline {
	return Offline{GatewayID: "cod", GatewayTitle: "Cash on delivery", Instructions: "Pay with cash upon delivery."}
}

// BACS is a direct bank transfer to the given account.
func BACS(accountDetails string) Offline {
	instructions := "Make your payment directly into our bank account. Please use your order number as the payment reference."
	if strings.TrimSpace(accountDetails) != "" {
		instructions += " " + strings.TrimSpace(accountDetails)
	}
	return Offline{GatewayID: "bacs", GatewayTitle: "Direct bank transfer", Instructions: instructions}
}

func (g Offline) ID() string    { return g.GatewayID }
func (g Offline) Title() string { return g.GatewayTitle }

// Process leaves the order awaiting manual confirmation.
func (g Offline) Process(_ context.Context, req Request) (Result, error) {
	if !req.Amount.IsPositive() {
		return Result{Status: ResultFailed, Error: ErrInvalidAmount.Error()}, nil
	}
	return Result{Status: ResultPending, Message: g.Instructions}, nil
}

// Refund is always manual.
func (g Offline) Refund(_ context.Context, req RefundRequest) (RefundResult, error) {
	if !req.Amount.IsPositive() {
		return RefundResult{}, ErrInvalidAmount
	}
	return RefundResult{Manual: true}, nil
}

// Registry holds the enabled gateways in display order.
type Registry struct {
	order    []string
	gateways map[string]Gateway
}

// NewRegistry registers gateways; later duplicates replace earlier ones.
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.Register(g)
	}
	return r
}

// Register adds or replaces a gateway.
func (r *Registry) Register(g Gateway) {
	id := strings.ToLower(strings.TrimSpace(g.ID()))
	if _, ok := r.gateways[id]; !ok {
		r.order = append(r.order, id)
	}
	r.gateways[id] = g
}

// Get resolves a payment method id.
func (r *Registry) Get(id string) (Gateway, error) {
	if r == nil {
		return nil, ErrUnknownGateway
	}
	g, ok := r.gateways[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, id)
	}
	return g, nil
}

// Available lists gateways in registration order.
func (r *Registry) Available() []Gateway {
	out := make([]Gateway, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.gateways[id])
	}
	return out
}
