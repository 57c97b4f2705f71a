package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrUsageNotFound is returned by repositories when no usage exists for an order.
var ErrUsageNotFound = errors.New("coupon usage not found")

// Usage records one redemption of a coupon by an order.
type Usage struct {
	ID             uuid.UUID       `json:"id"`
	CouponID       uuid.UUID       `json:"coupon_id"`
	OrderID        uuid.UUID       `json:"order_id"`
	UserID         *uuid.UUID      `json:"user_id,omitempty"`
	Email          string          `json:"email,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	UsedAt         time.Time       `json:"used_at"`
}

// Repository captures the persistence methods required by the coupon service.
type Repository interface {
	FindByCode(ctx context.Context, code string) (Coupon, error)
	CountUsageByUser(ctx context.Context, couponID, userID uuid.UUID) (int, error)
	GetUsageByOrder(ctx context.Context, couponID, orderID uuid.UUID) (Usage, error)
	InsertUsage(ctx context.Context, u Usage) error
	IncreaseUsageCount(ctx context.Context, couponID uuid.UUID) error
}

// Applied is the outcome of a successful evaluation.
type Applied struct {
	Coupon   Coupon          `json:"coupon"`
	Discount decimal.Decimal `json:"discount"`
}

// Service loads coupons and evaluates them against a cart context.
type Service struct {
	Repo   Repository
	Now    func() time.Time
	Logger zerolog.Logger
}

// Lookup fetches a coupon by code. Repositories return ErrNotFound when no
// coupon matches.
func (s *Service) Lookup(ctx context.Context, code string) (Coupon, error) {
	if s == nil || s.Repo == nil {
		return Coupon{}, errors.New("coupon service not configured")
	}
	normalised := NormaliseCode(code)
	if normalised == "" {
		return Coupon{}, ErrInvalidCode
	}
	c, err := s.Repo.FindByCode(ctx, normalised)
	if err != nil {
		return Coupon{}, err
	}
	return c, nil
}

// Evaluate validates the coupon for the given context and computes the
// discount without mutating any state.
func (s *Service) Evaluate(ctx context.Context, code string, cc Context) (Applied, error) {
	c, err := s.Lookup(ctx, code)
	if err != nil {
		return Applied{}, err
	}
	if c.UsageLimitPerUser != nil && cc.UserID != nil {
		used, err := s.Repo.CountUsageByUser(ctx, c.ID, *cc.UserID)
		if err != nil {
			return Applied{}, fmt.Errorf("coupon: count usage: %w", err)
		}
		cc.UserUsage = used
	}
	if err := c.Validate(cc, s.now()); err != nil {
		return Applied{}, err
	}
	return Applied{Coupon: c, Discount: c.Discount(cc)}, nil
}

// UserUsage counts the orders in which the user already redeemed the coupon.
func (s *Service) UserUsage(ctx context.Context, couponID, userID uuid.UUID) (int, error) {
	if s == nil || s.Repo == nil {
		return 0, errors.New("coupon service not configured")
	}
	n, err := s.Repo.CountUsageByUser(ctx, couponID, userID)
	if err != nil {
		return 0, fmt.Errorf("coupon: count usage: %w", err)
	}
	return n, nil
}

// RecordUsage stores a redemption for the order. Recording the same coupon
// for the same order twice is a no-op.
func (s *Service) RecordUsage(ctx context.Context, code string, orderID uuid.UUID, userID *uuid.UUID, email string, amount decimal.Decimal) error {
	if s == nil || s.Repo == nil {
		return errors.New("coupon service not configured")
	}
	if strings.TrimSpace(code) == "" || orderID == uuid.Nil {
		return nil
	}
	c, err := s.Repo.FindByCode(ctx, NormaliseCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	_, err = s.Repo.GetUsageByOrder(ctx, c.ID, orderID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUsageNotFound) {
		return err
	}
	usage := Usage{
		ID:             uuid.New(),
		CouponID:       c.ID,
		OrderID:        orderID,
		UserID:         userID,
		Email:          email,
		DiscountAmount: amount,
		UsedAt:         s.now(),
	}
	if err := s.Repo.InsertUsage(ctx, usage); err != nil {
		return err
	}
	if err := s.Repo.IncreaseUsageCount(ctx, c.ID); err != nil {
		return fmt.Errorf("coupon: increase usage count: %w", err)
	}
	s.Logger.Info().
		Str("coupon", c.Code).
		Str("order_id", orderID.String()).
		Str("amount", amount.String()).
		Msg("coupon_usage_recorded")
	return nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
