package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-engine/internal/coupon"
)

// Coupons persists coupons and their redemptions. The usage_count column is
// authoritative over the count embedded in the document.
type Coupons struct {
	DB DBTX
}

// FindByCode looks the coupon up case-insensitively.
func (r Coupons) FindByCode(ctx context.Context, code string) (coupon.Coupon, error) {
	if r.DB == nil {
		return coupon.Coupon{}, ErrNotConfigured
	}
	var (
		data  []byte
		count int
	)
	err := r.DB.QueryRow(ctx, `SELECT data, usage_count FROM coupons WHERE lower(code) = lower($1)`, code).Scan(&data, &count)
	if errors.Is(err, pgx.ErrNoRows) {
		return coupon.Coupon{}, coupon.ErrNotFound
	}
	if err != nil {
		return coupon.Coupon{}, fmt.Errorf("repo: find coupon: %w", err)
	}
	var c coupon.Coupon
	if err := json.Unmarshal(data, &c); err != nil {
		return coupon.Coupon{}, fmt.Errorf("repo: decode coupon: %w", err)
	}
	c.UsageCount = count
	return c, nil
}

// SaveCoupon upserts a coupon document. The stored usage count is kept.
func (r Coupons) SaveCoupon(ctx context.Context, c coupon.Coupon) error {
	if r.DB == nil {
		return ErrNotConfigured
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("repo: encode coupon: %w", err)
	}
	_, err = r.DB.Exec(ctx, `INSERT INTO coupons (id, code, status, usage_count, data)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, status = EXCLUDED.status,
    data = EXCLUDED.data, updated_at = now()`, c.ID, c.Code, string(c.Status), c.UsageCount, data)
	if err != nil {
		return fmt.Errorf("repo: save coupon: %w", err)
	}
	return nil
}

func (r Coupons) CountUsageByUser(ctx context.Context, couponID, userID uuid.UUID) (int, error) {
	if r.DB == nil {
		return 0, ErrNotConfigured
	}
	var n int
	err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`, couponID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("repo: count coupon usage: %w", err)
	}
	return n, nil
}

func (r Coupons) GetUsageByOrder(ctx context.Context, couponID, orderID uuid.UUID) (coupon.Usage, error) {
	if r.DB == nil {
		return coupon.Usage{}, ErrNotConfigured
	}
	var (
		u      coupon.Usage
		userID pgtype.UUID
		email  pgtype.Text
		amount string
	)
	err := r.DB.QueryRow(ctx, `SELECT id, coupon_id, order_id, user_id, email, discount_amount::text, used_at
FROM coupon_usages WHERE coupon_id = $1 AND order_id = $2`, couponID, orderID).
		Scan(&u.ID, &u.CouponID, &u.OrderID, &userID, &email, &amount, &u.UsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return coupon.Usage{}, coupon.ErrUsageNotFound
	}
	if err != nil {
		return coupon.Usage{}, fmt.Errorf("repo: get coupon usage: %w", err)
	}
	u.UserID = uuidPtr(userID)
	u.Email = email.String
	if u.DiscountAmount, err = decimal.NewFromString(amount); err != nil {
		return coupon.Usage{}, fmt.Errorf("repo: decode discount amount: %w", err)
	}
	return u, nil
}

// InsertUsage records a redemption; a duplicate (coupon, order) pair is ignored.
func (r Coupons) InsertUsage(ctx context.Context, u coupon.Usage) error {
	if r.DB == nil {
		return ErrNotConfigured
	}
	_, err := r.DB.Exec(ctx, `INSERT INTO coupon_usages (id, coupon_id, order_id, user_id, email, discount_amount, used_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (coupon_id, order_id) DO NOTHING`,
		u.ID, u.CouponID, u.OrderID, nullableUUID(u.UserID), u.Email, u.DiscountAmount.String(), u.UsedAt)
	if err != nil {
		return fmt.Errorf("repo: insert coupon usage: %w", err)
	}
	return nil
}

func (r Coupons) IncreaseUsageCount(ctx context.Context, couponID uuid.UUID) error {
	if r.DB == nil {
		return ErrNotConfigured
	}
	tag, err := r.DB.Exec(ctx, `UPDATE coupons SET usage_count = usage_count + 1, updated_at = now() WHERE id = $1`, couponID)
	if err != nil {
		return fmt.Errorf("repo: increase usage count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}
