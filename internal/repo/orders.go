package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-engine/internal/order"
)

const uniqueViolation = "23505"

// Orders stores order snapshots as JSONB with an optimistic version column.
type Orders struct {
	DB DBTX
}

func (r Orders) Create(ctx context.Context, o order.Order) error {
	if r.DB == nil {
		return ErrNotConfigured
	}
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("repo: encode order: %w", err)
	}
	_, err = r.DB.Exec(ctx, `INSERT INTO orders (id, number, status, customer_id, total, version, data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.Number, string(o.Status), nullableUUID(o.CustomerID), o.Totals.Total.String(), o.Version, data, o.CreatedAt, o.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", order.ErrDuplicateNumber, o.Number)
	}
	if err != nil {
		return fmt.Errorf("repo: insert order: %w", err)
	}
	return nil
}

func (r Orders) Get(ctx context.Context, id uuid.UUID) (order.Order, error) {
	if r.DB == nil {
		return order.Order{}, ErrNotConfigured
	}
	return scanOrder(r.DB.QueryRow(ctx, `SELECT data, version FROM orders WHERE id = $1`, id))
}

func (r Orders) GetByNumber(ctx context.Context, number string) (order.Order, error) {
	if r.DB == nil {
		return order.Order{}, ErrNotConfigured
	}
	return scanOrder(r.DB.QueryRow(ctx, `SELECT data, version FROM orders WHERE number = $1`, number))
}

// Update writes o when the stored version still equals o.Version.
func (r Orders) Update(ctx context.Context, o order.Order) error {
	if r.DB == nil {
		return ErrNotConfigured
	}
	next := o
	next.Version = o.Version + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("repo: encode order: %w", err)
	}
	tag, err := r.DB.Exec(ctx, `UPDATE orders SET status = $3, total = $4, data = $5, version = version + 1, updated_at = $6
WHERE id = $1 AND version = $2`, o.ID, o.Version, string(o.Status), o.Totals.Total.String(), data, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repo: update order: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
		return fmt.Errorf("repo: check order: %w", err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrConcurrentUpdate
}

func (r Orders) ListRefunds(ctx context.Context, orderID uuid.UUID) ([]order.Refund, error) {
	if r.DB == nil {
		return nil, ErrNotConfigured
	}
	rows, err := r.DB.Query(ctx, `SELECT id, order_id, amount::text, reason, actor, items, created_at
FROM order_refunds WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("repo: list refunds: %w", err)
	}
	defer rows.Close()

	var out []order.Refund
	for rows.Next() {
		var (
			ref    order.Refund
			amount string
			items  []byte
		)
		if err := rows.Scan(&ref.ID, &ref.OrderID, &amount, &ref.Reason, &ref.Actor, &items, &ref.CreatedAt); err != nil {
			return nil, err
		}
		if ref.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("repo: decode refund amount: %w", err)
		}
		if len(items) > 0 {
			if err := json.Unmarshal(items, &ref.Items); err != nil {
				return nil, fmt.Errorf("repo: decode refund items: %w", err)
			}
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (r Orders) InsertRefund(ctx context.Context, ref order.Refund) error {
	if r.DB == nil {
		return ErrNotConfigured
	}
	items := ref.Items
	if items == nil {
		items = []order.RefundItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("repo: encode refund items: %w", err)
	}
	_, err = r.DB.Exec(ctx, `INSERT INTO order_refunds (id, order_id, amount, reason, actor, items, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, ref.ID, ref.OrderID, ref.Amount.String(), ref.Reason, ref.Actor, data, ref.CreatedAt)
	if err != nil {
		return fmt.Errorf("repo: insert refund: %w", err)
	}
	return nil
}

func (r Orders) CountByStatus(ctx context.Context, status order.Status) (int, error) {
	if r.DB == nil {
		return 0, ErrNotConfigured
	}
	var n int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE status = $1`, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("repo: count orders: %w", err)
	}
	return n, nil
}

func scanOrder(row pgx.Row) (order.Order, error) {
	var (
		data    []byte
		version int
	)
	err := row.Scan(&data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return order.Order{}, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("repo: get order: %w", err)
	}
	var o order.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return order.Order{}, fmt.Errorf("repo: decode order: %w", err)
	}
	o.Version = version
	return o, nil
}
