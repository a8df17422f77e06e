package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	orderColumns = `id, user_id, status, created_at, updated_at, items,
		subtotal, shipping_charge, discount_amount, total_amount, payment_method,
		coupon_id, coupon_code, shipping_address, address,
		provider_order_id, provider_payment_id, awb, tracking_steps, cancel_reason`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	updateOrderStatusSQL = `UPDATE orders
		SET status = $2, updated_at = $3, tracking_steps = $4,
			provider_payment_id = $5, awb = $6, cancel_reason = $7
		WHERE id = $1 AND status = $8`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
// Items, the address snapshot and milestones are stored as JSONB.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	addressJSON, err := json.Marshal(o.Address)
	if err != nil {
		return fmt.Errorf("marshaling order address: %w", err)
	}
	stepsJSON, err := marshalSteps(o.TrackingSteps)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, string(o.Status), o.CreatedAt, o.UpdatedAt, itemsJSON,
		o.Subtotal, o.ShippingCharge, o.DiscountAmount, o.TotalAmount, string(o.PaymentMethod),
		o.CouponID, o.CouponCode, o.ShippingAddress, addressJSON,
		o.ProviderOrderID, o.ProviderPaymentID, o.AWB, stepsJSON, o.CancelReason,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns the order with the given id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListByUser returns userID's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	list, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	return list, nil
}

// UpdateStatus writes the mutable fields of o if the stored status is still
// from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, o *order.Order, from order.Status) error {
	stepsJSON, err := marshalSteps(o.TrackingSteps)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL,
		o.ID, string(o.Status), o.UpdatedAt, stepsJSON,
		o.ProviderPaymentID, o.AWB, o.CancelReason, string(from),
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, o.ID).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", o.ID, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrConflict
}

func marshalSteps(steps []order.Milestone) ([]byte, error) {
	if steps == nil {
		steps = []order.Milestone{}
	}
	data, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("marshaling tracking steps: %w", err)
	}
	return data, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                     order.Order
		status, method        string
		items, address, steps []byte
	)
	if err := row.Scan(
		&o.ID, &o.UserID, &status, &o.CreatedAt, &o.UpdatedAt, &items,
		&o.Subtotal, &o.ShippingCharge, &o.DiscountAmount, &o.TotalAmount, &method,
		&o.CouponID, &o.CouponCode, &o.ShippingAddress, &address,
		&o.ProviderOrderID, &o.ProviderPaymentID, &o.AWB, &steps, &o.CancelReason,
	); err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(method)

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items of %q: %w", o.ID, err)
	}
	if err := json.Unmarshal(address, &o.Address); err != nil {
		return o, fmt.Errorf("unmarshaling address of %q: %w", o.ID, err)
	}
	if err := json.Unmarshal(steps, &o.TrackingSteps); err != nil {
		return o, fmt.Errorf("unmarshaling tracking steps of %q: %w", o.ID, err)
	}
	return o, nil
}
