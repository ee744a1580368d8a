package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kusina-pos/api/internal/model"
)

const orderColumns = `id, items, subtotal, discount_code, discount_name, discount_amount, total,
	payment_method, status, payment_status, table_number, user_id, source, source_id,
	payment_intent_id, created_at, placed_at, updated_at, preparation_start_time,
	ready_time, completed_time, cancelled_time`

const createOrder = `INSERT INTO orders (` + orderColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
RETURNING ` + orderColumns

func (q *Queries) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return model.Order{}, fmt.Errorf("marshal items: %w", err)
	}
	row := q.db.QueryRow(ctx, createOrder,
		o.ID,
		items,
		decimalToNumeric(o.Subtotal),
		o.DiscountCode,
		o.DiscountName,
		decimalToNumeric(o.DiscountAmount),
		decimalToNumeric(o.Total),
		o.PaymentMethod,
		o.Status,
		o.PaymentStatus,
		o.TableNumber,
		o.UserID,
		o.Source,
		o.SourceID,
		o.PaymentIntentID,
		o.CreatedAt,
		o.Timestamp,
		o.UpdatedAt,
		o.PreparationStartTime,
		o.ReadyTime,
		o.CompletedTime,
		o.CancelledTime,
	)
	return scanOrder(row)
}

const getOrder = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (model.Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, getOrder, id))
	return o, notFound(err)
}

const getOrderForUpdate = getOrder + ` FOR UPDATE`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (model.Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
	return o, notFound(err)
}

const listOrders = `SELECT ` + orderColumns + ` FROM orders
WHERE ($1::text = '' OR status = $1)
ORDER BY created_at DESC, id
LIMIT $2 OFFSET $3`

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]model.Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

const updateOrder = `UPDATE orders SET
	items = $2, subtotal = $3, discount_code = $4, discount_name = $5, discount_amount = $6,
	total = $7, payment_method = $8, status = $9, payment_status = $10, table_number = $11,
	user_id = $12, source = $13, source_id = $14, payment_intent_id = $15, updated_at = $16,
	preparation_start_time = $17, ready_time = $18, completed_time = $19, cancelled_time = $20
WHERE id = $1
RETURNING ` + orderColumns

func (q *Queries) UpdateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return model.Order{}, fmt.Errorf("marshal items: %w", err)
	}
	row := q.db.QueryRow(ctx, updateOrder,
		o.ID,
		items,
		decimalToNumeric(o.Subtotal),
		o.DiscountCode,
		o.DiscountName,
		decimalToNumeric(o.DiscountAmount),
		decimalToNumeric(o.Total),
		o.PaymentMethod,
		o.Status,
		o.PaymentStatus,
		o.TableNumber,
		o.UserID,
		o.Source,
		o.SourceID,
		o.PaymentIntentID,
		o.UpdatedAt,
		o.PreparationStartTime,
		o.ReadyTime,
		o.CompletedTime,
		o.CancelledTime,
	)
	updated, err := scanOrder(row)
	return updated, notFound(err)
}

const listOrdersByPaymentIntent = `SELECT ` + orderColumns + ` FROM orders
WHERE payment_intent_id = $1
ORDER BY created_at, id
FOR UPDATE`

// ListOrdersByPaymentIntent locks the matching rows when run inside a
// transaction so concurrent webhook deliveries serialize per intent.
func (q *Queries) ListOrdersByPaymentIntent(ctx context.Context, paymentIntentID string) ([]model.Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByPaymentIntent, paymentIntentID)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

const listOrdersByStatusBefore = `SELECT ` + orderColumns + ` FROM orders
WHERE status = $1 AND COALESCE(completed_time, created_at) < $2
ORDER BY COALESCE(completed_time, created_at), id
LIMIT $3`

func (q *Queries) ListOrdersByStatusBefore(ctx context.Context, status string, cutoff time.Time, limit int) ([]model.Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByStatusBefore, status, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

const listAwaitingPaymentBefore = `SELECT ` + orderColumns + ` FROM orders
WHERE status = 'pending_payment' AND updated_at < $1
ORDER BY updated_at, id
LIMIT $2`

func (q *Queries) ListAwaitingPaymentBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error) {
	rows, err := q.db.Query(ctx, listAwaitingPaymentBefore, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

const deleteOrders = `DELETE FROM orders WHERE id = ANY($1::uuid[])`

func (q *Queries) DeleteOrders(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	tag, err := q.db.Exec(ctx, deleteOrders, strs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var (
		o                               model.Order
		items                           []byte
		subtotal, discountAmount, total pgtype.Numeric
	)
	err := row.Scan(
		&o.ID,
		&items,
		&subtotal,
		&o.DiscountCode,
		&o.DiscountName,
		&discountAmount,
		&total,
		&o.PaymentMethod,
		&o.Status,
		&o.PaymentStatus,
		&o.TableNumber,
		&o.UserID,
		&o.Source,
		&o.SourceID,
		&o.PaymentIntentID,
		&o.CreatedAt,
		&o.Timestamp,
		&o.UpdatedAt,
		&o.PreparationStartTime,
		&o.ReadyTime,
		&o.CompletedTime,
		&o.CancelledTime,
	)
	if err != nil {
		return model.Order{}, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return model.Order{}, fmt.Errorf("unmarshal items: %w", err)
	}
	o.Subtotal = numericToDecimal(subtotal)
	o.DiscountAmount = numericToDecimal(discountAmount)
	o.Total = numericToDecimal(total)
	return o, nil
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()
	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
