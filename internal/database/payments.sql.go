package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kusina-pos/api/internal/model"
)

const paymentColumns = `id, order_id, payment_intent_id, source_id, amount, currency, method,
	status, paymongo_payment_id, created_at, updated_at`

const createPayment = `INSERT INTO payments (` + paymentColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + paymentColumns

func (q *Queries) CreatePayment(ctx context.Context, p model.Payment) (model.Payment, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	row := q.db.QueryRow(ctx, createPayment,
		p.ID,
		p.OrderID,
		p.PaymentIntentID,
		p.SourceID,
		decimalToNumeric(p.Amount),
		p.Currency,
		p.Method,
		p.Status,
		p.PaymongoPaymentID,
		p.CreatedAt,
		p.UpdatedAt,
	)
	return scanPayment(row)
}

const updatePayment = `UPDATE payments SET
	payment_intent_id = $2, source_id = $3, amount = $4, currency = $5, method = $6,
	status = $7, paymongo_payment_id = $8, updated_at = $9
WHERE id = $1
RETURNING ` + paymentColumns

func (q *Queries) UpdatePayment(ctx context.Context, p model.Payment) (model.Payment, error) {
	row := q.db.QueryRow(ctx, updatePayment,
		p.ID,
		p.PaymentIntentID,
		p.SourceID,
		decimalToNumeric(p.Amount),
		p.Currency,
		p.Method,
		p.Status,
		p.PaymongoPaymentID,
		p.UpdatedAt,
	)
	updated, err := scanPayment(row)
	return updated, notFound(err)
}

const listPaymentsByIntent = `SELECT ` + paymentColumns + ` FROM payments
WHERE payment_intent_id = $1
ORDER BY created_at, id`

func (q *Queries) ListPaymentsByIntent(ctx context.Context, paymentIntentID string) ([]model.Payment, error) {
	rows, err := q.db.Query(ctx, listPaymentsByIntent, paymentIntentID)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

const listPaymentsByOrder = `SELECT ` + paymentColumns + ` FROM payments
WHERE order_id = $1
ORDER BY created_at, id`

func (q *Queries) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Payment, error) {
	rows, err := q.db.Query(ctx, listPaymentsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

func scanPayment(row pgx.Row) (model.Payment, error) {
	var (
		p      model.Payment
		amount pgtype.Numeric
	)
	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.PaymentIntentID,
		&p.SourceID,
		&amount,
		&p.Currency,
		&p.Method,
		&p.Status,
		&p.PaymongoPaymentID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return model.Payment{}, err
	}
	p.Amount = numericToDecimal(amount)
	return p, nil
}

func collectPayments(rows pgx.Rows) ([]model.Payment, error) {
	defer rows.Close()
	var payments []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
