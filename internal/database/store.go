// Package database is the persistence layer for orders, payments, discounts,
// users, settings and the webhook event ledger.
package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kusina-pos/api/internal/discount"
	"github.com/kusina-pos/api/internal/model"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// ListOrdersParams filters ListOrders. Empty Status matches every status.
type ListOrdersParams struct {
	Status string
	Limit  int
	Offset int
}

// Store is the persistence contract used by the services.
// Satisfied by *PgStore and *memstore.Store.
type Store interface {
	CreateOrder(ctx context.Context, o model.Order) (model.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (model.Order, error)
	// GetOrderForUpdate reads an order and, inside a transaction, locks its
	// row until commit. Use it for every read-modify-write of an order.
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (model.Order, error)
	ListOrders(ctx context.Context, arg ListOrdersParams) ([]model.Order, error)
	UpdateOrder(ctx context.Context, o model.Order) (model.Order, error)
	ListOrdersByPaymentIntent(ctx context.Context, paymentIntentID string) ([]model.Order, error)
	// ListOrdersByStatusBefore returns orders in status whose completion time
	// (or creation time when never completed) is before cutoff, oldest first.
	ListOrdersByStatusBefore(ctx context.Context, status string, cutoff time.Time, limit int) ([]model.Order, error)
	// ListAwaitingPaymentBefore returns pending_payment orders whose last
	// payment attempt (updatedAt) is before cutoff, oldest first.
	ListAwaitingPaymentBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error)
	DeleteOrders(ctx context.Context, ids []uuid.UUID) (int64, error)

	CreatePayment(ctx context.Context, p model.Payment) (model.Payment, error)
	UpdatePayment(ctx context.Context, p model.Payment) (model.Payment, error)
	ListPaymentsByIntent(ctx context.Context, paymentIntentID string) ([]model.Payment, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Payment, error)

	GetDiscountByCode(ctx context.Context, code string) (discount.Discount, error)
	UpsertDiscount(ctx context.Context, d discount.Discount) error

	GetUser(ctx context.Context, id uuid.UUID) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	CreateUser(ctx context.Context, u model.User) (model.User, error)

	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error

	// RecordWebhookEvent stores ev in the ledger. It reports false when the
	// event id was already recorded.
	RecordWebhookEvent(ctx context.Context, ev model.WebhookEvent) (bool, error)

	// ExecTx runs fn against a transactional view of the store. Every write
	// made through that view commits together, or none does when fn errors.
	ExecTx(ctx context.Context, fn func(Store) error) error
}
