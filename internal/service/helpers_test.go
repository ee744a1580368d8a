package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kusina-pos/api/internal/database"
	"github.com/kusina-pos/api/internal/enum"
	"github.com/kusina-pos/api/internal/events"
	"github.com/kusina-pos/api/internal/memstore"
	"github.com/kusina-pos/api/internal/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// --- Test doubles ---

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) all() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

// failingStore wraps a store and fails UpdatePayment, including inside
// transactions.
type failingStore struct {
	database.Store
	err error
}

func (f *failingStore) ExecTx(ctx context.Context, fn func(database.Store) error) error {
	return f.Store.ExecTx(ctx, func(tx database.Store) error {
		return fn(&failingStore{Store: tx, err: f.err})
	})
}

func (f *failingStore) UpdatePayment(context.Context, model.Payment) (model.Payment, error) {
	return model.Payment{}, f.err
}

// --- Fixtures ---

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func nullLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedUser(t *testing.T, store database.Store, role string) string {
	t.Helper()
	u, err := store.CreateUser(context.Background(), model.User{
		Email:    uuid.NewString() + "@kusina.test",
		FullName: "Test " + role,
		Role:     role,
		Active:   true,
	})
	require.NoError(t, err)
	return u.ID.String()
}

// seedOrder stores a gcash order awaiting payment, adjusted by mutate.
func seedOrder(t *testing.T, store database.Store, mutate func(*model.Order)) model.Order {
	t.Helper()
	o := model.Order{
		Items: []model.LineItem{{
			ItemID: "adobo", Name: "Chicken Adobo", UnitPrice: dec("150"), Quantity: 2, TotalItemPrice: dec("150"),
		}},
		Subtotal:       dec("300"),
		DiscountAmount: decimal.Zero,
		Total:          dec("300"),
		PaymentMethod:  enum.PaymentMethodGCash,
		Status:         enum.OrderStatusPendingPayment,
		PaymentStatus:  enum.PaymentStatusPending,
		Source:         enum.OrderSourceCustomer,
		CreatedAt:      testNow,
		Timestamp:      testNow,
		UpdatedAt:      testNow,
	}
	if mutate != nil {
		mutate(&o)
	}
	created, err := store.CreateOrder(context.Background(), o)
	require.NoError(t, err)
	return created
}

func seedPayment(t *testing.T, store database.Store, o model.Order, status string) model.Payment {
	t.Helper()
	p, err := store.CreatePayment(context.Background(), model.Payment{
		ID:              uuid.New(),
		OrderID:         o.ID,
		PaymentIntentID: o.PaymentIntentID,
		Amount:          o.Total,
		Currency:        "PHP",
		Method:          o.PaymentMethod,
		Status:          status,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	})
	require.NoError(t, err)
	return p
}

func newMemStore() *memstore.Store { return memstore.New() }
