package service

import (
	"context"
	"testing"
	"time"

	"github.com/kusina-pos/api/internal/enum"
	"github.com/kusina-pos/api/internal/memstore"
	"github.com/kusina-pos/api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMaintenance(store *memstore.Store, batch int) (*Maintenance, *recordingPublisher) {
	pub := &recordingPublisher{}
	m := NewMaintenance(store, pub, MaintenanceConfig{
		Retention:      30 * 24 * time.Hour,
		RetentionBatch: batch,
		PaymentExpiry:  30 * time.Minute,
	}, nullLogger())
	m.now = fixedClock
	return m, pub
}

func completedAt(t time.Time) func(*model.Order) {
	return func(o *model.Order) {
		o.Status = enum.OrderStatusCompleted
		o.PaymentStatus = enum.PaymentStatusPaid
		o.CreatedAt = t.Add(-time.Hour)
		o.CompletedTime = &t
	}
}

func TestPurgeCompleted_RespectsWindowAndBatch(t *testing.T) {
	store := newMemStore()
	m, _ := newTestMaintenance(store, 2)
	ctx := context.Background()

	old := testNow.Add(-31 * 24 * time.Hour)
	for i := 0; i < 3; i++ {
		seedOrder(t, store, completedAt(old.Add(time.Duration(i)*time.Minute)))
	}
	recent := seedOrder(t, store, completedAt(testNow.Add(-29*24*time.Hour)))
	oldButOpen := seedOrder(t, store, func(o *model.Order) {
		o.Status = enum.OrderStatusReady
		o.CreatedAt = old
	})

	n, err := m.PurgeCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "at most one batch per run")

	n, err = m.PurgeCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = m.PurgeCompleted(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, o := range []model.Order{recent, oldButOpen} {
		_, err := store.GetOrder(ctx, o.ID)
		assert.NoError(t, err)
	}
}

func TestExpireStalePayments(t *testing.T) {
	store := newMemStore()
	m, pub := newTestMaintenance(store, 0)
	ctx := context.Background()

	stale := seedOrder(t, store, func(o *model.Order) {
		o.CreatedAt = testNow.Add(-time.Hour)
		o.UpdatedAt = o.CreatedAt
		o.PaymentIntentID = "pi_stale"
	})
	stalePayment := seedPayment(t, store, stale, enum.PaymentRecordPending)
	fresh := seedOrder(t, store, func(o *model.Order) {
		o.CreatedAt = testNow.Add(-10 * time.Minute)
		o.UpdatedAt = o.CreatedAt
	})
	paid := seedOrder(t, store, func(o *model.Order) {
		o.CreatedAt = testNow.Add(-time.Hour)
		o.UpdatedAt = o.CreatedAt
		o.PaymentStatus = enum.PaymentStatusPaid
	})

	n, err := m.ExpireStalePayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetOrder(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusExpired, got.Status)
	assert.Equal(t, enum.PaymentStatusExpired, got.PaymentStatus)

	payments, err := store.ListPaymentsByOrder(ctx, stale.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, stalePayment.ID, payments[0].ID)
	assert.Equal(t, enum.PaymentRecordFailed, payments[0].Status)

	for _, o := range []model.Order{fresh, paid} {
		got, err := store.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, enum.OrderStatusPendingPayment, got.Status)
	}

	evs := pub.all()
	require.Len(t, evs, 1)
	assert.Equal(t, stale.ID, evs[0].Order.ID)
}

func TestExpireStalePayments_CountsFromLatestAttempt(t *testing.T) {
	store := newMemStore()
	m, _ := newTestMaintenance(store, 0)
	ctx := context.Background()

	placed := testNow.Add(-31 * time.Minute)
	o := seedOrder(t, store, func(o *model.Order) {
		o.CreatedAt = placed
		o.Timestamp = placed
		o.UpdatedAt = placed
	})

	// A fresh QR two minutes before the sweep restarts the clock.
	f := newPaymentFixture(t, enum.PaymentFlowQRPh)
	f.svc.store = store
	f.svc.now = func() time.Time { return testNow.Add(-2 * time.Minute) }
	_, err := f.svc.ProcessPayment(ctx, ProcessPaymentRequest{OrderID: o.ID})
	require.NoError(t, err)

	n, err := m.ExpireStalePayments(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusPendingPayment, got.Status)
	assert.Equal(t, enum.PaymentStatusPending, got.PaymentStatus)

	// Left alone past the window, it expires.
	m.now = func() time.Time { return testNow.Add(29 * time.Minute) }
	n, err = m.ExpireStalePayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
