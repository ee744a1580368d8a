package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kusina-pos/api/internal/enum"
	"github.com/kusina-pos/api/internal/model"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

type inbox struct {
	mu   sync.Mutex
	msgs []Notification
}

func (b *inbox) add(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, n)
}

func (b *inbox) messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.msgs))
	for i, n := range b.msgs {
		out[i] = n.Message
	}
	return out
}

func newTestTracker(id uuid.UUID, opts Options) (*Tracker, *inbox) {
	box := &inbox{}
	log, _ := test.NewNullLogger()
	opts.Notify = box.add
	opts.Log = log
	opts.Now = func() time.Time { return now }
	return NewTracker(id, opts), box
}

func snapshot(id uuid.UUID, status, payment string) model.Order {
	return model.Order{ID: id, Status: status, PaymentStatus: payment, PaymentMethod: enum.PaymentMethodGCash}
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestTracker_ThreeTransitionsThreeNotifications(t *testing.T) {
	id := uuid.New()
	tr, box := newTestTracker(id, Options{})

	tr.apply(Update{Source: SourcePush, Order: snapshot(id, enum.OrderStatusPending, enum.PaymentStatusPaid)})
	assert.Empty(t, box.messages(), "initial snapshot never notifies")

	// The same transitions arrive from every source, some more than once.
	for _, status := range []string{enum.OrderStatusPreparing, enum.OrderStatusReady} {
		for _, src := range []Source{SourcePush, SourcePoll, SourceForeground, SourcePush} {
			tr.apply(Update{Source: src, Order: snapshot(id, status, enum.PaymentStatusPaid)})
		}
	}
	completed := now.Add(-time.Minute)
	done := snapshot(id, enum.OrderStatusCompleted, enum.PaymentStatusPaid)
	done.CompletedTime = &completed
	tr.apply(Update{Source: SourcePoll, Order: done})
	tr.apply(Update{Source: SourcePush, Order: done})

	assert.Equal(t, []string{MsgPreparing, MsgReady, MsgCompleted}, box.messages())
	assert.True(t, closed(tr.Finished()))
}

func TestTracker_StaleSnapshotIgnored(t *testing.T) {
	id := uuid.New()
	tr, box := newTestTracker(id, Options{})

	tr.apply(Update{Source: SourcePush, Order: snapshot(id, enum.OrderStatusReady, enum.PaymentStatusPaid)})
	tr.apply(Update{Source: SourcePoll, Order: snapshot(id, enum.OrderStatusPreparing, enum.PaymentStatusPaid)})
	tr.apply(Update{Source: SourcePush, Order: snapshot(id, enum.OrderStatusReady, enum.PaymentStatusPaid)})

	assert.Empty(t, box.messages())
	assert.Equal(t, enum.OrderStatusReady, tr.last.Status)
}

func TestTracker_PlacedNotifications(t *testing.T) {
	t.Run("fresh cash order", func(t *testing.T) {
		id := uuid.New()
		tr, box := newTestTracker(id, Options{Fresh: true})
		tr.apply(Update{Source: SourcePush, Order: snapshot(id, enum.OrderStatusPending, enum.PaymentStatusPending)})
		assert.Equal(t, []string{MsgPlaced}, box.messages())
	})

	t.Run("existing order loaded later", func(t *testing.T) {
		id := uuid.New()
		tr, box := newTestTracker(id, Options{})
		tr.apply(Update{Source: SourcePush, Order: snapshot(id, enum.OrderStatusPending, enum.PaymentStatusPending)})
		assert.Empty(t, box.messages())
	})

	t.Run("gcash payment confirmed", func(t *testing.T) {
		id := uuid.New()
		tr, box := newTestTracker(id, Options{Fresh: true})
		tr.apply(Update{Source: SourcePush, Order: snapshot(id, enum.OrderStatusPendingPayment, enum.PaymentStatusPending)})
		assert.Empty(t, box.messages())
		assert.False(t, closed(tr.Settled()))

		tr.apply(Update{Source: SourcePoll, Order: snapshot(id, enum.OrderStatusPending, enum.PaymentStatusPaid)})
		assert.Equal(t, []string{MsgPlaced}, box.messages())
		assert.True(t, closed(tr.Settled()))
		assert.False(t, closed(tr.Finished()))
	})
}

func TestTracker_PaymentStatusChangeWithoutStatusChange(t *testing.T) {
	id := uuid.New()
	tr, box := newTestTracker(id, Options{})

	tr.apply(Update{Source: SourcePush, Order: snapshot(id, enum.OrderStatusPendingPayment, enum.PaymentStatusPending)})
	tr.apply(Update{Source: SourcePush, Order: snapshot(id, enum.OrderStatusPendingPayment, enum.PaymentStatusFailed)})

	assert.Empty(t, box.messages())
	assert.Equal(t, enum.PaymentStatusFailed, tr.last.PaymentStatus)
	assert.False(t, closed(tr.Settled()))
}

func TestTracker_CompletedWindowAndOnce(t *testing.T) {
	set := NewCompletedSet()
	complete := func(tr *Tracker, id uuid.UUID, at time.Time) {
		tr.apply(Update{Source: SourcePush, Order: snapshot(id, enum.OrderStatusReady, enum.PaymentStatusPaid)})
		o := snapshot(id, enum.OrderStatusCompleted, enum.PaymentStatusPaid)
		o.CompletedTime = &at
		tr.apply(Update{Source: SourcePush, Order: o})
	}

	old := uuid.New()
	tr, box := newTestTracker(old, Options{Completed: set})
	complete(tr, old, now.Add(-11*time.Minute))
	assert.Empty(t, box.messages(), "completion older than the window")

	recent := uuid.New()
	first, box1 := newTestTracker(recent, Options{Completed: set})
	complete(first, recent, now.Add(-9*time.Minute))
	assert.Equal(t, []string{MsgCompleted}, box1.messages())

	// A second tracker for the same order (e.g. after a screen remount).
	second, box2 := newTestTracker(recent, Options{Completed: set})
	complete(second, recent, now.Add(-9*time.Minute))
	assert.Empty(t, box2.messages(), "once per order id")
}

func TestTracker_InitialCompletedSnapshotIsSilent(t *testing.T) {
	id := uuid.New()
	tr, box := newTestTracker(id, Options{Fresh: true})
	at := now.Add(-time.Minute)
	o := snapshot(id, enum.OrderStatusCompleted, enum.PaymentStatusPaid)
	o.CompletedTime = &at

	tr.apply(Update{Source: SourcePush, Order: o})
	assert.Empty(t, box.messages())
	assert.True(t, closed(tr.Settled()))
	assert.True(t, closed(tr.Finished()))
}

func TestTracker_RunSerializesConcurrentSources(t *testing.T) {
	id := uuid.New()
	tr, box := newTestTracker(id, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(runDone)
	}()

	require.True(t, tr.Observe(ctx, Update{Source: SourcePush, Order: snapshot(id, enum.OrderStatusPending, enum.PaymentStatusPaid)}))

	var wg sync.WaitGroup
	for _, src := range []Source{SourcePush, SourcePoll, SourceForeground} {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				tr.Observe(ctx, Update{Source: src, Order: snapshot(id, enum.OrderStatusPreparing, enum.PaymentStatusPaid)})
			}
		}(src)
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return len(box.messages()) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{MsgPreparing}, box.messages())

	assert.False(t, tr.Observe(ctx, Update{Order: snapshot(uuid.New(), enum.OrderStatusReady, "")}), "other orders are rejected")

	cancel()
	<-runDone
	assert.False(t, tr.Observe(context.Background(), Update{Order: snapshot(id, enum.OrderStatusReady, "")}), "stopped tracker")
}

func TestTracker_LatePaymentRevival(t *testing.T) {
	id := uuid.New()
	tr, box := newTestTracker(id, Options{})

	tr.apply(Update{Source: SourcePoll, Order: snapshot(id, enum.OrderStatusExpired, enum.PaymentStatusExpired)})
	tr.apply(Update{Source: SourcePush, Order: snapshot(id, enum.OrderStatusPending, enum.PaymentStatusPaid)})
	// A lagging poll still sees the expired row.
	tr.apply(Update{Source: SourcePoll, Order: snapshot(id, enum.OrderStatusExpired, enum.PaymentStatusExpired)})
	tr.apply(Update{Source: SourcePush, Order: snapshot(id, enum.OrderStatusPreparing, enum.PaymentStatusPaid)})

	assert.Equal(t, []string{MsgPlaced, MsgPreparing}, box.messages())
	assert.Equal(t, enum.OrderStatusPreparing, tr.last.Status)
	assert.Equal(t, enum.PaymentStatusPaid, tr.last.PaymentStatus)
}
