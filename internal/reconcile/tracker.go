// Package reconcile merges order updates arriving from the realtime push
// stream, a fallback poll loop and on-demand foreground checks into one view
// per order, and raises user notifications on observed transitions.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kusina-pos/api/internal/enum"
	"github.com/kusina-pos/api/internal/lifecycle"
	"github.com/kusina-pos/api/internal/model"
	"github.com/sirupsen/logrus"
)

// Source names where an update came from.
type Source string

const (
	SourcePush       Source = "push"
	SourcePoll       Source = "poll"
	SourceForeground Source = "foreground"
)

// DefaultCompletedWindow bounds how old a completion may be and still notify.
const DefaultCompletedWindow = 10 * time.Minute

// Notification messages.
const (
	MsgPlaced    = "Order placed."
	MsgPreparing = "Order is being prepared."
	MsgReady     = "Order ready for pickup."
	MsgCompleted = "Order completed, thank you."
)

// Update is an order snapshot observed by one source.
type Update struct {
	Source Source
	Order  model.Order
}

// Notification is a user-facing message about an order.
type Notification struct {
	OrderID uuid.UUID
	Status  string
	Message string
	Source  Source
	At      time.Time
}

// CompletedSet remembers which orders already announced completion.
// Safe for concurrent use; share one per process.
type CompletedSet struct {
	mu   sync.Mutex
	seen map[uuid.UUID]bool
}

func NewCompletedSet() *CompletedSet {
	return &CompletedSet{seen: make(map[uuid.UUID]bool)}
}

// MarkOnce reports true the first time it is called for id.
func (s *CompletedSet) MarkOnce(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[id] {
		return false
	}
	s.seen[id] = true
	return true
}

// Options configure a Tracker.
type Options struct {
	// Fresh marks a tracker opened by the client that just placed the order.
	// Its first pending snapshot announces the order.
	Fresh           bool
	CompletedWindow time.Duration
	Completed       *CompletedSet
	Notify          func(Notification)
	Log             logrus.FieldLogger
	Now             func() time.Time
}

// Tracker is the single owner of one order's last known state. Every source
// calls Observe; Run applies updates one at a time.
type Tracker struct {
	orderID uuid.UUID
	opts    Options

	updates chan Update
	stopped chan struct{}

	settleOnce sync.Once
	settled    chan struct{}
	finishOnce sync.Once
	finished   chan struct{}

	// Owned by Run.
	last *model.Order
}

func NewTracker(orderID uuid.UUID, opts Options) *Tracker {
	if opts.CompletedWindow <= 0 {
		opts.CompletedWindow = DefaultCompletedWindow
	}
	if opts.Completed == nil {
		opts.Completed = NewCompletedSet()
	}
	if opts.Notify == nil {
		opts.Notify = func(Notification) {}
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		orderID:  orderID,
		opts:     opts,
		updates:  make(chan Update, 16),
		stopped:  make(chan struct{}),
		settled:  make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (t *Tracker) OrderID() uuid.UUID { return t.orderID }

// Settled is closed once payment is confirmed or the order is terminal.
// The poll loop stops here.
func (t *Tracker) Settled() <-chan struct{} { return t.settled }

// Finished is closed once the order reaches a terminal status.
func (t *Tracker) Finished() <-chan struct{} { return t.finished }

// Observe hands an update to the actor. It returns false when the tracker
// has stopped or ctx is done.
func (t *Tracker) Observe(ctx context.Context, u Update) bool {
	if u.Order.ID != t.orderID {
		return false
	}
	select {
	case <-t.stopped:
		return false
	default:
	}
	select {
	case t.updates <- u:
		return true
	case <-t.stopped:
		return false
	case <-ctx.Done():
		return false
	}
}

// Run processes updates until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	defer close(t.stopped)
	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-t.updates:
			t.apply(u)
		}
	}
}

func (t *Tracker) apply(u Update) {
	log := t.opts.Log.WithFields(logrus.Fields{
		"order_id": t.orderID,
		"source":   u.Source,
		"status":   u.Order.Status,
	})
	next := u.Order.Clone()

	if t.last == nil {
		t.last = &next
		log.Debug("initial snapshot")
		if t.opts.Fresh && next.Status == enum.OrderStatusPending {
			t.notify(u, MsgPlaced)
		}
		t.checkSettled(next)
		return
	}

	prev := *t.last
	statusAdvanced := lifecycle.Rank(next.Status) > lifecycle.Rank(prev.Status) ||
		lifecycle.Revived(prev.Status, next.Status)
	// Paid orders are never expired; such a snapshot predates the payment.
	if next.Status == enum.OrderStatusExpired && prev.PaymentStatus == enum.PaymentStatusPaid {
		statusAdvanced = false
	}
	paymentChanged := next.PaymentStatus != prev.PaymentStatus &&
		prev.PaymentStatus != enum.PaymentStatusPaid
	if !statusAdvanced && !paymentChanged {
		log.Debug("stale or duplicate snapshot ignored")
		return
	}
	if !statusAdvanced {
		// Keep the newer status, take the payment change.
		next.Status = prev.Status
	}
	t.last = &next

	if statusAdvanced {
		log.WithField("from", prev.Status).Info("order status changed")
		t.announce(u, prev.Status, next)
	}
	t.checkSettled(next)
}

func (t *Tracker) announce(u Update, from string, o model.Order) {
	switch o.Status {
	case enum.OrderStatusPending:
		if from == enum.OrderStatusPendingPayment || from == enum.OrderStatusExpired {
			t.notify(u, MsgPlaced)
		}
	case enum.OrderStatusPreparing:
		t.notify(u, MsgPreparing)
	case enum.OrderStatusReady:
		t.notify(u, MsgReady)
	case enum.OrderStatusCompleted:
		if !t.recentlyCompleted(o) {
			return
		}
		if t.opts.Completed.MarkOnce(o.ID) {
			t.notify(u, MsgCompleted)
		}
	}
}

func (t *Tracker) recentlyCompleted(o model.Order) bool {
	if o.CompletedTime == nil {
		return true
	}
	return t.opts.Now().Sub(*o.CompletedTime) <= t.opts.CompletedWindow
}

func (t *Tracker) notify(u Update, msg string) {
	t.opts.Notify(Notification{
		OrderID: t.orderID,
		Status:  u.Order.Status,
		Message: msg,
		Source:  u.Source,
		At:      t.opts.Now(),
	})
}

func (t *Tracker) checkSettled(o model.Order) {
	terminal := lifecycle.IsTerminal(o.Status)
	if terminal {
		t.finishOnce.Do(func() { close(t.finished) })
	}
	if terminal || o.PaymentStatus == enum.PaymentStatusPaid {
		t.settleOnce.Do(func() { close(t.settled) })
	}
}
