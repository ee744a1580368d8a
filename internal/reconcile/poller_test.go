package reconcile

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kusina-pos/api/internal/enum"
	"github.com/kusina-pos/api/internal/model"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves a scripted order state.
type fakeFetcher struct {
	mu      sync.Mutex
	order   model.Order
	check   PaymentCheck
	err     error
	fetches atomic.Int32
	checks  atomic.Int32
}

func (f *fakeFetcher) FetchOrder(context.Context, uuid.UUID) (model.Order, error) {
	f.fetches.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.order, f.err
}

func (f *fakeFetcher) CheckPayment(context.Context, uuid.UUID) (PaymentCheck, error) {
	f.checks.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.check, f.err
}

func (f *fakeFetcher) set(o model.Order, pc PaymentCheck) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = o
	f.check = pc
}

func runTracker(t *testing.T, tr *Tracker) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go tr.Run(ctx)
	return ctx
}

func TestPoller_StopsWhenPaid(t *testing.T) {
	id := uuid.New()
	tr, box := newTestTracker(id, Options{Fresh: true})
	ctx := runTracker(t, tr)
	log, _ := test.NewNullLogger()

	waiting := snapshot(id, enum.OrderStatusPendingPayment, enum.PaymentStatusPending)
	waiting.PaymentIntentID = "pi_1"
	f := &fakeFetcher{order: waiting, check: PaymentCheck{Status: enum.OrderStatusPendingPayment, PaymentStatus: enum.PaymentStatusPending}}

	p := &Poller{Fetcher: f, Interval: 2 * time.Millisecond, Timeout: time.Second, Log: log}
	result := make(chan StopReason, 1)
	go func() { result <- p.Run(ctx, tr) }()

	assert.Eventually(t, func() bool { return f.checks.Load() >= 2 }, time.Second, time.Millisecond)

	// The provider reports success; the status check settles the order.
	f.set(waiting, PaymentCheck{Status: enum.OrderStatusPending, PaymentStatus: enum.PaymentStatusPaid})

	select {
	case reason := <-result:
		assert.Equal(t, StopSettled, reason)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after payment")
	}
	assert.Equal(t, []string{MsgPlaced}, box.messages())
}

func TestPoller_StopsWhenSettledElsewhere(t *testing.T) {
	id := uuid.New()
	tr, _ := newTestTracker(id, Options{})
	ctx := runTracker(t, tr)

	f := &fakeFetcher{err: errors.New("offline")}
	p := &Poller{Fetcher: f, Interval: time.Hour, Timeout: time.Hour}
	result := make(chan StopReason, 1)
	go func() { result <- p.Run(ctx, tr) }()

	require.True(t, tr.Observe(ctx, Update{Source: SourcePush, Order: snapshot(id, enum.OrderStatusCancelled, enum.PaymentStatusPending)}))

	select {
	case reason := <-result:
		assert.Equal(t, StopSettled, reason)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop when push settled the order")
	}
}

func TestPoller_Timeout(t *testing.T) {
	id := uuid.New()
	tr, _ := newTestTracker(id, Options{})
	ctx := runTracker(t, tr)

	f := &fakeFetcher{order: snapshot(id, enum.OrderStatusPendingPayment, enum.PaymentStatusPending)}
	p := &Poller{Fetcher: f, Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond}

	assert.Equal(t, StopTimeout, p.Run(ctx, tr))
	assert.Positive(t, f.fetches.Load())
	assert.Zero(t, f.checks.Load(), "no intent yet, nothing to check")
}

func TestRefresh_Foreground(t *testing.T) {
	id := uuid.New()
	tr, box := newTestTracker(id, Options{})
	ctx := runTracker(t, tr)

	f := &fakeFetcher{order: snapshot(id, enum.OrderStatusPending, enum.PaymentStatusPaid)}
	require.NoError(t, Refresh(ctx, f, tr))

	f.set(snapshot(id, enum.OrderStatusReady, enum.PaymentStatusPaid), PaymentCheck{})
	require.NoError(t, Refresh(ctx, f, tr))

	assert.Eventually(t, func() bool { return len(box.messages()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{MsgReady}, box.messages())
	assert.Zero(t, f.checks.Load(), "paid orders skip the provider check")

	f.err = errors.New("offline")
	assert.Error(t, Refresh(ctx, f, tr))
}

func TestHTTPFetcher(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/orders/" + id.String():
			w.Write([]byte(`{"id":"` + id.String() + `","status":"ready","paymentStatus":"paid"}`))
		case "/checkPaymentStatus/" + id.String():
			w.Write([]byte(`{"orderId":"` + id.String() + `","providerStatus":"succeeded","paymentStatus":"paid","status":"pending"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"order not found"}`))
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL+"/", nil)
	o, err := f.FetchOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusReady, o.Status)

	pc, err := f.CheckPayment(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", pc.ProviderStatus)
	assert.Equal(t, enum.PaymentStatusPaid, pc.PaymentStatus)

	_, err = f.FetchOrder(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order not found")
}

func TestSubscriber_SplitsBatchedFrames(t *testing.T) {
	id := uuid.New()
	tr, box := newTestTracker(id, Options{})
	ctx := runTracker(t, tr)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/orders/"+id.String() {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg := func(status string) string {
			return `{"type":"order.updated","payload":{"id":"` + id.String() + `","status":"` + status + `","paymentStatus":"paid"}}`
		}
		conn.WriteMessage(websocket.TextMessage, []byte(msg("pending")))
		conn.WriteMessage(websocket.TextMessage, []byte(msg("preparing")+"\n"+msg("ready")+"\nnot json"))
		conn.WriteMessage(websocket.TextMessage, []byte(msg("completed")))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	log, _ := test.NewNullLogger()
	sub := &Subscriber{BaseURL: srv.URL, Log: log}
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx, tr) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop after the order finished")
	}
	assert.Equal(t, []string{MsgPreparing, MsgReady, MsgCompleted}, box.messages())
}

func TestSubscriber_Endpoint(t *testing.T) {
	id := uuid.New()
	tr := NewTracker(id, Options{})

	for base, want := range map[string]string{
		"http://localhost:8081":  "ws://localhost:8081/ws/orders/" + id.String(),
		"https://api.kusina.ph/": "wss://api.kusina.ph/ws/orders/" + id.String(),
		"ws://10.0.0.5:8081/api": "ws://10.0.0.5:8081/api/ws/orders/" + id.String(),
	} {
		got, err := (&Subscriber{BaseURL: base}).endpoint(tr)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := (&Subscriber{BaseURL: "ftp://x"}).endpoint(tr)
	assert.True(t, err != nil && strings.Contains(err.Error(), "unsupported scheme"))
}
