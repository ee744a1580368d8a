package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrUnknownIntent is returned by Mock for ids it did not issue.
var ErrUnknownIntent = errors.New("unknown payment intent")

// Mock is an in-memory Provider with deterministic ids.
type Mock struct {
	mu      sync.Mutex
	seq     int
	intents map[string]Intent

	// Err, when set, is returned by every call.
	Err error
	// QRTTL is how long generated QR codes stay valid. Defaults to 30 minutes.
	QRTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewMock() *Mock {
	return &Mock{intents: make(map[string]Intent)}
}

var _ Provider = (*Mock)(nil)

func (m *Mock) next(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s_mock_%04d", prefix, m.seq)
}

func (m *Mock) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Mock) CreatePaymentIntent(_ context.Context, p IntentParams) (Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return Intent{}, m.Err
	}
	id := m.next("pi")
	in := Intent{
		ID:        id,
		ClientKey: id + "_client",
		Status:    IntentAwaitingPaymentMethod,
		Amount:    p.Amount,
		Currency:  p.Currency,
	}
	m.intents[id] = in
	return in, nil
}

func (m *Mock) CreateQRPayment(_ context.Context, p QRParams) (QRPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return QRPayment{}, m.Err
	}
	in, ok := m.intents[p.IntentID]
	if !ok {
		return QRPayment{}, ErrUnknownIntent
	}
	in.Status = IntentAwaitingNextAction
	m.intents[in.ID] = in

	ttl := m.QRTTL
	if ttl == 0 {
		ttl = 30 * time.Minute
	}
	return QRPayment{
		IntentID:        in.ID,
		PaymentMethodID: m.next("pm"),
		QRImage:         "data:image/png;base64,bW9jay1xcg==",
		ExpiresAt:       m.now().Add(ttl),
	}, nil
}

func (m *Mock) CreateCheckoutSession(_ context.Context, p CheckoutParams) (CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return CheckoutSession{}, m.Err
	}
	intentID := m.next("pi")
	m.intents[intentID] = Intent{
		ID:       intentID,
		Status:   IntentAwaitingPaymentMethod,
		Amount:   p.Amount,
		Currency: p.Currency,
	}
	id := m.next("cs")
	return CheckoutSession{
		ID:              id,
		CheckoutURL:     "https://checkout.mock.local/" + id,
		PaymentIntentID: intentID,
		ExpiresAt:       m.now().Add(24 * time.Hour),
	}, nil
}

func (m *Mock) RetrievePaymentIntent(_ context.Context, id string) (Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return Intent{}, m.Err
	}
	in, ok := m.intents[id]
	if !ok {
		return Intent{}, ErrUnknownIntent
	}
	return in, nil
}

// SetStatus moves an issued intent to status, recording paymentID as its
// latest payment.
func (m *Mock) SetStatus(id, status, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.intents[id]
	if !ok {
		return ErrUnknownIntent
	}
	in.Status = status
	if paymentID != "" {
		in.PaymentID = paymentID
	}
	m.intents[id] = in
	return nil
}
