// Package payment defines the payment provider contract used by the services.
// The real implementation lives in package paymongo; Mock is used in local
// development and tests.
package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Payment intent statuses reported by the provider.
const (
	IntentAwaitingPaymentMethod = "awaiting_payment_method"
	IntentAwaitingNextAction    = "awaiting_next_action"
	IntentProcessing            = "processing"
	IntentSucceeded             = "succeeded"
)

// IntentParams describe a new payment intent.
type IntentParams struct {
	Amount         decimal.Decimal
	Currency       string
	Description    string
	MethodsAllowed []string
	Metadata       map[string]string
}

// Intent is the provider-side payment intent.
type Intent struct {
	ID        string
	ClientKey string
	Status    string
	Amount    decimal.Decimal
	Currency  string
	// PaymentID is the id of the latest payment attempt, if any.
	PaymentID string
	// LastError is the provider's message for the latest failed attempt.
	LastError string
}

// QRParams attach a QR Ph payment method to an existing intent.
type QRParams struct {
	IntentID    string
	ClientKey   string
	BillingName string
	ReturnURL   string
}

// QRPayment carries the QR image the customer scans.
type QRPayment struct {
	IntentID        string
	PaymentMethodID string
	QRImage         string
	ExpiresAt       time.Time
}

// CheckoutParams describe a hosted checkout session.
type CheckoutParams struct {
	Amount          decimal.Decimal
	Currency        string
	Description     string
	ReferenceNumber string
	SuccessURL      string
	CancelURL       string
	MethodTypes     []string
}

// CheckoutSession is a hosted payment page.
type CheckoutSession struct {
	ID              string
	CheckoutURL     string
	PaymentIntentID string
	ExpiresAt       time.Time
}

// Provider creates and inspects payments at the payment provider.
type Provider interface {
	CreatePaymentIntent(ctx context.Context, p IntentParams) (Intent, error)
	CreateQRPayment(ctx context.Context, p QRParams) (QRPayment, error)
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (CheckoutSession, error)
	RetrievePaymentIntent(ctx context.Context, id string) (Intent, error)
}
