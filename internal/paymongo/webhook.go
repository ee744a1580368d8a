package paymongo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Webhook event types.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentPaid      = "payment.paid"
	EventPaymentFailed    = "payment.failed"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "Paymongo-Signature"

var (
	ErrMalformedEvent   = errors.New("malformed webhook payload")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Event is a decoded webhook delivery.
type Event struct {
	// ID is the provider event id. Empty for payloads that carry none.
	ID   string
	Type string
	// PaymentID is the id of the payment resource the event is about.
	PaymentID       string
	PaymentIntentID string
	// Amount is in pesos (the wire value is in centavos).
	Amount   decimal.Decimal
	Currency string
}

// Kind folds provider aliases: payment.paid is reported as payment.succeeded.
func (e Event) Kind() string {
	if e.Type == EventPaymentPaid {
		return EventPaymentSucceeded
	}
	return e.Type
}

type eventAttributes struct {
	// Present on real PayMongo deliveries, where data.type is "event".
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`

	// Present on flat deliveries: {data: {type, attributes: {payment_intent_id, id, amount}}}.
	ID              string      `json:"id"`
	PaymentIntentID string      `json:"payment_intent_id"`
	Amount          json.Number `json:"amount"`
	Currency        string      `json:"currency"`
}

type paymentAttributes struct {
	PaymentIntentID string      `json:"payment_intent_id"`
	Amount          json.Number `json:"amount"`
	Currency        string      `json:"currency"`
}

// ParseEvent decodes a webhook body. It accepts PayMongo's event envelope
// ({data: {id, type: "event", attributes: {type, data: payment}}}) and the flat
// form ({data: {type, attributes: {...}}}). A body that is not a JSON object
// with a data object returns ErrMalformedEvent; a missing type is not an error.
func ParseEvent(body []byte) (Event, error) {
	var env struct {
		Data *resource `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Data == nil {
		return Event{}, ErrMalformedEvent
	}

	var attrs eventAttributes
	if len(env.Data.Attributes) > 0 {
		if err := json.Unmarshal(env.Data.Attributes, &attrs); err != nil {
			return Event{}, ErrMalformedEvent
		}
	}

	if env.Data.Type == "event" {
		ev := Event{ID: env.Data.ID, Type: attrs.Type}
		if len(attrs.Data) == 0 {
			return ev, nil
		}
		var pay resource
		if err := json.Unmarshal(attrs.Data, &pay); err != nil {
			return Event{}, ErrMalformedEvent
		}
		var pa paymentAttributes
		if len(pay.Attributes) > 0 {
			if err := json.Unmarshal(pay.Attributes, &pa); err != nil {
				return Event{}, ErrMalformedEvent
			}
		}
		ev.PaymentID = pay.ID
		ev.PaymentIntentID = pa.PaymentIntentID
		ev.Amount = centavosToPesos(pa.Amount)
		ev.Currency = pa.Currency
		return ev, nil
	}

	return Event{
		ID:              env.Data.ID,
		Type:            env.Data.Type,
		PaymentID:       attrs.ID,
		PaymentIntentID: attrs.PaymentIntentID,
		Amount:          centavosToPesos(attrs.Amount),
		Currency:        attrs.Currency,
	}, nil
}

func centavosToPesos(n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d.Div(centavosPerPeso)
}

// VerifySignature checks a Paymongo-Signature header of the form
// "t=<timestamp>,te=<test sig>,li=<live sig>" against body. The signature is
// the hex HMAC-SHA256 of "<timestamp>.<body>" keyed by the webhook secret.
// Either the test or the live signature may match.
func VerifySignature(header string, body []byte, secret string) error {
	var ts, te, li string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "te":
			te = v
		case "li":
			li = v
		}
	}
	if ts == "" || (te == "" && li == "") {
		return ErrInvalidSignature
	}

	want := Sign(ts, body, secret)
	for _, got := range []string{te, li} {
		if got != "" && hmac.Equal([]byte(got), []byte(want)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign computes the signature PayMongo sends for body at timestamp ts.
func Sign(ts string, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
