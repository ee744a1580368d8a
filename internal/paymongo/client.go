// Package paymongo is a minimal client for the PayMongo REST API covering
// payment intents, QR Ph, checkout sessions and webhook events.
package paymongo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kusina-pos/api/internal/payment"
	"github.com/shopspring/decimal"
)

const DefaultBaseURL = "https://api.paymongo.com"

// QR Ph codes expire 30 minutes after they are generated.
const qrTTL = 30 * time.Minute

var centavosPerPeso = decimal.NewFromInt(100)

// APIError is a non-2xx response from PayMongo.
type APIError struct {
	Status int
	Code   string
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("paymongo: request failed with status %d", e.Status)
	}
	return "paymongo: " + e.Detail
}

// Client talks to PayMongo with the account's secret key. It must only run
// server-side.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient returns a Client. An empty baseURL uses DefaultBaseURL.
func NewClient(secretKey, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: httpClient,
		now:        time.Now,
	}
}

var _ payment.Provider = (*Client)(nil)

// --- Wire types ---

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type resource struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Attributes json.RawMessage `json:"attributes"`
}

type errorResponse struct {
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

type intentAttributes struct {
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	ClientKey        string `json:"client_key"`
	Status           string `json:"status"`
	LastPaymentError *struct {
		FailedMessage string `json:"failed_message"`
	} `json:"last_payment_error"`
	Payments []struct {
		ID string `json:"id"`
	} `json:"payments"`
	NextAction *struct {
		Type string `json:"type"`
		Code *struct {
			ID       string `json:"id"`
			ImageURL string `json:"image_url"`
		} `json:"code"`
		Redirect *struct {
			URL string `json:"url"`
		} `json:"redirect"`
	} `json:"next_action"`
}

type checkoutAttributes struct {
	CheckoutURL   string `json:"checkout_url"`
	PaymentIntent *struct {
		ID string `json:"id"`
	} `json:"payment_intent"`
}

// --- Operations ---

func (c *Client) CreatePaymentIntent(ctx context.Context, p payment.IntentParams) (payment.Intent, error) {
	methods := p.MethodsAllowed
	if len(methods) == 0 {
		methods = []string{"qrph", "gcash"}
	}
	attrs := map[string]interface{}{
		"amount":                 toCentavos(p.Amount),
		"currency":               currencyOrDefault(p.Currency),
		"payment_method_allowed": methods,
		"capture_type":           "automatic",
	}
	if p.Description != "" {
		attrs["description"] = p.Description
	}
	if len(p.Metadata) > 0 {
		attrs["metadata"] = p.Metadata
	}

	var res resource
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", attrs, &res); err != nil {
		return payment.Intent{}, err
	}
	return toIntent(res)
}

// CreateQRPayment creates a qrph payment method and attaches it to the intent.
func (c *Client) CreateQRPayment(ctx context.Context, p payment.QRParams) (payment.QRPayment, error) {
	pmAttrs := map[string]interface{}{"type": "qrph"}
	if p.BillingName != "" {
		pmAttrs["billing"] = map[string]string{"name": p.BillingName}
	}
	var pm resource
	if err := c.do(ctx, http.MethodPost, "/v1/payment_methods", pmAttrs, &pm); err != nil {
		return payment.QRPayment{}, fmt.Errorf("create payment method: %w", err)
	}

	attachAttrs := map[string]interface{}{"payment_method": pm.ID}
	if p.ClientKey != "" {
		attachAttrs["client_key"] = p.ClientKey
	}
	if p.ReturnURL != "" {
		attachAttrs["return_url"] = p.ReturnURL
	}
	var attached resource
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents/"+p.IntentID+"/attach", attachAttrs, &attached); err != nil {
		return payment.QRPayment{}, fmt.Errorf("attach payment method: %w", err)
	}

	var attrs intentAttributes
	if err := json.Unmarshal(attached.Attributes, &attrs); err != nil {
		return payment.QRPayment{}, fmt.Errorf("decode payment intent: %w", err)
	}
	if attrs.NextAction == nil || attrs.NextAction.Code == nil || attrs.NextAction.Code.ImageURL == "" {
		return payment.QRPayment{}, &APIError{Status: http.StatusOK, Detail: "payment intent has no QR code"}
	}
	return payment.QRPayment{
		IntentID:        attached.ID,
		PaymentMethodID: pm.ID,
		QRImage:         attrs.NextAction.Code.ImageURL,
		ExpiresAt:       c.now().Add(qrTTL),
	}, nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, p payment.CheckoutParams) (payment.CheckoutSession, error) {
	methods := p.MethodTypes
	if len(methods) == 0 {
		methods = []string{"gcash", "qrph"}
	}
	name := p.Description
	if name == "" {
		name = "Order " + p.ReferenceNumber
	}
	attrs := map[string]interface{}{
		"line_items": []map[string]interface{}{{
			"amount":   toCentavos(p.Amount),
			"currency": currencyOrDefault(p.Currency),
			"name":     name,
			"quantity": 1,
		}},
		"payment_method_types": methods,
		"description":          name,
		"reference_number":     p.ReferenceNumber,
		"send_email_receipt":   false,
		"show_line_items":      true,
	}
	if p.SuccessURL != "" {
		attrs["success_url"] = p.SuccessURL
	}
	if p.CancelURL != "" {
		attrs["cancel_url"] = p.CancelURL
	}

	var res resource
	if err := c.do(ctx, http.MethodPost, "/v1/checkout_sessions", attrs, &res); err != nil {
		return payment.CheckoutSession{}, err
	}
	var ca checkoutAttributes
	if err := json.Unmarshal(res.Attributes, &ca); err != nil {
		return payment.CheckoutSession{}, fmt.Errorf("decode checkout session: %w", err)
	}
	cs := payment.CheckoutSession{
		ID:          res.ID,
		CheckoutURL: ca.CheckoutURL,
		ExpiresAt:   c.now().Add(24 * time.Hour),
	}
	if ca.PaymentIntent != nil {
		cs.PaymentIntentID = ca.PaymentIntent.ID
	}
	return cs, nil
}

func (c *Client) RetrievePaymentIntent(ctx context.Context, id string) (payment.Intent, error) {
	var res resource
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+id, nil, &res); err != nil {
		return payment.Intent{}, err
	}
	return toIntent(res)
}

// --- Helpers ---

func (c *Client) do(ctx context.Context, method, path string, attrs interface{}, out *resource) error {
	var body io.Reader
	if attrs != nil {
		payload, err := json.Marshal(map[string]interface{}{
			"data": map[string]interface{}{"attributes": attrs},
		})
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.secretKey, "")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil && len(er.Errors) > 0 {
			apiErr.Code = er.Errors[0].Code
			apiErr.Detail = er.Errors[0].Detail
		}
		return apiErr
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode resource: %w", err)
	}
	return nil
}

func toIntent(res resource) (payment.Intent, error) {
	var attrs intentAttributes
	if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
		return payment.Intent{}, fmt.Errorf("decode payment intent: %w", err)
	}
	in := payment.Intent{
		ID:        res.ID,
		ClientKey: attrs.ClientKey,
		Status:    attrs.Status,
		Amount:    fromCentavos(attrs.Amount),
		Currency:  attrs.Currency,
	}
	if n := len(attrs.Payments); n > 0 {
		in.PaymentID = attrs.Payments[n-1].ID
	}
	if attrs.LastPaymentError != nil {
		in.LastError = attrs.LastPaymentError.FailedMessage
	}
	return in, nil
}

func toCentavos(amount decimal.Decimal) int64 {
	return amount.Mul(centavosPerPeso).Round(0).IntPart()
}

func fromCentavos(v int64) decimal.Decimal {
	return decimal.NewFromInt(v).Div(centavosPerPeso)
}

func currencyOrDefault(c string) string {
	if c == "" {
		return "PHP"
	}
	return strings.ToUpper(c)
}
