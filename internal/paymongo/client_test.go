package paymongo_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kusina-pos/api/internal/payment"
	"github.com/kusina-pos/api/internal/paymongo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	User   string
	Attrs  map[string]interface{}
}

func newServer(t *testing.T, routes map[string]string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, _ := r.BasicAuth()
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, User: user}
		if body, _ := io.ReadAll(r.Body); len(body) > 0 {
			var env struct {
				Data struct {
					Attributes map[string]interface{} `json:"attributes"`
				} `json:"data"`
			}
			if err := json.Unmarshal(body, &env); err != nil {
				t.Errorf("request body is not a data envelope: %v", err)
			}
			rec.Attrs = env.Data.Attributes
		}
		reqs = append(reqs, rec)

		resp, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"errors":[{"code":"resource_not_found","detail":"No such route."}]}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func TestCreatePaymentIntent(t *testing.T) {
	srv, reqs := newServer(t, map[string]string{
		"POST /v1/payment_intents": `{"data":{"id":"pi_123","type":"payment_intent","attributes":{"amount":22500,"currency":"PHP","client_key":"pi_123_client_abc","status":"awaiting_payment_method"}}}`,
	})
	c := paymongo.NewClient("sk_test_x", srv.URL, nil)

	in, err := c.CreatePaymentIntent(context.Background(), payment.IntentParams{
		Amount:      decimal.RequireFromString("225.00"),
		Description: "Order 42",
		Metadata:    map[string]string{"orderId": "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", in.ID)
	assert.Equal(t, "pi_123_client_abc", in.ClientKey)
	assert.Equal(t, "225", in.Amount.String())

	require.Len(t, *reqs, 1)
	got := (*reqs)[0]
	assert.Equal(t, "sk_test_x", got.User)
	assert.EqualValues(t, 22500, got.Attrs["amount"])
	assert.Equal(t, "PHP", got.Attrs["currency"])
	assert.Equal(t, "Order 42", got.Attrs["description"])
}

func TestCreateQRPayment(t *testing.T) {
	srv, reqs := newServer(t, map[string]string{
		"POST /v1/payment_methods":           `{"data":{"id":"pm_1","type":"payment_method","attributes":{"type":"qrph"}}}`,
		"POST /v1/payment_intents/pi_1/attach": `{"data":{"id":"pi_1","type":"payment_intent","attributes":{"status":"awaiting_next_action","next_action":{"type":"consume_qr","code":{"id":"qr_1","image_url":"data:image/png;base64,AAA"}}}}}`,
	})
	c := paymongo.NewClient("sk_test_x", srv.URL, nil)

	qr, err := c.CreateQRPayment(context.Background(), payment.QRParams{IntentID: "pi_1", BillingName: "Table 4"})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", qr.IntentID)
	assert.Equal(t, "pm_1", qr.PaymentMethodID)
	assert.Equal(t, "data:image/png;base64,AAA", qr.QRImage)
	assert.False(t, qr.ExpiresAt.IsZero())

	require.Len(t, *reqs, 2)
	assert.Equal(t, "qrph", (*reqs)[0].Attrs["type"])
	assert.Equal(t, "pm_1", (*reqs)[1].Attrs["payment_method"])
}

func TestCreateCheckoutSession(t *testing.T) {
	srv, _ := newServer(t, map[string]string{
		"POST /v1/checkout_sessions": `{"data":{"id":"cs_1","type":"checkout_session","attributes":{"checkout_url":"https://checkout.paymongo.com/cs_1","payment_intent":{"id":"pi_cs"}}}}`,
	})
	c := paymongo.NewClient("sk_test_x", srv.URL, nil)

	cs, err := c.CreateCheckoutSession(context.Background(), payment.CheckoutParams{
		Amount:          decimal.NewFromInt(100),
		ReferenceNumber: "order-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", cs.ID)
	assert.Equal(t, "https://checkout.paymongo.com/cs_1", cs.CheckoutURL)
	assert.Equal(t, "pi_cs", cs.PaymentIntentID)
}

func TestRetrievePaymentIntent(t *testing.T) {
	srv, _ := newServer(t, map[string]string{
		"GET /v1/payment_intents/pi_9": `{"data":{"id":"pi_9","type":"payment_intent","attributes":{"amount":5000,"status":"succeeded","payments":[{"id":"pay_a"},{"id":"pay_b"}]}}}`,
	})
	c := paymongo.NewClient("sk_test_x", srv.URL, nil)

	in, err := c.RetrievePaymentIntent(context.Background(), "pi_9")
	require.NoError(t, err)
	assert.Equal(t, payment.IntentSucceeded, in.Status)
	assert.Equal(t, "pay_b", in.PaymentID)
	assert.Equal(t, "50", in.Amount.String())
}

func TestAPIErrorCarriesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"code":"parameter_below_minimum","detail":"amount cannot be less than 2000."}]}`))
	}))
	defer srv.Close()
	c := paymongo.NewClient("sk_test_x", srv.URL, nil)

	_, err := c.CreatePaymentIntent(context.Background(), payment.IntentParams{Amount: decimal.NewFromInt(1)})
	var apiErr *paymongo.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "parameter_below_minimum", apiErr.Code)
	assert.Equal(t, "amount cannot be less than 2000.", apiErr.Detail)
	assert.Equal(t, "paymongo: amount cannot be less than 2000.", err.Error())
}
