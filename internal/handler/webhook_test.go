package handler_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kusina-pos/api/internal/handler"
	"github.com/kusina-pos/api/internal/paymongo"
	"github.com/kusina-pos/api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWebhookService struct {
	events []paymongo.Event
	result service.WebhookResult
	err    error
}

func (m *mockWebhookService) HandleEvent(_ context.Context, ev paymongo.Event) (service.WebhookResult, error) {
	m.events = append(m.events, ev)
	return m.result, m.err
}

const webhookSecret = "whsk_test"

func setupWebhookRouter(svc *mockWebhookService, secret string) *chi.Mux {
	h := handler.NewWebhookHandler(svc, secret, nullLogger())
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func postWebhook(router http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/handlePayMongoWebhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(paymongo.SignatureHeader, signature)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

var succeededBody = []byte(`{"data":{"id":"evt_1","type":"payment.paid","attributes":{"id":"pay_1","payment_intent_id":"pi_1","amount":30000}}}`)

func TestWebhook_AppliesEvent(t *testing.T) {
	svc := &mockWebhookService{result: service.WebhookResult{Outcome: service.WebhookApplied}}

	rr := postWebhook(setupWebhookRouter(svc, ""), succeededBody, "")

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decodeResponse(t, rr)
	assert.Equal(t, true, resp["received"])
	assert.Equal(t, "applied", resp["outcome"])

	require.Len(t, svc.events, 1)
	ev := svc.events[0]
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, paymongo.EventPaymentSucceeded, ev.Kind())
	assert.Equal(t, "pi_1", ev.PaymentIntentID)
	assert.Equal(t, "300", ev.Amount.String())
}

func TestWebhook_MalformedBody(t *testing.T) {
	svc := &mockWebhookService{}

	rr := postWebhook(setupWebhookRouter(svc, ""), []byte("not json"), "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, svc.events)
}

func TestWebhook_UnknownTypeIsAcknowledged(t *testing.T) {
	svc := &mockWebhookService{result: service.WebhookResult{Outcome: service.WebhookIgnored}}

	rr := postWebhook(setupWebhookRouter(svc, ""), []byte(`{"data":{"type":"source.chargeable","attributes":{}}}`), "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ignored", decodeResponse(t, rr)["outcome"])
}

func TestWebhook_StoreFailureAsksForRetry(t *testing.T) {
	svc := &mockWebhookService{err: errors.New("connection reset")}

	rr := postWebhook(setupWebhookRouter(svc, ""), succeededBody, "")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestWebhook_Signature(t *testing.T) {
	const ts = "1700000000"
	valid := "t=" + ts + ",te=" + paymongo.Sign(ts, succeededBody, webhookSecret) + ",li="

	tests := []struct {
		name      string
		signature string
		want      int
	}{
		{"valid test signature", valid, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong secret", "t=" + ts + ",te=" + paymongo.Sign(ts, succeededBody, "other") + ",li=", http.StatusUnauthorized},
		{"tampered timestamp", "t=1700000001,te=" + paymongo.Sign(ts, succeededBody, webhookSecret) + ",li=", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockWebhookService{result: service.WebhookResult{Outcome: service.WebhookApplied}}
			rr := postWebhook(setupWebhookRouter(svc, webhookSecret), succeededBody, tt.signature)

			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
			if tt.want != http.StatusOK {
				assert.Empty(t, svc.events)
			}
		})
	}
}
