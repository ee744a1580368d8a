package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kusina-pos/api/internal/handler"
	"github.com/kusina-pos/api/internal/service"
	"github.com/stretchr/testify/assert"
)

type fakePasswordSetter struct {
	got string
}

func (f *fakePasswordSetter) SetConfirmationPassword(_ context.Context, password string) error {
	if len(password) < 4 {
		return service.ErrWeakPassword
	}
	f.got = password
	return nil
}

func TestSetPaymentPassword(t *testing.T) {
	svc := &fakePasswordSetter{}
	r := chi.NewRouter()
	handler.NewSettingsHandler(svc, nullLogger()).RegisterRoutes(r)

	rr := doRequest(t, r, "PUT", "/settings/payment-password", map[string]string{"password": "s3cret"}, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "s3cret", svc.got)

	rr = doRequest(t, r, "PUT", "/settings/payment-password", map[string]string{"password": "12"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, r, "PUT", "/settings/payment-password", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
