package handler

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/kusina-pos/api/internal/lifecycle"
	"github.com/kusina-pos/api/internal/service"
	"github.com/sirupsen/logrus"
)

func writeJSON(w http.ResponseWriter, log logrus.FieldLogger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("failed to encode JSON response")
	}
}

// badRequest lists service errors caused by the caller's input.
var badRequest = []error{
	service.ErrEmptyItems,
	service.ErrInvalidQuantity,
	service.ErrInvalidPrice,
	service.ErrMissingItemID,
	service.ErrInvalidPaymentMethod,
	service.ErrInvalidSource,
	service.ErrInvalidDiscountCode,
	service.ErrMissingUser,
	service.ErrInvalidSubtotal,
	service.ErrInvalidAmount,
	service.ErrAmountMismatch,
	service.ErrOrderRequired,
	service.ErrUnsupportedPaymentMethod,
	service.ErrOrderNotAwaitingPayment,
	service.ErrAlreadyPaid,
	service.ErrNotCashOrder,
	service.ErrWeakPassword,
	lifecycle.ErrUnknownStatus,
	lifecycle.ErrInvalidTransition,
}

// writeServiceError maps a service error to a status code and JSON body.
func writeServiceError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	status, body := errorResponse(log, err)
	writeJSON(w, log, status, body)
}

// errorResponse picks the status and body for err. Unexpected errors are
// logged and hidden behind a generic message.
func errorResponse(log logrus.FieldLogger, err error) (int, map[string]interface{}) {
	var locked *service.LockedOutError
	switch {
	case errors.As(err, &locked):
		return http.StatusTooManyRequests, map[string]interface{}{
			"error":      locked.Error(),
			"retryAfter": int(math.Ceil(locked.RetryAfter.Seconds())),
		}
	case errors.Is(err, service.ErrOrderNotFound):
		return http.StatusNotFound, errorBody(err.Error())
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrWrongPassword):
		return http.StatusForbidden, errorBody(err.Error())
	case errors.Is(err, service.ErrPasswordNotConfigured):
		return http.StatusConflict, errorBody(err.Error())
	case errors.Is(err, service.ErrProvider):
		log.WithError(err).Error("payment provider request failed")
		return http.StatusInternalServerError, errorBody(err.Error())
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest, errorBody(err.Error())
		}
	}
	log.WithError(err).Error("request failed")
	return http.StatusInternalServerError, errorBody("internal server error")
}

func errorBody(msg string) map[string]interface{} {
	return map[string]interface{}{"error": msg}
}
