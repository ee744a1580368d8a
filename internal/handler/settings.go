package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// PasswordSetter stores the shared cash confirmation password.
// Satisfied by *service.PaymentService; narrow interface for testability.
type PasswordSetter interface {
	SetConfirmationPassword(ctx context.Context, password string) error
}

// SettingsHandler exposes admin settings.
type SettingsHandler struct {
	svc PasswordSetter
	log logrus.FieldLogger
}

func NewSettingsHandler(svc PasswordSetter, log logrus.FieldLogger) *SettingsHandler {
	return &SettingsHandler{svc: svc, log: log}
}

// RegisterRoutes registers settings endpoints. Mount behind an admin-only group.
func (h *SettingsHandler) RegisterRoutes(r chi.Router) {
	r.Put("/settings/payment-password", h.SetPaymentPassword)
}

type paymentPasswordRequest struct {
	Password string `json:"password"`
}

func (h *SettingsHandler) SetPaymentPassword(w http.ResponseWriter, r *http.Request) {
	var req paymentPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.svc.SetConfirmationPassword(r.Context(), req.Password); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string]bool{"success": true})
}
