package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kusina-pos/api/internal/service"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PaymentServicer defines the service methods needed by payment handlers.
// Satisfied by *service.PaymentService; narrow interface for testability.
type PaymentServicer interface {
	CreatePaymentIntent(ctx context.Context, req service.CreateIntentRequest) (service.IntentResult, error)
	ProcessPayment(ctx context.Context, req service.ProcessPaymentRequest) (service.ProcessPaymentResult, error)
	CheckPaymentStatus(ctx context.Context, orderID uuid.UUID) (service.PaymentStatusResult, error)
}

// PaymentHandler handles the provider-facing payment endpoints used by the
// ordering client.
type PaymentHandler struct {
	svc PaymentServicer
	log logrus.FieldLogger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(svc PaymentServicer, log logrus.FieldLogger) *PaymentHandler {
	return &PaymentHandler{svc: svc, log: log}
}

// RegisterRoutes registers payment endpoints on the given Chi router.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/createPaymentIntent", h.CreateIntent)
	r.Post("/processPayment", h.Process)
	r.Get("/checkPaymentStatus/{orderId}", h.CheckStatus)
}

// --- Request / Response types ---

type createIntentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	OrderID     string          `json:"orderId"`
}

type processPaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description"`
	OrderID       string          `json:"orderId"`
	PaymentMethod string          `json:"paymentMethod"`
	TableNumber   string          `json:"tableNumber"`
}

// --- Handlers ---

func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	orderID, ok := optionalUUID(req.OrderID)
	if !ok {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "invalid orderId"})
		return
	}

	res, err := h.svc.CreatePaymentIntent(r.Context(), service.CreateIntentRequest{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		OrderID:     orderID,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, res)
}

// Process starts a QR Ph or hosted checkout payment. Failures keep the
// {success: false, error} shape the client expects.
func (h *PaymentHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req processPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid request body"})
		return
	}
	orderID, ok := optionalUUID(req.OrderID)
	if !ok {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid orderId"})
		return
	}

	res, err := h.svc.ProcessPayment(r.Context(), service.ProcessPaymentRequest{
		Amount:        req.Amount,
		Currency:      req.Currency,
		Description:   req.Description,
		OrderID:       orderID,
		PaymentMethod: req.PaymentMethod,
		TableNumber:   req.TableNumber,
	})
	if err != nil {
		status, body := errorResponse(h.log, err)
		body["success"] = false
		writeJSON(w, h.log, status, body)
		return
	}
	writeJSON(w, h.log, http.StatusOK, res)
}

func (h *PaymentHandler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	res, err := h.svc.CheckPaymentStatus(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, res)
}

// --- Helpers ---

// optionalUUID parses s, treating the empty string as uuid.Nil.
func optionalUUID(s string) (uuid.UUID, bool) {
	if s == "" {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
