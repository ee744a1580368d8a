package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kusina-pos/api/internal/discount"
	"github.com/kusina-pos/api/internal/service"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DiscountServicer defines the service methods needed by discount handlers.
// Satisfied by *service.DiscountService; narrow interface for testability.
type DiscountServicer interface {
	Lookup(ctx context.Context, code string) (discount.Discount, error)
	Apply(ctx context.Context, code string, subtotal decimal.Decimal) (discount.Discount, discount.Result, error)
}

// DiscountHandler lets the ordering client check and preview codes.
type DiscountHandler struct {
	svc DiscountServicer
	log logrus.FieldLogger
}

// NewDiscountHandler creates a new DiscountHandler.
func NewDiscountHandler(svc DiscountServicer, log logrus.FieldLogger) *DiscountHandler {
	return &DiscountHandler{svc: svc, log: log}
}

// RegisterRoutes registers discount endpoints on the given Chi router.
func (h *DiscountHandler) RegisterRoutes(r chi.Router) {
	r.Get("/discounts/{code}", h.Get)
	r.Post("/discounts/apply", h.Apply)
}

// --- Request / Response types ---

type applyDiscountRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type applyDiscountResponse struct {
	Discount discount.Discount `json:"discount"`
	discount.Result
}

// --- Handlers ---

// Get returns a discount only when it is usable right now.
func (h *DiscountHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Lookup(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidDiscountCode) {
			writeJSON(w, h.log, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, d)
}

func (h *DiscountHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req applyDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	d, res, err := h.svc.Apply(r.Context(), req.Code, req.Subtotal)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, applyDiscountResponse{Discount: d, Result: res})
}
