package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kusina-pos/api/internal/middleware"
	"github.com/kusina-pos/api/internal/model"
	"github.com/kusina-pos/api/internal/service"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (model.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (model.Order, error)
	ListOrders(ctx context.Context, status string, limit, offset int) ([]model.Order, error)
	UpdateStatus(ctx context.Context, req service.UpdateStatusRequest) (model.Order, error)
}

// CashConfirmer confirms cash collection for an order.
// Satisfied by *service.PaymentService; narrow interface for testability.
type CashConfirmer interface {
	ConfirmCashPayment(ctx context.Context, req service.ConfirmCashRequest) (model.Order, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc  OrderServicer
	cash CashConfirmer
	log  logrus.FieldLogger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, cash CashConfirmer, log logrus.FieldLogger) *OrderHandler {
	return &OrderHandler{svc: svc, cash: cash, log: log}
}

// RegisterPublicRoutes registers endpoints reachable without a staff token.
// Claims are still read when present, so mount behind OptionalAuthenticate.
func (h *OrderHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/orders", h.Create)
	r.Get("/orders/{id}", h.Get)
	r.Post("/updateOrderStatus", h.UpdateStatus)
}

// RegisterStaffRoutes registers endpoints that require a staff token.
func (h *OrderHandler) RegisterStaffRoutes(r chi.Router) {
	r.Get("/orders", h.List)
	r.Post("/orders/{id}/confirm-payment", h.ConfirmPayment)
}

// --- Request / Response types ---

type placeOrderRequest struct {
	Items         []placeOrderItemRequest `json:"items"`
	DiscountCode  string                  `json:"discountCode"`
	PaymentMethod string                  `json:"paymentMethod"`
	TableNumber   string                  `json:"tableNumber"`
	UserID        string                  `json:"userId"`
	Source        string                  `json:"source"`
}

type placeOrderItemRequest struct {
	ItemID              string          `json:"itemId"`
	Name                string          `json:"name"`
	UnitPrice           decimal.Decimal `json:"unitPrice"`
	Quantity            int             `json:"quantity"`
	AddOns              []model.AddOn   `json:"addOns"`
	SpecialInstructions string          `json:"specialInstructions"`
}

type updateStatusRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	UserID  string `json:"userId"`
}

type updateStatusResponse struct {
	Success bool      `json:"success"`
	OrderID uuid.UUID `json:"orderId"`
	Status  string    `json:"status"`
}

type confirmPaymentRequest struct {
	Password string `json:"password"`
}

// --- Handlers ---

// Create places an order. Line totals and the discount are recomputed
// server-side.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	userID := req.UserID
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		userID = claims.UserID.String()
	}

	items := make([]service.PlaceOrderItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = service.PlaceOrderItem{
			ItemID:              it.ItemID,
			Name:                it.Name,
			UnitPrice:           it.UnitPrice,
			Quantity:            it.Quantity,
			AddOns:              it.AddOns,
			SpecialInstructions: it.SpecialInstructions,
		}
	}

	order, err := h.svc.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		Items:         items,
		DiscountCode:  req.DiscountCode,
		PaymentMethod: req.PaymentMethod,
		TableNumber:   req.TableNumber,
		UserID:        userID,
		Source:        req.Source,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusCreated, order)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, order)
}

// List returns orders newest first, optionally filtered by ?status=.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		return
	}
	offset, err := queryInt(q.Get("offset"))
	if err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "invalid offset"})
		return
	}

	orders, err := h.svc.ListOrders(r.Context(), q.Get("status"), limit, offset)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, h.log, http.StatusOK, orders)
}

// UpdateStatus moves an order to a new status. The acting user comes from
// the bearer token when one is present, otherwise from the body.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.OrderID == "" || req.Status == "" {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "orderId and status are required"})
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "invalid orderId"})
		return
	}

	userID := req.UserID
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		userID = claims.UserID.String()
	}

	order, err := h.svc.UpdateStatus(r.Context(), service.UpdateStatusRequest{
		OrderID: orderID,
		Status:  req.Status,
		UserID:  userID,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, updateStatusResponse{Success: true, OrderID: order.ID, Status: order.Status})
}

// ConfirmPayment records that cash was collected for an order.
func (h *OrderHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}
	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Password == "" {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "password is required"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, h.log, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	order, err := h.cash.ConfirmCashPayment(r.Context(), service.ConfirmCashRequest{
		OrderID:  orderID,
		UserID:   claims.UserID.String(),
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, order)
}

// --- Helpers ---

// queryInt parses an optional non-negative integer query value.
func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
