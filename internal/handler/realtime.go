package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kusina-pos/api/internal/events"
	"github.com/kusina-pos/api/internal/model"
	"github.com/kusina-pos/api/internal/service"
	"github.com/kusina-pos/api/internal/ws"
	"github.com/sirupsen/logrus"
)

// OrderGetter loads one order.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderGetter interface {
	GetOrder(ctx context.Context, id uuid.UUID) (model.Order, error)
}

// RealtimeHandler upgrades websocket subscriptions for order rooms and the
// staff room.
type RealtimeHandler struct {
	hub       *ws.Hub
	orders    OrderGetter
	jwtSecret string
	log       logrus.FieldLogger
}

// NewRealtimeHandler creates a new RealtimeHandler.
func NewRealtimeHandler(hub *ws.Hub, orders OrderGetter, jwtSecret string, log logrus.FieldLogger) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, orders: orders, jwtSecret: jwtSecret, log: log}
}

// RegisterRoutes registers websocket endpoints on the given Chi router.
func (h *RealtimeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/orders/{id}", h.OrderRoom)
	r.Get("/ws/staff", h.StaffRoom)
}

// OrderRoom subscribes to one order. The order id is the capability; the
// current order is sent first so the client never starts from nothing.
func (h *RealtimeHandler) OrderRoom(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			writeJSON(w, h.log, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeServiceError(w, h.log, err)
		return
	}

	snapshot, err := encodeSnapshot(order)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	ws.ServeRoom(h.hub, h.log, w, r, id.String(), snapshot)
}

func (h *RealtimeHandler) StaffRoom(w http.ResponseWriter, r *http.Request) {
	ws.ServeStaffWS(h.hub, h.jwtSecret, h.log, w, r)
}

func encodeSnapshot(o model.Order) ([]byte, error) {
	payload, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ws.Event{Type: events.TypeOrderSnapshot, Payload: payload})
}
