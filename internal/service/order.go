package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kusina-pos/api/internal/auth"
	"github.com/kusina-pos/api/internal/cart"
	"github.com/kusina-pos/api/internal/database"
	"github.com/kusina-pos/api/internal/discount"
	"github.com/kusina-pos/api/internal/enum"
	"github.com/kusina-pos/api/internal/events"
	"github.com/kusina-pos/api/internal/lifecycle"
	"github.com/kusina-pos/api/internal/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Errors returned by the order service.
var (
	ErrEmptyItems           = errors.New("items are required")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInvalidPrice         = errors.New("prices must not be negative")
	ErrMissingItemID        = errors.New("item id is required")
	ErrInvalidPaymentMethod = errors.New("invalid paymentMethod")
	ErrInvalidSource        = errors.New("invalid source")
	ErrInvalidDiscountCode  = errors.New("invalid or expired discount code")
	ErrOrderNotFound        = errors.New("order not found")
	ErrMissingUser          = errors.New("userId is required")
	ErrForbidden            = errors.New("user is not allowed to perform this action")
)

// PlaceOrderItem is one submitted line. Line totals sent by the client are
// ignored and recomputed.
type PlaceOrderItem struct {
	ItemID              string
	Name                string
	UnitPrice           decimal.Decimal
	Quantity            int
	AddOns              []model.AddOn
	SpecialInstructions string
}

// PlaceOrderRequest is the validated input for placing an order.
type PlaceOrderRequest struct {
	Items         []PlaceOrderItem
	DiscountCode  string
	PaymentMethod string
	TableNumber   string
	UserID        string
	Source        string
}

// UpdateStatusRequest moves an order along its lifecycle on behalf of a user.
type UpdateStatusRequest struct {
	OrderID uuid.UUID
	Status  string
	UserID  string
}

// OrderService handles order business logic.
type OrderService struct {
	store  database.Store
	events events.Publisher
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(store database.Store, pub events.Publisher, log logrus.FieldLogger) *OrderService {
	return &OrderService{store: store, events: pub, log: log, now: time.Now}
}

// PlaceOrder validates items, recomputes totals and persists a new order.
// Cash orders go straight to the kitchen queue; gcash orders wait for payment.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (model.Order, error) {
	// --- Validate header ---
	if len(req.Items) == 0 {
		return model.Order{}, ErrEmptyItems
	}
	status, err := initialStatus(req.PaymentMethod)
	if err != nil {
		return model.Order{}, err
	}
	source := req.Source
	if source == "" {
		source = enum.OrderSourceCustomer
	}
	if source != enum.OrderSourceCustomer && source != enum.OrderSourceCashier {
		return model.Order{}, ErrInvalidSource
	}

	// --- Rebuild the cart from submitted items ---
	c := cart.New()
	for i, item := range req.Items {
		if item.ItemID == "" {
			return model.Order{}, fmt.Errorf("items[%d]: %w", i, ErrMissingItemID)
		}
		if item.Quantity <= 0 {
			return model.Order{}, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
		if item.UnitPrice.IsNegative() {
			return model.Order{}, fmt.Errorf("items[%d]: %w", i, ErrInvalidPrice)
		}
		for j, a := range item.AddOns {
			if a.Price.IsNegative() {
				return model.Order{}, fmt.Errorf("items[%d].addOns[%d]: %w", i, j, ErrInvalidPrice)
			}
		}
		c.Add(cart.MenuItem{ID: item.ItemID, Name: item.Name, Price: item.UnitPrice}, cart.AddOptions{
			Qty:                 item.Quantity,
			SelectedAddOns:      item.AddOns,
			SpecialInstructions: item.SpecialInstructions,
		})
	}

	// --- Resolve discount ---
	now := s.now()
	var d *discount.Discount
	if discount.NormalizeCode(req.DiscountCode) != "" {
		found, err := lookupDiscount(ctx, s.store, req.DiscountCode, now)
		if err != nil {
			return model.Order{}, err
		}
		d = &found
		c.SetDiscount(d)
	}
	totals := c.Totals()

	order := model.Order{
		Items:          c.ToOrderItems(),
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		Total:          totals.FinalTotal,
		PaymentMethod:  req.PaymentMethod,
		Status:         status,
		PaymentStatus:  enum.PaymentStatusPending,
		TableNumber:    req.TableNumber,
		UserID:         req.UserID,
		Source:         source,
		CreatedAt:      now,
		Timestamp:      now,
		UpdatedAt:      now,
	}
	if d != nil {
		order.DiscountCode = d.Code
		order.DiscountName = d.Name
	}

	// --- Insert order ---
	created, err := s.store.CreateOrder(ctx, order)
	if err != nil {
		return model.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"order_id":       created.ID,
		"payment_method": created.PaymentMethod,
		"total":          created.Total.StringFixed(2),
	}).Info("order placed")
	s.publish(ctx, events.TypeOrderCreated, created)
	return created, nil
}

// GetOrder returns one order.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (model.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return model.Order{}, ErrOrderNotFound
		}
		return model.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// ListOrders returns orders newest first, optionally filtered by status.
func (s *OrderService) ListOrders(ctx context.Context, status string, limit, offset int) ([]model.Order, error) {
	if status != "" && !lifecycle.IsKnownStatus(status) {
		return nil, fmt.Errorf("%w: %q", lifecycle.ErrUnknownStatus, status)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	orders, err := s.store.ListOrders(ctx, database.ListOrdersParams{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus applies a staff status change. The user must exist, be active
// and hold a staff role; the transition must be legal.
func (s *OrderService) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (model.Order, error) {
	if req.UserID == "" {
		return model.Order{}, ErrMissingUser
	}
	if !lifecycle.IsKnownStatus(req.Status) {
		return model.Order{}, fmt.Errorf("%w: %q", lifecycle.ErrUnknownStatus, req.Status)
	}
	if err := s.authorizeStaff(ctx, req.UserID); err != nil {
		return model.Order{}, err
	}

	var updated model.Order
	err := s.store.ExecTx(ctx, func(tx database.Store) error {
		o, err := tx.GetOrderForUpdate(ctx, req.OrderID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("get order: %w", err)
		}
		if err := lifecycle.CanTransition(o.Status, req.Status); err != nil {
			return err
		}

		now := s.now()
		o.Status = req.Status
		o.UpdatedAt = now
		stampStatusTime(&o, now)

		updated, err = tx.UpdateOrder(ctx, o)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Order{}, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id": updated.ID,
		"status":   updated.Status,
		"user_id":  req.UserID,
	}).Info("order status updated")
	s.publish(ctx, events.TypeOrderUpdated, updated)
	return updated, nil
}

func (s *OrderService) authorizeStaff(ctx context.Context, userID string) error {
	return authorizeStaff(ctx, s.store, userID)
}

func (s *OrderService) publish(ctx context.Context, typ string, o model.Order) {
	publish(ctx, s.events, s.log, typ, o)
}

// --- Helpers ---

func initialStatus(method string) (string, error) {
	switch method {
	case enum.PaymentMethodCash:
		return enum.OrderStatusPending, nil
	case enum.PaymentMethodGCash:
		return enum.OrderStatusPendingPayment, nil
	}
	return "", ErrInvalidPaymentMethod
}

func stampStatusTime(o *model.Order, now time.Time) {
	t := now
	switch o.Status {
	case enum.OrderStatusPreparing:
		o.PreparationStartTime = &t
	case enum.OrderStatusReady:
		o.ReadyTime = &t
	case enum.OrderStatusCompleted:
		o.CompletedTime = &t
	case enum.OrderStatusCancelled:
		o.CancelledTime = &t
	}
}

func authorizeStaff(ctx context.Context, store database.Store, userID string) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return ErrForbidden
	}
	u, err := store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrForbidden
		}
		return fmt.Errorf("get user: %w", err)
	}
	if !u.Active || !auth.IsStaff(u.Role) {
		return ErrForbidden
	}
	return nil
}

// publish logs publisher errors instead of returning them; the order is
// already committed.
func publish(ctx context.Context, pub events.Publisher, log logrus.FieldLogger, typ string, o model.Order) {
	if err := pub.Publish(ctx, events.Event{Type: typ, Order: o}); err != nil {
		log.WithError(err).WithField("order_id", o.ID).Warn("publish order event")
	}
}
