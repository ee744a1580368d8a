// Package model defines the persisted documents shared by the stores,
// services, and the client tracker.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AddOn is a priced extra attached to a line item.
type AddOn struct {
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// LineItem is one distinct (menu item, add-ons, instructions) combination.
type LineItem struct {
	ItemID              string          `json:"itemId"`
	Name                string          `json:"name"`
	UnitPrice           decimal.Decimal `json:"unitPrice"`
	Quantity            int             `json:"quantity"`
	AddOns              []AddOn         `json:"addOns"`
	SpecialInstructions string          `json:"specialInstructions"`
	TotalItemPrice      decimal.Decimal `json:"totalItemPrice"`
}

// Order is the source of truth for what the customer sees.
type Order struct {
	ID                   uuid.UUID       `json:"id"`
	Items                []LineItem      `json:"items"`
	Subtotal             decimal.Decimal `json:"subtotal"`
	DiscountCode         string          `json:"discountCode,omitempty"`
	DiscountName         string          `json:"discountName,omitempty"`
	DiscountAmount       decimal.Decimal `json:"discountAmount"`
	Total                decimal.Decimal `json:"total"`
	PaymentMethod        string          `json:"paymentMethod"`
	Status               string          `json:"status"`
	PaymentStatus        string          `json:"paymentStatus"`
	TableNumber          string          `json:"tableNumber,omitempty"`
	UserID               string          `json:"userId,omitempty"`
	Source               string          `json:"source"`
	SourceID             string          `json:"sourceId,omitempty"`
	PaymentIntentID      string          `json:"paymentIntentId,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	Timestamp            time.Time       `json:"timestamp"`
	UpdatedAt            time.Time       `json:"updatedAt"`
	PreparationStartTime *time.Time      `json:"preparationStartTime,omitempty"`
	ReadyTime            *time.Time      `json:"readyTime,omitempty"`
	CompletedTime        *time.Time      `json:"completedTime,omitempty"`
	CancelledTime        *time.Time      `json:"cancelledTime,omitempty"`
}

// Clone returns a copy that shares no slices or pointers with o.
func (o Order) Clone() Order {
	c := o
	if o.Items != nil {
		c.Items = make([]LineItem, len(o.Items))
		for i, it := range o.Items {
			c.Items[i] = it
			if it.AddOns != nil {
				c.Items[i].AddOns = append([]AddOn(nil), it.AddOns...)
			}
		}
	}
	c.PreparationStartTime = cloneTime(o.PreparationStartTime)
	c.ReadyTime = cloneTime(o.ReadyTime)
	c.CompletedTime = cloneTime(o.CompletedTime)
	c.CancelledTime = cloneTime(o.CancelledTime)
	return c
}

// Payment is a secondary record of one attempt to collect payment for an order.
type Payment struct {
	ID                uuid.UUID       `json:"id"`
	OrderID           uuid.UUID       `json:"orderId"`
	PaymentIntentID   string          `json:"paymentIntentId,omitempty"`
	SourceID          string          `json:"sourceId,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Method            string          `json:"method"`
	Status            string          `json:"status"`
	PaymongoPaymentID string          `json:"paymongoPaymentId,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// User is a staff or customer account.
type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"fullName"`
	HashedPassword string    `json:"-"`
	Role           string    `json:"role"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
}

// WebhookEvent is a ledger entry for a processed provider event.
type WebhookEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	ReceivedAt time.Time `json:"receivedAt"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
