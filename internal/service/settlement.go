package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kusina-pos/api/internal/database"
	"github.com/kusina-pos/api/internal/enum"
	"github.com/kusina-pos/api/internal/lifecycle"
	"github.com/kusina-pos/api/internal/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// settlement is a provider outcome for one payment intent.
type settlement struct {
	IntentID  string
	Succeeded bool
	PaymentID string
	// Amount is the settled amount in pesos; zero leaves records unchanged.
	Amount decimal.Decimal
}

// applySettlement updates every order and payment record tied to the intent.
// It must run inside a store transaction. Returns the orders that changed.
//
// paid is sticky: a failure arriving after success is ignored, while a
// success after a failure upgrades the order. A success for an intent the
// order has since replaced with a retry still settles that order, found
// through the intent's payment records. A late success revives an expired
// order to pending.
func applySettlement(ctx context.Context, tx database.Store, st settlement, now time.Time, log logrus.FieldLogger) ([]model.Order, error) {
	incoming := enum.PaymentStatusFailed
	record := enum.PaymentRecordFailed
	if st.Succeeded {
		incoming = enum.PaymentStatusPaid
		record = enum.PaymentRecordSucceeded
	}

	orders, err := tx.ListOrdersByPaymentIntent(ctx, st.IntentID)
	if err != nil {
		return nil, fmt.Errorf("list orders by intent: %w", err)
	}
	payments, err := tx.ListPaymentsByIntent(ctx, st.IntentID)
	if err != nil {
		return nil, fmt.Errorf("list payments by intent: %w", err)
	}

	// --- Superseded intents ---
	if st.Succeeded {
		seen := make(map[uuid.UUID]bool, len(orders))
		for _, o := range orders {
			seen[o.ID] = true
		}
		for _, p := range payments {
			if p.OrderID == uuid.Nil || seen[p.OrderID] {
				continue
			}
			seen[p.OrderID] = true
			o, err := tx.GetOrderForUpdate(ctx, p.OrderID)
			if errors.Is(err, database.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("get order %s: %w", p.OrderID, err)
			}
			log.WithFields(logrus.Fields{
				"order_id":          o.ID,
				"payment_intent_id": st.IntentID,
				"current_intent_id": o.PaymentIntentID,
			}).Warn("payment succeeded on a superseded intent")
			o.PaymentIntentID = st.IntentID
			o.SourceID = p.SourceID
			orders = append(orders, o)
		}
	}

	// --- Orders ---
	var changed []model.Order
	for _, o := range orders {
		next, ok := lifecycle.MergePaymentStatus(o.PaymentStatus, incoming)
		if !ok {
			continue
		}
		o.PaymentStatus = next
		if next == enum.PaymentStatusPaid {
			if status, moved := lifecycle.SettlePaid(o.Status); moved {
				if lifecycle.Revived(o.Status, status) {
					log.WithFields(logrus.Fields{
						"order_id":          o.ID,
						"payment_intent_id": st.IntentID,
					}).Warn("late payment revived expired order")
				}
				o.Status = status
			}
		}
		o.UpdatedAt = now
		updated, err := tx.UpdateOrder(ctx, o)
		if err != nil {
			return nil, fmt.Errorf("update order %s: %w", o.ID, err)
		}
		changed = append(changed, updated)
	}

	// --- Payment records ---
	for _, p := range payments {
		if p.Status == record || p.Status == enum.PaymentRecordSucceeded {
			continue
		}
		p.Status = record
		if st.PaymentID != "" {
			p.PaymongoPaymentID = st.PaymentID
		}
		if st.Succeeded && st.Amount.IsPositive() {
			p.Amount = st.Amount
		}
		p.UpdatedAt = now
		if _, err := tx.UpdatePayment(ctx, p); err != nil {
			return nil, fmt.Errorf("update payment %s: %w", p.ID, err)
		}
	}
	return changed, nil
}
