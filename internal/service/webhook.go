package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kusina-pos/api/internal/database"
	"github.com/kusina-pos/api/internal/events"
	"github.com/kusina-pos/api/internal/model"
	"github.com/kusina-pos/api/internal/paymongo"
	"github.com/sirupsen/logrus"
)

// WebhookOutcome describes what a delivery did.
type WebhookOutcome string

const (
	WebhookApplied   WebhookOutcome = "applied"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
)

// WebhookResult is returned by HandleEvent.
type WebhookResult struct {
	Outcome WebhookOutcome
	// Orders are the orders whose payment state changed.
	Orders []model.Order
}

// WebhookService applies provider payment events to orders and payment
// records.
type WebhookService struct {
	store  database.Store
	events events.Publisher
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewWebhookService(store database.Store, pub events.Publisher, log logrus.FieldLogger) *WebhookService {
	return &WebhookService{store: store, events: pub, log: log, now: time.Now}
}

// HandleEvent applies ev. The ledger write, order updates and payment record
// updates commit together; a redelivered event id is a no-op. Unknown event
// types and events without an intent id are ignored.
func (s *WebhookService) HandleEvent(ctx context.Context, ev paymongo.Event) (WebhookResult, error) {
	log := s.log.WithFields(logrus.Fields{
		"event_id":          ev.ID,
		"event_type":        ev.Type,
		"payment_intent_id": ev.PaymentIntentID,
	})

	var succeeded bool
	switch ev.Kind() {
	case paymongo.EventPaymentSucceeded:
		succeeded = true
	case paymongo.EventPaymentFailed:
	default:
		log.Info("webhook event ignored")
		return WebhookResult{Outcome: WebhookIgnored}, nil
	}
	if ev.PaymentIntentID == "" {
		log.Warn("webhook event has no payment intent id")
		return WebhookResult{Outcome: WebhookIgnored}, nil
	}

	now := s.now()
	result := WebhookResult{Outcome: WebhookApplied}
	err := s.store.ExecTx(ctx, func(tx database.Store) error {
		if ev.ID != "" {
			fresh, err := tx.RecordWebhookEvent(ctx, model.WebhookEvent{ID: ev.ID, Type: ev.Type, ReceivedAt: now})
			if err != nil {
				return fmt.Errorf("record webhook event: %w", err)
			}
			if !fresh {
				result.Outcome = WebhookDuplicate
				return nil
			}
		}

		changed, err := applySettlement(ctx, tx, settlement{
			IntentID:  ev.PaymentIntentID,
			Succeeded: succeeded,
			PaymentID: ev.PaymentID,
			Amount:    ev.Amount,
		}, now, log)
		if err != nil {
			return err
		}
		result.Orders = changed
		return nil
	})
	if err != nil {
		log.WithError(err).Error("webhook event not applied")
		return WebhookResult{}, err
	}

	log.WithFields(logrus.Fields{
		"outcome":        result.Outcome,
		"orders_changed": len(result.Orders),
	}).Info("webhook event processed")
	for _, o := range result.Orders {
		publish(ctx, s.events, s.log, events.TypeOrderUpdated, o)
	}
	return result, nil
}
