package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kusina-pos/api/internal/database"
	"github.com/kusina-pos/api/internal/enum"
	"github.com/kusina-pos/api/internal/events"
	"github.com/kusina-pos/api/internal/model"
	"github.com/sirupsen/logrus"
)

// MaintenanceConfig controls the scheduled cleanup jobs.
type MaintenanceConfig struct {
	Retention      time.Duration
	RetentionBatch int
	PaymentExpiry  time.Duration
	ExpiryBatch    int
}

// Maintenance runs retention cleanup and stale payment expiry.
type Maintenance struct {
	store  database.Store
	events events.Publisher
	cfg    MaintenanceConfig
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewMaintenance(store database.Store, pub events.Publisher, cfg MaintenanceConfig, log logrus.FieldLogger) *Maintenance {
	if cfg.RetentionBatch <= 0 {
		cfg.RetentionBatch = 100
	}
	if cfg.ExpiryBatch <= 0 {
		cfg.ExpiryBatch = 100
	}
	return &Maintenance{store: store, events: pub, cfg: cfg, log: log, now: time.Now}
}

// PurgeCompleted deletes at most RetentionBatch completed orders older than
// the retention window and returns how many were removed.
func (m *Maintenance) PurgeCompleted(ctx context.Context) (int64, error) {
	cutoff := m.now().Add(-m.cfg.Retention)
	stale, err := m.store.ListOrdersByStatusBefore(ctx, enum.OrderStatusCompleted, cutoff, m.cfg.RetentionBatch)
	if err != nil {
		return 0, fmt.Errorf("list completed orders: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, len(stale))
	for i, o := range stale {
		ids[i] = o.ID
	}
	n, err := m.store.DeleteOrders(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete orders: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"deleted": n,
		"cutoff":  cutoff.Format(time.RFC3339),
	}).Info("completed orders purged")
	return n, nil
}

// ExpireStalePayments expires orders whose latest payment attempt is older
// than PaymentExpiry. Their pending payment records are failed.
func (m *Maintenance) ExpireStalePayments(ctx context.Context) (int, error) {
	now := m.now()
	cutoff := now.Add(-m.cfg.PaymentExpiry)
	stale, err := m.store.ListAwaitingPaymentBefore(ctx, cutoff, m.cfg.ExpiryBatch)
	if err != nil {
		return 0, fmt.Errorf("list pending payment orders: %w", err)
	}

	var expired []model.Order
	for _, candidate := range stale {
		var updated model.Order
		var changed bool
		err := m.store.ExecTx(ctx, func(tx database.Store) error {
			o, err := tx.GetOrderForUpdate(ctx, candidate.ID)
			if err != nil {
				return fmt.Errorf("get order: %w", err)
			}
			// A webhook or a fresh QR may have landed since the scan.
			if o.Status != enum.OrderStatusPendingPayment || o.PaymentStatus == enum.PaymentStatusPaid ||
				!o.UpdatedAt.Before(cutoff) {
				return nil
			}
			o.Status = enum.OrderStatusExpired
			o.PaymentStatus = enum.PaymentStatusExpired
			o.UpdatedAt = now
			if updated, err = tx.UpdateOrder(ctx, o); err != nil {
				return fmt.Errorf("update order: %w", err)
			}

			payments, err := tx.ListPaymentsByOrder(ctx, o.ID)
			if err != nil {
				return fmt.Errorf("list payments: %w", err)
			}
			for _, p := range payments {
				if p.Status != enum.PaymentRecordPending {
					continue
				}
				p.Status = enum.PaymentRecordFailed
				p.UpdatedAt = now
				if _, err := tx.UpdatePayment(ctx, p); err != nil {
					return fmt.Errorf("update payment: %w", err)
				}
			}
			changed = true
			return nil
		})
		if err != nil {
			return len(expired), fmt.Errorf("expire order %s: %w", candidate.ID, err)
		}
		if changed {
			expired = append(expired, updated)
		}
	}

	for _, o := range expired {
		publish(ctx, m.events, m.log, events.TypeOrderUpdated, o)
	}
	if len(expired) > 0 {
		m.log.WithField("expired", len(expired)).Info("stale payments expired")
	}
	return len(expired), nil
}
