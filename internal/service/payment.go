package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kusina-pos/api/internal/database"
	"github.com/kusina-pos/api/internal/enum"
	"github.com/kusina-pos/api/internal/events"
	"github.com/kusina-pos/api/internal/lifecycle"
	"github.com/kusina-pos/api/internal/lockout"
	"github.com/kusina-pos/api/internal/model"
	"github.com/kusina-pos/api/internal/payment"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const minConfirmPasswordLen = 4

// Errors returned by the payment service.
var (
	ErrInvalidAmount            = errors.New("amount must be > 0")
	ErrAmountMismatch           = errors.New("amount does not match order total")
	ErrOrderRequired            = errors.New("orderId is required")
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
	ErrOrderNotAwaitingPayment  = errors.New("order is not awaiting payment")
	ErrAlreadyPaid              = errors.New("order is already paid")
	ErrNotCashOrder             = errors.New("order is not a cash order")
	ErrWrongPassword            = errors.New("incorrect payment password")
	ErrPasswordNotConfigured    = errors.New("payment password is not configured")
	ErrWeakPassword             = errors.New("password is too short")
	ErrProvider                 = errors.New("payment provider error")
)

// LockedOutError is returned while a user is locked out of cash confirmation.
type LockedOutError struct {
	RetryAfter time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("too many failed attempts, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *LockedOutError) Unwrap() error { return lockout.ErrLockedOut }

// PaymentConfig holds provider-facing settings.
type PaymentConfig struct {
	Currency   string
	Flow       string
	SuccessURL string
	CancelURL  string
}

// CreateIntentRequest asks the provider for a payment intent.
type CreateIntentRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	OrderID     uuid.UUID
}

type IntentResult struct {
	PaymentIntentID string `json:"paymentIntentId"`
	ClientKey       string `json:"clientKey"`
}

// ProcessPaymentRequest starts an e-wallet payment for an existing order.
type ProcessPaymentRequest struct {
	Amount        decimal.Decimal
	Currency      string
	Description   string
	OrderID       uuid.UUID
	PaymentMethod string
	TableNumber   string
}

type ProcessPaymentResult struct {
	Success           bool       `json:"success"`
	SourceID          string     `json:"sourceId,omitempty"`
	PaymentIntentID   string     `json:"paymentIntentId,omitempty"`
	CheckoutSessionID string     `json:"checkoutSessionId,omitempty"`
	CheckoutURL       string     `json:"checkoutUrl,omitempty"`
	QRData            string     `json:"qrData,omitempty"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
}

type PaymentStatusResult struct {
	OrderID         uuid.UUID `json:"orderId"`
	PaymentIntentID string    `json:"paymentIntentId,omitempty"`
	ProviderStatus  string    `json:"providerStatus,omitempty"`
	PaymentStatus   string    `json:"paymentStatus"`
	Status          string    `json:"status"`
}

// ConfirmCashRequest is a staff confirmation that cash was collected.
type ConfirmCashRequest struct {
	OrderID  uuid.UUID
	UserID   string
	Password string
}

// PaymentService creates provider payments and reconciles their results.
type PaymentService struct {
	store    database.Store
	provider payment.Provider
	events   events.Publisher
	guard    *lockout.Guard
	cfg      PaymentConfig
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewPaymentService(store database.Store, provider payment.Provider, pub events.Publisher, guard *lockout.Guard, cfg PaymentConfig, log logrus.FieldLogger) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "PHP"
	}
	if cfg.Flow == "" {
		cfg.Flow = enum.PaymentFlowQRPh
	}
	return &PaymentService{
		store:    store,
		provider: provider,
		events:   pub,
		guard:    guard,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// CreatePaymentIntent creates a provider intent. With an order id, the
// intent is attached to the order and a pending payment record is written.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (IntentResult, error) {
	if !req.Amount.IsPositive() {
		return IntentResult{}, ErrInvalidAmount
	}
	currency := s.currency(req.Currency)

	var metadata map[string]string
	if req.OrderID != uuid.Nil {
		o, err := s.getOrder(ctx, s.store, req.OrderID)
		if err != nil {
			return IntentResult{}, err
		}
		if err := payableFor(o, req.Amount); err != nil {
			return IntentResult{}, err
		}
		metadata = map[string]string{"order_id": req.OrderID.String()}
	}

	intent, err := s.provider.CreatePaymentIntent(ctx, payment.IntentParams{
		Amount:         req.Amount,
		Currency:       currency,
		Description:    req.Description,
		MethodsAllowed: []string{"qrph", "gcash", "card"},
		Metadata:       metadata,
	})
	if err != nil {
		return IntentResult{}, s.providerError("create payment intent", err)
	}

	if req.OrderID != uuid.Nil {
		var updated model.Order
		err := s.store.ExecTx(ctx, func(tx database.Store) error {
			o, err := s.lockOrder(ctx, tx, req.OrderID)
			if err != nil {
				return err
			}
			if err := payableFor(o, req.Amount); err != nil {
				return err
			}
			now := s.now()
			o.PaymentIntentID = intent.ID
			o.UpdatedAt = now
			if updated, err = tx.UpdateOrder(ctx, o); err != nil {
				return fmt.Errorf("update order: %w", err)
			}
			return s.createPendingPayment(ctx, tx, o, intent.ID, "", req.Amount, currency, now)
		})
		if err != nil {
			return IntentResult{}, err
		}
		publish(ctx, s.events, s.log, events.TypeOrderUpdated, updated)
	}

	s.log.WithFields(logrus.Fields{
		"payment_intent_id": intent.ID,
		"order_id":          req.OrderID,
		"amount":            req.Amount.StringFixed(2),
	}).Info("payment intent created")
	return IntentResult{PaymentIntentID: intent.ID, ClientKey: intent.ClientKey}, nil
}

// ProcessPayment creates a QR Ph payment or a hosted checkout session for an
// order awaiting payment. A failed attempt leaves the order untouched; a
// retry replaces the order's intent and resets its payment status.
func (s *PaymentService) ProcessPayment(ctx context.Context, req ProcessPaymentRequest) (ProcessPaymentResult, error) {
	// --- Validate request ---
	if req.OrderID == uuid.Nil {
		return ProcessPaymentResult{}, ErrOrderRequired
	}
	method := req.PaymentMethod
	if method == "" {
		method = enum.PaymentMethodGCash
	}
	if method != enum.PaymentMethodGCash {
		return ProcessPaymentResult{}, ErrUnsupportedPaymentMethod
	}
	if req.Amount.IsNegative() {
		return ProcessPaymentResult{}, ErrInvalidAmount
	}

	order, err := s.getOrder(ctx, s.store, req.OrderID)
	if err != nil {
		return ProcessPaymentResult{}, err
	}
	if err := payableFor(order, req.Amount); err != nil {
		return ProcessPaymentResult{}, err
	}
	amount := order.Total
	currency := s.currency(req.Currency)
	description := req.Description
	if description == "" {
		description = "Order " + order.ID.String()
	}

	// --- Create the provider payment ---
	var result ProcessPaymentResult
	switch s.cfg.Flow {
	case enum.PaymentFlowCheckout:
		session, err := s.provider.CreateCheckoutSession(ctx, payment.CheckoutParams{
			Amount:          amount,
			Currency:        currency,
			Description:     description,
			ReferenceNumber: order.ID.String(),
			SuccessURL:      s.cfg.SuccessURL,
			CancelURL:       s.cfg.CancelURL,
			MethodTypes:     []string{"gcash", "qrph"},
		})
		if err != nil {
			return ProcessPaymentResult{}, s.providerError("create checkout session", err)
		}
		expires := session.ExpiresAt
		result = ProcessPaymentResult{
			SourceID:          session.ID,
			PaymentIntentID:   session.PaymentIntentID,
			CheckoutSessionID: session.ID,
			CheckoutURL:       session.CheckoutURL,
			ExpiresAt:         &expires,
		}
	default:
		intent, err := s.provider.CreatePaymentIntent(ctx, payment.IntentParams{
			Amount:         amount,
			Currency:       currency,
			Description:    description,
			MethodsAllowed: []string{"qrph"},
			Metadata:       map[string]string{"order_id": order.ID.String()},
		})
		if err != nil {
			return ProcessPaymentResult{}, s.providerError("create payment intent", err)
		}
		billing := "Walk-in"
		if req.TableNumber != "" {
			billing = "Table " + req.TableNumber
		} else if order.TableNumber != "" {
			billing = "Table " + order.TableNumber
		}
		qr, err := s.provider.CreateQRPayment(ctx, payment.QRParams{
			IntentID:    intent.ID,
			ClientKey:   intent.ClientKey,
			BillingName: billing,
		})
		if err != nil {
			return ProcessPaymentResult{}, s.providerError("create qr payment", err)
		}
		expires := qr.ExpiresAt
		result = ProcessPaymentResult{
			SourceID:        qr.PaymentMethodID,
			PaymentIntentID: intent.ID,
			QRData:          qr.QRImage,
			ExpiresAt:       &expires,
		}
	}

	// --- Attach to the order ---
	var updated model.Order
	err = s.store.ExecTx(ctx, func(tx database.Store) error {
		o, err := s.lockOrder(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if err := awaitingPayment(o); err != nil {
			return err
		}
		now := s.now()
		o.SourceID = result.SourceID
		o.PaymentIntentID = result.PaymentIntentID
		o.PaymentStatus = enum.PaymentStatusPending
		o.UpdatedAt = now
		if updated, err = tx.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		return s.createPendingPayment(ctx, tx, o, result.PaymentIntentID, result.SourceID, amount, currency, now)
	})
	if err != nil {
		return ProcessPaymentResult{}, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id":          updated.ID,
		"payment_intent_id": result.PaymentIntentID,
		"source_id":         result.SourceID,
		"flow":              s.cfg.Flow,
	}).Info("payment source created")
	publish(ctx, s.events, s.log, events.TypeOrderUpdated, updated)

	result.Success = true
	return result, nil
}

// CheckPaymentStatus asks the provider about the order's intent. A succeeded
// intent whose webhook has not arrived yet is settled here the same way the
// webhook would settle it.
func (s *PaymentService) CheckPaymentStatus(ctx context.Context, orderID uuid.UUID) (PaymentStatusResult, error) {
	order, err := s.getOrder(ctx, s.store, orderID)
	if err != nil {
		return PaymentStatusResult{}, err
	}
	res := PaymentStatusResult{
		OrderID:         order.ID,
		PaymentIntentID: order.PaymentIntentID,
		PaymentStatus:   order.PaymentStatus,
		Status:          order.Status,
	}
	if order.PaymentIntentID == "" {
		return res, nil
	}

	intent, err := s.provider.RetrievePaymentIntent(ctx, order.PaymentIntentID)
	if err != nil {
		return PaymentStatusResult{}, s.providerError("retrieve payment intent", err)
	}
	res.ProviderStatus = intent.Status

	if intent.Status != payment.IntentSucceeded || order.PaymentStatus == enum.PaymentStatusPaid {
		return res, nil
	}

	var changed []model.Order
	err = s.store.ExecTx(ctx, func(tx database.Store) error {
		var err error
		changed, err = applySettlement(ctx, tx, settlement{
			IntentID:  intent.ID,
			Succeeded: true,
			PaymentID: intent.PaymentID,
			Amount:    intent.Amount,
		}, s.now(), s.log)
		return err
	})
	if err != nil {
		return PaymentStatusResult{}, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id":          order.ID,
		"payment_intent_id": intent.ID,
	}).Info("payment settled from status check")
	for _, o := range changed {
		publish(ctx, s.events, s.log, events.TypeOrderUpdated, o)
		if o.ID == order.ID {
			res.PaymentStatus = o.PaymentStatus
			res.Status = o.Status
		}
	}
	return res, nil
}

// ConfirmCashPayment marks a cash order as paid after checking the shared
// payment password. Repeated failures lock the user out.
func (s *PaymentService) ConfirmCashPayment(ctx context.Context, req ConfirmCashRequest) (model.Order, error) {
	log := s.log.WithFields(logrus.Fields{"order_id": req.OrderID, "user_id": req.UserID})

	if req.UserID == "" {
		return model.Order{}, ErrMissingUser
	}
	if retry, err := s.guard.Check(req.UserID); err != nil {
		log.WithField("retry_after", retry.String()).Warn("cash confirmation while locked out")
		return model.Order{}, &LockedOutError{RetryAfter: retry}
	}
	if err := authorizeStaff(ctx, s.store, req.UserID); err != nil {
		return model.Order{}, err
	}

	hash, err := s.store.GetSetting(ctx, enum.SettingPaymentPassword)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return model.Order{}, ErrPasswordNotConfigured
		}
		return model.Order{}, fmt.Errorf("get payment setting: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		locked, remaining := s.guard.Fail(req.UserID)
		if locked {
			retry, _ := s.guard.Check(req.UserID)
			log.WithField("retry_after", retry.String()).Warn("cash confirmation locked out")
			return model.Order{}, &LockedOutError{RetryAfter: retry}
		}
		log.WithField("attempts_remaining", remaining).Warn("cash confirmation failed")
		return model.Order{}, ErrWrongPassword
	}
	s.guard.Reset(req.UserID)

	var updated model.Order
	err = s.store.ExecTx(ctx, func(tx database.Store) error {
		o, err := s.lockOrder(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if o.PaymentMethod != enum.PaymentMethodCash {
			return ErrNotCashOrder
		}
		if o.PaymentStatus == enum.PaymentStatusPaid {
			return ErrAlreadyPaid
		}
		if lifecycle.IsTerminal(o.Status) && o.Status != enum.OrderStatusCompleted {
			return fmt.Errorf("%w: order is %s", lifecycle.ErrInvalidTransition, o.Status)
		}

		now := s.now()
		o.PaymentStatus = enum.PaymentStatusPaid
		o.UpdatedAt = now
		if updated, err = tx.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		_, err = tx.CreatePayment(ctx, model.Payment{
			ID:        uuid.New(),
			OrderID:   o.ID,
			Amount:    o.Total,
			Currency:  s.cfg.Currency,
			Method:    enum.PaymentMethodCash,
			Status:    enum.PaymentRecordSucceeded,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Order{}, err
	}

	log.Info("cash payment confirmed")
	publish(ctx, s.events, s.log, events.TypeOrderUpdated, updated)
	return updated, nil
}

// SetConfirmationPassword stores the bcrypt hash of the shared payment
// password.
func (s *PaymentService) SetConfirmationPassword(ctx context.Context, password string) error {
	if len(password) < minConfirmPasswordLen {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.PutSetting(ctx, enum.SettingPaymentPassword, string(hash)); err != nil {
		return fmt.Errorf("put payment setting: %w", err)
	}
	s.log.Info("payment confirmation password updated")
	return nil
}

// --- Helpers ---

func (s *PaymentService) currency(c string) string {
	if c == "" {
		return s.cfg.Currency
	}
	return c
}

func (s *PaymentService) getOrder(ctx context.Context, store database.Store, id uuid.UUID) (model.Order, error) {
	o, err := store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return model.Order{}, ErrOrderNotFound
		}
		return model.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// lockOrder reads an order for update inside a transaction.
func (s *PaymentService) lockOrder(ctx context.Context, tx database.Store, id uuid.UUID) (model.Order, error) {
	o, err := tx.GetOrderForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return model.Order{}, ErrOrderNotFound
		}
		return model.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *PaymentService) createPendingPayment(ctx context.Context, tx database.Store, o model.Order, intentID, sourceID string, amount decimal.Decimal, currency string, now time.Time) error {
	_, err := tx.CreatePayment(ctx, model.Payment{
		ID:              uuid.New(),
		OrderID:         o.ID,
		PaymentIntentID: intentID,
		SourceID:        sourceID,
		Amount:          amount,
		Currency:        currency,
		Method:          o.PaymentMethod,
		Status:          enum.PaymentRecordPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (s *PaymentService) providerError(op string, err error) error {
	s.log.WithError(err).WithField("op", op).Error("payment provider call failed")
	return fmt.Errorf("%w: %s: %w", ErrProvider, op, err)
}

func awaitingPayment(o model.Order) error {
	if o.PaymentStatus == enum.PaymentStatusPaid {
		return ErrAlreadyPaid
	}
	if o.Status != enum.OrderStatusPendingPayment {
		return ErrOrderNotAwaitingPayment
	}
	return nil
}

// payableFor checks that o is awaiting payment and that amount, when given,
// matches the order total.
func payableFor(o model.Order, amount decimal.Decimal) error {
	if err := awaitingPayment(o); err != nil {
		return err
	}
	if !amount.IsZero() && !amount.Equal(o.Total) {
		return fmt.Errorf("%w: got %s, want %s", ErrAmountMismatch, amount.StringFixed(2), o.Total.StringFixed(2))
	}
	if !o.Total.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}
