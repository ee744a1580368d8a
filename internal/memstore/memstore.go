// Package memstore is an in-memory database.Store for local development and
// tests. Transactions run against a copy of the state that replaces the live
// state only when the callback succeeds.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kusina-pos/api/internal/database"
	"github.com/kusina-pos/api/internal/discount"
	"github.com/kusina-pos/api/internal/enum"
	"github.com/kusina-pos/api/internal/model"
)

type state struct {
	orders    map[uuid.UUID]model.Order
	payments  map[uuid.UUID]model.Payment
	discounts map[string]discount.Discount
	users     map[uuid.UUID]model.User
	settings  map[string]string
	events    map[string]model.WebhookEvent
}

func newState() *state {
	return &state{
		orders:    make(map[uuid.UUID]model.Order),
		payments:  make(map[uuid.UUID]model.Payment),
		discounts: make(map[string]discount.Discount),
		users:     make(map[uuid.UUID]model.User),
		settings:  make(map[string]string),
		events:    make(map[string]model.WebhookEvent),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.orders {
		c.orders[k] = v.Clone()
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.discounts {
		c.discounts[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.settings {
		c.settings[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	return c
}

// Store guards a state with a mutex. The zero value is not usable; call New.
type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

var _ database.Store = (*Store)(nil)

// ExecTx holds the store lock for the whole callback so transactions are
// serialized with every other operation.
func (s *Store) ExecTx(ctx context.Context, fn func(database.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txView{st: s.st.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

func (s *Store) view() (*txView, func()) {
	s.mu.Lock()
	return &txView{st: s.st}, s.mu.Unlock
}

func (s *Store) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	v, unlock := s.view()
	defer unlock()
	return v.CreateOrder(ctx, o)
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (model.Order, error) {
	v, unlock := s.view()
	defer unlock()
	return v.GetOrder(ctx, id)
}

func (s *Store) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (model.Order, error) {
	return s.GetOrder(ctx, id)
}

func (s *Store) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]model.Order, error) {
	v, unlock := s.view()
	defer unlock()
	return v.ListOrders(ctx, arg)
}

func (s *Store) UpdateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	v, unlock := s.view()
	defer unlock()
	return v.UpdateOrder(ctx, o)
}

func (s *Store) ListOrdersByPaymentIntent(ctx context.Context, paymentIntentID string) ([]model.Order, error) {
	v, unlock := s.view()
	defer unlock()
	return v.ListOrdersByPaymentIntent(ctx, paymentIntentID)
}

func (s *Store) ListOrdersByStatusBefore(ctx context.Context, status string, cutoff time.Time, limit int) ([]model.Order, error) {
	v, unlock := s.view()
	defer unlock()
	return v.ListOrdersByStatusBefore(ctx, status, cutoff, limit)
}

func (s *Store) ListAwaitingPaymentBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error) {
	v, unlock := s.view()
	defer unlock()
	return v.ListAwaitingPaymentBefore(ctx, cutoff, limit)
}

func (s *Store) DeleteOrders(ctx context.Context, ids []uuid.UUID) (int64, error) {
	v, unlock := s.view()
	defer unlock()
	return v.DeleteOrders(ctx, ids)
}

func (s *Store) CreatePayment(ctx context.Context, p model.Payment) (model.Payment, error) {
	v, unlock := s.view()
	defer unlock()
	return v.CreatePayment(ctx, p)
}

func (s *Store) UpdatePayment(ctx context.Context, p model.Payment) (model.Payment, error) {
	v, unlock := s.view()
	defer unlock()
	return v.UpdatePayment(ctx, p)
}

func (s *Store) ListPaymentsByIntent(ctx context.Context, paymentIntentID string) ([]model.Payment, error) {
	v, unlock := s.view()
	defer unlock()
	return v.ListPaymentsByIntent(ctx, paymentIntentID)
}

func (s *Store) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Payment, error) {
	v, unlock := s.view()
	defer unlock()
	return v.ListPaymentsByOrder(ctx, orderID)
}

func (s *Store) GetDiscountByCode(ctx context.Context, code string) (discount.Discount, error) {
	v, unlock := s.view()
	defer unlock()
	return v.GetDiscountByCode(ctx, code)
}

func (s *Store) UpsertDiscount(ctx context.Context, d discount.Discount) error {
	v, unlock := s.view()
	defer unlock()
	return v.UpsertDiscount(ctx, d)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	v, unlock := s.view()
	defer unlock()
	return v.GetUser(ctx, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	v, unlock := s.view()
	defer unlock()
	return v.GetUserByEmail(ctx, email)
}

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	v, unlock := s.view()
	defer unlock()
	return v.CreateUser(ctx, u)
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	v, unlock := s.view()
	defer unlock()
	return v.GetSetting(ctx, key)
}

func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	v, unlock := s.view()
	defer unlock()
	return v.PutSetting(ctx, key, value)
}

func (s *Store) RecordWebhookEvent(ctx context.Context, ev model.WebhookEvent) (bool, error) {
	v, unlock := s.view()
	defer unlock()
	return v.RecordWebhookEvent(ctx, ev)
}

// txView operates on a state without locking. The caller holds the lock.
type txView struct {
	st *state
}

func (v *txView) ExecTx(ctx context.Context, fn func(database.Store) error) error {
	return fn(v)
}

func (v *txView) CreateOrder(_ context.Context, o model.Order) (model.Order, error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	v.st.orders[o.ID] = o.Clone()
	return o.Clone(), nil
}

func (v *txView) GetOrder(_ context.Context, id uuid.UUID) (model.Order, error) {
	o, ok := v.st.orders[id]
	if !ok {
		return model.Order{}, database.ErrNotFound
	}
	return o.Clone(), nil
}

// GetOrderForUpdate needs no lock: a transaction holds the store mutex.
func (v *txView) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (model.Order, error) {
	return v.GetOrder(ctx, id)
}

func (v *txView) ListOrders(_ context.Context, arg database.ListOrdersParams) ([]model.Order, error) {
	var out []model.Order
	for _, o := range v.st.orders {
		if arg.Status == "" || o.Status == arg.Status {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, arg.Offset, arg.Limit), nil
}

func (v *txView) UpdateOrder(_ context.Context, o model.Order) (model.Order, error) {
	cur, ok := v.st.orders[o.ID]
	if !ok {
		return model.Order{}, database.ErrNotFound
	}
	o.CreatedAt = cur.CreatedAt
	o.Timestamp = cur.Timestamp
	v.st.orders[o.ID] = o.Clone()
	return o.Clone(), nil
}

func (v *txView) ListOrdersByPaymentIntent(_ context.Context, paymentIntentID string) ([]model.Order, error) {
	var out []model.Order
	for _, o := range v.st.orders {
		if paymentIntentID != "" && o.PaymentIntentID == paymentIntentID {
			out = append(out, o.Clone())
		}
	}
	sortOrdersAsc(out, func(o model.Order) time.Time { return o.CreatedAt })
	return out, nil
}

func (v *txView) ListOrdersByStatusBefore(_ context.Context, status string, cutoff time.Time, limit int) ([]model.Order, error) {
	var out []model.Order
	for _, o := range v.st.orders {
		if o.Status == status && ageTime(o).Before(cutoff) {
			out = append(out, o.Clone())
		}
	}
	sortOrdersAsc(out, ageTime)
	return page(out, 0, limit), nil
}

func (v *txView) ListAwaitingPaymentBefore(_ context.Context, cutoff time.Time, limit int) ([]model.Order, error) {
	var out []model.Order
	for _, o := range v.st.orders {
		if o.Status == enum.OrderStatusPendingPayment && o.UpdatedAt.Before(cutoff) {
			out = append(out, o.Clone())
		}
	}
	sortOrdersAsc(out, func(o model.Order) time.Time { return o.UpdatedAt })
	return page(out, 0, limit), nil
}

func (v *txView) DeleteOrders(_ context.Context, ids []uuid.UUID) (int64, error) {
	var n int64
	for _, id := range ids {
		if _, ok := v.st.orders[id]; !ok {
			continue
		}
		delete(v.st.orders, id)
		n++
		for pid, p := range v.st.payments {
			if p.OrderID == id {
				delete(v.st.payments, pid)
			}
		}
	}
	return n, nil
}

func (v *txView) CreatePayment(_ context.Context, p model.Payment) (model.Payment, error) {
	if _, ok := v.st.orders[p.OrderID]; !ok {
		return model.Payment{}, database.ErrNotFound
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	v.st.payments[p.ID] = p
	return p, nil
}

func (v *txView) UpdatePayment(_ context.Context, p model.Payment) (model.Payment, error) {
	cur, ok := v.st.payments[p.ID]
	if !ok {
		return model.Payment{}, database.ErrNotFound
	}
	p.OrderID = cur.OrderID
	p.CreatedAt = cur.CreatedAt
	v.st.payments[p.ID] = p
	return p, nil
}

func (v *txView) ListPaymentsByIntent(_ context.Context, paymentIntentID string) ([]model.Payment, error) {
	return v.filterPayments(func(p model.Payment) bool {
		return paymentIntentID != "" && p.PaymentIntentID == paymentIntentID
	}), nil
}

func (v *txView) ListPaymentsByOrder(_ context.Context, orderID uuid.UUID) ([]model.Payment, error) {
	return v.filterPayments(func(p model.Payment) bool { return p.OrderID == orderID }), nil
}

func (v *txView) filterPayments(keep func(model.Payment) bool) []model.Payment {
	var out []model.Payment
	for _, p := range v.st.payments {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (v *txView) GetDiscountByCode(_ context.Context, code string) (discount.Discount, error) {
	d, ok := v.st.discounts[discount.NormalizeCode(code)]
	if !ok {
		return discount.Discount{}, database.ErrNotFound
	}
	return d, nil
}

func (v *txView) UpsertDiscount(_ context.Context, d discount.Discount) error {
	d.Code = discount.NormalizeCode(d.Code)
	v.st.discounts[d.Code] = d
	return nil
}

func (v *txView) GetUser(_ context.Context, id uuid.UUID) (model.User, error) {
	u, ok := v.st.users[id]
	if !ok {
		return model.User{}, database.ErrNotFound
	}
	return u, nil
}

func (v *txView) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	email = normalizeEmail(email)
	for _, u := range v.st.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, database.ErrNotFound
}

func (v *txView) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	u.Email = normalizeEmail(u.Email)
	if existing, err := v.GetUserByEmail(ctx, u.Email); err == nil {
		u.ID = existing.ID
		u.CreatedAt = existing.CreatedAt
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	v.st.users[u.ID] = u
	return u, nil
}

func (v *txView) GetSetting(_ context.Context, key string) (string, error) {
	val, ok := v.st.settings[key]
	if !ok {
		return "", database.ErrNotFound
	}
	return val, nil
}

func (v *txView) PutSetting(_ context.Context, key, value string) error {
	v.st.settings[key] = value
	return nil
}

func (v *txView) RecordWebhookEvent(_ context.Context, ev model.WebhookEvent) (bool, error) {
	if _, ok := v.st.events[ev.ID]; ok {
		return false, nil
	}
	v.st.events[ev.ID] = ev
	return true, nil
}

func ageTime(o model.Order) time.Time {
	if o.CompletedTime != nil {
		return *o.CompletedTime
	}
	return o.CreatedAt
}

func sortOrdersAsc(orders []model.Order, key func(model.Order) time.Time) {
	sort.Slice(orders, func(i, j int) bool {
		ki, kj := key(orders[i]), key(orders[j])
		if !ki.Equal(kj) {
			return ki.Before(kj)
		}
		return orders[i].ID.String() < orders[j].ID.String()
	})
}

func page(orders []model.Order, offset, limit int) []model.Order {
	if offset > len(orders) {
		return nil
	}
	orders = orders[offset:]
	if limit > 0 && limit < len(orders) {
		orders = orders[:limit]
	}
	return orders
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
