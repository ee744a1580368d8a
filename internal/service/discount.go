package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kusina-pos/api/internal/database"
	"github.com/kusina-pos/api/internal/discount"
	"github.com/shopspring/decimal"
)

var ErrInvalidSubtotal = errors.New("subtotal must not be negative")

// DiscountService resolves discount codes for the ordering client.
type DiscountService struct {
	store database.Store
	now   func() time.Time
}

func NewDiscountService(store database.Store) *DiscountService {
	return &DiscountService{store: store, now: time.Now}
}

// Lookup returns the discount for code if it is currently usable.
func (s *DiscountService) Lookup(ctx context.Context, code string) (discount.Discount, error) {
	return lookupDiscount(ctx, s.store, code, s.now())
}

// Apply previews code against subtotal.
func (s *DiscountService) Apply(ctx context.Context, code string, subtotal decimal.Decimal) (discount.Discount, discount.Result, error) {
	if subtotal.IsNegative() {
		return discount.Discount{}, discount.Result{}, ErrInvalidSubtotal
	}
	d, err := s.Lookup(ctx, code)
	if err != nil {
		return discount.Discount{}, discount.Result{}, err
	}
	return d, discount.Apply(&d, subtotal), nil
}

func lookupDiscount(ctx context.Context, store database.Store, code string, now time.Time) (discount.Discount, error) {
	code = discount.NormalizeCode(code)
	if code == "" {
		return discount.Discount{}, ErrInvalidDiscountCode
	}
	d, err := store.GetDiscountByCode(ctx, code)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return discount.Discount{}, ErrInvalidDiscountCode
		}
		return discount.Discount{}, fmt.Errorf("get discount: %w", err)
	}
	if !discount.IsValid(&d, now) {
		return discount.Discount{}, ErrInvalidDiscountCode
	}
	return d, nil
}
