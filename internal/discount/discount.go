// Package discount computes order-level discounts from a discount record.
package discount

import (
	"errors"
	"strings"
	"time"

	"github.com/kusina-pos/api/internal/enum"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidType  = errors.New("invalid discount type")
	ErrInvalidValue = errors.New("invalid discount value")
	ErrMissingCode  = errors.New("discount code is required")
)

var hundred = decimal.NewFromInt(100)

// Discount is a promotional code applied to an order subtotal.
type Discount struct {
	Code        string              `json:"code"`
	Name        string              `json:"name"`
	Type        string              `json:"type"`
	Value       decimal.Decimal     `json:"value"`
	MinOrder    decimal.Decimal     `json:"minOrder"`
	MaxDiscount decimal.NullDecimal `json:"maxDiscount"`
	Active      bool                `json:"active"`
	ValidFrom   *time.Time          `json:"validFrom,omitempty"`
	ValidUntil  *time.Time          `json:"validUntil,omitempty"`
}

// Result is the outcome of applying a discount to a subtotal.
type Result struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	FinalTotal     decimal.Decimal `json:"finalTotal"`
}

// NormalizeCode makes codes comparable case-insensitively.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the shape of a discount record before it is stored.
func (d Discount) Validate() error {
	if NormalizeCode(d.Code) == "" {
		return ErrMissingCode
	}
	switch d.Type {
	case enum.DiscountTypePercentage:
		if d.Value.GreaterThan(hundred) {
			return ErrInvalidValue
		}
	case enum.DiscountTypeFixed:
	default:
		return ErrInvalidType
	}
	if d.Value.IsNegative() || d.MinOrder.IsNegative() {
		return ErrInvalidValue
	}
	if d.MaxDiscount.Valid && d.MaxDiscount.Decimal.IsNegative() {
		return ErrInvalidValue
	}
	return nil
}

// IsValid reports whether d is active and now falls inside its validity window.
// Unset bounds are open.
func IsValid(d *Discount, now time.Time) bool {
	if d == nil || !d.Active {
		return false
	}
	if d.ValidFrom != nil && now.Before(*d.ValidFrom) {
		return false
	}
	if d.ValidUntil != nil && now.After(*d.ValidUntil) {
		return false
	}
	return true
}

// Calculate returns the discount amount for subtotal.
//
// It returns zero when d is nil, the subtotal is not positive, or the subtotal
// is under the discount's minimum order. Percentage discounts are capped at
// MaxDiscount when set; fixed discounts never exceed the subtotal.
func Calculate(d *Discount, subtotal decimal.Decimal) decimal.Decimal {
	if d == nil || !subtotal.IsPositive() || subtotal.LessThan(d.MinOrder) {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch d.Type {
	case enum.DiscountTypePercentage:
		amount = subtotal.Mul(d.Value).Div(hundred)
		if d.MaxDiscount.Valid && amount.GreaterThan(d.MaxDiscount.Decimal) {
			amount = d.MaxDiscount.Decimal
		}
	case enum.DiscountTypeFixed:
		amount = decimal.Min(d.Value, subtotal)
	default:
		return decimal.Zero
	}

	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Round(2)
}

// Apply computes the discount and the final total, which is never negative.
func Apply(d *Discount, subtotal decimal.Decimal) Result {
	amount := Calculate(d, subtotal)
	final := subtotal.Sub(amount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	return Result{
		Subtotal:       subtotal,
		DiscountAmount: amount,
		FinalTotal:     final,
	}
}
