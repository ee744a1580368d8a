// Package cart aggregates line items on the ordering client before an order
// is placed. The server reuses it to recompute totals from submitted items.
package cart

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/kusina-pos/api/internal/discount"
	"github.com/kusina-pos/api/internal/model"
	"github.com/shopspring/decimal"
)

var ErrLineNotFound = errors.New("cart line not found")

// MenuItem is the part of a menu entry the cart needs.
type MenuItem struct {
	ID    string
	Name  string
	Price decimal.Decimal
}

// AddOptions describe how an item is added.
type AddOptions struct {
	Qty                 int
	SelectedAddOns      []model.AddOn
	SpecialInstructions string
}

// Line is one cart entry. ID is the line signature.
type Line struct {
	ID                  string
	ItemID              string
	Name                string
	BasePrice           decimal.Decimal
	AddOns              []model.AddOn
	SpecialInstructions string
	Qty                 int
	TotalItemPrice      decimal.Decimal
}

// Cart is an ordered list of lines plus an optional discount.
// Not safe for concurrent use.
type Cart struct {
	lines    []Line
	discount *discount.Discount
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{}
}

// Signature identifies a line by item id, sorted add-on ids, and instructions.
// Each part is quoted, so separators inside ids cannot collide.
func Signature(itemID string, addOns []model.AddOn, instructions string) string {
	ids := make([]string, len(addOns))
	for i, a := range addOns {
		ids[i] = strconv.Quote(a.ID)
	}
	sort.Strings(ids)
	return strconv.Quote(itemID) + "|" + strings.Join(ids, ",") + "|" + strconv.Quote(strings.TrimSpace(instructions))
}

// Add puts item in the cart. Re-adding the same signature increments the
// existing line's quantity. A quantity under 1 adds a single unit.
func (c *Cart) Add(item MenuItem, opts AddOptions) Line {
	qty := opts.Qty
	if qty < 1 {
		qty = 1
	}

	sig := Signature(item.ID, opts.SelectedAddOns, opts.SpecialInstructions)
	for i := range c.lines {
		if c.lines[i].ID == sig {
			c.lines[i].Qty += qty
			return c.lines[i]
		}
	}

	total := item.Price
	for _, a := range opts.SelectedAddOns {
		total = total.Add(a.Price)
	}

	line := Line{
		ID:                  sig,
		ItemID:              item.ID,
		Name:                item.Name,
		BasePrice:           item.Price,
		AddOns:              append([]model.AddOn(nil), opts.SelectedAddOns...),
		SpecialInstructions: strings.TrimSpace(opts.SpecialInstructions),
		Qty:                 qty,
		TotalItemPrice:      total,
	}
	c.lines = append(c.lines, line)
	return line
}

// UpdateQty sets a line's quantity. Callers clamp; no lower bound is enforced.
func (c *Cart) UpdateQty(lineID string, qty int) error {
	for i := range c.lines {
		if c.lines[i].ID == lineID {
			c.lines[i].Qty = qty
			return nil
		}
	}
	return ErrLineNotFound
}

// Remove deletes a line.
func (c *Cart) Remove(lineID string) error {
	for i := range c.lines {
		if c.lines[i].ID == lineID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return nil
		}
	}
	return ErrLineNotFound
}

// Clear empties the cart and drops the discount.
func (c *Cart) Clear() {
	c.lines = nil
	c.discount = nil
}

// SetDiscount attaches d (nil removes it).
func (c *Cart) SetDiscount(d *discount.Discount) {
	c.discount = d
}

// Discount returns the attached discount, if any.
func (c *Cart) Discount() *discount.Discount {
	return c.discount
}

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Len returns the number of distinct lines.
func (c *Cart) Len() int {
	return len(c.lines)
}

// Subtotal is always derived from the current lines.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.lines {
		sum = sum.Add(l.TotalItemPrice.Mul(decimal.NewFromInt(int64(l.Qty))))
	}
	return sum
}

// Totals applies the discount, if any, to the subtotal.
func (c *Cart) Totals() discount.Result {
	return discount.Apply(c.discount, c.Subtotal())
}

// Total equals the subtotal unless a discount is attached.
func (c *Cart) Total() decimal.Decimal {
	return c.Totals().FinalTotal
}

// ToOrderItems flattens lines into the persisted order shape.
func (c *Cart) ToOrderItems() []model.LineItem {
	items := make([]model.LineItem, len(c.lines))
	for i, l := range c.lines {
		addOns := make([]model.AddOn, len(l.AddOns))
		for j, a := range l.AddOns {
			addOns[j] = model.AddOn{ID: a.ID, Name: a.Name, Price: a.Price}
		}
		items[i] = model.LineItem{
			ItemID:              l.ItemID,
			Name:                l.Name,
			UnitPrice:           l.BasePrice,
			Quantity:            l.Qty,
			AddOns:              addOns,
			SpecialInstructions: l.SpecialInstructions,
			TotalItemPrice:      l.TotalItemPrice,
		}
	}
	return items
}
