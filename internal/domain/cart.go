package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Freeze state constants for a cart.
const (
	// FreezeNone means the cart accepts mutations.
	FreezeNone = ""
	// FreezeCheckout means a checkout attempt is in flight and mutations
	// are rejected until the attempt reaches a terminal state.
	FreezeCheckout = "checkout_in_flight"
	// FreezeManual means a compensation (refund) failed after a captured
	// payment. The cart stays frozen until released out-of-band.
	FreezeManual = "manual_resolution"
)

// Product is the slice of catalog data the cart holds. The price is copied
// at add time; later catalog changes do not affect items already in the cart.
type Product struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// CartItem represents a single line in the cart. LineTotal is recomputed
// whenever the quantity changes and is never rounded on its own.
type CartItem struct {
	Product   Product         `json:"product"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Cart is a per-session collection of line items plus at most one discount.
// Items are kept in insertion order; product IDs are unique within the slice.
type Cart struct {
	SessionID string     `json:"session_id"`
	Items     []CartItem `json:"items"`
	Discount  *Discount  `json:"discount,omitempty"`
	Version   int64      `json:"version"`
	Freeze    string     `json:"freeze,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Discount is a percentage reduction applied to the cart total.
// Percentage is a fraction in [0, 1), e.g. 0.10 for 10% off.
type Discount struct {
	Code       string          `json:"code"`
	Percentage decimal.Decimal `json:"percentage"`
}

// ValidPercentage reports whether the discount fraction is within [0, 1).
func (d Discount) ValidPercentage() bool {
	return !d.Percentage.IsNegative() && d.Percentage.LessThan(decimal.NewFromInt(1))
}

// NewCart creates an empty cart for the given session.
func NewCart(sessionID string) *Cart {
	return &Cart{
		SessionID: sessionID,
		Items:     []CartItem{},
		Version:   0,
		UpdatedAt: time.Now().UTC(),
	}
}

// FindItemIndex returns the index of the cart item with the given product ID,
// or -1 if not present.
func (c *Cart) FindItemIndex(productID string) int {
	for i := range c.Items {
		if c.Items[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

// AddItem inserts the product or, if already present, increments its quantity
// and recomputes the line total. Version is bumped either way. The caller
// validates quantity and freeze state before calling.
func (c *Cart) AddItem(product Product, quantity int) {
	if idx := c.FindItemIndex(product.ID); idx >= 0 {
		item := &c.Items[idx]
		item.Quantity += quantity
		item.LineTotal = item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
	} else {
		c.Items = append(c.Items, CartItem{
			Product:   product,
			Quantity:  quantity,
			LineTotal: product.Price.Mul(decimal.NewFromInt(int64(quantity))),
		})
	}
	c.touch()
}

// RemoveItem deletes the line with the given product ID, preserving the order
// of the remaining items. Removing an absent ID is a no-op and does not bump
// the version.
func (c *Cart) RemoveItem(productID string) bool {
	idx := c.FindItemIndex(productID)
	if idx < 0 {
		return false
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	c.touch()
	return true
}

// SetDiscount replaces the active discount. At most one discount is active.
func (c *Cart) SetDiscount(d Discount) {
	c.Discount = &d
	c.touch()
}

// Clear empties items and discount. Only a committed checkout calls this.
func (c *Cart) Clear() {
	c.Items = []CartItem{}
	c.Discount = nil
	c.touch()
}

// IsEmpty reports whether the cart has no items.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// IsFrozen reports whether mutations are currently rejected.
func (c *Cart) IsFrozen() bool {
	return c.Freeze != FreezeNone
}

// ItemCount returns the total quantity across all lines.
func (c *Cart) ItemCount() int {
	var count int
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// Copy returns a deep copy of the cart. The orchestrator acts on a copy so
// that the live cart can never drift under an in-flight attempt.
func (c *Cart) Copy() *Cart {
	cp := *c
	cp.Items = make([]CartItem, len(c.Items))
	copy(cp.Items, c.Items)
	if c.Discount != nil {
		d := *c.Discount
		cp.Discount = &d
	}
	return &cp
}

func (c *Cart) touch() {
	c.Version++
	c.UpdatedAt = time.Now().UTC()
}
