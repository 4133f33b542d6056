// Package provider defines the interfaces for the external collaborators the
// checkout saga coordinates: the inventory authority, the payment gateway,
// and the discount registry. Implementations live under provider/httpapi;
// tests substitute testify mocks.
package provider

import (
	"context"

	"github.com/harborline/checkout/internal/domain"
)

// Charge status constants returned by the payment gateway.
const (
	ChargeSucceeded = "succeeded"
	ChargeDeclined  = "declined"
	ChargeNotFound  = "not_found"
)

// StockItem identifies a product and the quantity requested from inventory.
type StockItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ChargeInput holds the parameters for capturing a payment. AmountMinor is
// the total in minor units (cents). The idempotency key makes a replayed
// charge for the same attempt a no-op on the gateway side.
type ChargeInput struct {
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
}

// ChargeResult holds the gateway's answer for a charge or a status lookup.
type ChargeResult struct {
	TransactionID string
	Status        string // succeeded, declined, not_found
	FailureReason string
}

// RefundInput holds the parameters for compensating a captured charge.
type RefundInput struct {
	TransactionID  string
	IdempotencyKey string
}

// InventoryService is the inventory authority collaborator.
type InventoryService interface {
	// CheckAvailability returns the available quantity per product ID for
	// the requested items. Read-only; safe to retry freely.
	CheckAvailability(ctx context.Context, items []StockItem) (map[string]int64, error)

	// DecrementStock commits the stock decrement for every item. The call
	// is idempotent per key: replaying with the same key never
	// double-decrements.
	DecrementStock(ctx context.Context, items []StockItem, idempotencyKey string) error
}

// PaymentGateway is the payment processor collaborator.
type PaymentGateway interface {
	// Charge captures the payment. The gateway honors the idempotency key
	// as a deduplication token.
	Charge(ctx context.Context, input ChargeInput) (*ChargeResult, error)

	// Refund compensates a captured charge by transaction ID.
	Refund(ctx context.Context, input RefundInput) error

	// ChargeStatus resolves the outcome of a charge whose response was
	// lost (e.g. a timeout), keyed by the idempotency key.
	ChargeStatus(ctx context.Context, idempotencyKey string) (*ChargeResult, error)
}

// DiscountRegistry is the discount code collaborator.
type DiscountRegistry interface {
	// Resolve validates a code and returns the discount it grants.
	// Unknown or rejected codes return ErrInvalidDiscount.
	Resolve(ctx context.Context, code string) (*domain.Discount, error)
}
