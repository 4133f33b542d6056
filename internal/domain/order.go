package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the persistent record of a committed checkout.
type Order struct {
	ID             string          `json:"id"`
	SessionID      string          `json:"session_id"`
	Items          []CartItem      `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountCode   string          `json:"discount_code,omitempty"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
	IdempotencyKey string          `json:"idempotency_key"`
	TransactionID  string          `json:"transaction_id"`
	CreatedAt      time.Time       `json:"created_at"`
}
