package domain

import (
	"fmt"
	"time"
)

// Checkout attempt state constants. Idle is initial; Committed, RolledBack,
// and Failed are terminal per attempt.
const (
	StateIdle               = "idle"
	StateVerifyingInventory = "verifying_inventory"
	StateCharging           = "charging"
	StateUpdatingStock      = "updating_stock"
	StateCommitted          = "committed"
	StateRolledBack         = "rolled_back"
	StateFailed             = "failed"
)

// Failure kind constants. A checkout never reports failure as a bare boolean;
// the kind tells the caller which step failed and whether a retry is safe.
const (
	FailureEmptyCart          = "empty_cart"
	FailureCheckoutInProgress = "checkout_in_progress"
	FailureInsufficientStock  = "insufficient_stock"
	FailurePaymentDeclined    = "payment_declined"
	FailurePaymentTimeout     = "payment_timeout"
	FailureStockCommitFailed  = "stock_commit_failed"
	FailureCompensationFailed = "compensation_failed"
)

// CheckoutAttempt is the ephemeral per-invocation record the orchestrator
// drives through the saga. The snapshot is a deep copy of the cart taken
// under the session lock; the live cart cannot affect it.
type CheckoutAttempt struct {
	IdempotencyKey string      `json:"idempotency_key"`
	Snapshot       *Cart       `json:"snapshot"`
	State          string      `json:"state"`
	Steps          []*SagaStep `json:"steps"`
	TransactionID  string      `json:"transaction_id,omitempty"`
	StartedAt      time.Time   `json:"started_at"`
}

// NewCheckoutAttempt creates an attempt in the idle state over the given
// cart snapshot.
func NewCheckoutAttempt(snapshot *Cart, idempotencyKey string) *CheckoutAttempt {
	return &CheckoutAttempt{
		IdempotencyKey: idempotencyKey,
		Snapshot:       snapshot,
		State:          StateIdle,
		StartedAt:      time.Now().UTC(),
	}
}

// IsTerminal returns true if the attempt has reached a final state.
func (a *CheckoutAttempt) IsTerminal() bool {
	return a.State == StateCommitted || a.State == StateRolledBack || a.State == StateFailed
}

// AddStep appends a pending saga step and returns it so the orchestrator can
// complete or fail it in place. Steps holds pointers; a handle stays valid
// however many steps are appended after it.
func (a *CheckoutAttempt) AddStep(name string) *SagaStep {
	step := NewSagaStep(name)
	a.Steps = append(a.Steps, &step)
	return &step
}

// IdempotencyKey derives the deduplication token for a charge/stock-commit
// pair. Retries of the same logical attempt reuse the key; a new attempt
// (different attempt counter) or an edited cart (different version) yields a
// new one.
func IdempotencyKey(sessionID string, cartVersion int64, attempt uint64) string {
	return fmt.Sprintf("%s:v%d:a%d", sessionID, cartVersion, attempt)
}

// CheckoutResult is the discriminated outcome of a checkout invocation.
// Success is true only when both the payment capture and the stock commit
// are confirmed.
type CheckoutResult struct {
	Success     bool   `json:"success"`
	OrderID     string `json:"order_id,omitempty"`
	FailureKind string `json:"failure_kind,omitempty"`
	State       string `json:"state"`
}
