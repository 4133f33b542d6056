package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/harborline/checkout/pkg/errors"

	"github.com/harborline/checkout/internal/domain"
	"github.com/harborline/checkout/internal/event"
	"github.com/harborline/checkout/internal/provider"
	"github.com/harborline/checkout/internal/repository"
)

// SagaTimeouts holds per-step timeout configuration for the checkout saga.
// A zero value means no per-step timeout (inherits the parent context).
type SagaTimeouts struct {
	InventoryTimeout time.Duration
	PaymentTimeout   time.Duration
	StockTimeout     time.Duration
}

// Orchestrator drives the checkout saga: verify inventory, charge payment,
// commit the stock decrement, persist the order. A stock commit failure
// after a captured charge triggers a compensating refund; a failed refund
// freezes the cart for manual resolution.
type Orchestrator struct {
	carts     *CartStore
	inventory provider.InventoryService
	payments  provider.PaymentGateway
	orders    repository.OrderRepository
	producer  *event.Producer
	logger    *slog.Logger
	timeouts  SagaTimeouts
	currency  string
}

// NewOrchestrator creates a checkout orchestrator. The order repository and
// event producer may be nil; persistence and events are then skipped.
func NewOrchestrator(
	carts *CartStore,
	inventory provider.InventoryService,
	payments provider.PaymentGateway,
	orders repository.OrderRepository,
	producer *event.Producer,
	logger *slog.Logger,
	timeouts SagaTimeouts,
	currency string,
) *Orchestrator {
	return &Orchestrator{
		carts:     carts,
		inventory: inventory,
		payments:  payments,
		orders:    orders,
		producer:  producer,
		logger:    logger,
		timeouts:  timeouts,
		currency:  currency,
	}
}

// stepContext derives a per-step context. Zero timeout returns the parent
// unchanged.
func stepContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// stockItems converts cart lines to the inventory wire shape.
func stockItems(items []domain.CartItem) []provider.StockItem {
	out := make([]provider.StockItem, 0, len(items))
	for _, it := range items {
		out = append(out, provider.StockItem{
			ProductID: it.Product.ID,
			Quantity:  it.Quantity,
		})
	}
	return out
}

// ProcessCheckout runs one checkout attempt for the session.
//
// Failures that belong to the checkout domain (empty cart, concurrent
// attempt, stock shortfall, declined or unresolved payment, failed stock
// commit, failed compensation) come back inside the CheckoutResult with a
// nil error. A non-nil error means infrastructure trouble before any money
// moved; the cart is released intact and the caller may simply retry.
func (o *Orchestrator) ProcessCheckout(ctx context.Context, sessionID string) (*domain.CheckoutResult, error) {
	snapshot, key, err := o.carts.BeginCheckout(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrCheckoutInFlight) {
			recordOutcome(domain.FailureCheckoutInProgress)
			return &domain.CheckoutResult{
				FailureKind: domain.FailureCheckoutInProgress,
				State:       domain.StateIdle,
			}, nil
		}
		return nil, err
	}

	if snapshot.IsEmpty() {
		recordOutcome(domain.FailureEmptyCart)
		return &domain.CheckoutResult{
			FailureKind: domain.FailureEmptyCart,
			State:       domain.StateIdle,
		}, nil
	}

	// A crash can lose the cart clear after the order was already written.
	// An existing order under this idempotency key means the attempt
	// committed; finish the release instead of driving the saga again.
	if o.orders != nil {
		existing, lookErr := o.orders.GetByIdempotencyKey(ctx, key)
		if lookErr != nil && !errors.Is(lookErr, apperrors.ErrNotFound) {
			o.logger.WarnContext(ctx, "order replay lookup failed",
				slog.String("session_id", sessionID),
				slog.String("error", lookErr.Error()),
			)
		}
		if lookErr == nil && existing != nil {
			o.release(ctx, sessionID, OutcomeCommit)
			recordOutcome("committed")
			o.logger.InfoContext(ctx, "checkout replay resolved to existing order",
				slog.String("session_id", sessionID),
				slog.String("order_id", existing.ID),
			)
			return &domain.CheckoutResult{
				Success: true,
				OrderID: existing.ID,
				State:   domain.StateCommitted,
			}, nil
		}
	}

	attempt := domain.NewCheckoutAttempt(snapshot, key)
	logger := o.logger.With(
		slog.String("session_id", sessionID),
		slog.String("idempotency_key", key),
	)
	logger.InfoContext(ctx, "checkout attempt started",
		slog.Int("item_count", snapshot.ItemCount()),
		slog.Int64("cart_version", snapshot.Version),
	)

	items := stockItems(snapshot.Items)

	// Step 1: verify inventory. Read-only, so any failure here rolls back
	// by simply releasing the cart.
	attempt.State = domain.StateVerifyingInventory
	verifyStep := attempt.AddStep(domain.SagaStepVerifyInventory)
	verifyStart := time.Now()

	vctx, vcancel := stepContext(ctx, o.timeouts.InventoryTimeout)
	availability, err := o.inventory.CheckAvailability(vctx, items)
	vcancel()
	if err != nil {
		verifyStep.Fail(err.Error())
		observeStep(domain.SagaStepVerifyInventory, domain.SagaStepFailed, verifyStart)
		o.release(ctx, sessionID, OutcomeRollback)
		logger.ErrorContext(ctx, "inventory availability check failed",
			slog.String("error", err.Error()),
		)
		return nil, apperrors.Wrap(err, "check inventory availability")
	}

	for _, it := range items {
		if availability[it.ProductID] < int64(it.Quantity) {
			verifyStep.Fail(fmt.Sprintf("product %s: requested %d, available %d",
				it.ProductID, it.Quantity, availability[it.ProductID]))
			observeStep(domain.SagaStepVerifyInventory, domain.SagaStepFailed, verifyStart)
			return o.fail(ctx, logger, attempt, domain.FailureInsufficientStock, domain.StateFailed), nil
		}
	}
	verifyStep.Complete()
	observeStep(domain.SagaStepVerifyInventory, domain.SagaStepCompleted, verifyStart)

	// Step 2: charge payment.
	attempt.State = domain.StateCharging
	chargeStep := attempt.AddStep(domain.SagaStepChargePayment)
	chargeStart := time.Now()

	total := domain.Total(snapshot.Items, snapshot.Discount)
	input := provider.ChargeInput{
		AmountMinor:    domain.MinorUnits(total),
		Currency:       o.currency,
		IdempotencyKey: key,
	}

	pctx, pcancel := stepContext(ctx, o.timeouts.PaymentTimeout)
	charge, err := o.payments.Charge(pctx, input)
	pcancel()

	switch {
	case err == nil && charge.Status == provider.ChargeSucceeded:
		// Captured on the first try.
	case err != nil && errors.Is(err, apperrors.ErrPaymentDeclined):
		chargeStep.Fail("payment declined")
		observeStep(domain.SagaStepChargePayment, domain.SagaStepFailed, chargeStart)
		return o.fail(ctx, logger, attempt, domain.FailurePaymentDeclined, domain.StateFailed), nil
	case err == nil && charge.Status == provider.ChargeDeclined:
		chargeStep.Fail(charge.FailureReason)
		observeStep(domain.SagaStepChargePayment, domain.SagaStepFailed, chargeStart)
		return o.fail(ctx, logger, attempt, domain.FailurePaymentDeclined, domain.StateFailed), nil
	default:
		// The charge outcome is unknown: the request timed out or the
		// response was lost. Money may or may not have moved, so ask the
		// gateway before giving up.
		logger.WarnContext(ctx, "charge outcome ambiguous, resolving via status lookup",
			slog.String("error", errString(err)),
		)
		charge = o.resolveCharge(ctx, key)
		switch {
		case charge != nil && charge.Status == provider.ChargeSucceeded:
			// The charge landed; carry on with its transaction ID.
		case charge != nil && charge.Status == provider.ChargeDeclined:
			chargeStep.Fail(charge.FailureReason)
			observeStep(domain.SagaStepChargePayment, domain.SagaStepFailed, chargeStart)
			return o.fail(ctx, logger, attempt, domain.FailurePaymentDeclined, domain.StateFailed), nil
		default:
			chargeStep.Fail("charge outcome unresolved")
			observeStep(domain.SagaStepChargePayment, domain.SagaStepFailed, chargeStart)
			return o.fail(ctx, logger, attempt, domain.FailurePaymentTimeout, domain.StateFailed), nil
		}
	}

	attempt.TransactionID = charge.TransactionID
	chargeStep.Complete()
	observeStep(domain.SagaStepChargePayment, domain.SagaStepCompleted, chargeStart)

	// Step 3: commit the stock decrement. Failure here means the charge
	// must be compensated.
	attempt.State = domain.StateUpdatingStock
	stockStep := attempt.AddStep(domain.SagaStepUpdateStock)
	stockStart := time.Now()

	sctx, scancel := stepContext(ctx, o.timeouts.StockTimeout)
	err = o.inventory.DecrementStock(sctx, items, key)
	scancel()
	if err != nil {
		stockStep.Fail(err.Error())
		observeStep(domain.SagaStepUpdateStock, domain.SagaStepFailed, stockStart)
		logger.ErrorContext(ctx, "stock commit failed after captured charge, refunding",
			slog.String("transaction_id", charge.TransactionID),
			slog.String("error", err.Error()),
		)
		return o.compensate(ctx, logger, attempt, chargeStep, input.AmountMinor), nil
	}
	stockStep.Complete()
	observeStep(domain.SagaStepUpdateStock, domain.SagaStepCompleted, stockStart)

	// Both the charge and the stock commit are confirmed; everything from
	// here on is bookkeeping and must not fail the checkout.
	attempt.State = domain.StateCommitted

	order := &domain.Order{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		Items:          snapshot.Items,
		Subtotal:       domain.Total(snapshot.Items, nil),
		Total:          total,
		Currency:       o.currency,
		IdempotencyKey: key,
		TransactionID:  charge.TransactionID,
		CreatedAt:      time.Now().UTC(),
	}
	if snapshot.Discount != nil {
		order.DiscountCode = snapshot.Discount.Code
	}

	if o.orders != nil {
		if err := o.orders.Save(ctx, order); err != nil {
			logger.ErrorContext(ctx, "order persistence failed for committed checkout",
				slog.String("order_id", order.ID),
				slog.String("transaction_id", charge.TransactionID),
				slog.String("error", err.Error()),
			)
		}
	}

	o.release(ctx, sessionID, OutcomeCommit)

	if o.producer != nil {
		if err := o.producer.PublishCheckoutCompleted(ctx, order); err != nil {
			logger.WarnContext(ctx, "checkout.completed publish failed",
				slog.String("error", err.Error()),
			)
		}
	}

	recordOutcome("committed")
	logger.InfoContext(ctx, "checkout committed",
		slog.String("order_id", order.ID),
		slog.String("transaction_id", charge.TransactionID),
		slog.Int64("total_minor", input.AmountMinor),
	)

	return &domain.CheckoutResult{
		Success: true,
		OrderID: order.ID,
		State:   domain.StateCommitted,
	}, nil
}

// resolveCharge asks the gateway for the outcome of a charge whose response
// was lost. Returns nil when the outcome stays unknown.
func (o *Orchestrator) resolveCharge(ctx context.Context, key string) *provider.ChargeResult {
	rctx, cancel := stepContext(ctx, o.timeouts.PaymentTimeout)
	defer cancel()

	res, err := o.payments.ChargeStatus(rctx, key)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// The gateway never saw the charge: it is safe to treat as
			// not captured.
			return &provider.ChargeResult{Status: provider.ChargeNotFound}
		}
		o.logger.WarnContext(ctx, "charge status lookup failed",
			slog.String("idempotency_key", key),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return res
}

// compensate refunds a captured charge after a stock commit failure. A
// successful refund rolls the attempt back and releases the cart; a failed
// refund freezes the cart for manual resolution.
func (o *Orchestrator) compensate(ctx context.Context, logger *slog.Logger, attempt *domain.CheckoutAttempt, chargeStep *domain.SagaStep, amountMinor int64) *domain.CheckoutResult {
	refundStep := attempt.AddStep(domain.SagaStepRefundPayment)
	refundStart := time.Now()

	rctx, cancel := stepContext(ctx, o.timeouts.PaymentTimeout)
	err := o.payments.Refund(rctx, provider.RefundInput{
		TransactionID:  attempt.TransactionID,
		IdempotencyKey: attempt.IdempotencyKey,
	})
	cancel()

	if err != nil {
		refundStep.Fail(err.Error())
		observeStep(domain.SagaStepRefundPayment, domain.SagaStepFailed, refundStart)
		logger.ErrorContext(ctx, "refund failed, cart frozen for manual resolution",
			slog.String("transaction_id", attempt.TransactionID),
			slog.Int64("amount_minor", amountMinor),
			slog.String("error", err.Error()),
		)
		manualResolutionCarts.Inc()
		o.release(ctx, attempt.Snapshot.SessionID, OutcomeManual)
		attempt.State = domain.StateFailed
		if o.producer != nil {
			if perr := o.producer.PublishCompensationFailed(ctx, attempt, amountMinor, o.currency); perr != nil {
				logger.WarnContext(ctx, "checkout.compensation_failed publish failed",
					slog.String("error", perr.Error()),
				)
			}
		}
		recordOutcome(domain.FailureCompensationFailed)
		return &domain.CheckoutResult{
			FailureKind: domain.FailureCompensationFailed,
			State:       domain.StateFailed,
		}
	}

	refundStep.Complete()
	chargeStep.Compensate()
	observeStep(domain.SagaStepRefundPayment, domain.SagaStepCompleted, refundStart)
	logger.InfoContext(ctx, "charge refunded after stock commit failure",
		slog.String("transaction_id", attempt.TransactionID),
		slog.Int64("amount_minor", amountMinor),
	)
	return o.fail(ctx, logger, attempt, domain.FailureStockCommitFailed, domain.StateRolledBack)
}

// fail records a terminal taxonomy failure: release the cart intact, publish
// the failure event, and build the result.
func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, attempt *domain.CheckoutAttempt, kind, state string) *domain.CheckoutResult {
	o.release(ctx, attempt.Snapshot.SessionID, OutcomeRollback)
	attempt.State = state

	if o.producer != nil {
		if err := o.producer.PublishCheckoutFailed(ctx, attempt, kind); err != nil {
			logger.WarnContext(ctx, "checkout.failed publish failed",
				slog.String("error", err.Error()),
			)
		}
	}

	recordOutcome(kind)
	logger.InfoContext(ctx, "checkout attempt failed",
		slog.String("failure_kind", kind),
		slog.String("state", state),
	)
	return &domain.CheckoutResult{
		FailureKind: kind,
		State:       state,
	}
}

// release finishes the checkout on the cart store and logs any bookkeeping
// error; the saga outcome itself is already decided at this point.
func (o *Orchestrator) release(ctx context.Context, sessionID, outcome string) {
	if err := o.carts.FinishCheckout(ctx, sessionID, outcome); err != nil {
		o.logger.ErrorContext(ctx, "finish checkout bookkeeping failed",
			slog.String("session_id", sessionID),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
	}
}

func errString(err error) string {
	if err == nil {
		return "unexpected charge status"
	}
	return err.Error()
}
