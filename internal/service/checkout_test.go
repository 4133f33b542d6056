package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/harborline/checkout/pkg/errors"

	"github.com/harborline/checkout/internal/domain"
	"github.com/harborline/checkout/internal/provider"
)

const testSession = "sess-1"

func newTestStore() *CartStore {
	return NewCartStore(nil, nil, newTestLogger())
}

// seedCart fills the session cart with two products totalling 23.50.
func seedCart(t *testing.T, store *CartStore) {
	t.Helper()
	ctx := context.Background()
	_, err := store.AddItem(ctx, testSession, domain.Product{
		ID: "p1", Name: "Widget", Price: decimal.RequireFromString("10.00"),
	}, 2)
	require.NoError(t, err)
	_, err = store.AddItem(ctx, testSession, domain.Product{
		ID: "p2", Name: "Gadget", Price: decimal.RequireFromString("3.50"),
	}, 1)
	require.NoError(t, err)
}

func applyTenPercent(t *testing.T, store *CartStore) {
	t.Helper()
	_, err := store.SetDiscount(context.Background(), testSession, domain.Discount{
		Code:       "SAVE10",
		Percentage: decimal.RequireFromString("0.10"),
	})
	require.NoError(t, err)
}

func fullAvailability() map[string]int64 {
	return map[string]int64{"p1": 100, "p2": 100}
}

func newTestOrchestrator(store *CartStore, inv *mockInventory, pay *mockPayments, orders *mockOrders) *Orchestrator {
	if orders == nil {
		return NewOrchestrator(store, inv, pay, nil, nil, newTestLogger(), SagaTimeouts{}, "USD")
	}
	return NewOrchestrator(store, inv, pay, orders, nil, newTestLogger(), SagaTimeouts{}, "USD")
}

func TestProcessCheckout_EmptyCart(t *testing.T) {
	store := newTestStore()
	inv := new(mockInventory)
	pay := new(mockPayments)
	orch := newTestOrchestrator(store, inv, pay, nil)

	result, err := orch.ProcessCheckout(context.Background(), testSession)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.FailureEmptyCart, result.FailureKind)
	inv.AssertNotCalled(t, "CheckAvailability", mock.Anything, mock.Anything)
	pay.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)

	// The cart never froze; mutations still work.
	_, err = store.AddItem(context.Background(), testSession, domain.Product{
		ID: "p1", Price: decimal.RequireFromString("1.00"),
	}, 1)
	require.NoError(t, err)
}

func TestProcessCheckout_Success(t *testing.T) {
	store := newTestStore()
	seedCart(t, store)
	applyTenPercent(t, store)

	inv := new(mockInventory)
	pay := new(mockPayments)
	orders := new(mockOrders)
	orders.On("GetByIdempotencyKey", mock.Anything, mock.Anything).
		Return(nil, apperrors.NotFound("order", "key")).Once()

	var chargeInput provider.ChargeInput
	inv.On("CheckAvailability", mock.Anything, mock.Anything).Return(fullAvailability(), nil).Once()
	pay.On("Charge", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		chargeInput = args.Get(1).(provider.ChargeInput)
	}).Return(&provider.ChargeResult{TransactionID: "txn-1", Status: provider.ChargeSucceeded}, nil).Once()
	inv.On("DecrementStock", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	var savedOrder *domain.Order
	orders.On("Save", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		savedOrder = args.Get(1).(*domain.Order)
	}).Return(nil).Once()

	orch := newTestOrchestrator(store, inv, pay, orders)
	result, err := orch.ProcessCheckout(context.Background(), testSession)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.OrderID)
	assert.Equal(t, domain.StateCommitted, result.State)

	// 23.50 with 10% off is 21.15, charged as 2115 minor units.
	assert.Equal(t, int64(2115), chargeInput.AmountMinor)
	assert.Equal(t, "USD", chargeInput.Currency)
	assert.NotEmpty(t, chargeInput.IdempotencyKey)

	// The stock decrement reuses the charge's idempotency key.
	inv.AssertCalled(t, "DecrementStock", mock.Anything, mock.Anything, chargeInput.IdempotencyKey)

	require.NotNil(t, savedOrder)
	assert.Equal(t, result.OrderID, savedOrder.ID)
	assert.Equal(t, "21.15", savedOrder.Total.StringFixed(2))
	assert.Equal(t, "23.50", savedOrder.Subtotal.StringFixed(2))
	assert.Equal(t, "SAVE10", savedOrder.DiscountCode)
	assert.Equal(t, "txn-1", savedOrder.TransactionID)

	// Committed checkout clears and releases the cart.
	cart, err := store.Get(context.Background(), testSession)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	assert.False(t, cart.IsFrozen())
	pay.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
}

func TestProcessCheckout_InsufficientStock(t *testing.T) {
	store := newTestStore()
	seedCart(t, store)

	inv := new(mockInventory)
	pay := new(mockPayments)
	inv.On("CheckAvailability", mock.Anything, mock.Anything).Return(map[string]int64{"p1": 1, "p2": 100}, nil).Once()

	orch := newTestOrchestrator(store, inv, pay, nil)
	result, err := orch.ProcessCheckout(context.Background(), testSession)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.FailureInsufficientStock, result.FailureKind)
	assert.Equal(t, domain.StateFailed, result.State)
	pay.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)

	// Cart unfrozen and intact.
	cart, err := store.Get(context.Background(), testSession)
	require.NoError(t, err)
	assert.Equal(t, 3, cart.ItemCount())
	assert.False(t, cart.IsFrozen())
}

func TestProcessCheckout_InventoryUnavailableIsInfrastructureError(t *testing.T) {
	store := newTestStore()
	seedCart(t, store)

	inv := new(mockInventory)
	pay := new(mockPayments)
	inv.On("CheckAvailability", mock.Anything, mock.Anything).
		Return(nil, apperrors.ServiceUnavailable("inventory is down")).Once()

	orch := newTestOrchestrator(store, inv, pay, nil)
	result, err := orch.ProcessCheckout(context.Background(), testSession)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	pay.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)

	// The cart is released so the caller can retry.
	cart, err := store.Get(context.Background(), testSession)
	require.NoError(t, err)
	assert.False(t, cart.IsFrozen())
	assert.Equal(t, 3, cart.ItemCount())
}

func TestProcessCheckout_PaymentDeclined(t *testing.T) {
	store := newTestStore()
	seedCart(t, store)

	inv := new(mockInventory)
	pay := new(mockPayments)
	inv.On("CheckAvailability", mock.Anything, mock.Anything).Return(fullAvailability(), nil).Once()
	pay.On("Charge", mock.Anything, mock.Anything).
		Return(nil, apperrors.PaymentDeclined("card declined")).Once()

	orch := newTestOrchestrator(store, inv, pay, nil)
	result, err := orch.ProcessCheckout(context.Background(), testSession)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.FailurePaymentDeclined, result.FailureKind)
	inv.AssertNotCalled(t, "DecrementStock", mock.Anything, mock.Anything, mock.Anything)
	pay.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)

	cart, err := store.Get(context.Background(), testSession)
	require.NoError(t, err)
	assert.Equal(t, 3, cart.ItemCount())
	assert.False(t, cart.IsFrozen())
}

func TestProcessCheckout_RetryAfterDeclineUsesNewKey(t *testing.T) {
	store := newTestStore()
	seedCart(t, store)

	inv := new(mockInventory)
	pay := new(mockPayments)
	inv.On("CheckAvailability", mock.Anything, mock.Anything).Return(fullAvailability(), nil).Twice()

	var keys []string
	pay.On("Charge", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		keys = append(keys, args.Get(1).(provider.ChargeInput).IdempotencyKey)
	}).Return(nil, apperrors.PaymentDeclined("card declined")).Twice()

	orch := newTestOrchestrator(store, inv, pay, nil)
	_, err := orch.ProcessCheckout(context.Background(), testSession)
	require.NoError(t, err)
	_, err = orch.ProcessCheckout(context.Background(), testSession)
	require.NoError(t, err)

	require.Len(t, keys, 2)
	assert.NotEqual(t, keys[0], keys[1], "a retry after a decline is a new logical attempt")
}

func TestProcessCheckout_AmbiguousChargeResolvedAsSucceeded(t *testing.T) {
	store := newTestStore()
	seedCart(t, store)

	inv := new(mockInventory)
	pay := new(mockPayments)
	orders := new(mockOrders)
	orders.On("GetByIdempotencyKey", mock.Anything, mock.Anything).
		Return(nil, apperrors.NotFound("order", "key")).Once()
	inv.On("CheckAvailability", mock.Anything, mock.Anything).Return(fullAvailability(), nil).Once()
	pay.On("Charge", mock.Anything, mock.Anything).
		Return(nil, context.DeadlineExceeded).Once()
	pay.On("ChargeStatus", mock.Anything, mock.Anything).
		Return(&provider.ChargeResult{TransactionID: "txn-9", Status: provider.ChargeSucceeded}, nil).Once()
	inv.On("DecrementStock", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	var savedOrder *domain.Order
	orders.On("Save", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		savedOrder = args.Get(1).(*domain.Order)
	}).Return(nil).Once()

	orch := newTestOrchestrator(store, inv, pay, orders)
	result, err := orch.ProcessCheckout(context.Background(), testSession)

	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, savedOrder)
	assert.Equal(t, "txn-9", savedOrder.TransactionID)
}

func TestProcessCheckout_AmbiguousChargeUnresolvedIsTimeout(t *testing.T) {
	store := newTestStore()
	seedCart(t, store)

	inv := new(mockInventory)
	pay := new(mockPayments)
	inv.On("CheckAvailability", mock.Anything, mock.Anything).Return(fullAvailability(), nil).Once()
	pay.On("Charge", mock.Anything, mock.Anything).
		Return(nil, context.DeadlineExceeded).Once()
	pay.On("ChargeStatus", mock.Anything, mock.Anything).
		Return(nil, apperrors.NotFound("charge", "sess-1:v2:a1")).Once()

	orch := newTestOrchestrator(store, inv, pay, nil)
	result, err := orch.ProcessCheckout(context.Background(), testSession)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.FailurePaymentTimeout, result.FailureKind)
	inv.AssertNotCalled(t, "DecrementStock", mock.Anything, mock.Anything, mock.Anything)

	cart, err := store.Get(context.Background(), testSession)
	require.NoError(t, err)
	assert.False(t, cart.IsFrozen())
	assert.Equal(t, 3, cart.ItemCount())
}

func TestProcessCheckout_StockCommitFailedTriggersRefund(t *testing.T) {
	store := newTestStore()
	seedCart(t, store)

	inv := new(mockInventory)
	pay := new(mockPayments)

	var chargeKey string
	inv.On("CheckAvailability", mock.Anything, mock.Anything).Return(fullAvailability(), nil).Once()
	pay.On("Charge", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		chargeKey = args.Get(1).(provider.ChargeInput).IdempotencyKey
	}).Return(&provider.ChargeResult{TransactionID: "txn-5", Status: provider.ChargeSucceeded}, nil).Once()
	inv.On("DecrementStock", mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.StockCommitFailed("decrement conflict")).Once()
	pay.On("Refund", mock.Anything, mock.Anything).Return(nil).Once()

	orch := newTestOrchestrator(store, inv, pay, nil)
	result, err := orch.ProcessCheckout(context.Background(), testSession)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.FailureStockCommitFailed, result.FailureKind)
	assert.Equal(t, domain.StateRolledBack, result.State)

	// Exactly one refund, for the charge's transaction and key.
	pay.AssertNumberOfCalls(t, "Refund", 1)
	pay.AssertCalled(t, "Refund", mock.Anything, provider.RefundInput{
		TransactionID:  "txn-5",
		IdempotencyKey: chargeKey,
	})

	cart, err := store.Get(context.Background(), testSession)
	require.NoError(t, err)
	assert.False(t, cart.IsFrozen())
	assert.Equal(t, 3, cart.ItemCount())
}

func TestProcessCheckout_RefundFailureFreezesCart(t *testing.T) {
	store := newTestStore()
	seedCart(t, store)

	inv := new(mockInventory)
	pay := new(mockPayments)
	inv.On("CheckAvailability", mock.Anything, mock.Anything).Return(fullAvailability(), nil).Once()
	pay.On("Charge", mock.Anything, mock.Anything).
		Return(&provider.ChargeResult{TransactionID: "txn-7", Status: provider.ChargeSucceeded}, nil).Once()
	inv.On("DecrementStock", mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.StockCommitFailed("decrement conflict")).Once()
	pay.On("Refund", mock.Anything, mock.Anything).
		Return(apperrors.ServiceUnavailable("gateway is down")).Once()

	orch := newTestOrchestrator(store, inv, pay, nil)
	result, err := orch.ProcessCheckout(context.Background(), testSession)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.FailureCompensationFailed, result.FailureKind)
	assert.Equal(t, domain.StateFailed, result.State)

	// The cart is frozen for manual resolution: mutations and further
	// checkouts are rejected.
	_, err = store.AddItem(context.Background(), testSession, domain.Product{
		ID: "p3", Price: decimal.RequireFromString("1.00"),
	}, 1)
	assert.ErrorIs(t, err, apperrors.ErrCartFrozen)

	_, err = orch.ProcessCheckout(context.Background(), testSession)
	assert.ErrorIs(t, err, apperrors.ErrCartFrozen)
}

func TestProcessCheckout_ConcurrentSecondAttemptRejected(t *testing.T) {
	store := newTestStore()
	seedCart(t, store)

	inv := new(mockInventory)
	pay := new(mockPayments)

	started := make(chan struct{})
	release := make(chan struct{})
	inv.On("CheckAvailability", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(fullAvailability(), nil).Once()
	pay.On("Charge", mock.Anything, mock.Anything).
		Return(&provider.ChargeResult{TransactionID: "txn-1", Status: provider.ChargeSucceeded}, nil).Once()
	inv.On("DecrementStock", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	orch := newTestOrchestrator(store, inv, pay, nil)

	type outcome struct {
		result *domain.CheckoutResult
		err    error
	}
	firstDone := make(chan outcome, 1)
	go func() {
		result, err := orch.ProcessCheckout(context.Background(), testSession)
		firstDone <- outcome{result, err}
	}()

	<-started
	second, err := orch.ProcessCheckout(context.Background(), testSession)
	require.NoError(t, err)
	assert.Equal(t, domain.FailureCheckoutInProgress, second.FailureKind)

	close(release)
	first := <-firstDone
	require.NoError(t, first.err)
	assert.True(t, first.result.Success)
}

func TestProcessCheckout_OrderSaveFailureStillCommits(t *testing.T) {
	store := newTestStore()
	seedCart(t, store)

	inv := new(mockInventory)
	pay := new(mockPayments)
	orders := new(mockOrders)
	orders.On("GetByIdempotencyKey", mock.Anything, mock.Anything).
		Return(nil, apperrors.NotFound("order", "key")).Once()
	inv.On("CheckAvailability", mock.Anything, mock.Anything).Return(fullAvailability(), nil).Once()
	pay.On("Charge", mock.Anything, mock.Anything).
		Return(&provider.ChargeResult{TransactionID: "txn-2", Status: provider.ChargeSucceeded}, nil).Once()
	inv.On("DecrementStock", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	orders.On("Save", mock.Anything, mock.Anything).
		Return(apperrors.Internal(assert.AnError)).Once()

	orch := newTestOrchestrator(store, inv, pay, orders)
	result, err := orch.ProcessCheckout(context.Background(), testSession)

	require.NoError(t, err)
	assert.True(t, result.Success)

	cart, err := store.Get(context.Background(), testSession)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}

func TestProcessCheckout_ReplayReturnsExistingOrder(t *testing.T) {
	store := newTestStore()
	seedCart(t, store)

	inv := new(mockInventory)
	pay := new(mockPayments)
	orders := new(mockOrders)
	orders.On("GetByIdempotencyKey", mock.Anything, mock.Anything).
		Return(&domain.Order{ID: "order-7", SessionID: testSession}, nil).Once()

	orch := newTestOrchestrator(store, inv, pay, orders)
	result, err := orch.ProcessCheckout(context.Background(), testSession)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "order-7", result.OrderID)
	assert.Equal(t, domain.StateCommitted, result.State)

	// The committed attempt is not re-driven; no money moves twice.
	inv.AssertNotCalled(t, "CheckAvailability", mock.Anything, mock.Anything)
	pay.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
	orders.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)

	cart, err := store.Get(context.Background(), testSession)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}
