package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCart_AddItem_NewProduct(t *testing.T) {
	cart := NewCart("sess-1")
	cart.AddItem(Product{ID: "sku-1", Name: "Widget", Price: dec("10.00")}, 2)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.Equal(t, "20.00", cart.Items[0].LineTotal.StringFixed(2))
	assert.Equal(t, int64(1), cart.Version)
}

func TestCart_AddItem_ExistingProductMergesQuantity(t *testing.T) {
	cart := NewCart("sess-1")
	p := Product{ID: "sku-1", Name: "Widget", Price: dec("10.00")}
	cart.AddItem(p, 2)
	cart.AddItem(p, 3)

	require.Len(t, cart.Items, 1, "no duplicate entry for the same product id")
	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.Equal(t, "50.00", cart.Items[0].LineTotal.StringFixed(2))
	assert.Equal(t, int64(2), cart.Version)
}

func TestCart_AddItem_PriceCapturedAtAddTime(t *testing.T) {
	cart := NewCart("sess-1")
	cart.AddItem(Product{ID: "sku-1", Price: dec("10.00")}, 1)

	// A later catalog price change must not affect the line already in the cart.
	cart.AddItem(Product{ID: "sku-2", Price: dec("99.00")}, 1)
	assert.Equal(t, "10.00", cart.Items[0].Product.Price.StringFixed(2))
}

func TestCart_ItemsPreserveInsertionOrder(t *testing.T) {
	cart := NewCart("sess-1")
	cart.AddItem(Product{ID: "b", Price: dec("1.00")}, 1)
	cart.AddItem(Product{ID: "a", Price: dec("2.00")}, 1)
	cart.AddItem(Product{ID: "c", Price: dec("3.00")}, 1)
	cart.AddItem(Product{ID: "a", Price: dec("2.00")}, 1)

	require.Len(t, cart.Items, 3)
	assert.Equal(t, "b", cart.Items[0].Product.ID)
	assert.Equal(t, "a", cart.Items[1].Product.ID)
	assert.Equal(t, "c", cart.Items[2].Product.ID)
}

func TestCart_RemoveItem_Present(t *testing.T) {
	cart := NewCart("sess-1")
	cart.AddItem(Product{ID: "a", Price: dec("1.00")}, 1)
	cart.AddItem(Product{ID: "b", Price: dec("2.00")}, 1)

	removed := cart.RemoveItem("a")
	assert.True(t, removed)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "b", cart.Items[0].Product.ID)
}

func TestCart_RemoveItem_AbsentIsNoOp(t *testing.T) {
	cart := NewCart("sess-1")
	cart.AddItem(Product{ID: "a", Price: dec("1.00")}, 1)
	version := cart.Version

	removed := cart.RemoveItem("missing")
	assert.False(t, removed)
	assert.Len(t, cart.Items, 1)
	assert.Equal(t, version, cart.Version, "no-op removal must not bump the version")
}

func TestCart_Clear(t *testing.T) {
	cart := NewCart("sess-1")
	cart.AddItem(Product{ID: "a", Price: dec("1.00")}, 1)
	cart.SetDiscount(Discount{Code: "SAVE10", Percentage: dec("0.10")})

	cart.Clear()
	assert.True(t, cart.IsEmpty())
	assert.Nil(t, cart.Discount)
}

func TestCart_Copy_IsDeep(t *testing.T) {
	cart := NewCart("sess-1")
	cart.AddItem(Product{ID: "a", Price: dec("1.00")}, 1)
	cart.SetDiscount(Discount{Code: "SAVE10", Percentage: dec("0.10")})

	snap := cart.Copy()
	cart.AddItem(Product{ID: "a", Price: dec("1.00")}, 4)
	cart.Discount.Code = "CHANGED"

	assert.Equal(t, 1, snap.Items[0].Quantity, "snapshot must not see later mutations")
	assert.Equal(t, "SAVE10", snap.Discount.Code)
}

func TestDiscount_ValidPercentage(t *testing.T) {
	assert.True(t, Discount{Percentage: dec("0")}.ValidPercentage())
	assert.True(t, Discount{Percentage: dec("0.99")}.ValidPercentage())
	assert.False(t, Discount{Percentage: dec("1")}.ValidPercentage())
	assert.False(t, Discount{Percentage: dec("-0.1")}.ValidPercentage())
}

func TestIdempotencyKey_Lineage(t *testing.T) {
	k1 := IdempotencyKey("sess-1", 3, 1)
	k2 := IdempotencyKey("sess-1", 3, 1)
	assert.Equal(t, k1, k2, "same attempt reuses the key")

	assert.NotEqual(t, k1, IdempotencyKey("sess-1", 4, 1), "edited cart gets a new lineage")
	assert.NotEqual(t, k1, IdempotencyKey("sess-1", 3, 2), "new attempt gets a new key")
	assert.NotEqual(t, k1, IdempotencyKey("sess-2", 3, 1))
}

func TestCheckoutAttempt_Steps(t *testing.T) {
	attempt := NewCheckoutAttempt(NewCart("sess-1").Copy(), "sess-1:v0:a1")
	assert.Equal(t, StateIdle, attempt.State)
	assert.False(t, attempt.IsTerminal())

	step := attempt.AddStep(SagaStepVerifyInventory)
	step.Complete()
	assert.Equal(t, SagaStepCompleted, attempt.Steps[0].Status)

	attempt.State = StateCommitted
	assert.True(t, attempt.IsTerminal())
}

func TestCheckoutAttempt_StepHandleSurvivesLaterAppends(t *testing.T) {
	attempt := NewCheckoutAttempt(NewCart("sess-1").Copy(), "sess-1:v0:a1")

	verifyStep := attempt.AddStep(SagaStepVerifyInventory)
	verifyStep.Complete()

	chargeStep := attempt.AddStep(SagaStepChargePayment)
	chargeStep.Complete()

	stockStep := attempt.AddStep(SagaStepUpdateStock)
	stockStep.Fail("inventory unavailable")

	refundStep := attempt.AddStep(SagaStepRefundPayment)
	refundStep.Complete()
	chargeStep.Compensate()

	assert.Equal(t, SagaStepCompleted, attempt.Steps[0].Status)
	assert.Equal(t, SagaStepCompensated, attempt.Steps[1].Status)
	assert.Equal(t, SagaStepFailed, attempt.Steps[2].Status)
	assert.Equal(t, SagaStepCompleted, attempt.Steps[3].Status)
}
