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
)

func TestCartStore_AddItem_Validation(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.AddItem(ctx, testSession, domain.Product{ID: "p1", Price: decimal.NewFromInt(1)}, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = store.AddItem(ctx, testSession, domain.Product{ID: "p1", Price: decimal.NewFromInt(1)}, -3)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = store.AddItem(ctx, testSession, domain.Product{Price: decimal.NewFromInt(1)}, 1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = store.AddItem(ctx, testSession, domain.Product{ID: "p1", Price: decimal.NewFromInt(-1)}, 1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCartStore_GetReturnsEmptyCartForNewSession(t *testing.T) {
	store := newTestStore()

	cart, err := store.Get(context.Background(), "fresh")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	assert.Equal(t, "fresh", cart.SessionID)
}

func TestCartStore_GetReturnsCopy(t *testing.T) {
	store := newTestStore()
	seedCart(t, store)

	cart, err := store.Get(context.Background(), testSession)
	require.NoError(t, err)
	cart.Items[0].Quantity = 99

	again, err := store.Get(context.Background(), testSession)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Items[0].Quantity)
}

func TestCartStore_FrozenCartRejectsMutations(t *testing.T) {
	store := newTestStore()
	seedCart(t, store)
	ctx := context.Background()

	_, _, err := store.BeginCheckout(ctx, testSession)
	require.NoError(t, err)

	_, err = store.AddItem(ctx, testSession, domain.Product{ID: "p3", Price: decimal.NewFromInt(1)}, 1)
	assert.ErrorIs(t, err, apperrors.ErrCartFrozen)

	_, err = store.RemoveItem(ctx, testSession, "p1")
	assert.ErrorIs(t, err, apperrors.ErrCartFrozen)

	_, err = store.SetDiscount(ctx, testSession, domain.Discount{Code: "X", Percentage: decimal.Zero})
	assert.ErrorIs(t, err, apperrors.ErrCartFrozen)

	// Rollback releases the freeze.
	require.NoError(t, store.FinishCheckout(ctx, testSession, OutcomeRollback))
	_, err = store.AddItem(ctx, testSession, domain.Product{ID: "p3", Price: decimal.NewFromInt(1)}, 1)
	require.NoError(t, err)
}

func TestCartStore_BeginCheckout_SnapshotIsImmutable(t *testing.T) {
	store := newTestStore()
	seedCart(t, store)
	ctx := context.Background()

	snapshot, key, err := store.BeginCheckout(ctx, testSession)
	require.NoError(t, err)
	require.NotEmpty(t, key)

	snapshot.Items[0].Quantity = 42
	require.NoError(t, store.FinishCheckout(ctx, testSession, OutcomeRollback))

	cart, err := store.Get(ctx, testSession)
	require.NoError(t, err)
	assert.Equal(t, 2, cart.Items[0].Quantity)
}

func TestCartStore_KeyLineage(t *testing.T) {
	store := newTestStore()
	seedCart(t, store)
	ctx := context.Background()

	_, key1, err := store.BeginCheckout(ctx, testSession)
	require.NoError(t, err)
	require.NoError(t, store.FinishCheckout(ctx, testSession, OutcomeRollback))

	// Same cart state, new attempt: different key.
	_, key2, err := store.BeginCheckout(ctx, testSession)
	require.NoError(t, err)
	require.NoError(t, store.FinishCheckout(ctx, testSession, OutcomeRollback))
	assert.NotEqual(t, key1, key2)

	// Edited cart: different version component.
	_, err = store.AddItem(ctx, testSession, domain.Product{ID: "p3", Price: decimal.NewFromInt(2)}, 1)
	require.NoError(t, err)
	_, key3, err := store.BeginCheckout(ctx, testSession)
	require.NoError(t, err)
	assert.NotEqual(t, key2, key3)
}

func TestCartStore_FinishCheckout_WithoutBeginIsConflict(t *testing.T) {
	store := newTestStore()
	seedCart(t, store)

	err := store.FinishCheckout(context.Background(), testSession, OutcomeRollback)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestCartStore_MirrorWriteThrough(t *testing.T) {
	repo := new(mockCartRepo)
	repo.On("Get", mock.Anything, testSession).Return(nil, apperrors.NotFound("cart", testSession)).Once()
	repo.On("Save", mock.Anything, mock.Anything).Return(nil)

	store := NewCartStore(repo, nil, newTestLogger())
	_, err := store.AddItem(context.Background(), testSession, domain.Product{
		ID: "p1", Price: decimal.NewFromInt(5),
	}, 1)
	require.NoError(t, err)

	repo.AssertCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestCartStore_MirrorFailureDoesNotBlockMutation(t *testing.T) {
	repo := new(mockCartRepo)
	repo.On("Get", mock.Anything, testSession).Return(nil, apperrors.NotFound("cart", testSession)).Once()
	repo.On("Save", mock.Anything, mock.Anything).Return(assert.AnError)

	store := NewCartStore(repo, nil, newTestLogger())
	cart, err := store.AddItem(context.Background(), testSession, domain.Product{
		ID: "p1", Price: decimal.NewFromInt(5),
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, cart.ItemCount())
}

func TestCartStore_HydratesFromMirror(t *testing.T) {
	persisted := domain.NewCart(testSession)
	persisted.AddItem(domain.Product{ID: "p1", Price: decimal.NewFromInt(4)}, 2)

	repo := new(mockCartRepo)
	repo.On("Get", mock.Anything, testSession).Return(persisted, nil).Once()

	store := NewCartStore(repo, nil, newTestLogger())
	cart, err := store.Get(context.Background(), testSession)
	require.NoError(t, err)
	assert.Equal(t, 2, cart.ItemCount())

	// Hydration happens once per process, not per read.
	_, err = store.Get(context.Background(), testSession)
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "Get", 1)
}
