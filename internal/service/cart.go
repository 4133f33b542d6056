// Package service implements the checkout business logic: the in-memory
// cart store with its per-session locking, the discount engine, and the
// saga orchestrator that coordinates inventory, payment, and order
// persistence.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	apperrors "github.com/harborline/checkout/pkg/errors"

	"github.com/harborline/checkout/internal/domain"
	"github.com/harborline/checkout/internal/event"
	"github.com/harborline/checkout/internal/repository"
)

// Checkout outcome constants passed to FinishCheckout.
const (
	// OutcomeCommit clears the cart and releases the lock.
	OutcomeCommit = "commit"
	// OutcomeRollback releases the lock and leaves the cart intact.
	OutcomeRollback = "rollback"
	// OutcomeManual freezes the cart permanently pending operator action.
	OutcomeManual = "manual"
)

// sessionCart pairs a cart with its session lock and attempt counter. All
// access to the cart goes through mu; the store-level mutex only guards the
// session map itself.
type sessionCart struct {
	mu               sync.Mutex
	cart             *domain.Cart
	attempts         uint64
	checkoutInFlight bool
}

// CartStore holds the live carts, one per session, and serializes all
// mutations per session. Cart state is authoritative in memory; the
// repository is a best-effort write-through mirror used to rehydrate carts
// after a restart.
type CartStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionCart

	repo     repository.CartRepository
	producer *event.Producer
	logger   *slog.Logger
}

// NewCartStore creates a cart store. The repository and producer may be nil;
// persistence and events are then skipped.
func NewCartStore(repo repository.CartRepository, producer *event.Producer, logger *slog.Logger) *CartStore {
	return &CartStore{
		sessions: make(map[string]*sessionCart),
		repo:     repo,
		producer: producer,
		logger:   logger,
	}
}

// session returns the sessionCart for the given ID, creating it on first
// access. A newly created session is hydrated from the mirror if a cart was
// persisted there before a restart.
func (s *CartStore) session(ctx context.Context, sessionID string) *sessionCart {
	s.mu.Lock()
	sc, ok := s.sessions[sessionID]
	if !ok {
		sc = &sessionCart{cart: domain.NewCart(sessionID)}
		s.sessions[sessionID] = sc
	}
	s.mu.Unlock()

	if !ok && s.repo != nil {
		sc.mu.Lock()
		if cart, err := s.repo.Get(ctx, sessionID); err == nil {
			sc.cart = cart
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "cart mirror read failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
		sc.mu.Unlock()
	}
	return sc
}

// mirror persists the cart to the repository and publishes a cart.updated
// event. Both are best effort; the in-memory cart is the source of truth.
func (s *CartStore) mirror(ctx context.Context, cart *domain.Cart) {
	if s.repo != nil {
		if err := s.repo.Save(ctx, cart); err != nil {
			s.logger.WarnContext(ctx, "cart mirror write failed",
				slog.String("session_id", cart.SessionID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.producer != nil {
		if err := s.producer.PublishCartUpdated(ctx, cart); err != nil {
			s.logger.WarnContext(ctx, "cart.updated publish failed",
				slog.String("session_id", cart.SessionID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// AddItem adds a quantity of the product to the session's cart, merging with
// an existing line for the same product. Returns a copy of the updated cart.
func (s *CartStore) AddItem(ctx context.Context, sessionID string, product domain.Product, quantity int) (*domain.Cart, error) {
	if product.ID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if product.Price.IsNegative() {
		return nil, apperrors.InvalidInput("product price must not be negative")
	}
	if quantity <= 0 {
		return nil, apperrors.InvalidQuantity(quantity)
	}

	sc := s.session(ctx, sessionID)
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.cart.IsFrozen() {
		return nil, apperrors.CartFrozen(sessionID)
	}
	sc.cart.AddItem(product, quantity)
	snapshot := sc.cart.Copy()
	s.mirror(ctx, snapshot)
	return snapshot, nil
}

// RemoveItem removes the product's line from the cart. Removing a product
// that is not in the cart is a no-op and not an error.
func (s *CartStore) RemoveItem(ctx context.Context, sessionID, productID string) (*domain.Cart, error) {
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	sc := s.session(ctx, sessionID)
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.cart.IsFrozen() {
		return nil, apperrors.CartFrozen(sessionID)
	}
	removed := sc.cart.RemoveItem(productID)
	snapshot := sc.cart.Copy()
	if removed {
		s.mirror(ctx, snapshot)
	}
	return snapshot, nil
}

// SetDiscount attaches an already-validated discount to the cart, replacing
// any previous one.
func (s *CartStore) SetDiscount(ctx context.Context, sessionID string, discount domain.Discount) (*domain.Cart, error) {
	sc := s.session(ctx, sessionID)
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.cart.IsFrozen() {
		return nil, apperrors.CartFrozen(sessionID)
	}
	sc.cart.SetDiscount(discount)
	snapshot := sc.cart.Copy()
	s.mirror(ctx, snapshot)
	return snapshot, nil
}

// Get returns a copy of the session's cart. A session that has never added
// an item gets an empty cart.
func (s *CartStore) Get(ctx context.Context, sessionID string) (*domain.Cart, error) {
	sc := s.session(ctx, sessionID)
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.cart.Copy(), nil
}

// BeginCheckout freezes the cart for a checkout attempt and returns an
// immutable snapshot plus the attempt's idempotency key.
//
// An empty cart is returned un-frozen with an empty key: the caller reports
// the empty-cart failure without ever holding the checkout lock, so no
// FinishCheckout is owed. A cart under manual freeze returns ErrCartFrozen;
// a cart with a checkout already in flight returns ErrCheckoutInFlight.
func (s *CartStore) BeginCheckout(ctx context.Context, sessionID string) (*domain.Cart, string, error) {
	sc := s.session(ctx, sessionID)
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.cart.Freeze == domain.FreezeManual {
		return nil, "", apperrors.CartFrozen(sessionID)
	}
	if sc.checkoutInFlight {
		return nil, "", apperrors.CheckoutInProgress(sessionID)
	}
	if sc.cart.IsEmpty() {
		return sc.cart.Copy(), "", nil
	}

	sc.attempts++
	sc.checkoutInFlight = true
	key := domain.IdempotencyKey(sessionID, sc.cart.Version, sc.attempts)
	// The freeze is bookkeeping, not a content change: the version stays
	// put so the idempotency key derived above matches the snapshot.
	sc.cart.Freeze = domain.FreezeCheckout
	return sc.cart.Copy(), key, nil
}

// FinishCheckout releases the checkout lock taken by BeginCheckout and
// applies the terminal outcome: commit clears the cart, rollback leaves it
// intact, manual freezes it permanently.
func (s *CartStore) FinishCheckout(ctx context.Context, sessionID, outcome string) error {
	sc := s.session(ctx, sessionID)
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if !sc.checkoutInFlight {
		return apperrors.Conflict("no checkout in flight for session " + sessionID)
	}
	sc.checkoutInFlight = false

	switch outcome {
	case OutcomeCommit:
		sc.cart.Clear()
		sc.cart.Freeze = domain.FreezeNone
		s.mirror(ctx, sc.cart.Copy())
	case OutcomeRollback:
		sc.cart.Freeze = domain.FreezeNone
	case OutcomeManual:
		sc.cart.Freeze = domain.FreezeManual
		s.mirror(ctx, sc.cart.Copy())
	default:
		sc.checkoutInFlight = true
		return apperrors.InvalidInput("unknown checkout outcome " + outcome)
	}
	return nil
}
