package repository

import (
	"context"

	"github.com/harborline/checkout/internal/domain"
)

// OrderRepository defines the interface for committed order persistence.
type OrderRepository interface {
	// Save inserts a committed order.
	Save(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// GetByIdempotencyKey retrieves an order by the idempotency key of the
	// attempt that produced it.
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)

	// ListBySession returns all orders committed for a session, newest first.
	ListBySession(ctx context.Context, sessionID string) ([]domain.Order, error)
}

// CartRepository defines the interface for the write-through cart mirror.
type CartRepository interface {
	// Save persists the current cart state.
	Save(ctx context.Context, cart *domain.Cart) error

	// Get retrieves a cart by session ID.
	Get(ctx context.Context, sessionID string) (*domain.Cart, error)

	// Delete removes a cart by session ID.
	Delete(ctx context.Context, sessionID string) error
}
