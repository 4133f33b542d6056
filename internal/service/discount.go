package service

import (
	"context"
	"log/slog"

	apperrors "github.com/harborline/checkout/pkg/errors"

	"github.com/harborline/checkout/internal/domain"
	"github.com/harborline/checkout/internal/provider"
)

// DiscountEngine validates discount codes against the registry and applies
// them to carts. Resolution happens outside the session lock; only the final
// SetDiscount runs under it.
type DiscountEngine struct {
	registry provider.DiscountRegistry
	carts    *CartStore
	logger   *slog.Logger
}

// NewDiscountEngine creates a discount engine.
func NewDiscountEngine(registry provider.DiscountRegistry, carts *CartStore, logger *slog.Logger) *DiscountEngine {
	return &DiscountEngine{
		registry: registry,
		carts:    carts,
		logger:   logger,
	}
}

// Apply resolves the code and, if valid, attaches the discount to the
// session's cart, replacing any previous one. An invalid code leaves the
// cart's existing discount untouched.
func (e *DiscountEngine) Apply(ctx context.Context, sessionID, code string) (*domain.Cart, error) {
	if code == "" {
		return nil, apperrors.InvalidDiscountCode(code)
	}

	discount, err := e.registry.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	if !discount.ValidPercentage() {
		e.logger.WarnContext(ctx, "registry returned out-of-range discount percentage",
			slog.String("code", code),
			slog.String("percentage", discount.Percentage.String()),
		)
		return nil, apperrors.InvalidDiscountCode(code)
	}

	cart, err := e.carts.SetDiscount(ctx, sessionID, *discount)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "discount applied",
		slog.String("session_id", sessionID),
		slog.String("code", code),
		slog.String("percentage", discount.Percentage.String()),
	)
	return cart, nil
}
