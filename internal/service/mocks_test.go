package service

import (
	"context"
	"log/slog"
	"os"

	"github.com/stretchr/testify/mock"

	"github.com/harborline/checkout/internal/domain"
	"github.com/harborline/checkout/internal/provider"
)

// --- Mock Inventory Service ---

type mockInventory struct {
	mock.Mock
}

func (m *mockInventory) CheckAvailability(ctx context.Context, items []provider.StockItem) (map[string]int64, error) {
	args := m.Called(ctx, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *mockInventory) DecrementStock(ctx context.Context, items []provider.StockItem, idempotencyKey string) error {
	args := m.Called(ctx, items, idempotencyKey)
	return args.Error(0)
}

// --- Mock Payment Gateway ---

type mockPayments struct {
	mock.Mock
}

func (m *mockPayments) Charge(ctx context.Context, input provider.ChargeInput) (*provider.ChargeResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.ChargeResult), args.Error(1)
}

func (m *mockPayments) Refund(ctx context.Context, input provider.RefundInput) error {
	args := m.Called(ctx, input)
	return args.Error(0)
}

func (m *mockPayments) ChargeStatus(ctx context.Context, idempotencyKey string) (*provider.ChargeResult, error) {
	args := m.Called(ctx, idempotencyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.ChargeResult), args.Error(1)
}

// --- Mock Discount Registry ---

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) Resolve(ctx context.Context, code string) (*domain.Discount, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Discount), args.Error(1)
}

// --- Mock Order Repository ---

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) Save(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrders) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrders) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrders) ListBySession(ctx context.Context, sessionID string) ([]domain.Order, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}

// --- Mock Cart Repository ---

type mockCartRepo struct {
	mock.Mock
}

func (m *mockCartRepo) Save(ctx context.Context, cart *domain.Cart) error {
	args := m.Called(ctx, cart)
	return args.Error(0)
}

func (m *mockCartRepo) Get(ctx context.Context, sessionID string) (*domain.Cart, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *mockCartRepo) Delete(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}
