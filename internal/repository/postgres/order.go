package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/harborline/checkout/internal/domain"
	apperrors "github.com/harborline/checkout/pkg/errors"
)

// DBTX is the subset of pgxpool.Pool the repository needs. pgxmock satisfies
// it too, so tests run against the same code path.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = "id, session_id, items, subtotal, discount_code, total, currency, idempotency_key, transaction_id, created_at"

// Save inserts a committed order.
func (r *OrderRepository) Save(ctx context.Context, o *domain.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshal order items: %w", err)
	}

	query := `
		INSERT INTO orders (id, session_id, items, subtotal, discount_code, total, currency, idempotency_key, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		o.ID,
		o.SessionID,
		itemsJSON,
		o.Subtotal.StringFixed(2),
		o.DiscountCode,
		o.Total.StringFixed(2),
		o.Currency,
		o.IdempotencyKey,
		o.TransactionID,
		o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

// GetByID retrieves an order by its ID.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.scanOrder(ctx, query, "order", id)
}

// GetByIdempotencyKey retrieves an order by the attempt's idempotency key.
func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = $1`
	return r.scanOrder(ctx, query, "order", key)
}

// ListBySession returns all orders for a session, newest first.
func (r *OrderRepository) ListBySession(ctx context.Context, sessionID string) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE session_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, nil
}

func (r *OrderRepository) scanOrder(ctx context.Context, query, resource, arg string) (*domain.Order, error) {
	order, err := scanOrderRow(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(resource, arg)
		}
		return nil, err
	}
	return order, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrderRow(row rowScanner) (*domain.Order, error) {
	var (
		o            domain.Order
		itemsJSON    []byte
		subtotalText string
		totalText    string
	)

	err := row.Scan(
		&o.ID,
		&o.SessionID,
		&itemsJSON,
		&subtotalText,
		&o.DiscountCode,
		&totalText,
		&o.Currency,
		&o.IdempotencyKey,
		&o.TransactionID,
		&o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}

	if o.Subtotal, err = decimal.NewFromString(subtotalText); err != nil {
		return nil, fmt.Errorf("parse order subtotal: %w", err)
	}
	if o.Total, err = decimal.NewFromString(totalText); err != nil {
		return nil, fmt.Errorf("parse order total: %w", err)
	}

	return &o, nil
}
