package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harborline/checkout/internal/domain"
	pkgkafka "github.com/harborline/checkout/pkg/kafka"
)

// Kafka topic constants for checkout domain events.
const (
	TopicCheckoutCompleted          = "harborline.checkout.completed"
	TopicCheckoutFailed             = "harborline.checkout.failed"
	TopicCheckoutCompensationFailed = "harborline.checkout.compensation_failed"
	TopicCartUpdated                = "harborline.cart.updated"
)

// Aggregate type constants.
const (
	AggregateTypeCheckout = "checkout"
	AggregateTypeCart     = "cart"
)

// Source identifier for events originating from the checkout service.
const SourceCheckoutService = "checkout-service"

// CheckoutCompletedData is the payload for a checkout.completed event.
type CheckoutCompletedData struct {
	OrderID        string `json:"order_id"`
	SessionID      string `json:"session_id"`
	TransactionID  string `json:"transaction_id"`
	IdempotencyKey string `json:"idempotency_key"`
	TotalMinor     int64  `json:"total_minor"`
	Currency       string `json:"currency"`
	ItemCount      int64  `json:"item_count"`
}

// CheckoutFailedData is the payload for a checkout.failed event.
type CheckoutFailedData struct {
	SessionID      string `json:"session_id"`
	IdempotencyKey string `json:"idempotency_key"`
	FailureKind    string `json:"failure_kind"`
	State          string `json:"state"`
}

// CompensationFailedData is the payload for a checkout.compensation_failed
// event. These require operator intervention: the charge went through but the
// refund did not.
type CompensationFailedData struct {
	SessionID      string `json:"session_id"`
	IdempotencyKey string `json:"idempotency_key"`
	TransactionID  string `json:"transaction_id"`
	TotalMinor     int64  `json:"total_minor"`
	Currency       string `json:"currency"`
}

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	SessionID string `json:"session_id"`
	Version   int64  `json:"version"`
	ItemCount int64  `json:"item_count"`
}

// Producer publishes checkout domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the checkout service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCheckoutCompleted publishes a checkout.completed event.
func (p *Producer) PublishCheckoutCompleted(ctx context.Context, order *domain.Order) error {
	data := CheckoutCompletedData{
		OrderID:        order.ID,
		SessionID:      order.SessionID,
		TransactionID:  order.TransactionID,
		IdempotencyKey: order.IdempotencyKey,
		TotalMinor:     domain.MinorUnits(order.Total),
		Currency:       order.Currency,
		ItemCount:      int64(len(order.Items)),
	}

	event, err := pkgkafka.NewEvent(TopicCheckoutCompleted, order.ID, AggregateTypeCheckout, SourceCheckoutService, data)
	if err != nil {
		return fmt.Errorf("create checkout.completed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCheckoutCompleted, event); err != nil {
		return fmt.Errorf("publish checkout.completed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published checkout.completed event",
		slog.String("order_id", order.ID),
		slog.String("session_id", order.SessionID),
	)

	return nil
}

// PublishCheckoutFailed publishes a checkout.failed event.
func (p *Producer) PublishCheckoutFailed(ctx context.Context, attempt *domain.CheckoutAttempt, failureKind string) error {
	data := CheckoutFailedData{
		SessionID:      attempt.Snapshot.SessionID,
		IdempotencyKey: attempt.IdempotencyKey,
		FailureKind:    failureKind,
		State:          attempt.State,
	}

	event, err := pkgkafka.NewEvent(TopicCheckoutFailed, attempt.Snapshot.SessionID, AggregateTypeCheckout, SourceCheckoutService, data)
	if err != nil {
		return fmt.Errorf("create checkout.failed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCheckoutFailed, event); err != nil {
		return fmt.Errorf("publish checkout.failed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published checkout.failed event",
		slog.String("session_id", attempt.Snapshot.SessionID),
		slog.String("failure_kind", failureKind),
	)

	return nil
}

// PublishCompensationFailed publishes a checkout.compensation_failed event so
// that downstream alerting can page an operator.
func (p *Producer) PublishCompensationFailed(ctx context.Context, attempt *domain.CheckoutAttempt, totalMinor int64, currency string) error {
	data := CompensationFailedData{
		SessionID:      attempt.Snapshot.SessionID,
		IdempotencyKey: attempt.IdempotencyKey,
		TransactionID:  attempt.TransactionID,
		TotalMinor:     totalMinor,
		Currency:       currency,
	}

	event, err := pkgkafka.NewEvent(TopicCheckoutCompensationFailed, attempt.Snapshot.SessionID, AggregateTypeCheckout, SourceCheckoutService, data)
	if err != nil {
		return fmt.Errorf("create checkout.compensation_failed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCheckoutCompensationFailed, event); err != nil {
		return fmt.Errorf("publish checkout.compensation_failed event: %w", err)
	}

	p.logger.WarnContext(ctx, "published checkout.compensation_failed event",
		slog.String("session_id", attempt.Snapshot.SessionID),
		slog.String("transaction_id", attempt.TransactionID),
	)

	return nil
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	data := CartUpdatedData{
		SessionID: cart.SessionID,
		Version:   cart.Version,
		ItemCount: int64(cart.ItemCount()),
	}

	event, err := pkgkafka.NewEvent(TopicCartUpdated, cart.SessionID, AggregateTypeCart, SourceCheckoutService, data)
	if err != nil {
		return fmt.Errorf("create cart.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartUpdated, event); err != nil {
		return fmt.Errorf("publish cart.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("session_id", cart.SessionID),
		slog.Int64("cart_version", cart.Version),
	)

	return nil
}
