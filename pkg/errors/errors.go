package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrInternal          = errors.New("internal error")
	ErrServiceUnavail    = errors.New("service unavailable")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPaymentDeclined   = errors.New("payment declined")
	ErrPaymentTimeout    = errors.New("payment timeout")
	ErrStockCommit       = errors.New("stock commit failed")
	ErrCompensation      = errors.New("compensation failed")
	ErrCheckoutInFlight  = errors.New("checkout already in progress")
	ErrCartFrozen        = errors.New("cart is frozen")
	ErrInvalidDiscount   = errors.New("invalid discount code")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// InvalidQuantity creates a 400 error for a non-positive item quantity.
func InvalidQuantity(quantity int) *AppError {
	return &AppError{
		Code:    "INVALID_QUANTITY",
		Message: fmt.Sprintf("quantity must be a positive integer, got %d", quantity),
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// InvalidDiscountCode creates a 400 error for an unknown or rejected
// discount code. The cart's existing discount is left untouched.
func InvalidDiscountCode(code string) *AppError {
	return &AppError{
		Code:    "INVALID_DISCOUNT_CODE",
		Message: fmt.Sprintf("discount code %q is invalid or unknown", code),
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidDiscount,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// CheckoutInProgress creates a 409 error for a second concurrent checkout
// attempt on the same session.
func CheckoutInProgress(sessionID string) *AppError {
	return &AppError{
		Code:    "CHECKOUT_IN_PROGRESS",
		Message: fmt.Sprintf("a checkout is already in flight for session %s", sessionID),
		Status:  http.StatusConflict,
		Err:     ErrCheckoutInFlight,
	}
}

// CartFrozen creates a 409 error for mutations against a frozen cart.
func CartFrozen(sessionID string) *AppError {
	return &AppError{
		Code:    "CART_FROZEN",
		Message: fmt.Sprintf("cart for session %s is frozen and cannot be modified", sessionID),
		Status:  http.StatusConflict,
		Err:     ErrCartFrozen,
	}
}

// InsufficientStock creates a 409 error for an inventory shortfall.
func InsufficientStock(productID string) *AppError {
	return &AppError{
		Code:    "INSUFFICIENT_STOCK",
		Message: fmt.Sprintf("insufficient stock for product %s", productID),
		Status:  http.StatusConflict,
		Err:     ErrInsufficientStock,
	}
}

// PaymentDeclined creates a 422 error for a declined charge.
func PaymentDeclined(message string) *AppError {
	return &AppError{
		Code:    "PAYMENT_DECLINED",
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrPaymentDeclined,
	}
}

// PaymentTimeout creates a 504 error for a charge whose outcome could not be
// resolved within the timeout budget.
func PaymentTimeout(message string) *AppError {
	return &AppError{
		Code:    "PAYMENT_TIMEOUT",
		Message: message,
		Status:  http.StatusGatewayTimeout,
		Err:     ErrPaymentTimeout,
	}
}

// StockCommitFailed creates a 409 error for a stock decrement failure after a
// successful charge. The charge has been compensated (refunded).
func StockCommitFailed(message string) *AppError {
	return &AppError{
		Code:    "STOCK_COMMIT_FAILED",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrStockCommit,
	}
}

// CompensationFailed creates a 500 error for a refund failure after a stock
// commit failure. The attempt requires manual resolution.
func CompensationFailed(message string) *AppError {
	return &AppError{
		Code:    "COMPENSATION_FAILED",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     ErrCompensation,
	}
}

// ServiceUnavailable creates a 503 error.
func ServiceUnavailable(message string) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     ErrServiceUnavail,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidDiscount):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrStockCommit),
		errors.Is(err, ErrCheckoutInFlight),
		errors.Is(err, ErrCartFrozen):
		return http.StatusConflict
	case errors.Is(err, ErrPaymentDeclined):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrPaymentTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
