package http

import (
	"log/slog"
	"net/http"

	"github.com/harborline/checkout/pkg/httputil"
	"github.com/harborline/checkout/pkg/middleware"

	"github.com/harborline/checkout/internal/domain"
	"github.com/harborline/checkout/internal/service"
)

// CheckoutHandler handles HTTP requests for the checkout endpoint.
type CheckoutHandler struct {
	orchestrator *service.Orchestrator
	logger       *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(orchestrator *service.Orchestrator, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// failureStatus maps a checkout failure kind to its HTTP status.
func failureStatus(kind string) int {
	switch kind {
	case domain.FailureEmptyCart:
		return http.StatusBadRequest
	case domain.FailureCheckoutInProgress,
		domain.FailureInsufficientStock,
		domain.FailureStockCommitFailed:
		return http.StatusConflict
	case domain.FailurePaymentDeclined:
		return http.StatusUnprocessableEntity
	case domain.FailurePaymentTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ProcessCheckout handles POST /api/v1/checkout
// @Summary Run the checkout saga
// @Description Verifies inventory, charges payment, and commits the stock decrement for the session's cart. Failures are reported with a discriminated failure kind.
// @Tags checkout
// @Produce json
// @Param X-Session-ID header string true "Session identifier"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Failure 504 {object} map[string]interface{}
// @Router /api/v1/checkout [post]
func (h *CheckoutHandler) ProcessCheckout(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())

	result, err := h.orchestrator.ProcessCheckout(r.Context(), sessionID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if !result.Success {
		httputil.WriteJSON(w, failureStatus(result.FailureKind), httputil.Response{Data: result})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}
