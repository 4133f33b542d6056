package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/harborline/checkout/pkg/httputil"
	"github.com/harborline/checkout/pkg/middleware"

	apperrors "github.com/harborline/checkout/pkg/errors"

	"github.com/harborline/checkout/internal/repository"
)

// OrderHandler serves the read side of committed orders.
type OrderHandler struct {
	orders repository.OrderRepository
	logger *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(orders repository.OrderRepository, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// GetOrder handles GET /api/v1/orders/{orderId}
// @Summary Get a committed order
// @Description Returns a committed order by ID. Orders belonging to another session are reported as not found.
// @Tags orders
// @Produce json
// @Param X-Session-ID header string true "Session identifier"
// @Param orderId path string true "Order ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/orders/{orderId} [get]
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	orderID := chi.URLParam(r, "orderId")

	order, err := h.orders.GetByID(r.Context(), orderID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	// Sessions only see their own orders.
	if order.SessionID != sessionID {
		httputil.WriteError(w, r, apperrors.NotFound("order", orderID), h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// ListOrders handles GET /api/v1/orders
// @Summary List the session's committed orders
// @Description Returns all orders committed for the session, newest first.
// @Tags orders
// @Produce json
// @Param X-Session-ID header string true "Session identifier"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/orders [get]
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())

	orders, err := h.orders.ListBySession(r.Context(), sessionID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: orders})
}
