// Package http exposes the cart and checkout endpoints over chi.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/harborline/checkout/pkg/httputil"
	"github.com/harborline/checkout/pkg/middleware"
	"github.com/harborline/checkout/pkg/validator"

	"github.com/harborline/checkout/internal/domain"
	"github.com/harborline/checkout/internal/service"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	carts     *service.CartStore
	discounts *service.DiscountEngine
	logger    *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(carts *service.CartStore, discounts *service.DiscountEngine, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		carts:     carts,
		discounts: discounts,
		logger:    logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding an item to the cart.
type AddItemRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity" validate:"required,gt=0"`
}

// ApplyDiscountRequest is the JSON request body for applying a discount code.
type ApplyDiscountRequest struct {
	Code string `json:"code" validate:"required"`
}

// CartResponse is the cart representation returned by the API, including the
// computed totals.
type CartResponse struct {
	SessionID string            `json:"session_id"`
	Items     []domain.CartItem `json:"items"`
	Discount  *domain.Discount  `json:"discount,omitempty"`
	Version   int64             `json:"version"`
	Frozen    bool              `json:"frozen"`
	Subtotal  string            `json:"subtotal"`
	Total     string            `json:"total"`
}

func newCartResponse(cart *domain.Cart) CartResponse {
	return CartResponse{
		SessionID: cart.SessionID,
		Items:     cart.Items,
		Discount:  cart.Discount,
		Version:   cart.Version,
		Frozen:    cart.IsFrozen(),
		Subtotal:  domain.Total(cart.Items, nil).StringFixed(2),
		Total:     domain.Total(cart.Items, cart.Discount).StringFixed(2),
	}
}

// --- Handlers ---

// AddItem handles POST /api/v1/cart/items
// @Summary Add an item to the cart
// @Description Adds a quantity of a product to the session's cart, merging with an existing line. Requires X-Session-ID header.
// @Tags cart
// @Accept json
// @Produce json
// @Param X-Session-ID header string true "Session identifier"
// @Param request body AddItemRequest true "Item data"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/cart/items [post]
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	product := domain.Product{
		ID:    req.ProductID,
		Name:  req.Name,
		Price: req.Price,
	}
	cart, err := h.carts.AddItem(r.Context(), sessionID, product, req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartResponse(cart)})
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
// @Summary Remove an item from the cart
// @Description Removes the product's line from the cart. Removing an absent product is a no-op.
// @Tags cart
// @Produce json
// @Param X-Session-ID header string true "Session identifier"
// @Param productId path string true "Product identifier"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/cart/items/{productId} [delete]
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	productID := chi.URLParam(r, "productId")

	cart, err := h.carts.RemoveItem(r.Context(), sessionID, productID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartResponse(cart)})
}

// GetCart handles GET /api/v1/cart
// @Summary Get the current cart
// @Description Returns the session's cart with computed subtotal and total.
// @Tags cart
// @Produce json
// @Param X-Session-ID header string true "Session identifier"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/cart [get]
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())

	cart, err := h.carts.Get(r.Context(), sessionID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartResponse(cart)})
}

// ApplyDiscount handles POST /api/v1/cart/discount
// @Summary Apply a discount code
// @Description Validates the code against the discount registry and attaches it to the cart, replacing any previous discount.
// @Tags cart
// @Accept json
// @Produce json
// @Param X-Session-ID header string true "Session identifier"
// @Param request body ApplyDiscountRequest true "Discount code"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/cart/discount [post]
func (h *CartHandler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req ApplyDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cart, err := h.discounts.Apply(r.Context(), sessionID, req.Code)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartResponse(cart)})
}
