package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harborline/checkout/pkg/health"
	"github.com/harborline/checkout/pkg/middleware"

	"github.com/harborline/checkout/internal/repository"
	"github.com/harborline/checkout/internal/service"
)

const serviceName = "checkout"

// RouterConfig carries the router's operational knobs.
type RouterConfig struct {
	CORS       middleware.CORSConfig
	PprofCIDRs []string
}

// NewRouter creates a chi router with all checkout service routes registered.
func NewRouter(
	carts *service.CartStore,
	discounts *service.DiscountEngine,
	orchestrator *service.Orchestrator,
	orders repository.OrderRepository,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))

	// Operational endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	cartHandler := NewCartHandler(carts, discounts, logger)
	checkoutHandler := NewCheckoutHandler(orchestrator, logger)
	orderHandler := NewOrderHandler(orders, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Session())

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Post("/items", cartHandler.AddItem)
			r.Delete("/items/{productId}", cartHandler.RemoveItem)
			r.Post("/discount", cartHandler.ApplyDiscount)
		})

		r.Post("/checkout", checkoutHandler.ProcessCheckout)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", orderHandler.ListOrders)
			r.Get("/{orderId}", orderHandler.GetOrder)
		})
	})

	return r
}
