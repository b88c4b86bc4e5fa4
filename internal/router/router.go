package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"                             // import the Echo web framework to handle routing
	"github.com/prometheus/client_golang/prometheus/promhttp" // metrics exposition

	"github.com/iliyamo/event-ticketing/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/event-ticketing/internal/middleware" // JWT + role middlewares
	"github.com/iliyamo/event-ticketing/internal/model"      // role names
)

// RegisterRoutes registers operational routes that do not require
// authentication: liveness, readiness and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, ready handler.Pinger) {
	// Liveness only proves the process answers.
	e.GET("/healthz", handler.Health)
	// Readiness also probes the store.
	e.GET("/readyz", handler.Ready(ready))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterPublic registers unauthenticated endpoints.  Tier availability is
// public so guests can check stock before signing in.  The payment
// provider calls the callback without a buyer token.
func RegisterPublic(e *echo.Echo, t *handler.TierHandler, p *handler.PaymentHandler) {
	e.GET("/v1/tiers/:id", t.GetTier)
	e.POST("/v1/payments/callback", p.Callback)
}

// RegisterMockGateway exposes the mock provider's payment page.  Paying
// settles an order, so the page takes the same token and ownership checks
// as /v1/orders/:id/pay.
func RegisterMockGateway(e *echo.Echo, p *handler.PaymentHandler, jwtSecret string) {
	e.POST("/mock-pay/:ref", p.MockPay,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCustomer, model.RoleAdmin),
	)
}
