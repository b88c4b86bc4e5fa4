package router

import (
	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/labstack/echo/v4"
)

// RegisterCustomer registers buyer endpoints under /v1.  All routes require
// a valid JWT.  ADMIN tokens are accepted too so staff can act on behalf
// of a buyer; handlers hide other buyers' orders from CUSTOMER callers.
// The limiter guards only the reserve endpoint, which is the one that
// contends on tier locks.
func RegisterCustomer(e *echo.Echo, o *handler.OrderHandler, p *handler.PaymentHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCustomer, model.RoleAdmin),
	)
	g.POST("/orders", o.Reserve, limiter)
	g.GET("/orders/:id", o.GetOrder)
	g.POST("/orders/:id/cancel", o.Cancel)
	g.GET("/orders/:id/qr", o.QR)
	g.GET("/my-orders", o.ListMyOrders)

	g.POST("/orders/:id/pay", p.Pay)
	g.POST("/orders/:id/checkout", p.Checkout)
	g.GET("/orders/:id/payment", p.GetPayment)
}
