package router // router defines how HTTP routes are registered for the API

import (
	"github.com/iliyamo/event-ticketing/internal/handler"    // admin handlers
	"github.com/iliyamo/event-ticketing/internal/middleware" // JWT + role middlewares
	"github.com/iliyamo/event-ticketing/internal/model"      // role names
	"github.com/labstack/echo/v4"
)

// RegisterAdmin registers ADMIN-scoped endpoints under /v1/admin.
// All routes require a valid JWT and the ADMIN role.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)

	// ---- Venue entry ----
	g.POST("/checkin", a.CheckIn)
	g.GET("/checkin/:code", a.LookupCheckIn)

	// ---- Order maintenance ----
	g.GET("/orders", a.ListOrders)
	g.PATCH("/orders/:id/status", a.OverrideStatus)
	g.POST("/orders/:id/refund", a.Refund)
	g.POST("/orders/:id/fail-payment", a.FailPayment)

	// ---- Reconciliation ----
	g.POST("/sweep", a.Sweep)

	// ---- Reporting ----
	g.GET("/stats", a.Stats)
}
