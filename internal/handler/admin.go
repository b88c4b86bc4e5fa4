package handler

import (
    "net/http" // HTTP status codes
    "strconv"  // paging query parameters
    "time"     // sweep reference time

    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/iliyamo/event-ticketing/internal/service" // lifecycle services
)

// AdminHandler exposes staff operations: venue check-in, status overrides,
// refunds, on-demand sweeps, mock payment failures and reporting.  Routes
// are guarded by RequireRole("ADMIN").
type AdminHandler struct {
    Orders     *service.OrderService
    Payments   *service.PaymentService
    Reconciler *service.Reconciler
    Now        func() time.Time
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(orders *service.OrderService, payments *service.PaymentService, rec *service.Reconciler) *AdminHandler {
    if orders == nil || payments == nil || rec == nil {
        panic("nil service passed to NewAdminHandler")
    }
    return &AdminHandler{
        Orders:     orders,
        Payments:   payments,
        Reconciler: rec,
        Now:        func() time.Time { return time.Now().UTC() },
    }
}

type checkInRequest struct {
    Code string `json:"code" validate:"required,max=32"`
}

// CheckIn handles POST /v1/admin/checkin.
func (h *AdminHandler) CheckIn(c echo.Context) error {
    var body checkInRequest
    if err := bind(c, &body); err != nil {
        return writeError(c, err)
    }
    o, err := h.Orders.CheckIn(c.Request().Context(), body.Code)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, o)
}

// LookupCheckIn handles GET /v1/admin/checkin/:code so staff can inspect a
// ticket before redeeming it.
func (h *AdminHandler) LookupCheckIn(c echo.Context) error {
    o, err := h.Orders.GetByCheckInCode(c.Request().Context(), c.Param("code"))
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, o)
}

type overrideRequest struct {
    Status string `json:"status" validate:"required"`
}

// OverrideStatus handles PATCH /v1/admin/orders/:id/status.  It does not
// adjust stock; see OrderService.OverrideStatus.
func (h *AdminHandler) OverrideStatus(c echo.Context) error {
    id, err := parseID(c, "id")
    if err != nil {
        return writeError(c, err)
    }
    var body overrideRequest
    if err := bind(c, &body); err != nil {
        return writeError(c, err)
    }
    o, err := h.Orders.OverrideStatus(c.Request().Context(), id, body.Status)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, o)
}

// Refund handles POST /v1/admin/orders/:id/refund.
func (h *AdminHandler) Refund(c echo.Context) error {
    id, err := parseID(c, "id")
    if err != nil {
        return writeError(c, err)
    }
    o, err := h.Orders.Refund(c.Request().Context(), id)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, o)
}

// Sweep handles POST /v1/admin/sweep and runs the reconciler immediately.
func (h *AdminHandler) Sweep(c echo.Context) error {
    res, err := h.Reconciler.Sweep(c.Request().Context(), h.Now())
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, res)
}

type failRequest struct {
    Reason string `json:"reason" validate:"max=255"`
}

// FailPayment handles POST /v1/admin/orders/:id/fail-payment on the mock
// provider.
func (h *AdminHandler) FailPayment(c echo.Context) error {
    id, err := parseID(c, "id")
    if err != nil {
        return writeError(c, err)
    }
    var body failRequest
    if c.Request().ContentLength != 0 {
        if err := bind(c, &body); err != nil {
            return writeError(c, err)
        }
    }
    p, err := h.Payments.SimulateFailure(c.Request().Context(), id, body.Reason)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, p)
}

// queryInt reads an optional integer query parameter.
func queryInt(c echo.Context, name string) (int, error) {
    raw := c.QueryParam(name)
    if raw == "" {
        return 0, nil
    }
    n, err := strconv.Atoi(raw)
    if err != nil {
        return 0, errBadRequest
    }
    return n, nil
}

// ListOrders handles GET /v1/admin/orders?status=PAID&limit=50&offset=0.
func (h *AdminHandler) ListOrders(c echo.Context) error {
    limit, err := queryInt(c, "limit")
    if err != nil {
        return writeError(c, err)
    }
    offset, err := queryInt(c, "offset")
    if err != nil {
        return writeError(c, err)
    }
    page, err := h.Orders.ListOrders(c.Request().Context(), c.QueryParam("status"), limit, offset)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, page)
}

// Stats handles GET /v1/admin/stats, the order and payment summary.
func (h *AdminHandler) Stats(c echo.Context) error {
    st, err := h.Orders.Stats(c.Request().Context())
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, st)
}
