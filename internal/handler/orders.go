package handler

import (
    "net/http" // HTTP status codes

    "github.com/labstack/echo/v4"    // Echo web framework
    "github.com/shopspring/decimal" // money in request bodies

    "github.com/iliyamo/event-ticketing/internal/apperr"  // error taxonomy for ownership checks
    "github.com/iliyamo/event-ticketing/internal/model"   // order type
    "github.com/iliyamo/event-ticketing/internal/service" // booking and lifecycle services
    "github.com/iliyamo/event-ticketing/internal/utils"   // QR rendering
)

// OrderHandler exposes reservation and order endpoints to buyers.  All
// methods assume JWT authentication already ran; a buyer only ever sees
// their own orders while ADMIN callers see every order.
type OrderHandler struct {
    Booking *service.BookingService
    Orders  *service.OrderService
}

// NewOrderHandler constructs an OrderHandler.  Both services are required.
func NewOrderHandler(booking *service.BookingService, orders *service.OrderService) *OrderHandler {
    if booking == nil || orders == nil {
        panic("nil service passed to NewOrderHandler")
    }
    return &OrderHandler{Booking: booking, Orders: orders}
}

type reserveRequest struct {
    TicketTierID   uint64           `json:"ticket_tier_id" validate:"required"`
    Quantity       int              `json:"quantity"`
    PromoCode      string           `json:"promo_code" validate:"max=64"`
    Subtotal       *decimal.Decimal `json:"subtotal"`
    DiscountAmount *decimal.Decimal `json:"discount_amount"`
}

// Reserve handles POST /v1/orders.  On success it returns 201 with the
// PENDING order; the buyer must pay before expires_at.
func (h *OrderHandler) Reserve(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body reserveRequest
    if err := bind(c, &body); err != nil {
        return writeError(c, err)
    }
    order, err := h.Booking.Reserve(c.Request().Context(), service.ReserveRequest{
        UserID:         userID,
        TicketTierID:   body.TicketTierID,
        Quantity:       body.Quantity,
        PromoCode:      body.PromoCode,
        Subtotal:       body.Subtotal,
        DiscountAmount: body.DiscountAmount,
    })
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, order)
}

// ownedOrder loads the order named by :id and hides it from callers that
// neither own it nor are admins.
func (h *OrderHandler) ownedOrder(c echo.Context) (*model.Order, error) {
    id, err := parseID(c, "id")
    if err != nil {
        return nil, err
    }
    return h.ownedOrderByID(c, id)
}

// ownedOrderByID loads order id for the caller.  Orders of other buyers
// are reported as missing unless the caller is an admin.
func (h *OrderHandler) ownedOrderByID(c echo.Context, id uint64) (*model.Order, error) {
    userID, err := getUserID(c)
    if err != nil {
        return nil, apperr.NotFound(apperr.CodeOrderNotFound, "order not found")
    }
    o, err := h.Orders.Get(c.Request().Context(), id)
    if err != nil {
        return nil, err
    }
    if o.UserID != userID && !isAdmin(c) {
        return nil, apperr.NotFound(apperr.CodeOrderNotFound, "order %d not found", id)
    }
    return o, nil
}

// GetOrder handles GET /v1/orders/:id.
func (h *OrderHandler) GetOrder(c echo.Context) error {
    o, err := h.ownedOrder(c)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, o)
}

// ListMyOrders handles GET /v1/my-orders?status=PAID.  The status filter
// is optional.
func (h *OrderHandler) ListMyOrders(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    orders, err := h.Orders.ListByUser(c.Request().Context(), userID, c.QueryParam("status"))
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"orders": orders, "count": len(orders)})
}

// Cancel handles POST /v1/orders/:id/cancel.
func (h *OrderHandler) Cancel(c echo.Context) error {
    o, err := h.ownedOrder(c)
    if err != nil {
        return writeError(c, err)
    }
    cancelled, err := h.Orders.Cancel(c.Request().Context(), o.ID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, cancelled)
}

// QR handles GET /v1/orders/:id/qr and returns the check-in code as a PNG
// QR image.  Only PAID orders have a redeemable ticket.
func (h *OrderHandler) QR(c echo.Context) error {
    o, err := h.ownedOrder(c)
    if err != nil {
        return writeError(c, err)
    }
    if o.Status != model.OrderPaid && o.Status != model.OrderUsed {
        return writeError(c, apperr.Invalid(apperr.CodeOrderNotPaid, "order %d is %s", o.ID, o.Status))
    }
    png, err := utils.CheckInQR(o.CheckInCode, 256)
    if err != nil {
        return writeError(c, err)
    }
    return c.Blob(http.StatusOK, "image/png", png)
}

// TierHandler serves public tier availability.
type TierHandler struct {
    Booking *service.BookingService
}

// GetTier handles GET /v1/tiers/:id.
func (h *TierHandler) GetTier(c echo.Context) error {
    id, err := parseID(c, "id")
    if err != nil {
        return writeError(c, err)
    }
    t, err := h.Booking.Tier(c.Request().Context(), id)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, t)
}
