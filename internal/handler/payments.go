package handler

import (
    "net/http" // HTTP status codes

    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/iliyamo/event-ticketing/internal/gateway" // external order references
    "github.com/iliyamo/event-ticketing/internal/service" // payment lifecycle
)

// PaymentHandler exposes payment endpoints.  Buyer endpoints reuse the
// order ownership check of OrderHandler; the gateway callback is public
// and authenticated by the provider's own means upstream.
type PaymentHandler struct {
    Orders   *OrderHandler
    Payments *service.PaymentService
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(orders *OrderHandler, payments *service.PaymentService) *PaymentHandler {
    if orders == nil || payments == nil {
        panic("nil dependency passed to NewPaymentHandler")
    }
    return &PaymentHandler{Orders: orders, Payments: payments}
}

type payRequest struct {
    Method string `json:"method" validate:"omitempty,max=32,alphanum"`
}

// Pay handles POST /v1/orders/:id/pay, the instant mock settlement.
func (h *PaymentHandler) Pay(c echo.Context) error {
    o, err := h.Orders.ownedOrder(c)
    if err != nil {
        return writeError(c, err)
    }
    var body payRequest
    if c.Request().ContentLength != 0 {
        if err := bind(c, &body); err != nil {
            return writeError(c, err)
        }
    }
    p, err := h.Payments.Settle(c.Request().Context(), o.ID, body.Method)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, p)
}

// Checkout handles POST /v1/orders/:id/checkout.  It returns the payment
// with the gateway redirect URL the buyer should be sent to.
func (h *PaymentHandler) Checkout(c echo.Context) error {
    o, err := h.Orders.ownedOrder(c)
    if err != nil {
        return writeError(c, err)
    }
    p, err := h.Payments.Checkout(c.Request().Context(), o.ID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, p)
}

// GetPayment handles GET /v1/orders/:id/payment.
func (h *PaymentHandler) GetPayment(c echo.Context) error {
    o, err := h.Orders.ownedOrder(c)
    if err != nil {
        return writeError(c, err)
    }
    p, err := h.Payments.GetPaymentByOrder(c.Request().Context(), o.ID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, p)
}

// callbackRequest is the subset of the provider's notification body the
// engine reads.
type callbackRequest struct {
    OrderID           string `json:"order_id" validate:"required"`
    TransactionID     string `json:"transaction_id"`
    TransactionStatus string `json:"transaction_status" validate:"required"`
}

// Callback handles POST /v1/payments/callback.  Unknown statuses and
// malformed references are answered with 422 so the provider surfaces
// them; everything applied, including redeliveries, is answered with 200.
func (h *PaymentHandler) Callback(c echo.Context) error {
    var body callbackRequest
    if err := bind(c, &body); err != nil {
        return writeError(c, err)
    }
    p, err := h.Payments.ApplyGatewayCallback(c.Request().Context(), service.Callback{
        ExternalOrderRef:     body.OrderID,
        GatewayTransactionID: body.TransactionID,
        StatusToken:          body.TransactionStatus,
    })
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"status": "ok", "payment": p})
}

// MockPay handles POST /mock-pay/:ref, the page the mock gateway redirects
// buyers to.  It settles the order the reference names when the caller
// owns it.  Only registered when the mock gateway is active.
func (h *PaymentHandler) MockPay(c echo.Context) error {
    orderID, err := gateway.ParseExternalRef(c.Param("ref"))
    if err != nil {
        return writeError(c, errBadRequest)
    }
    o, err := h.Orders.ownedOrderByID(c, orderID)
    if err != nil {
        return writeError(c, err)
    }
    p, err := h.Payments.Settle(c.Request().Context(), o.ID, "mock")
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, p)
}
