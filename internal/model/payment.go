package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// PaymentStatus is a state of the payment state machine.
type PaymentStatus string

const (
    PaymentPending  PaymentStatus = "PENDING"
    PaymentSuccess  PaymentStatus = "SUCCESS"
    PaymentFailed   PaymentStatus = "FAILED"
    PaymentExpired  PaymentStatus = "EXPIRED"
    PaymentRefunded PaymentStatus = "REFUNDED"
)

// DefaultPaymentMethod is assigned to the placeholder payment created with
// every order.
const DefaultPaymentMethod = "MOCK"

// Payment is the single payment attached to an order.  Amount is fixed at
// creation to the order total.
type Payment struct {
    ID         uint64          `json:"id"`
    OrderID    uint64          `json:"order_id"`
    Method     string          `json:"method"`
    Amount     decimal.Decimal `json:"amount"`
    Status     PaymentStatus   `json:"status"`
    GatewayRef string          `json:"gateway_ref,omitempty"`
    PaymentURL string          `json:"payment_url,omitempty"`
    Notes      string          `json:"notes,omitempty"`
    ExpiresAt  time.Time       `json:"expires_at"`
    PaidAt     *time.Time      `json:"paid_at,omitempty"`
    CreatedAt  time.Time       `json:"created_at"`
    UpdatedAt  time.Time       `json:"updated_at"`
}
