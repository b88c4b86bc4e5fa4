package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// OrderStatus is a state of the order state machine.
type OrderStatus string

const (
    OrderPending   OrderStatus = "PENDING"
    OrderPaid      OrderStatus = "PAID"
    OrderUsed      OrderStatus = "USED"
    OrderCancelled OrderStatus = "CANCELLED"
    OrderExpired   OrderStatus = "EXPIRED"
    OrderRefunded  OrderStatus = "REFUNDED"
)

// ParseOrderStatus returns the status named by s and false for unknown names.
func ParseOrderStatus(s string) (OrderStatus, bool) {
    switch st := OrderStatus(s); st {
    case OrderPending, OrderPaid, OrderUsed, OrderCancelled, OrderExpired, OrderRefunded:
        return st, true
    }
    return "", false
}

// Terminal reports whether no public operation may move the order further.
func (s OrderStatus) Terminal() bool {
    switch s {
    case OrderUsed, OrderCancelled, OrderExpired, OrderRefunded:
        return true
    }
    return false
}

// HoldsStock reports whether an order in this status still owns the units
// it debited from its tier.
func (s OrderStatus) HoldsStock() bool {
    return s == OrderPending || s == OrderPaid || s == OrderUsed
}

var orderTransitions = map[OrderStatus][]OrderStatus{
    OrderPending: {OrderPaid, OrderCancelled, OrderExpired},
    OrderPaid:    {OrderUsed, OrderExpired, OrderRefunded},
}

// CanTransition reports whether from -> to is an edge of the order state
// machine.  Administrative overrides do not consult it.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
    for _, next := range orderTransitions[s] {
        if next == to {
            return true
        }
    }
    return false
}

// EventSnapshot is the event/venue display data copied onto an order at
// booking time so that history stays readable after the event changes.
type EventSnapshot struct {
    EventID   uint64 `json:"event_id"`
    EventName string `json:"event_name"`
    EventDate string `json:"event_date"`
    VenueName string `json:"venue_name"`
    ImageURL  string `json:"image_url"`
    TierName  string `json:"tier_name"`
}

// Order is a purchase of Quantity units of one ticket tier.
type Order struct {
    ID             uint64          `json:"id"`
    UserID         uint64          `json:"user_id"`
    TicketTierID   uint64          `json:"ticket_tier_id"`
    Quantity       int             `json:"quantity"`
    UnitPrice      decimal.Decimal `json:"unit_price"`
    TotalPrice     decimal.Decimal `json:"total_price"`
    Subtotal       decimal.Decimal `json:"subtotal"`
    DiscountAmount decimal.Decimal `json:"discount_amount"`
    PromoCode      string          `json:"promo_code,omitempty"`
    Status         OrderStatus     `json:"status"`
    CheckInCode    string          `json:"check_in_code"`
    CreatedAt      time.Time       `json:"created_at"`
    ExpiresAt      time.Time       `json:"expires_at"`
    UsedAt         *time.Time      `json:"used_at,omitempty"`
    Snapshot       EventSnapshot   `json:"event"`
}

// Expired reports whether a pending hold has passed its deadline at now.
func (o *Order) Expired(now time.Time) bool {
    return o.Status == OrderPending && o.ExpiresAt.Before(now)
}
