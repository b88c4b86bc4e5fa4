// Package notify delivers user-facing notifications after booking,
// payment and cancellation events.  Delivery is best effort: failures are
// logged and counted but never reach the operation that produced them.
package notify

import (
	"context"
	"time"
)

// Categories used by the lifecycle services.
const (
	CategoryBooking = "BOOKING"
	CategoryPayment = "PAYMENT"
)

// Notification is a message addressed to one user.  It is also the JSON
// payload published on the broker.
type Notification struct {
	UserID    uint64    `json:"user_id"`
	OrderID   uint64    `json:"order_id,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Sink delivers a notification somewhere.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// Notifier is what the services depend on: a non-blocking hand-off.
type Notifier interface {
	Enqueue(n Notification)
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Enqueue(Notification) {}
