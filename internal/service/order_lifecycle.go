package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/iliyamo/event-ticketing/internal/apperr"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/notify"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// OrderService drives orders through cancellation, check-in, refund and
// administrative overrides.
type OrderService struct {
	core
}

func NewOrderService(d Deps) *OrderService {
	return &OrderService{core: newCore(d)}
}

// Cancel voids a PENDING order: its units go back to the tier, its
// payment is failed so nothing is left collectable, and the order becomes
// CANCELLED.
func (s *OrderService) Cancel(ctx context.Context, orderID uint64) (*model.Order, error) {
	now := s.now()
	fx := &effects{}
	var order *model.Order
	err := s.withinTx(ctx, "cancel", func(ctx context.Context, tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return storeErr(err, apperr.CodeOrderNotFound)
		}
		if o.Status != model.OrderPending {
			return apperr.Invalid(apperr.CodeOrderNotPending, "order %d is %s and cannot be cancelled", o.ID, o.Status)
		}
		if err := runActions(ctx, tx, s.Log, o.ID, fx,
			restoreStock(o),
			movePayment(o, model.PaymentFailed, "cancelled by buyer", now, model.PaymentPending),
			setStatus(o, model.OrderCancelled),
		); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	fx.notify(notify.Notification{
		UserID:   order.UserID,
		OrderID:  order.ID,
		Title:    "Booking cancelled",
		Message:  fmt.Sprintf("Your order for %s was cancelled and the tickets were released.", eventLabel(order)),
		Category: notify.CategoryBooking,
		Link:     orderLink(order.ID),
	})
	s.afterCommit(ctx, fx)
	s.Log.Info("order cancelled", "order_id", order.ID, "tier_id", order.TicketTierID, "quantity", order.Quantity)
	return order, nil
}

// CheckIn redeems the order that owns code.  Only PAID orders can be
// redeemed and each code is redeemed at most once.
func (s *OrderService) CheckIn(ctx context.Context, code string) (*model.Order, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.NotFound(apperr.CodeOrderNotFound, "empty check-in code")
	}
	now := s.now()
	fx := &effects{}
	var order *model.Order
	err := s.withinTx(ctx, "check_in", func(ctx context.Context, tx repository.Tx) error {
		o, err := tx.LockOrderByCheckInCode(ctx, code)
		if err != nil {
			return storeErr(err, apperr.CodeOrderNotFound)
		}
		if o.UsedAt != nil || o.Status == model.OrderUsed {
			return apperr.Invalid(apperr.CodeAlreadyUsed, "ticket %s was already used", code)
		}
		if o.Status != model.OrderPaid {
			return apperr.Invalid(apperr.CodeOrderNotPaid, "order %d is %s, not PAID", o.ID, o.Status)
		}
		o.UsedAt = &now
		if err := runActions(ctx, tx, s.Log, o.ID, fx, setStatus(o, model.OrderUsed)); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, fx)
	s.Log.Info("ticket checked in", "order_id", order.ID, "user_id", order.UserID)
	return order, nil
}

// Refund reverses a PAID order: the payment becomes REFUNDED, the units go
// back to the tier and the order becomes REFUNDED.  The money movement
// itself happens at the payment provider.
func (s *OrderService) Refund(ctx context.Context, orderID uint64) (*model.Order, error) {
	now := s.now()
	fx := &effects{}
	var order *model.Order
	err := s.withinTx(ctx, "refund", func(ctx context.Context, tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return storeErr(err, apperr.CodeOrderNotFound)
		}
		if o.Status != model.OrderPaid {
			return apperr.Invalid(apperr.CodeOrderNotPaid, "order %d is %s; only PAID orders can be refunded", o.ID, o.Status)
		}
		if err := runActions(ctx, tx, s.Log, o.ID, fx,
			restoreStock(o),
			movePayment(o, model.PaymentRefunded, "refunded", now, model.PaymentSuccess),
			setStatus(o, model.OrderRefunded),
		); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	fx.notify(notify.Notification{
		UserID:   order.UserID,
		OrderID:  order.ID,
		Title:    "Booking refunded",
		Message:  fmt.Sprintf("Your order for %s was refunded.", eventLabel(order)),
		Category: notify.CategoryPayment,
		Link:     orderLink(order.ID),
	})
	s.afterCommit(ctx, fx)
	s.Log.Info("order refunded", "order_id", order.ID, "tier_id", order.TicketTierID, "quantity", order.Quantity)
	return order, nil
}

// OverrideStatus assigns any valid status to an order.  It does not touch
// stock or the payment: moving a PENDING order to CANCELLED this way
// leaks its units until an operator fixes the tier.
func (s *OrderService) OverrideStatus(ctx context.Context, orderID uint64, status string) (*model.Order, error) {
	to, ok := model.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(status)))
	if !ok {
		return nil, apperr.Invalid(apperr.CodeUnknownStatus, "unknown order status %q", status)
	}
	fx := &effects{}
	var order *model.Order
	var from model.OrderStatus
	err := s.withinTx(ctx, "override_status", func(ctx context.Context, tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return storeErr(err, apperr.CodeOrderNotFound)
		}
		from = o.Status
		if err := runActions(ctx, tx, s.Log, o.ID, fx, setStatus(o, to)); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, fx)
	s.Log.Warn("order status overridden", "order_id", order.ID, "from", from, "to", to)
	return order, nil
}

// Get returns one order.
func (s *OrderService) Get(ctx context.Context, orderID uint64) (*model.Order, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, storeErr(err, apperr.CodeOrderNotFound)
	}
	return o, nil
}

// GetByCheckInCode returns the order that owns code.
func (s *OrderService) GetByCheckInCode(ctx context.Context, code string) (*model.Order, error) {
	o, err := s.Store.GetOrderByCheckInCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, storeErr(err, apperr.CodeOrderNotFound)
	}
	return o, nil
}

// ListByUser returns a user's orders, newest first, optionally filtered by
// status.  An empty status lists every order.
func (s *OrderService) ListByUser(ctx context.Context, userID uint64, status string) ([]model.Order, error) {
	var st model.OrderStatus
	if status = strings.TrimSpace(status); status != "" {
		var ok bool
		if st, ok = model.ParseOrderStatus(strings.ToUpper(status)); !ok {
			return nil, apperr.Invalid(apperr.CodeUnknownStatus, "unknown order status %q", status)
		}
	}
	orders, err := s.Store.ListOrdersByUser(ctx, userID, st)
	if err != nil {
		return nil, storeErr(err, apperr.CodeUserNotFound)
	}
	return orders, nil
}
