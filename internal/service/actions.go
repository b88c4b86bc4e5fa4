package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/event-ticketing/internal/apperr"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/notify"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// effects collects what a transaction changed so that cache, metrics and
// notifications can follow once it committed.
type effects struct {
	tiers         []uint64
	released      []release
	transitions   []transition
	notifications []notify.Notification
}

type release struct {
	tierID uint64
	units  int
}

type transition struct {
	from, to model.OrderStatus
}

func (fx *effects) notify(n notify.Notification) {
	fx.notifications = append(fx.notifications, n)
}

// action is one named compensating step of a transition.  Steps of a
// transition run in list order inside the same transaction; the first
// failure aborts the transaction and nothing is applied.
type action struct {
	name string
	run  func(ctx context.Context, tx repository.Tx, fx *effects) error
}

func runActions(ctx context.Context, tx repository.Tx, log *slog.Logger, orderID uint64, fx *effects, actions ...action) error {
	for _, a := range actions {
		if err := a.run(ctx, tx, fx); err != nil {
			return fmt.Errorf("%s: %w", a.name, err)
		}
		log.Debug("order action applied", "order_id", orderID, "action", a.name)
	}
	return nil
}

// restoreStock returns the order's units to its tier and reopens it.
// Locking the tier after the order keeps the order -> tier -> payment
// lock order.
func restoreStock(o *model.Order) action {
	return action{
		name: "restore_stock",
		run: func(ctx context.Context, tx repository.Tx, fx *effects) error {
			tier, err := tx.LockTier(ctx, o.TicketTierID)
			if err != nil {
				return storeErr(err, apperr.CodeTierNotFound)
			}
			tier.Restore(o.Quantity)
			if err := tx.UpdateTierStock(ctx, tier); err != nil {
				return storeErr(err, apperr.CodeTierNotFound)
			}
			fx.tiers = append(fx.tiers, tier.ID)
			fx.released = append(fx.released, release{tierID: tier.ID, units: o.Quantity})
			return nil
		},
	}
}

// movePayment moves the order's payment from one of the from statuses to
// to.  A payment in any other status is left untouched; a missing payment
// is an error because every order is created with one.
func movePayment(o *model.Order, to model.PaymentStatus, notes string, now time.Time, from ...model.PaymentStatus) action {
	return action{
		name: "payment_" + string(to),
		run: func(ctx context.Context, tx repository.Tx, _ *effects) error {
			p, err := tx.LockPaymentByOrder(ctx, o.ID)
			if err != nil {
				return storeErr(err, apperr.CodePaymentNotFound)
			}
			match := false
			for _, st := range from {
				if p.Status == st {
					match = true
					break
				}
			}
			if !match {
				return nil
			}
			p.Status = to
			p.UpdatedAt = now
			if notes != "" {
				p.Notes = notes
			}
			return storeErr(tx.UpdatePayment(ctx, p), apperr.CodePaymentNotFound)
		},
	}
}

// setStatus writes the order's new status.  The caller already holds the
// order lock.
func setStatus(o *model.Order, to model.OrderStatus) action {
	return action{
		name: "order_" + string(to),
		run: func(ctx context.Context, tx repository.Tx, fx *effects) error {
			from := o.Status
			o.Status = to
			if err := tx.UpdateOrderStatus(ctx, o); err != nil {
				return storeErr(err, apperr.CodeOrderNotFound)
			}
			fx.transitions = append(fx.transitions, transition{from: from, to: to})
			return nil
		},
	}
}
