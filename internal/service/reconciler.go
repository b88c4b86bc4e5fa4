package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/event-ticketing/internal/apperr"
	"github.com/iliyamo/event-ticketing/internal/metrics"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/notify"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// SweepResult summarises one reconciler pass.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	// Skipped counts orders that were no longer expirable once locked,
	// typically because a payment settled them in between.
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Reconciler returns the units of abandoned PENDING orders to inventory.
type Reconciler struct {
	core
}

func NewReconciler(d Deps) *Reconciler {
	return &Reconciler{core: newCore(d)}
}

// Sweep expires every PENDING order whose hold ended before now.  Each
// order is handled in its own transaction; a failure is logged and
// counted and the sweep moves on.  Running Sweep twice with the same now
// changes nothing the second time.
func (r *Reconciler) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult
	var after uint64
	for {
		ids, err := r.Store.ListExpiredPendingOrderIDs(ctx, now, after, r.SweepBatch)
		if err != nil {
			metrics.Sweep(res.Expired, res.Failed, err)
			return res, fmt.Errorf("list expired orders: %w", err)
		}
		for _, id := range ids {
			after = id
			res.Scanned++
			expired, err := r.expire(ctx, id, now)
			switch {
			case err != nil:
				res.Failed++
				r.Log.Error("expire order failed", "order_id", id, "err", err, "retryable", apperr.Retryable(err))
			case expired:
				res.Expired++
			default:
				res.Skipped++
			}
		}
		// A short page is the last one.
		if len(ids) < r.SweepBatch || ctx.Err() != nil {
			break
		}
	}
	metrics.Sweep(res.Expired, res.Failed, nil)
	if res.Scanned > 0 {
		r.Log.Info("expiration sweep finished",
			"scanned", res.Scanned, "expired", res.Expired, "skipped", res.Skipped, "failed", res.Failed)
	}
	return res, nil
}

// expire re-checks the guard under the order lock and applies the
// expiration.  It reports false when the order was no longer expirable.
func (r *Reconciler) expire(ctx context.Context, orderID uint64, now time.Time) (bool, error) {
	fx := &effects{}
	var order *model.Order
	err := r.withinTx(ctx, "expire", func(ctx context.Context, tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return storeErr(err, apperr.CodeOrderNotFound)
		}
		if !o.Expired(now) {
			return nil
		}
		if err := expireActions(ctx, tx, r.Log, o, now, fx); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil || order == nil {
		return false, err
	}
	fx.notify(notify.Notification{
		UserID:   order.UserID,
		OrderID:  order.ID,
		Title:    "Booking expired",
		Message:  fmt.Sprintf("Your order for %s expired because it was not paid in time.", eventLabel(order)),
		Category: notify.CategoryBooking,
		Link:     orderLink(order.ID),
	})
	r.afterCommit(ctx, fx)
	r.Log.Debug("order expired", "order_id", order.ID, "tier_id", order.TicketTierID, "quantity", order.Quantity)
	return true, nil
}

// expireActions moves a PENDING or PAID order to EXPIRED and releases its
// units.  The sweep only selects PENDING orders.
func expireActions(ctx context.Context, tx repository.Tx, log *slog.Logger, o *model.Order, now time.Time, fx *effects) error {
	if o.Status != model.OrderPending && o.Status != model.OrderPaid {
		return apperr.Invalid(apperr.CodeOrderNotEligible, "order %d is %s and cannot expire", o.ID, o.Status)
	}
	return runActions(ctx, tx, log, o.ID, fx,
		restoreStock(o),
		movePayment(o, model.PaymentExpired, "hold expired", now, model.PaymentPending),
		setStatus(o, model.OrderExpired),
	)
}
