package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/iliyamo/event-ticketing/internal/apperr"
	"github.com/iliyamo/event-ticketing/internal/gateway"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/notify"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// Callback is a payment status notification from the gateway.
type Callback struct {
	ExternalOrderRef     string
	GatewayTransactionID string
	StatusToken          string
}

// gatewayStatus maps provider transaction statuses onto payment statuses.
var gatewayStatus = map[string]model.PaymentStatus{
	"capture":    model.PaymentSuccess,
	"settlement": model.PaymentSuccess,
	"pending":    model.PaymentPending,
	"deny":       model.PaymentFailed,
	"cancel":     model.PaymentFailed,
	"expire":     model.PaymentFailed,
	"failure":    model.PaymentFailed,
}

// MapGatewayStatus translates a provider status token.  ok is false for
// tokens outside the table.
func MapGatewayStatus(token string) (model.PaymentStatus, bool) {
	st, ok := gatewayStatus[strings.ToLower(strings.TrimSpace(token))]
	return st, ok
}

// PaymentService settles and fails the payment attached to each order.
type PaymentService struct {
	core
}

func NewPaymentService(d Deps) *PaymentService {
	return &PaymentService{core: newCore(d)}
}

// Settle marks the order's payment SUCCESS and the order PAID.  It is the
// instant path used by the mock provider; the order must still be PENDING,
// which makes settlement and expiry of the same order mutually exclusive.
func (s *PaymentService) Settle(ctx context.Context, orderID uint64, method string) (*model.Payment, error) {
	now := s.now()
	ref := fmt.Sprintf("MOCK-%d-%d", orderID, now.UnixMilli())
	return s.settle(ctx, orderID, strings.ToUpper(strings.TrimSpace(method)), ref, false)
}

// settle applies SUCCESS.  When tolerateDone is set a payment that is
// already SUCCESS is returned unchanged, so a redelivered gateway callback
// is harmless.
func (s *PaymentService) settle(ctx context.Context, orderID uint64, method, ref string, tolerateDone bool) (*model.Payment, error) {
	now := s.now()
	fx := &effects{}
	var order *model.Order
	var payment *model.Payment
	err := s.withinTx(ctx, "settle", func(ctx context.Context, tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return storeErr(err, apperr.CodeOrderNotFound)
		}
		p, err := tx.LockPaymentByOrder(ctx, orderID)
		if err != nil {
			return storeErr(err, apperr.CodePaymentNotFound)
		}
		if tolerateDone && p.Status == model.PaymentSuccess {
			payment = p
			return nil
		}
		if o.Status != model.OrderPending {
			return apperr.Invalid(apperr.CodeOrderNotEligible, "order %d is %s and cannot be paid", o.ID, o.Status)
		}
		if p.Status != model.PaymentPending {
			return apperr.Invalid(apperr.CodePaymentNotPending, "payment for order %d is %s", o.ID, p.Status)
		}
		if method != "" {
			p.Method = method
		}
		p.Status = model.PaymentSuccess
		p.GatewayRef = ref
		p.PaidAt = &now
		p.UpdatedAt = now
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return storeErr(err, apperr.CodePaymentNotFound)
		}
		if err := runActions(ctx, tx, s.Log, o.ID, fx, setStatus(o, model.OrderPaid)); err != nil {
			return err
		}
		order, payment = o, p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if order == nil {
		return payment, nil
	}
	fx.notify(notify.Notification{
		UserID:   order.UserID,
		OrderID:  order.ID,
		Title:    "Payment received",
		Message:  fmt.Sprintf("Payment for %s was received. Your check-in code is %s.", eventLabel(order), order.CheckInCode),
		Category: notify.CategoryPayment,
		Link:     orderLink(order.ID),
	})
	s.afterCommit(ctx, fx)
	s.Log.Info("payment settled", "order_id", order.ID, "payment_id", payment.ID, "method", payment.Method, "ref", payment.GatewayRef)
	return payment, nil
}

// fail moves a PENDING payment to FAILED.  The order stays PENDING and
// keeps its units until it is cancelled or expires.
func (s *PaymentService) fail(ctx context.Context, orderID uint64, reason string, tolerateDone bool) (*model.Payment, error) {
	now := s.now()
	var order *model.Order
	var payment *model.Payment
	err := s.withinTx(ctx, "fail_payment", func(ctx context.Context, tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return storeErr(err, apperr.CodeOrderNotFound)
		}
		p, err := tx.LockPaymentByOrder(ctx, orderID)
		if err != nil {
			return storeErr(err, apperr.CodePaymentNotFound)
		}
		if tolerateDone && p.Status == model.PaymentFailed {
			payment = p
			return nil
		}
		if p.Status != model.PaymentPending {
			return apperr.Invalid(apperr.CodePaymentNotPending, "payment for order %d is %s", o.ID, p.Status)
		}
		p.Status = model.PaymentFailed
		p.Notes = reason
		p.UpdatedAt = now
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return storeErr(err, apperr.CodePaymentNotFound)
		}
		order, payment = o, p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if order == nil {
		return payment, nil
	}
	s.afterCommit(ctx, &effects{notifications: []notify.Notification{{
		UserID:   order.UserID,
		OrderID:  order.ID,
		Title:    "Payment failed",
		Message:  fmt.Sprintf("Payment for %s failed: %s.", eventLabel(order), reason),
		Category: notify.CategoryPayment,
		Link:     orderLink(order.ID),
	}}})
	s.Log.Info("payment failed", "order_id", order.ID, "payment_id", payment.ID, "reason", reason)
	return payment, nil
}

// SimulateFailure fails a PENDING payment on the mock provider.
func (s *PaymentService) SimulateFailure(ctx context.Context, orderID uint64, reason string) (*model.Payment, error) {
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "simulated failure"
	}
	return s.fail(ctx, orderID, reason, false)
}

// Checkout creates a hosted charge at the gateway for a PENDING payment
// and records its reference and redirect URL.  A payment that already has
// a charge is returned unchanged.  The gateway is called outside any
// transaction so no row lock is held across the network call.
func (s *PaymentService) Checkout(ctx context.Context, orderID uint64) (*model.Payment, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, storeErr(err, apperr.CodeOrderNotFound)
	}
	p, err := s.Store.GetPaymentByOrder(ctx, orderID)
	if err != nil {
		return nil, storeErr(err, apperr.CodePaymentNotFound)
	}
	if o.Status != model.OrderPending {
		return nil, apperr.Invalid(apperr.CodeOrderNotEligible, "order %d is %s and cannot be paid", o.ID, o.Status)
	}
	if p.Status != model.PaymentPending {
		return nil, apperr.Invalid(apperr.CodePaymentNotPending, "payment for order %d is %s", o.ID, p.Status)
	}
	if p.PaymentURL != "" {
		return p, nil
	}

	charge, err := s.Gateway.CreateCharge(ctx, gateway.ChargeRequest{
		OrderID:     o.ID,
		ExternalRef: gateway.ExternalRef(o.ID, s.now()),
		UserID:      o.UserID,
		ItemName:    fmt.Sprintf("%s - %s", o.Snapshot.EventName, o.Snapshot.TierName),
		Quantity:    o.Quantity,
		UnitPrice:   o.UnitPrice,
		Amount:      p.Amount,
		ExpiresAt:   p.ExpiresAt,
	})
	if err != nil {
		s.Log.Warn("gateway charge failed", "order_id", o.ID, "gateway", s.Gateway.Name(), "err", err)
		return nil, apperr.Wrap(apperr.KindUnavailable, apperr.CodeGatewayUnavailable, err, "payment gateway unavailable")
	}

	now := s.now()
	var payment *model.Payment
	err = s.withinTx(ctx, "checkout", func(ctx context.Context, tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return storeErr(err, apperr.CodeOrderNotFound)
		}
		p, err := tx.LockPaymentByOrder(ctx, orderID)
		if err != nil {
			return storeErr(err, apperr.CodePaymentNotFound)
		}
		if o.Status != model.OrderPending {
			return apperr.Invalid(apperr.CodeOrderNotEligible, "order %d is %s and cannot be paid", o.ID, o.Status)
		}
		if p.Status != model.PaymentPending {
			return apperr.Invalid(apperr.CodePaymentNotPending, "payment for order %d is %s", o.ID, p.Status)
		}
		// a concurrent checkout recorded its charge first; keep that one
		if p.PaymentURL != "" {
			payment = p
			return nil
		}
		p.Method = strings.ToUpper(s.Gateway.Name())
		p.GatewayRef = charge.Reference
		p.PaymentURL = charge.RedirectURL
		p.UpdatedAt = now
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return storeErr(err, apperr.CodePaymentNotFound)
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info("gateway charge created", "order_id", orderID, "gateway", s.Gateway.Name(), "ref", payment.GatewayRef)
	return payment, nil
}

// ApplyGatewayCallback applies a provider status notification.  SUCCESS
// goes through the same guard as Settle, FAILED fails a PENDING payment
// and PENDING changes nothing.  Redelivered callbacks for a payment that
// already reached the reported status are accepted as no-ops.
func (s *PaymentService) ApplyGatewayCallback(ctx context.Context, cb Callback) (*model.Payment, error) {
	orderID, err := gateway.ParseExternalRef(strings.TrimSpace(cb.ExternalOrderRef))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalid, apperr.CodeMalformedCallback, err, "malformed order reference")
	}
	status, ok := MapGatewayStatus(cb.StatusToken)
	if !ok {
		return nil, apperr.Invalid(apperr.CodeUnknownGatewayStatus, "unknown gateway status %q", cb.StatusToken)
	}
	s.Log.Info("gateway callback", "order_id", orderID, "status", cb.StatusToken, "transaction_id", cb.GatewayTransactionID)

	switch status {
	case model.PaymentSuccess:
		ref := cb.GatewayTransactionID
		if ref == "" {
			ref = cb.ExternalOrderRef
		}
		return s.settle(ctx, orderID, "", ref, true)
	case model.PaymentFailed:
		return s.fail(ctx, orderID, "gateway: "+strings.ToLower(strings.TrimSpace(cb.StatusToken)), true)
	}
	p, err := s.Store.GetPaymentByOrder(ctx, orderID)
	if err != nil {
		return nil, storeErr(err, apperr.CodePaymentNotFound)
	}
	return p, nil
}

// GetPayment returns one payment.
func (s *PaymentService) GetPayment(ctx context.Context, id uint64) (*model.Payment, error) {
	p, err := s.Store.GetPayment(ctx, id)
	if err != nil {
		return nil, storeErr(err, apperr.CodePaymentNotFound)
	}
	return p, nil
}

// GetPaymentByOrder returns the payment attached to an order.
func (s *PaymentService) GetPaymentByOrder(ctx context.Context, orderID uint64) (*model.Payment, error) {
	p, err := s.Store.GetPaymentByOrder(ctx, orderID)
	if err != nil {
		return nil, storeErr(err, apperr.CodePaymentNotFound)
	}
	return p, nil
}
