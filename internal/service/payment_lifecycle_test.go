package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/apperr"
	"github.com/iliyamo/event-ticketing/internal/gateway"
	"github.com/iliyamo/event-ticketing/internal/model"
)

func TestSettleMarksOrderPaid(t *testing.T) {
	f := newFixture(t, 10)
	o := f.reserve(t, 2)
	f.clock.Advance(time.Minute)

	p, err := f.payments.Settle(context.Background(), o.ID, "card")
	require.NoError(t, err)

	assert.Equal(t, model.PaymentSuccess, p.Status)
	assert.Equal(t, "CARD", p.Method)
	require.NotNil(t, p.PaidAt)
	assert.Equal(t, epoch.Add(time.Minute), *p.PaidAt)
	assert.True(t, strings.HasPrefix(p.GatewayRef, "MOCK-"), p.GatewayRef)
	assert.Equal(t, model.OrderPaid, f.order(t, o.ID).Status)
	assert.Equal(t, 8, f.tier(t).RemainingStock)
	assert.Equal(t, []string{"Booking created", "Payment received"}, f.notes.titles())

	_, err = f.payments.Settle(context.Background(), o.ID, "card")
	assert.Equal(t, apperr.CodeOrderNotEligible, apperr.CodeOf(err))
}

func TestSettleKeepsDefaultMethodWhenBlank(t *testing.T) {
	f := newFixture(t, 10)
	o := f.reserve(t, 1)

	p, err := f.payments.Settle(context.Background(), o.ID, "  ")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultPaymentMethod, p.Method)
}

func TestLatePaymentBeforeSweepIsAccepted(t *testing.T) {
	f := newFixture(t, 10)
	o := f.reserve(t, 1)
	f.clock.Advance(DefaultHoldTTL + time.Minute)

	_, err := f.payments.Settle(context.Background(), o.ID, "")
	require.NoError(t, err)

	res, err := f.rec.Sweep(context.Background(), f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Scanned)
	assert.Equal(t, model.OrderPaid, f.order(t, o.ID).Status)
}

func TestSettleAndSweepRaceHasOneWinner(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, 5)
		o := f.reserve(t, 2)
		f.clock.Advance(DefaultHoldTTL + time.Second)

		var wg sync.WaitGroup
		var settleErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, settleErr = f.payments.Settle(context.Background(), o.ID, "")
		}()
		go func() {
			defer wg.Done()
			_, _ = f.rec.Sweep(context.Background(), f.clock.Now())
		}()
		wg.Wait()

		final := f.order(t, o.ID)
		switch final.Status {
		case model.OrderPaid:
			assert.NoError(t, settleErr)
			assert.Equal(t, 3, f.tier(t).RemainingStock)
			assert.Equal(t, model.PaymentSuccess, f.payment(t, o.ID).Status)
		case model.OrderExpired:
			assert.Equal(t, apperr.CodeOrderNotEligible, apperr.CodeOf(settleErr))
			assert.Equal(t, 5, f.tier(t).RemainingStock)
			assert.Equal(t, model.PaymentExpired, f.payment(t, o.ID).Status)
		default:
			t.Fatalf("unexpected final status %s", final.Status)
		}
		f.requireConserved(t)
	}
}

func TestSimulateFailureLeavesOrderPending(t *testing.T) {
	f := newFixture(t, 10)
	o := f.reserve(t, 1)

	p, err := f.payments.SimulateFailure(context.Background(), o.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, p.Status)
	assert.Equal(t, "simulated failure", p.Notes)
	assert.Equal(t, model.OrderPending, f.order(t, o.ID).Status)
	assert.Equal(t, 9, f.tier(t).RemainingStock)
	assert.Contains(t, f.notes.titles(), "Payment failed")

	_, err = f.payments.Settle(context.Background(), o.ID, "")
	assert.Equal(t, apperr.CodePaymentNotPending, apperr.CodeOf(err))

	_, err = f.payments.SimulateFailure(context.Background(), o.ID, "again")
	assert.Equal(t, apperr.CodePaymentNotPending, apperr.CodeOf(err))

	// the hold still runs out and returns the units; FAILED stays FAILED
	f.clock.Advance(DefaultHoldTTL + time.Second)
	res, err := f.rec.Sweep(context.Background(), f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, 10, f.tier(t).RemainingStock)
	assert.Equal(t, model.PaymentFailed, f.payment(t, o.ID).Status)
}

func TestMapGatewayStatus(t *testing.T) {
	cases := map[string]model.PaymentStatus{
		"capture":    model.PaymentSuccess,
		"settlement": model.PaymentSuccess,
		"SETTLEMENT": model.PaymentSuccess,
		"pending":    model.PaymentPending,
		"deny":       model.PaymentFailed,
		"cancel":     model.PaymentFailed,
		" expire ":   model.PaymentFailed,
		"failure":    model.PaymentFailed,
	}
	for token, want := range cases {
		got, ok := MapGatewayStatus(token)
		assert.True(t, ok, token)
		assert.Equal(t, want, got, token)
	}
	_, ok := MapGatewayStatus("refund")
	assert.False(t, ok)
}

func TestGatewayCallbackSettlementIsIdempotent(t *testing.T) {
	f := newFixture(t, 10)
	o := f.reserve(t, 1)
	cb := Callback{
		ExternalOrderRef:     gateway.ExternalRef(o.ID, epoch),
		GatewayTransactionID: "tx-123",
		StatusToken:          "settlement",
	}

	p, err := f.payments.ApplyGatewayCallback(context.Background(), cb)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentSuccess, p.Status)
	assert.Equal(t, "tx-123", p.GatewayRef)
	assert.Equal(t, model.OrderPaid, f.order(t, o.ID).Status)

	again, err := f.payments.ApplyGatewayCallback(context.Background(), cb)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentSuccess, again.Status)
	assert.Equal(t, []string{"Booking created", "Payment received"}, f.notes.titles())

	// a contradicting late status does not undo the settlement
	_, err = f.payments.ApplyGatewayCallback(context.Background(), Callback{ExternalOrderRef: cb.ExternalOrderRef, StatusToken: "deny"})
	assert.Equal(t, apperr.CodePaymentNotPending, apperr.CodeOf(err))
	assert.Equal(t, model.PaymentSuccess, f.payment(t, o.ID).Status)
}

func TestGatewayCallbackFailureAndPending(t *testing.T) {
	f := newFixture(t, 10)
	o := f.reserve(t, 1)
	ref := gateway.ExternalRef(o.ID, epoch)

	p, err := f.payments.ApplyGatewayCallback(context.Background(), Callback{ExternalOrderRef: ref, StatusToken: "pending"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, p.Status)

	p, err = f.payments.ApplyGatewayCallback(context.Background(), Callback{ExternalOrderRef: ref, StatusToken: "Expire"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, p.Status)
	assert.Equal(t, "gateway: expire", p.Notes)
	assert.Equal(t, model.OrderPending, f.order(t, o.ID).Status)

	// redelivery of the failure is accepted
	_, err = f.payments.ApplyGatewayCallback(context.Background(), Callback{ExternalOrderRef: ref, StatusToken: "expire"})
	require.NoError(t, err)
}

func TestGatewayCallbackRejectsBadInput(t *testing.T) {
	f := newFixture(t, 10)
	o := f.reserve(t, 1)

	_, err := f.payments.ApplyGatewayCallback(context.Background(), Callback{ExternalOrderRef: "INV-1", StatusToken: "settlement"})
	assert.Equal(t, apperr.CodeMalformedCallback, apperr.CodeOf(err))

	_, err = f.payments.ApplyGatewayCallback(context.Background(), Callback{
		ExternalOrderRef: gateway.ExternalRef(o.ID, epoch),
		StatusToken:      "chargeback",
	})
	assert.Equal(t, apperr.CodeUnknownGatewayStatus, apperr.CodeOf(err))

	_, err = f.payments.ApplyGatewayCallback(context.Background(), Callback{
		ExternalOrderRef: gateway.ExternalRef(9999, epoch),
		StatusToken:      "settlement",
	})
	assert.Equal(t, apperr.CodeOrderNotFound, apperr.CodeOf(err))
	assert.Equal(t, model.OrderPending, f.order(t, o.ID).Status)
}

func TestCheckoutRecordsChargeOnce(t *testing.T) {
	f := newFixture(t, 10)
	o := f.reserve(t, 2)

	p, err := f.payments.Checkout(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, "FAKE", p.Method)
	assert.True(t, strings.HasPrefix(p.GatewayRef, "REF-ORDER-"), p.GatewayRef)
	assert.True(t, strings.HasPrefix(p.PaymentURL, "https://pay.example/ORDER-"), p.PaymentURL)
	assert.Equal(t, model.PaymentPending, p.Status)

	again, err := f.payments.Checkout(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, p.PaymentURL, again.PaymentURL)
	assert.EqualValues(t, 1, f.gw.calls.Load())
}

func TestConcurrentCheckoutKeepsFirstRecordedCharge(t *testing.T) {
	f := newFixture(t, 10)
	o := f.reserve(t, 2)

	var inner *model.Payment
	f.gw.during = func() {
		var err error
		inner, err = f.payments.Checkout(context.Background(), o.ID)
		require.NoError(t, err)
	}
	outer, err := f.payments.Checkout(context.Background(), o.ID)
	require.NoError(t, err)

	require.NotNil(t, inner)
	assert.EqualValues(t, 2, f.gw.calls.Load())
	assert.True(t, strings.HasSuffix(inner.GatewayRef, "-2"), inner.GatewayRef)
	assert.Equal(t, inner.GatewayRef, outer.GatewayRef)
	assert.Equal(t, inner.GatewayRef, f.payment(t, o.ID).GatewayRef)
}

func TestCheckoutGatewayDown(t *testing.T) {
	f := newFixture(t, 10)
	f.gw.err = errors.Join(gateway.ErrUnavailable, errors.New("connection refused"))
	o := f.reserve(t, 1)

	_, err := f.payments.Checkout(context.Background(), o.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
	assert.Equal(t, apperr.CodeGatewayUnavailable, apperr.CodeOf(err))
	assert.ErrorIs(t, err, gateway.ErrUnavailable)

	p := f.payment(t, o.ID)
	assert.Empty(t, p.PaymentURL)
	assert.Equal(t, model.PaymentPending, p.Status)
}

func TestCheckoutRejectsSettledOrder(t *testing.T) {
	f := newFixture(t, 10)
	o := f.reserve(t, 1)
	_, err := f.payments.Settle(context.Background(), o.ID, "")
	require.NoError(t, err)

	_, err = f.payments.Checkout(context.Background(), o.ID)
	assert.Equal(t, apperr.CodeOrderNotEligible, apperr.CodeOf(err))
	assert.EqualValues(t, 0, f.gw.calls.Load())
}

func TestGetPayment(t *testing.T) {
	f := newFixture(t, 10)
	o := f.reserve(t, 1)

	byOrder, err := f.payments.GetPaymentByOrder(context.Background(), o.ID)
	require.NoError(t, err)
	byID, err := f.payments.GetPayment(context.Background(), byOrder.ID)
	require.NoError(t, err)
	assert.Equal(t, byOrder.OrderID, byID.OrderID)

	_, err = f.payments.GetPayment(context.Background(), 500)
	assert.Equal(t, apperr.CodePaymentNotFound, apperr.CodeOf(err))
}
