package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/apperr"
	"github.com/iliyamo/event-ticketing/internal/gateway"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// terminalOrder drives a fresh order into one of the terminal states.
func terminalOrder(t *testing.T, f *fixture, status model.OrderStatus) *model.Order {
	t.Helper()
	ctx := context.Background()
	o := f.reserve(t, 2)
	var err error
	switch status {
	case model.OrderUsed:
		_, err = f.payments.Settle(ctx, o.ID, "")
		require.NoError(t, err)
		_, err = f.orders.CheckIn(ctx, o.CheckInCode)
	case model.OrderCancelled:
		_, err = f.orders.Cancel(ctx, o.ID)
	case model.OrderExpired:
		f.clock.Advance(DefaultHoldTTL + time.Second)
		var res SweepResult
		res, err = f.rec.Sweep(ctx, f.clock.Now())
		require.Equal(t, 1, res.Expired)
	case model.OrderRefunded:
		_, err = f.payments.Settle(ctx, o.ID, "")
		require.NoError(t, err)
		_, err = f.orders.Refund(ctx, o.ID)
	default:
		t.Fatalf("%s is not terminal", status)
	}
	require.NoError(t, err)
	require.Equal(t, status, f.order(t, o.ID).Status)
	return o
}

func TestTerminalOrdersStayTerminal(t *testing.T) {
	type op struct {
		name string
		run  func(ctx context.Context, f *fixture, o *model.Order) error
	}
	callback := func(token string) func(ctx context.Context, f *fixture, o *model.Order) error {
		return func(ctx context.Context, f *fixture, o *model.Order) error {
			_, err := f.payments.ApplyGatewayCallback(ctx, Callback{
				ExternalOrderRef: gateway.ExternalRef(o.ID, f.clock.Now()),
				StatusToken:      token,
			})
			return err
		}
	}
	ops := []op{
		{"cancel", func(ctx context.Context, f *fixture, o *model.Order) error {
			_, err := f.orders.Cancel(ctx, o.ID)
			return err
		}},
		{"settle", func(ctx context.Context, f *fixture, o *model.Order) error {
			_, err := f.payments.Settle(ctx, o.ID, "card")
			return err
		}},
		{"check in", func(ctx context.Context, f *fixture, o *model.Order) error {
			_, err := f.orders.CheckIn(ctx, o.CheckInCode)
			return err
		}},
		{"refund", func(ctx context.Context, f *fixture, o *model.Order) error {
			_, err := f.orders.Refund(ctx, o.ID)
			return err
		}},
		{"fail payment", func(ctx context.Context, f *fixture, o *model.Order) error {
			_, err := f.payments.SimulateFailure(ctx, o.ID, "")
			return err
		}},
		{"checkout", func(ctx context.Context, f *fixture, o *model.Order) error {
			_, err := f.payments.Checkout(ctx, o.ID)
			return err
		}},
		{"callback success", callback("settlement")},
		{"callback failure", callback("deny")},
		{"sweep", func(ctx context.Context, f *fixture, o *model.Order) error {
			_, err := f.rec.Sweep(ctx, f.clock.Now().Add(24*time.Hour))
			return err
		}},
	}
	// Redelivered callbacks and sweeps are accepted as no-ops; everything
	// else must be refused.
	noop := map[string]bool{
		"USED/callback success":      true,
		"CANCELLED/callback failure": true,
		"USED/sweep":                 true,
		"CANCELLED/sweep":            true,
		"EXPIRED/sweep":              true,
		"REFUNDED/sweep":             true,
	}

	for _, status := range []model.OrderStatus{model.OrderUsed, model.OrderCancelled, model.OrderExpired, model.OrderRefunded} {
		for _, op := range ops {
			name := string(status) + "/" + op.name
			t.Run(name, func(t *testing.T) {
				f := newFixture(t, 10)
				o := terminalOrder(t, f, status)
				payBefore := f.payment(t, o.ID).Status
				stockBefore := f.tier(t).RemainingStock

				err := op.run(context.Background(), f, o)
				if noop[name] {
					assert.NoError(t, err)
				} else {
					require.Error(t, err)
					assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err), err.Error())
				}

				assert.Equal(t, status, f.order(t, o.ID).Status)
				assert.Equal(t, payBefore, f.payment(t, o.ID).Status)
				assert.Equal(t, stockBefore, f.tier(t).RemainingStock)
				assert.EqualValues(t, 0, f.gw.calls.Load())
				f.requireConserved(t)
			})
		}
	}
}
