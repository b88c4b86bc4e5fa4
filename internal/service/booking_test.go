package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/apperr"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

func TestReserveCreatesPendingOrderAndPayment(t *testing.T) {
	f := newFixture(t, 10)

	o := f.reserve(t, 3)

	assert.Equal(t, model.OrderPending, o.Status)
	assert.Equal(t, buyerID, o.UserID)
	assert.Equal(t, 3, o.Quantity)
	assert.True(t, o.UnitPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, o.TotalPrice.Equal(decimal.NewFromInt(300)))
	assert.True(t, o.Subtotal.Equal(o.TotalPrice))
	assert.True(t, o.DiscountAmount.IsZero())
	assert.Equal(t, epoch, o.CreatedAt)
	assert.Equal(t, epoch.Add(DefaultHoldTTL), o.ExpiresAt)
	assert.True(t, utils.ValidCheckInCode(o.CheckInCode), o.CheckInCode)
	assert.Equal(t, "Jazz Night", o.Snapshot.EventName)
	assert.Equal(t, "Blue Room", o.Snapshot.VenueName)
	assert.Equal(t, "VIP", o.Snapshot.TierName)

	p := f.payment(t, o.ID)
	assert.Equal(t, model.PaymentPending, p.Status)
	assert.Equal(t, model.DefaultPaymentMethod, p.Method)
	assert.True(t, p.Amount.Equal(o.TotalPrice))
	assert.Equal(t, o.ExpiresAt, p.ExpiresAt)

	assert.Equal(t, 7, f.tier(t).RemainingStock)
	assert.Equal(t, []string{"Booking created"}, f.notes.titles())
	f.requireConserved(t)
}

func TestReserveRecordsInformationalAmounts(t *testing.T) {
	f := newFixture(t, 10)
	sub := decimal.NewFromInt(250)
	disc := decimal.NewFromInt(50)

	o, err := f.booking.Reserve(context.Background(), ReserveRequest{
		UserID:         buyerID,
		TicketTierID:   tierID,
		Quantity:       2,
		Subtotal:       &sub,
		DiscountAmount: &disc,
		PromoCode:      "  SPRING  ",
	})
	require.NoError(t, err)

	assert.True(t, o.Subtotal.Equal(sub))
	assert.True(t, o.DiscountAmount.Equal(disc))
	assert.True(t, o.TotalPrice.Equal(decimal.NewFromInt(200)), "total is always price x quantity")
	assert.Equal(t, "SPRING", o.PromoCode)
}

func TestReserveRejections(t *testing.T) {
	four := 4
	cases := []struct {
		name  string
		setup func(t *testing.T, f *fixture)
		req   ReserveRequest
		kind  apperr.Kind
		code  string
	}{
		{
			name: "zero quantity",
			req:  ReserveRequest{UserID: buyerID, TicketTierID: tierID, Quantity: 0},
			kind: apperr.KindInvalid,
			code: apperr.CodeInvalidQuantity,
		},
		{
			name: "negative quantity",
			req:  ReserveRequest{UserID: buyerID, TicketTierID: tierID, Quantity: -2},
			kind: apperr.KindInvalid,
			code: apperr.CodeInvalidQuantity,
		},
		{
			name: "unknown tier",
			req:  ReserveRequest{UserID: buyerID, TicketTierID: 99, Quantity: 1},
			kind: apperr.KindNotFound,
			code: apperr.CodeTierNotFound,
		},
		{
			name: "unknown user",
			req:  ReserveRequest{UserID: 404, TicketTierID: tierID, Quantity: 1},
			kind: apperr.KindNotFound,
			code: apperr.CodeUserNotFound,
		},
		{
			name: "closed tier",
			setup: func(t *testing.T, f *fixture) {
				tr := f.tier(t)
				tr.Status = model.TierClosed
				f.store.PutTier(*tr)
			},
			req:  ReserveRequest{UserID: buyerID, TicketTierID: tierID, Quantity: 1},
			kind: apperr.KindInvalid,
			code: apperr.CodeTierUnavailable,
		},
		{
			name: "more than remaining",
			req:  ReserveRequest{UserID: buyerID, TicketTierID: tierID, Quantity: 11},
			kind: apperr.KindInsufficientStock,
			code: apperr.CodeInsufficientStock,
		},
		{
			name: "above per-order cap",
			setup: func(t *testing.T, f *fixture) {
				tr := f.tier(t)
				tr.MaxPerOrder = &four
				f.store.PutTier(*tr)
			},
			req:  ReserveRequest{UserID: buyerID, TicketTierID: tierID, Quantity: 5},
			kind: apperr.KindInvalid,
			code: apperr.CodeMaxPerOrderExceeded,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 10)
			if tc.setup != nil {
				tc.setup(t, f)
			}
			o, err := f.booking.Reserve(context.Background(), tc.req)
			require.Error(t, err)
			assert.Nil(t, o)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
			assert.Equal(t, tc.code, apperr.CodeOf(err))
			assert.Equal(t, 10, f.tier(t).RemainingStock)
			assert.Empty(t, f.notes.titles())
		})
	}
}

func TestReserveLastUnitsMarksSoldOut(t *testing.T) {
	f := newFixture(t, 3)

	o := f.reserve(t, 3)
	tr := f.tier(t)
	assert.Equal(t, 0, tr.RemainingStock)
	assert.Equal(t, model.TierSoldOut, tr.Status)

	_, err := f.booking.Reserve(context.Background(), ReserveRequest{UserID: buyerID, TicketTierID: tierID, Quantity: 1})
	assert.Equal(t, apperr.CodeTierUnavailable, apperr.CodeOf(err))

	_, err = f.orders.Cancel(context.Background(), o.ID)
	require.NoError(t, err)
	tr = f.tier(t)
	assert.Equal(t, 3, tr.RemainingStock)
	assert.Equal(t, model.TierAvailable, tr.Status)
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	const stock, buyers = 10, 60
	f := newFixture(t, stock)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     int
		refused int
	)
	start := make(chan struct{})
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.booking.Reserve(context.Background(), ReserveRequest{UserID: buyerID, TicketTierID: tierID, Quantity: 1})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case apperr.KindOf(err) == apperr.KindInsufficientStock,
				apperr.CodeOf(err) == apperr.CodeTierUnavailable:
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, stock, won)
	assert.Equal(t, buyers-stock, refused)
	assert.Equal(t, 0, f.tier(t).RemainingStock)
	f.requireConserved(t)
}

func TestConcurrentMixedQuantitiesConserveStock(t *testing.T) {
	f := newFixture(t, 25)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		qty := i%4 + 1
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.booking.Reserve(context.Background(), ReserveRequest{UserID: buyerID, TicketTierID: tierID, Quantity: qty})
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, f.tier(t).RemainingStock, 0)
	f.requireConserved(t)
}

func TestReserveTimesOutOnBusyTier(t *testing.T) {
	f := newFixture(t, 10, func(d *Deps) { d.LockTimeout = 30 * time.Millisecond })

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = f.store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			if _, err := tx.LockTier(ctx, tierID); err != nil {
				return err
			}
			close(locked)
			<-done
			return nil
		})
	}()
	<-locked

	_, err := f.booking.Reserve(context.Background(), ReserveRequest{UserID: buyerID, TicketTierID: tierID, Quantity: 1})
	close(done)

	require.Error(t, err)
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
	assert.Equal(t, apperr.CodeLockTimeout, apperr.CodeOf(err))
	assert.True(t, apperr.Retryable(err))
}

type brokenMetadata struct{}

func (brokenMetadata) Lookup(context.Context, *model.TicketTier) (model.EventSnapshot, error) {
	return model.EventSnapshot{}, errors.New("catalog down")
}

func TestReserveFallsBackToPlaceholderSnapshot(t *testing.T) {
	f := newFixture(t, 10, func(d *Deps) { d.Metadata = brokenMetadata{} })

	o := f.reserve(t, 1)

	assert.Equal(t, PlaceholderEvent, o.Snapshot.EventName)
	assert.Equal(t, PlaceholderVenue, o.Snapshot.VenueName)
	assert.Equal(t, uint64(3), o.Snapshot.EventID)
	assert.Equal(t, "VIP", o.Snapshot.TierName)
}

func TestTierReadsThroughCacheAndReserveInvalidates(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	tr, err := f.booking.Tier(ctx, tierID)
	require.NoError(t, err)
	assert.Equal(t, 10, tr.RemainingStock)
	_, cached := f.cache.Get(ctx, tierID)
	assert.True(t, cached)

	f.reserve(t, 2)
	_, cached = f.cache.Get(ctx, tierID)
	assert.False(t, cached)
	assert.Contains(t, f.cache.invalidated, tierID)

	tr, err = f.booking.Tier(ctx, tierID)
	require.NoError(t, err)
	assert.Equal(t, 8, tr.RemainingStock)

	_, err = f.booking.Tier(ctx, 42)
	assert.Equal(t, apperr.CodeTierNotFound, apperr.CodeOf(err))
}

func TestTierFillRacingReserveIsDropped(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	// a reserve commits after the store read but before the cache write
	f.cache.beforeSet = func() {
		f.cache.beforeSet = nil
		f.reserve(t, 3)
	}
	tr, err := f.booking.Tier(ctx, tierID)
	require.NoError(t, err)
	assert.Equal(t, 10, tr.RemainingStock)

	_, cached := f.cache.Get(ctx, tierID)
	assert.False(t, cached, "stale snapshot must not be cached")

	tr, err = f.booking.Tier(ctx, tierID)
	require.NoError(t, err)
	assert.Equal(t, 7, tr.RemainingStock)
	got, cached := f.cache.Get(ctx, tierID)
	require.True(t, cached)
	assert.Equal(t, 7, got.RemainingStock)
}
