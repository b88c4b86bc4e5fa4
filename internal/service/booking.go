package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/apperr"
	"github.com/iliyamo/event-ticketing/internal/metrics"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/notify"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// Snapshot placeholders used when event metadata cannot be resolved.
const (
	PlaceholderEvent = "Event Information Unavailable"
	PlaceholderVenue = "Venue Information Unavailable"
)

// MetadataLookup resolves the event and venue display data copied onto a
// new order.  A failure never fails the booking.
type MetadataLookup interface {
	Lookup(ctx context.Context, tier *model.TicketTier) (model.EventSnapshot, error)
}

// TierMetadata reads the metadata denormalised onto the tier row.
type TierMetadata struct{}

func (TierMetadata) Lookup(_ context.Context, t *model.TicketTier) (model.EventSnapshot, error) {
	return model.EventSnapshot{
		EventID:   t.EventID,
		EventName: t.EventName,
		EventDate: t.EventDate,
		VenueName: t.VenueName,
		ImageURL:  t.EventImageURL,
		TierName:  t.Name,
	}, nil
}

// ReserveRequest asks for Quantity units of one tier.  Subtotal and
// DiscountAmount are informational and recorded as given; the charged
// total is always price x quantity.
type ReserveRequest struct {
	UserID         uint64
	TicketTierID   uint64
	Quantity       int
	Subtotal       *decimal.Decimal
	DiscountAmount *decimal.Decimal
	PromoCode      string
}

// BookingService turns reservation requests into PENDING orders.
type BookingService struct {
	core
}

func NewBookingService(d Deps) *BookingService {
	return &BookingService{core: newCore(d)}
}

// Reserve debits the tier and creates a PENDING order with its PENDING
// payment in one transaction.  Concurrent reservations of the same tier
// serialise on the tier row lock, so a tier with N units never sells more
// than N.
func (s *BookingService) Reserve(ctx context.Context, req ReserveRequest) (*model.Order, error) {
	order, err := s.reserve(ctx, req)
	if err != nil {
		outcome := apperr.CodeOf(err)
		if outcome == "" {
			outcome = "error"
		}
		metrics.Reservation(outcome)
		return nil, err
	}
	metrics.Reservation("ok")
	metrics.StockReserved(order.TicketTierID, order.Quantity)
	return order, nil
}

func (s *BookingService) reserve(ctx context.Context, req ReserveRequest) (*model.Order, error) {
	if req.Quantity < 1 {
		return nil, apperr.Invalid(apperr.CodeInvalidQuantity, "quantity must be at least 1, got %d", req.Quantity)
	}
	now := s.now()
	var order *model.Order
	var tierID uint64
	err := s.withinTx(ctx, "reserve", func(ctx context.Context, tx repository.Tx) error {
		tier, err := tx.LockTier(ctx, req.TicketTierID)
		if err != nil {
			return storeErr(err, apperr.CodeTierNotFound)
		}
		ok, err := tx.UserExists(ctx, req.UserID)
		if err != nil {
			return storeErr(err, apperr.CodeUserNotFound)
		}
		if !ok {
			return apperr.NotFound(apperr.CodeUserNotFound, "user %d not found", req.UserID)
		}
		if tier.Status != model.TierAvailable {
			return apperr.Invalid(apperr.CodeTierUnavailable, "ticket tier %d is %s", tier.ID, tier.Status)
		}
		if tier.RemainingStock < req.Quantity {
			return apperr.New(apperr.KindInsufficientStock, apperr.CodeInsufficientStock,
				"only %d tickets left in tier %d", tier.RemainingStock, tier.ID)
		}
		if tier.MaxPerOrder != nil && req.Quantity > *tier.MaxPerOrder {
			return apperr.Invalid(apperr.CodeMaxPerOrderExceeded,
				"at most %d tickets per order for tier %d", *tier.MaxPerOrder, tier.ID)
		}

		total := tier.Price.Mul(decimal.NewFromInt(int64(req.Quantity)))
		subtotal := total
		if req.Subtotal != nil {
			subtotal = *req.Subtotal
		}
		discount := decimal.Zero
		if req.DiscountAmount != nil {
			discount = *req.DiscountAmount
		}

		tier.Take(req.Quantity)
		if err := tx.UpdateTierStock(ctx, tier); err != nil {
			return storeErr(err, apperr.CodeTierNotFound)
		}

		o := &model.Order{
			UserID:         req.UserID,
			TicketTierID:   tier.ID,
			Quantity:       req.Quantity,
			UnitPrice:      tier.Price,
			TotalPrice:     total,
			Subtotal:       subtotal,
			DiscountAmount: discount,
			PromoCode:      strings.TrimSpace(req.PromoCode),
			Status:         model.OrderPending,
			CheckInCode:    s.NewCode(),
			CreatedAt:      now,
			ExpiresAt:      now.Add(s.HoldTTL),
			Snapshot:       s.snapshot(ctx, tier),
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return storeErr(err, apperr.CodeOrderNotFound)
		}

		p := &model.Payment{
			OrderID:   o.ID,
			Method:    model.DefaultPaymentMethod,
			Amount:    total,
			Status:    model.PaymentPending,
			ExpiresAt: now.Add(s.HoldTTL),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertPayment(ctx, p); err != nil {
			return storeErr(err, apperr.CodePaymentNotFound)
		}
		order, tierID = o, tier.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	fx := &effects{tiers: []uint64{tierID}}
	fx.notify(notify.Notification{
		UserID:   order.UserID,
		OrderID:  order.ID,
		Title:    "Booking created",
		Message:  fmt.Sprintf("Your order for %s (%d tickets) was created. Complete the payment within %s.", eventLabel(order), order.Quantity, s.HoldTTL),
		Category: notify.CategoryBooking,
		Link:     orderLink(order.ID),
	})
	s.afterCommit(ctx, fx)
	s.Log.Info("order reserved",
		"order_id", order.ID, "user_id", order.UserID, "tier_id", order.TicketTierID,
		"quantity", order.Quantity, "total", order.TotalPrice.String())
	return order, nil
}

// snapshot copies display metadata for the order.  Blank or failed
// lookups fall back to placeholders.
func (s *BookingService) snapshot(ctx context.Context, tier *model.TicketTier) model.EventSnapshot {
	snap, err := s.Metadata.Lookup(ctx, tier)
	if err != nil {
		s.Log.Warn("event metadata lookup failed", "tier_id", tier.ID, "err", err)
		snap = model.EventSnapshot{}
	}
	snap.EventID = tier.EventID
	snap.TierName = tier.Name
	if strings.TrimSpace(snap.EventName) == "" {
		snap.EventName = PlaceholderEvent
	}
	if strings.TrimSpace(snap.VenueName) == "" {
		snap.VenueName = PlaceholderVenue
	}
	return snap
}

// Tier returns current availability of a tier, served from the cache when
// possible.  The cache version is read before the store so a commit that
// lands in between makes the fill a no-op.
func (s *BookingService) Tier(ctx context.Context, id uint64) (*model.TicketTier, error) {
	fill := false
	var version int64
	if s.Cache != nil {
		if t, ok := s.Cache.Get(ctx, id); ok {
			return t, nil
		}
		v, err := s.Cache.Version(ctx, id)
		if err != nil {
			s.Log.Debug("tier cache version failed", "tier_id", id, "err", err)
		} else {
			fill, version = true, v
		}
	}
	t, err := s.Store.GetTier(ctx, id)
	if err != nil {
		return nil, storeErr(err, apperr.CodeTierNotFound)
	}
	if fill {
		stored, err := s.Cache.SetIfVersion(ctx, t, version)
		switch {
		case err != nil:
			s.Log.Debug("tier cache set failed", "tier_id", id, "err", err)
		case !stored:
			s.Log.Debug("tier cache fill superseded", "tier_id", id, "version", version)
		}
	}
	return t, nil
}
