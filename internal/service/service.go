// Package service implements the reservation engine: booking against
// finite tier stock, the order and payment state machines, and the
// reconciler that returns abandoned holds to inventory.  Every state change
// runs inside one store transaction that holds the affected row locks;
// side effects (cache invalidation, metrics, notifications) happen only
// after the transaction committed.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/event-ticketing/internal/apperr"
	"github.com/iliyamo/event-ticketing/internal/gateway"
	"github.com/iliyamo/event-ticketing/internal/logging"
	"github.com/iliyamo/event-ticketing/internal/metrics"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/notify"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultHoldTTL     = 15 * time.Minute
	DefaultLockTimeout = 5 * time.Second
	DefaultSweepBatch  = 200
)

// TierCache is the read-through availability cache.  Implementations
// must tolerate being called after the entry expired.  Invalidate advances
// the version of id, and SetIfVersion must refuse a write made with a
// version older than the current one.
type TierCache interface {
	Get(ctx context.Context, id uint64) (*model.TicketTier, bool)
	Version(ctx context.Context, id uint64) (int64, error)
	SetIfVersion(ctx context.Context, t *model.TicketTier, version int64) (bool, error)
	Invalidate(ctx context.Context, id uint64) error
}

// Options tunes the engine.
type Options struct {
	// HoldTTL is how long a PENDING order keeps its units.
	HoldTTL time.Duration
	// LockTimeout bounds each transaction including its row lock waits.
	LockTimeout time.Duration
	// SweepBatch is the number of expired orders read per reconciler page.
	SweepBatch int
}

func (o Options) withDefaults() Options {
	if o.HoldTTL <= 0 {
		o.HoldTTL = DefaultHoldTTL
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = DefaultLockTimeout
	}
	if o.SweepBatch <= 0 {
		o.SweepBatch = DefaultSweepBatch
	}
	return o
}

// Deps are the collaborators shared by all services.  Store is required;
// everything else has a usable zero value.
type Deps struct {
	Store    repository.Store
	Notifier notify.Notifier
	Cache    TierCache
	Gateway  gateway.Gateway
	Metadata MetadataLookup
	Log      *slog.Logger
	// Now returns the current time.  Tests pin it.
	Now func() time.Time
	// NewCode generates check-in codes.
	NewCode func() string
	Options
}

// core carries the plumbing every service uses.
type core struct {
	Deps
}

func newCore(d Deps) core {
	if d.Store == nil {
		panic("service: nil store")
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Gateway == nil {
		d.Gateway = gateway.Mock{}
	}
	if d.Metadata == nil {
		d.Metadata = TierMetadata{}
	}
	if d.Log == nil {
		d.Log = logging.Discard()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewCode == nil {
		d.NewCode = utils.NewCheckInCode
	}
	d.Options = d.Options.withDefaults()
	return core{Deps: d}
}

func (c *core) now() time.Time { return c.Now().UTC() }

// withinTx runs fn in a store transaction bounded by LockTimeout and
// records its duration under op.
func (c *core) withinTx(ctx context.Context, op string, fn func(ctx context.Context, tx repository.Tx) error) error {
	started := time.Now()
	defer metrics.ObserveTx(op, started)
	ctx, cancel := context.WithTimeout(ctx, c.LockTimeout)
	defer cancel()
	return c.Store.WithinTx(ctx, fn)
}

// afterCommit applies the side effects of a committed transaction.  None
// of them can fail the operation.
func (c *core) afterCommit(ctx context.Context, fx *effects) {
	for _, id := range fx.tiers {
		if c.Cache == nil {
			break
		}
		if err := c.Cache.Invalidate(context.WithoutCancel(ctx), id); err != nil {
			c.Log.Warn("tier cache invalidate failed", "tier_id", id, "err", err)
		}
	}
	for _, r := range fx.released {
		metrics.StockReleased(r.tierID, r.units)
	}
	for _, t := range fx.transitions {
		metrics.OrderTransition(string(t.from), string(t.to))
	}
	for _, n := range fx.notifications {
		c.Notifier.Enqueue(n)
	}
}

// storeErr maps repository sentinels onto the service taxonomy.
// notFound is the code used when the row is missing.  Errors that are
// already classified pass through.
func storeErr(err error, notFound string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, notFound, err, "not found")
	case errors.Is(err, repository.ErrLockTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindUnavailable, apperr.CodeLockTimeout, err, "row is busy, retry later")
	case errors.Is(err, repository.ErrConflict):
		return apperr.Wrap(apperr.KindConflict, apperr.CodeDuplicate, err, "conflicting write")
	}
	return fmt.Errorf("store: %w", err)
}

func orderLink(id uint64) string { return fmt.Sprintf("/orders/%d", id) }

func eventLabel(o *model.Order) string {
	if o.Snapshot.EventName == "" || o.Snapshot.EventName == PlaceholderEvent {
		return "Event"
	}
	return o.Snapshot.EventName
}
