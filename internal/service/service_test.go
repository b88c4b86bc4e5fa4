package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/gateway"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/notify"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

const (
	buyerID = uint64(7)
	tierID  = uint64(1)
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recorder) Enqueue(n notify.Notification) {
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
}

func (r *recorder) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.got))
	for _, n := range r.got {
		out = append(out, n.Title)
	}
	return out
}

type fakeGateway struct {
	calls atomic.Int32
	err   error
	// during runs inside CreateCharge, once.
	during func()
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) CreateCharge(_ context.Context, req gateway.ChargeRequest) (gateway.Charge, error) {
	n := g.calls.Add(1)
	if hook := g.during; hook != nil {
		g.during = nil
		hook()
	}
	if g.err != nil {
		return gateway.Charge{}, g.err
	}
	return gateway.Charge{
		Reference:   fmt.Sprintf("REF-%s-%d", req.ExternalRef, n),
		RedirectURL: "https://pay.example/" + req.ExternalRef,
	}, nil
}

type mapCache struct {
	mu          sync.Mutex
	entries     map[uint64]model.TicketTier
	versions    map[uint64]int64
	invalidated []uint64
	// beforeSet runs between the version read and the write of a fill.
	beforeSet func()
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[uint64]model.TicketTier), versions: make(map[uint64]int64)}
}

func (c *mapCache) Get(_ context.Context, id uint64) (*model.TicketTier, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return &t, true
}

func (c *mapCache) Version(_ context.Context, id uint64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[id], nil
}

func (c *mapCache) SetIfVersion(_ context.Context, t *model.TicketTier, version int64) (bool, error) {
	if c.beforeSet != nil {
		c.beforeSet()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[t.ID] != version {
		return false, nil
	}
	c.entries[t.ID] = *t
	return true, nil
}

func (c *mapCache) Invalidate(_ context.Context, id uint64) error {
	c.mu.Lock()
	c.versions[id]++
	delete(c.entries, id)
	c.invalidated = append(c.invalidated, id)
	c.mu.Unlock()
	return nil
}

// fixture wires every service over one MemoryStore with a pinned clock.
type fixture struct {
	store    *repository.MemoryStore
	clock    *clock
	notes    *recorder
	gw       *fakeGateway
	cache    *mapCache
	booking  *BookingService
	orders   *OrderService
	payments *PaymentService
	rec      *Reconciler
}

type fixtureOpt func(*Deps)

func newFixture(t *testing.T, stock int, opts ...fixtureOpt) *fixture {
	t.Helper()
	f := &fixture{
		store: repository.NewMemoryStore(),
		clock: &clock{now: epoch},
		notes: &recorder{},
		gw:    &fakeGateway{},
		cache: newMapCache(),
	}
	f.store.AddUser(buyerID)
	f.store.PutTier(model.TicketTier{
		ID:             tierID,
		EventID:        3,
		Name:           "VIP",
		Price:          decimal.NewFromInt(100),
		RemainingStock: stock,
		InitialStock:   stock,
		Status:         model.TierAvailable,
		EventName:      "Jazz Night",
		EventDate:      "2026-04-01",
		VenueName:      "Blue Room",
	})
	d := Deps{
		Store:    f.store,
		Notifier: f.notes,
		Cache:    f.cache,
		Gateway:  f.gw,
		Now:      f.clock.Now,
	}
	for _, o := range opts {
		o(&d)
	}
	f.booking = NewBookingService(d)
	f.orders = NewOrderService(d)
	f.payments = NewPaymentService(d)
	f.rec = NewReconciler(d)
	return f
}

func (f *fixture) reserve(t *testing.T, qty int) *model.Order {
	t.Helper()
	o, err := f.booking.Reserve(context.Background(), ReserveRequest{
		UserID:       buyerID,
		TicketTierID: tierID,
		Quantity:     qty,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) tier(t *testing.T) *model.TicketTier {
	t.Helper()
	tr, err := f.store.GetTier(context.Background(), tierID)
	require.NoError(t, err)
	return tr
}

func (f *fixture) order(t *testing.T, id uint64) *model.Order {
	t.Helper()
	o, err := f.store.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (f *fixture) payment(t *testing.T, orderID uint64) *model.Payment {
	t.Helper()
	p, err := f.store.GetPaymentByOrder(context.Background(), orderID)
	require.NoError(t, err)
	return p
}

// requireConserved checks that every unit is either on the tier or owned
// by an order that still holds stock.
func (f *fixture) requireConserved(t *testing.T) {
	t.Helper()
	tr := f.tier(t)
	orders, err := f.store.ListOrdersByUser(context.Background(), buyerID, "")
	require.NoError(t, err)
	held := 0
	for _, o := range orders {
		if o.Status.HoldsStock() {
			held += o.Quantity
		}
	}
	require.Equal(t, tr.InitialStock, tr.RemainingStock+held, "remaining=%d held=%d", tr.RemainingStock, held)
}
