package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// MemoryStore is a single-instance Store.  Row locks are per-row
// semaphores so a transaction on one tier never waits for another tier,
// and writes are buffered per transaction and applied on commit.  It backs
// STORE_DRIVER=memory and the service tests.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[uint64]struct{}
	tiers    map[uint64]model.TicketTier
	orders   map[uint64]model.Order
	payments map[uint64]model.Payment
	byOrder  map[uint64]uint64 // order id -> payment id
	codes    map[string]uint64 // check-in code -> order id (0 while uncommitted)
	locks    map[string]chan struct{}

	nextOrderID   uint64
	nextPaymentID uint64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[uint64]struct{}),
		tiers:    make(map[uint64]model.TicketTier),
		orders:   make(map[uint64]model.Order),
		payments: make(map[uint64]model.Payment),
		byOrder:  make(map[uint64]uint64),
		codes:    make(map[string]uint64),
		locks:    make(map[string]chan struct{}),
	}
}

// AddUser registers a user id for identity lookups.
func (s *MemoryStore) AddUser(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = struct{}{}
}

// PutTier inserts or replaces a tier.  It bypasses row locks and is meant
// for seeding.
func (s *MemoryStore) PutTier(t model.TicketTier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[t.ID] = t
}

func (s *MemoryStore) rowLock(key string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

// WithinTx runs fn with a fresh transaction.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{
		s:        s,
		held:     make(map[string]chan struct{}),
		tiers:    make(map[uint64]model.TicketTier),
		orders:   make(map[uint64]model.Order),
		payments: make(map[uint64]model.Payment),
	}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
		tx.release()
	}()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	committed = true
	return nil
}

func (s *MemoryStore) GetTier(_ context.Context, id uint64) (*model.TicketTier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tiers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id uint64) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (s *MemoryStore) GetOrderByCheckInCode(_ context.Context, code string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.codes[code]
	o, ok := s.orders[id]
	if id == 0 || !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (s *MemoryStore) ListOrdersByUser(_ context.Context, userID uint64, status model.OrderStatus) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Order, 0)
	for _, o := range s.orders {
		if o.UserID != userID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, o)
	}
	// newest first, matching the SQL store
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) GetPayment(_ context.Context, id uint64) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) GetPaymentByOrder(_ context.Context, orderID uint64) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, ok := s.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	p := s.payments[pid]
	return &p, nil
}

func (s *MemoryStore) ListExpiredPendingOrderIDs(_ context.Context, now time.Time, afterID uint64, limit int) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, 0)
	for id, o := range s.orders {
		if id > afterID && o.Expired(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *MemoryStore) ListOrders(_ context.Context, status model.OrderStatus, limit, offset int) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if status == "" || o.Status == status {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if offset >= len(all) {
		return make([]model.Order, 0), nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) OrderTotals(_ context.Context) (OrderTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := OrderTotals{ByStatus: make(map[model.OrderStatus]int64), Revenue: decimal.Zero}
	for _, o := range s.orders {
		t.ByStatus[o.Status]++
		if o.Status == model.OrderPaid || o.Status == model.OrderUsed {
			t.Revenue = t.Revenue.Add(o.TotalPrice)
		}
	}
	return t, nil
}

func (s *MemoryStore) CountPaymentsByStatus(_ context.Context) (map[model.PaymentStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.PaymentStatus]int64)
	for _, p := range s.payments {
		out[p.Status]++
	}
	return out, nil
}

// memTx buffers writes until commit.  Rows read through Lock* are copies
// of committed state taken after the row lock was acquired.
type memTx struct {
	s        *MemoryStore
	held     map[string]chan struct{}
	tiers    map[uint64]model.TicketTier
	orders   map[uint64]model.Order
	payments map[uint64]model.Payment
	newCodes []string
}

func (tx *memTx) lock(ctx context.Context, key string) error {
	if _, ok := tx.held[key]; ok {
		return nil
	}
	ch := tx.s.rowLock(key)
	select {
	case ch <- struct{}{}:
		tx.held[key] = ch
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %s", ErrLockTimeout, key)
	}
}

func (tx *memTx) release() {
	for key, ch := range tx.held {
		<-ch
		delete(tx.held, key)
	}
}

func (tx *memTx) commit() {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range tx.tiers {
		s.tiers[id] = t
	}
	for id, o := range tx.orders {
		s.orders[id] = o
		s.codes[o.CheckInCode] = id
	}
	for id, p := range tx.payments {
		s.payments[id] = p
		s.byOrder[p.OrderID] = id
	}
}

func (tx *memTx) rollback() {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, code := range tx.newCodes {
		if s.codes[code] == 0 {
			delete(s.codes, code)
		}
	}
}

func (tx *memTx) UserExists(_ context.Context, userID uint64) (bool, error) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	_, ok := tx.s.users[userID]
	return ok, nil
}

func (tx *memTx) LockTier(ctx context.Context, id uint64) (*model.TicketTier, error) {
	if err := tx.lock(ctx, fmt.Sprintf("tier:%d", id)); err != nil {
		return nil, err
	}
	if t, ok := tx.tiers[id]; ok {
		return &t, nil
	}
	return tx.s.GetTier(ctx, id)
}

func (tx *memTx) UpdateTierStock(_ context.Context, t *model.TicketTier) error {
	if _, ok := tx.held[fmt.Sprintf("tier:%d", t.ID)]; !ok {
		return fmt.Errorf("tier %d updated without lock", t.ID)
	}
	tx.tiers[t.ID] = *t
	return nil
}

func (tx *memTx) InsertOrder(_ context.Context, o *model.Order) error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.codes[o.CheckInCode]; dup {
		return fmt.Errorf("%w: check-in code %s", ErrConflict, o.CheckInCode)
	}
	s.codes[o.CheckInCode] = 0
	tx.newCodes = append(tx.newCodes, o.CheckInCode)
	s.nextOrderID++
	o.ID = s.nextOrderID
	tx.orders[o.ID] = *o
	return nil
}

func (tx *memTx) LockOrder(ctx context.Context, id uint64) (*model.Order, error) {
	if err := tx.lock(ctx, fmt.Sprintf("order:%d", id)); err != nil {
		return nil, err
	}
	if o, ok := tx.orders[id]; ok {
		return &o, nil
	}
	return tx.s.GetOrder(ctx, id)
}

func (tx *memTx) LockOrderByCheckInCode(ctx context.Context, code string) (*model.Order, error) {
	tx.s.mu.Lock()
	id := tx.s.codes[code]
	tx.s.mu.Unlock()
	if id == 0 {
		return nil, ErrNotFound
	}
	return tx.LockOrder(ctx, id)
}

func (tx *memTx) UpdateOrderStatus(_ context.Context, o *model.Order) error {
	if _, ok := tx.orders[o.ID]; !ok {
		if _, ok := tx.held[fmt.Sprintf("order:%d", o.ID)]; !ok {
			return fmt.Errorf("order %d updated without lock", o.ID)
		}
	}
	tx.orders[o.ID] = *o
	return nil
}

func (tx *memTx) InsertPayment(_ context.Context, p *model.Payment) error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byOrder[p.OrderID]; dup {
		return fmt.Errorf("%w: payment for order %d", ErrConflict, p.OrderID)
	}
	for _, pending := range tx.payments {
		if pending.OrderID == p.OrderID {
			return fmt.Errorf("%w: payment for order %d", ErrConflict, p.OrderID)
		}
	}
	s.nextPaymentID++
	p.ID = s.nextPaymentID
	tx.payments[p.ID] = *p
	return nil
}

func (tx *memTx) LockPaymentByOrder(ctx context.Context, orderID uint64) (*model.Payment, error) {
	for _, p := range tx.payments {
		if p.OrderID == orderID {
			p := p
			return &p, nil
		}
	}
	p, err := tx.s.GetPaymentByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := tx.lock(ctx, fmt.Sprintf("payment:%d", p.ID)); err != nil {
		return nil, err
	}
	// re-read under the lock
	return tx.s.GetPayment(ctx, p.ID)
}

func (tx *memTx) UpdatePayment(_ context.Context, p *model.Payment) error {
	if _, ok := tx.payments[p.ID]; !ok {
		if _, ok := tx.held[fmt.Sprintf("payment:%d", p.ID)]; !ok {
			return fmt.Errorf("payment %d updated without lock", p.ID)
		}
	}
	tx.payments[p.ID] = *p
	return nil
}
