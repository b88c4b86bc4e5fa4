package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// MySQLStore is the Store backed by InnoDB.  Row locks are real
// SELECT ... FOR UPDATE locks, so several server instances may share the
// same database.
type MySQLStore struct {
	db       *sql.DB
	Users    *UserRepo
	Tiers    *TierRepo
	Orders   *OrderRepo
	Payments *PaymentRepo
}

// NewMySQLStore wires the table repositories onto db.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{
		db:       db,
		Users:    NewUserRepo(db),
		Tiers:    NewTierRepo(db),
		Orders:   NewOrderRepo(db),
		Payments: NewPaymentRepo(db),
	}
}

// WithinTx begins a transaction, hands it to fn and commits when fn
// succeeds.  Any error, including a failed commit, rolls the transaction
// back.
func (s *MySQLStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translate(ctx, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()
	if err := fn(ctx, &mysqlTx{s: s, tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return translate(ctx, err)
	}
	committed = true
	return nil
}

func (s *MySQLStore) GetTier(ctx context.Context, id uint64) (*model.TicketTier, error) {
	return s.Tiers.GetByID(ctx, id)
}

func (s *MySQLStore) GetOrder(ctx context.Context, id uint64) (*model.Order, error) {
	return s.Orders.GetByID(ctx, id)
}

func (s *MySQLStore) GetOrderByCheckInCode(ctx context.Context, code string) (*model.Order, error) {
	return s.Orders.GetByCheckInCode(ctx, code)
}

func (s *MySQLStore) ListOrdersByUser(ctx context.Context, userID uint64, status model.OrderStatus) ([]model.Order, error) {
	return s.Orders.ListByUser(ctx, userID, status)
}

func (s *MySQLStore) GetPayment(ctx context.Context, id uint64) (*model.Payment, error) {
	return s.Payments.GetByID(ctx, id)
}

func (s *MySQLStore) GetPaymentByOrder(ctx context.Context, orderID uint64) (*model.Payment, error) {
	return s.Payments.GetByOrderID(ctx, orderID)
}

func (s *MySQLStore) ListExpiredPendingOrderIDs(ctx context.Context, now time.Time, afterID uint64, limit int) ([]uint64, error) {
	return s.Orders.ListExpiredPendingIDs(ctx, now, afterID, limit)
}

func (s *MySQLStore) ListOrders(ctx context.Context, status model.OrderStatus, limit, offset int) ([]model.Order, error) {
	return s.Orders.List(ctx, status, limit, offset)
}

func (s *MySQLStore) OrderTotals(ctx context.Context) (OrderTotals, error) {
	counts, err := s.Orders.CountByStatus(ctx)
	if err != nil {
		return OrderTotals{}, err
	}
	revenue, err := s.Orders.Revenue(ctx)
	if err != nil {
		return OrderTotals{}, err
	}
	return OrderTotals{ByStatus: counts, Revenue: revenue}, nil
}

func (s *MySQLStore) CountPaymentsByStatus(ctx context.Context) (map[model.PaymentStatus]int64, error) {
	return s.Payments.CountByStatus(ctx)
}

// Ping reports whether the database is reachable.
func (s *MySQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

type mysqlTx struct {
	s  *MySQLStore
	tx *sql.Tx
}

func (t *mysqlTx) UserExists(ctx context.Context, userID uint64) (bool, error) {
	return t.s.Users.ExistsTx(ctx, t.tx, userID)
}

func (t *mysqlTx) LockTier(ctx context.Context, id uint64) (*model.TicketTier, error) {
	return t.s.Tiers.LockByIDTx(ctx, t.tx, id)
}

func (t *mysqlTx) UpdateTierStock(ctx context.Context, tier *model.TicketTier) error {
	return t.s.Tiers.UpdateStockTx(ctx, t.tx, tier)
}

func (t *mysqlTx) InsertOrder(ctx context.Context, o *model.Order) error {
	return t.s.Orders.CreateTx(ctx, t.tx, o)
}

func (t *mysqlTx) LockOrder(ctx context.Context, id uint64) (*model.Order, error) {
	return t.s.Orders.LockByIDTx(ctx, t.tx, id)
}

func (t *mysqlTx) LockOrderByCheckInCode(ctx context.Context, code string) (*model.Order, error) {
	return t.s.Orders.LockByCheckInCodeTx(ctx, t.tx, code)
}

func (t *mysqlTx) UpdateOrderStatus(ctx context.Context, o *model.Order) error {
	return t.s.Orders.UpdateStatusTx(ctx, t.tx, o)
}

func (t *mysqlTx) InsertPayment(ctx context.Context, p *model.Payment) error {
	return t.s.Payments.CreateTx(ctx, t.tx, p)
}

func (t *mysqlTx) LockPaymentByOrder(ctx context.Context, orderID uint64) (*model.Payment, error) {
	return t.s.Payments.LockByOrderTx(ctx, t.tx, orderID)
}

func (t *mysqlTx) UpdatePayment(ctx context.Context, p *model.Payment) error {
	return t.s.Payments.UpdateTx(ctx, t.tx, p)
}
