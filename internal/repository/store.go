package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// Store is the durable home of ticket tiers, orders and payments.  All
// mutations happen inside WithinTx; the read methods outside a transaction
// never take locks and may observe state that is about to change.
type Store interface {
	// WithinTx runs fn in a single atomic unit of work.  When fn returns an
	// error every write made through tx is discarded and all row locks are
	// released; otherwise the writes are committed together.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetTier(ctx context.Context, id uint64) (*model.TicketTier, error)
	GetOrder(ctx context.Context, id uint64) (*model.Order, error)
	GetOrderByCheckInCode(ctx context.Context, code string) (*model.Order, error)
	ListOrdersByUser(ctx context.Context, userID uint64, status model.OrderStatus) ([]model.Order, error)
	GetPayment(ctx context.Context, id uint64) (*model.Payment, error)
	GetPaymentByOrder(ctx context.Context, orderID uint64) (*model.Payment, error)

	// ListExpiredPendingOrderIDs returns up to limit ids greater than
	// afterID of PENDING orders whose hold deadline is strictly before now,
	// in ascending id order.
	ListExpiredPendingOrderIDs(ctx context.Context, now time.Time, afterID uint64, limit int) ([]uint64, error)

	// ListOrders pages through every order, highest id first.  An empty
	// status matches all orders.
	ListOrders(ctx context.Context, status model.OrderStatus, limit, offset int) ([]model.Order, error)
	// OrderTotals counts orders per status and sums the revenue of PAID
	// and USED orders.
	OrderTotals(ctx context.Context) (OrderTotals, error)
	CountPaymentsByStatus(ctx context.Context) (map[model.PaymentStatus]int64, error)
}

// OrderTotals is a point-in-time summary of the orders table.
type OrderTotals struct {
	ByStatus map[model.OrderStatus]int64
	Revenue  decimal.Decimal
}

// Tx is a unit of work.  Lock* methods acquire an exclusive row lock that
// is held until the transaction ends; they block while another
// transaction holds the same row.  Callers lock in the order
// order -> tier -> payment.
type Tx interface {
	UserExists(ctx context.Context, userID uint64) (bool, error)

	LockTier(ctx context.Context, id uint64) (*model.TicketTier, error)
	UpdateTierStock(ctx context.Context, t *model.TicketTier) error

	InsertOrder(ctx context.Context, o *model.Order) error
	LockOrder(ctx context.Context, id uint64) (*model.Order, error)
	LockOrderByCheckInCode(ctx context.Context, code string) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, o *model.Order) error

	InsertPayment(ctx context.Context, p *model.Payment) error
	LockPaymentByOrder(ctx context.Context, orderID uint64) (*model.Payment, error)
	UpdatePayment(ctx context.Context, p *model.Payment) error
}

var (
	_ Store = (*MySQLStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
