package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// OrderRepo provides data access to the orders table.  Orders are never
// deleted; terminal rows are retained for audit.  All timestamp fields are
// stored in UTC.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

const orderColumns = `id, user_id, ticket_tier_id, quantity, unit_price, total_price, subtotal, discount_amount,
                      promo_code, status, check_in_code, created_at, expires_at, used_at,
                      event_id, event_name, event_date, venue_name, event_image_url, tier_name`

func scanOrder(row rowScanner) (*model.Order, error) {
	var o model.Order
	var status string
	var promo sql.NullString
	var usedAt sql.NullTime
	var eventID sql.NullInt64
	var eventName, eventDate, venueName, imageURL, tierName sql.NullString
	if err := row.Scan(
		&o.ID, &o.UserID, &o.TicketTierID, &o.Quantity, &o.UnitPrice, &o.TotalPrice, &o.Subtotal, &o.DiscountAmount,
		&promo, &status, &o.CheckInCode, &o.CreatedAt, &o.ExpiresAt, &usedAt,
		&eventID, &eventName, &eventDate, &venueName, &imageURL, &tierName,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	o.PromoCode = promo.String
	if usedAt.Valid {
		t := usedAt.Time.UTC()
		o.UsedAt = &t
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.ExpiresAt = o.ExpiresAt.UTC()
	o.Snapshot = model.EventSnapshot{
		EventID:   uint64(eventID.Int64),
		EventName: eventName.String,
		EventDate: eventDate.String,
		VenueName: venueName.String,
		ImageURL:  imageURL.String,
		TierName:  tierName.String,
	}
	return &o, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateTx inserts a new order within the scope of an existing
// transaction and populates the generated ID.  A duplicate check-in code
// surfaces as ErrConflict.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	const q = `INSERT INTO orders (user_id, ticket_tier_id, quantity, unit_price, total_price, subtotal, discount_amount,
                                   promo_code, status, check_in_code, created_at, expires_at,
                                   event_id, event_name, event_date, venue_name, event_image_url, tier_name)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		o.UserID, o.TicketTierID, o.Quantity, o.UnitPrice, o.TotalPrice, o.Subtotal, o.DiscountAmount,
		nullString(o.PromoCode), string(o.Status), o.CheckInCode, o.CreatedAt.UTC(), o.ExpiresAt.UTC(),
		o.Snapshot.EventID, o.Snapshot.EventName, o.Snapshot.EventDate, o.Snapshot.VenueName, o.Snapshot.ImageURL, o.Snapshot.TierName,
	)
	if err != nil {
		return translate(ctx, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	return nil
}

// LockByIDTx reads an order with SELECT ... FOR UPDATE.
func (r *OrderRepo) LockByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id = ? FOR UPDATE`
	o, err := scanOrder(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, translate(ctx, err)
	}
	return o, nil
}

// LockByCheckInCodeTx reads an order by its check-in code with
// SELECT ... FOR UPDATE.  check_in_code carries a unique index so only
// one row is locked.
func (r *OrderRepo) LockByCheckInCodeTx(ctx context.Context, tx *sql.Tx, code string) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE check_in_code = ? FOR UPDATE`
	o, err := scanOrder(tx.QueryRowContext(ctx, q, code))
	if err != nil {
		return nil, translate(ctx, err)
	}
	return o, nil
}

// UpdateStatusTx writes the mutable columns of a locked order: status and
// used_at.  Everything else is fixed at creation.
func (r *OrderRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	const q = `UPDATE orders SET status = ?, used_at = ? WHERE id = ?`
	var usedAt sql.NullTime
	if o.UsedAt != nil {
		usedAt = sql.NullTime{Time: o.UsedAt.UTC(), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, q, string(o.Status), usedAt, o.ID); err != nil {
		return translate(ctx, err)
	}
	return nil
}

// GetByID returns a single order.
func (r *OrderRepo) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	return scanOrder(r.db.QueryRowContext(ctx, q, id))
}

// GetByCheckInCode returns the order that owns code.
func (r *OrderRepo) GetByCheckInCode(ctx context.Context, code string) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE check_in_code = ?`
	return scanOrder(r.db.QueryRowContext(ctx, q, code))
}

// ListByUser returns the user's orders, newest first.  When status is
// non-empty only orders in that status are returned.  An empty slice is
// returned when nothing matches.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uint64, status model.OrderStatus) ([]model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC, id DESC`
	return r.query(ctx, q, args...)
}

// List returns a page of all orders, newest id first, for staff reports.
// An empty status lists every order.
func (r *OrderRepo) List(ctx context.Context, status model.OrderStatus, limit, offset int) ([]model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders`
	args := []any{}
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	return r.query(ctx, q, args...)
}

func (r *OrderRepo) query(ctx context.Context, q string, args ...any) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := make([]model.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListExpiredPendingIDs returns ids above afterID of PENDING orders whose
// hold expired before now.  Callers page by passing the last id they saw.
func (r *OrderRepo) ListExpiredPendingIDs(ctx context.Context, now time.Time, afterID uint64, limit int) ([]uint64, error) {
	const q = `SELECT id FROM orders WHERE status = ? AND expires_at < ? AND id > ? ORDER BY id LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, string(model.OrderPending), now.UTC(), afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// CountByStatus returns the number of orders in each status.  Statuses
// without orders are absent from the map.
func (r *OrderRepo) CountByStatus(ctx context.Context) (map[model.OrderStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[model.OrderStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[model.OrderStatus(status)] = n
	}
	return out, rows.Err()
}

// Revenue sums total_price over orders that were paid for, including the
// ones already used at the door.
func (r *OrderRepo) Revenue(ctx context.Context) (decimal.Decimal, error) {
	const q = `SELECT COALESCE(SUM(total_price), 0) FROM orders WHERE status IN (?, ?)`
	var sum decimal.Decimal
	err := r.db.QueryRowContext(ctx, q, string(model.OrderPaid), string(model.OrderUsed)).Scan(&sum)
	return sum, err
}
