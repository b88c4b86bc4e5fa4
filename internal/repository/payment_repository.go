package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// PaymentRepo provides data access to the payments table.  order_id is
// unique, so every order has at most one payment row; a second insert for
// the same order fails with ErrConflict.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentColumns = `id, order_id, method, amount, status, gateway_ref, payment_url, notes,
                        expires_at, paid_at, created_at, updated_at`

func scanPayment(row rowScanner) (*model.Payment, error) {
	var p model.Payment
	var status string
	var ref, url, notes sql.NullString
	var paidAt sql.NullTime
	if err := row.Scan(
		&p.ID, &p.OrderID, &p.Method, &p.Amount, &status, &ref, &url, &notes,
		&p.ExpiresAt, &paidAt, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	p.GatewayRef = ref.String
	p.PaymentURL = url.String
	p.Notes = notes.String
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		p.PaidAt = &t
	}
	return &p, nil
}

// CreateTx inserts the payment placeholder for an order inside the
// booking transaction and populates the generated ID.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	const q = `INSERT INTO payments (order_id, method, amount, status, expires_at, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, p.OrderID, p.Method, p.Amount, string(p.Status),
		p.ExpiresAt.UTC(), p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		return translate(ctx, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// LockByOrderTx reads the payment of an order with SELECT ... FOR UPDATE.
func (r *PaymentRepo) LockByOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = ? FOR UPDATE`
	p, err := scanPayment(tx.QueryRowContext(ctx, q, orderID))
	if err != nil {
		return nil, translate(ctx, err)
	}
	return p, nil
}

// UpdateTx writes the mutable columns of a locked payment.  amount is
// deliberately absent: it is fixed when the order is created.
func (r *PaymentRepo) UpdateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	const q = `UPDATE payments
               SET method = ?, status = ?, gateway_ref = ?, payment_url = ?, notes = ?, paid_at = ?, updated_at = ?
               WHERE id = ?`
	var paidAt sql.NullTime
	if p.PaidAt != nil {
		paidAt = sql.NullTime{Time: p.PaidAt.UTC(), Valid: true}
	}
	_, err := tx.ExecContext(ctx, q, p.Method, string(p.Status), nullString(p.GatewayRef), nullString(p.PaymentURL),
		nullString(p.Notes), paidAt, p.UpdatedAt.UTC(), p.ID)
	return translate(ctx, err)
}

// GetByID returns a single payment.
func (r *PaymentRepo) GetByID(ctx context.Context, id uint64) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`
	return scanPayment(r.db.QueryRowContext(ctx, q, id))
}

// GetByOrderID returns the payment attached to an order.
func (r *PaymentRepo) GetByOrderID(ctx context.Context, orderID uint64) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = ?`
	return scanPayment(r.db.QueryRowContext(ctx, q, orderID))
}

// CountByStatus returns the number of payments in each status.
func (r *PaymentRepo) CountByStatus(ctx context.Context) (map[model.PaymentStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM payments GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[model.PaymentStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[model.PaymentStatus(status)] = n
	}
	return out, rows.Err()
}
