package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// TierRepo provides data access to the ticket_tiers table.  Stock columns
// are only written through UpdateStockTx, which callers must invoke on a
// row they locked with LockByIDTx in the same transaction.
type TierRepo struct {
	db *sql.DB
}

// NewTierRepo returns a new TierRepo bound to the given database.
func NewTierRepo(db *sql.DB) *TierRepo { return &TierRepo{db: db} }

const tierColumns = `id, event_id, name, price, remaining_stock, initial_stock, max_per_order, status,
                     event_name, event_date, venue_name, event_image_url`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTier(row rowScanner) (*model.TicketTier, error) {
	var t model.TicketTier
	var maxPerOrder sql.NullInt64
	var status string
	var eventName, eventDate, venueName, imageURL sql.NullString
	if err := row.Scan(
		&t.ID, &t.EventID, &t.Name, &t.Price, &t.RemainingStock, &t.InitialStock, &maxPerOrder, &status,
		&eventName, &eventDate, &venueName, &imageURL,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if maxPerOrder.Valid {
		m := int(maxPerOrder.Int64)
		t.MaxPerOrder = &m
	}
	t.Status = model.TierStatus(status)
	t.EventName = eventName.String
	t.EventDate = eventDate.String
	t.VenueName = venueName.String
	t.EventImageURL = imageURL.String
	return &t, nil
}

// GetByID returns a tier without locking it.  Use it for display only;
// booking decisions must read the row through LockByIDTx.
func (r *TierRepo) GetByID(ctx context.Context, id uint64) (*model.TicketTier, error) {
	q := `SELECT ` + tierColumns + ` FROM ticket_tiers WHERE id = ?`
	return scanTier(r.db.QueryRowContext(ctx, q, id))
}

// LockByIDTx reads a tier with SELECT ... FOR UPDATE.  InnoDB keeps the
// row lock until the transaction ends, so concurrent reservations of the
// same tier are serialised while other tiers are unaffected.
func (r *TierRepo) LockByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.TicketTier, error) {
	q := `SELECT ` + tierColumns + ` FROM ticket_tiers WHERE id = ? FOR UPDATE`
	t, err := scanTier(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, translate(ctx, err)
	}
	return t, nil
}

// UpdateStockTx persists remaining_stock and status for a locked tier.
func (r *TierRepo) UpdateStockTx(ctx context.Context, tx *sql.Tx, t *model.TicketTier) error {
	const q = `UPDATE ticket_tiers SET remaining_stock = ?, status = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, q, t.RemainingStock, string(t.Status), t.ID); err != nil {
		return translate(ctx, err)
	}
	return nil
}
