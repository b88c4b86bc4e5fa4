package repository

import (
	"context"
	"database/sql"
	"errors"
)

// UserRepo reads the 'users' table.  Accounts are issued by an external
// identity service; the engine only needs to know that a buyer exists.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// ExistsTx reports whether an active user with id exists.  It runs on the
// booking transaction so the read shares its snapshot.
func (r *UserRepo) ExistsTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		"SELECT 1 FROM users WHERE id=? AND is_active=1 LIMIT 1", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, translate(ctx, err)
	}
	return true, nil
}
