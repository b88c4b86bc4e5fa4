package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	o := Options{User: "app", Pass: "pw", Host: "db", Port: "3306", Name: "tickets"}
	assert.Equal(t, "app:pw@tcp(db:3306)/tickets?charset=utf8mb4&parseTime=true&loc=UTC", o.DSN())

	o.Pass = ""
	o.LockWaitTimeout = 5 * time.Second
	assert.Equal(t, "app@tcp(db:3306)/tickets?charset=utf8mb4&parseTime=true&loc=UTC&innodb_lock_wait_timeout=5", o.DSN())

	// sub-second timeouts leave the server default in place
	o.LockWaitTimeout = 300 * time.Millisecond
	assert.NotContains(t, o.DSN(), "innodb_lock_wait_timeout")
}

func TestMigrateRunsEveryStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"users", "ticket_tiers", "orders", "payments"} {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS " + table).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, Migrate(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ticket_tiers").WillReturnError(errors.New("access denied"))

	err = Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate statement 1")
	require.NoError(t, mock.ExpectationsWereMet())
}
