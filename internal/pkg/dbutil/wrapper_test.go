package dbutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)
	return db
}

func countItems(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func TestWrapper_WithTransactionCommits(t *testing.T) {
	db := openTestDB(t)
	w := NewWrapper(db, time.Second)

	err := w.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO items (name) VALUES ('a'), ('b')`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, countItems(t, db))
}

func TestWrapper_WithTransactionRollsBack(t *testing.T) {
	db := openTestDB(t)
	w := NewWrapper(db, time.Second)
	boom := errors.New("boom")

	err := w.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO items (name) VALUES ('a')`); err != nil {
			return err
		}
		return boom
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 0, countItems(t, db))
}

func TestWrapper_ExecAndQuery(t *testing.T) {
	db := openTestDB(t)
	w := NewWrapper(db, time.Second)
	ctx := context.Background()

	res, err := w.ExecQuery(ctx, `INSERT INTO items (name) VALUES (?)`, "x")
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	var name string
	err = w.QueryWithTimeout(ctx, func(ctx context.Context, db DB) error {
		return db.QueryRowContext(ctx, `SELECT name FROM items`).Scan(&name)
	})
	require.NoError(t, err)
	assert.Equal(t, "x", name)

	assert.NoError(t, w.PingWithTimeout(ctx))
}

func TestWrapper_SaveWithRetryStopsOnPermanentError(t *testing.T) {
	db := openTestDB(t)
	w := NewWrapper(db, time.Second)

	attempts := 0
	err := w.SaveWithRetry(context.Background(), func(tx *sql.Tx) error {
		attempts++
		_, err := tx.Exec(`INSERT INTO missing_table VALUES (1)`)
		return err
	}, 3)

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWrapper_SaveWithRetryRetriesBusy(t *testing.T) {
	db := openTestDB(t)
	w := NewWrapper(db, time.Second)

	attempts := 0
	err := w.SaveWithRetry(context.Background(), func(tx *sql.Tx) error {
		attempts++
		if attempts < 3 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		_, err := tx.Exec(`INSERT INTO items (name) VALUES ('ok')`)
		return err
	}, 3)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 1, countItems(t, db))
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy_code", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"locked_code", errors.Wrap(sqlite3.Error{Code: sqlite3.ErrLocked}, "save"), true},
		{"constraint_code", sqlite3.Error{Code: sqlite3.ErrConstraint}, false},
		{"locked_text", errors.New("Database Is Locked"), true},
		{"other", errors.New("no such table"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}
