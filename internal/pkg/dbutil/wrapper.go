package dbutil

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// TxOptions represents transaction options
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
	Timeout   time.Duration
}

// DefaultTxOptions provides sensible transaction defaults
var DefaultTxOptions = TxOptions{
	Isolation: sql.LevelDefault,
	ReadOnly:  false,
	Timeout:   30 * time.Second,
}

// DB interface for database operations (allows for easy testing)
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	PingContext(ctx context.Context) error
}

// TxFunc represents a function that operates within a transaction
type TxFunc func(tx *sql.Tx) error

// QueryFunc represents a function for read operations
type QueryFunc func(ctx context.Context, db DB) error

// ExecFunc represents a function for write operations
type ExecFunc func(ctx context.Context, db DB) (sql.Result, error)

// Wrapper provides database operation utilities
type Wrapper struct {
	db      DB
	timeout time.Duration
}

// NewWrapper creates a new database wrapper
func NewWrapper(db DB, timeout time.Duration) *Wrapper {
	return &Wrapper{
		db:      db,
		timeout: timeout,
	}
}

// WithTransaction executes a function within a database transaction
func (w *Wrapper) WithTransaction(ctx context.Context, fn TxFunc, opts ...TxOptions) error {
	options := DefaultTxOptions
	if len(opts) > 0 {
		options = opts[0]
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, options.Timeout)
	defer cancel()

	tx, err := w.db.BeginTx(ctxWithTimeout, &sql.TxOptions{
		Isolation: options.Isolation,
		ReadOnly:  options.ReadOnly,
	})
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return errors.Wrapf(err, "transaction failed (rollback also failed: %v)", rollbackErr)
		}
		return errors.Wrap(err, "transaction rolled back")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

// QueryWithTimeout executes a read operation with timeout
func (w *Wrapper) QueryWithTimeout(ctx context.Context, fn QueryFunc, timeout ...time.Duration) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, w.pick(timeout))
	defer cancel()

	return fn(ctxWithTimeout, w.db)
}

// ExecWithTimeout executes a write operation with timeout
func (w *Wrapper) ExecWithTimeout(ctx context.Context, fn ExecFunc, timeout ...time.Duration) (sql.Result, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, w.pick(timeout))
	defer cancel()

	return fn(ctxWithTimeout, w.db)
}

// PingWithTimeout checks database connectivity with timeout
func (w *Wrapper) PingWithTimeout(ctx context.Context, timeout ...time.Duration) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, w.pick(timeout))
	defer cancel()

	return w.db.PingContext(ctxWithTimeout)
}

// ExecQuery executes a query and returns the result
func (w *Wrapper) ExecQuery(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return w.ExecWithTimeout(ctx, func(ctx context.Context, db DB) (sql.Result, error) {
		return db.ExecContext(ctx, query, args...)
	})
}

func (w *Wrapper) pick(timeout []time.Duration) time.Duration {
	if len(timeout) > 0 {
		return timeout[0]
	}
	return w.timeout
}

// SaveWithRetry runs fn in a transaction, retrying when SQLite reports the
// database as busy or locked.
func (w *Wrapper) SaveWithRetry(ctx context.Context, fn TxFunc, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := w.WithTransaction(ctx, fn)
		if err == nil {
			return nil
		}

		lastErr = err
		if !IsRetryableError(err) {
			return err
		}

		if attempt < maxRetries {
			// linear backoff
			waitTime := time.Duration(attempt+1) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitTime):
			}
		}
	}

	return errors.Wrapf(lastErr, "operation failed after %d retries", maxRetries)
}

// IsRetryableError determines if a database error is transient
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	errStr := strings.ToLower(err.Error())
	for _, retryable := range []string{
		"database is locked",
		"database is busy",
		"deadlock",
		"cannot start a transaction within a transaction",
	} {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}

	return false
}
