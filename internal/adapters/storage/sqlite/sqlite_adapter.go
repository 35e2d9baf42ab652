package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/username/threadline/internal/domain/ports"
	"github.com/username/threadline/internal/pkg/constants"
	"github.com/username/threadline/internal/pkg/dbutil"
	"github.com/username/threadline/internal/pkg/logutil"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MemoryPath opens a private in-memory ledger
const MemoryPath = ":memory:"

// Adapter implements the ExecutionStorePort interface using SQLite
type Adapter struct {
	db     *sql.DB
	dbw    *dbutil.Wrapper
	logger *logutil.Logger
}

// NewAdapter opens (and creates if needed) the ledger at dbPath
func NewAdapter(dbPath string, logger *logutil.Logger) (*Adapter, error) {
	if logger == nil {
		logger = logutil.NewNopLogger()
	}

	dsn := dbPath
	if dbPath != MemoryPath {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrapf(err, "failed to create database directory %s", dir)
			}
		}
		dsn = dbPath + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if dbPath == MemoryPath {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(constants.DatabaseMaxOpenConns)
		db.SetMaxIdleConns(constants.DatabaseMaxIdleConns)
	}
	db.SetConnMaxLifetime(constants.DatabaseConnMaxLifetime)

	return &Adapter{
		db:     db,
		dbw:    dbutil.NewWrapper(db, constants.DatabaseTimeout),
		logger: logger,
	}, nil
}

// Migrate applies embedded migrations that have not run yet
func (a *Adapter) Migrate(ctx context.Context) error {
	_, err := a.dbw.ExecQuery(ctx, `
		CREATE TABLE IF NOT EXISTS `+constants.MigrationsTableName+` (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return errors.Wrap(err, "failed to create migrations table")
	}

	applied, err := a.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	files, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return errors.Wrap(err, "failed to list migration files")
	}
	sort.Strings(files)

	for _, file := range files {
		version := strings.TrimSuffix(filepath.Base(file), ".sql")
		if applied[version] {
			continue
		}

		content, err := migrationFS.ReadFile(file)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration file %s", file)
		}

		err = a.dbw.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return errors.Wrapf(err, "failed to execute migration %s", version)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO "+constants.MigrationsTableName+" (version) VALUES (?)", version); err != nil {
				return errors.Wrapf(err, "failed to record migration %s", version)
			}
			return nil
		})
		if err != nil {
			return err
		}

		a.logger.Info("Applied migration", logutil.Fields{"version": version})
	}

	return nil
}

func (a *Adapter) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	applied := make(map[string]bool)
	err := a.dbw.QueryWithTimeout(ctx, func(ctx context.Context, db dbutil.DB) error {
		rows, err := db.QueryContext(ctx, "SELECT version FROM "+constants.MigrationsTableName)
		if err != nil {
			return errors.Wrap(err, "failed to query applied migrations")
		}
		defer rows.Close()

		for rows.Next() {
			var version string
			if err := rows.Scan(&version); err != nil {
				return errors.Wrap(err, "failed to scan migration version")
			}
			applied[version] = true
		}
		return rows.Err()
	})
	return applied, err
}

// AppliedMigrations lists applied migration versions in order
func (a *Adapter) AppliedMigrations(ctx context.Context) ([]string, error) {
	applied, err := a.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions, nil
}

// Ping checks database connectivity
func (a *Adapter) Ping(ctx context.Context) error {
	return a.dbw.PingWithTimeout(ctx)
}

// Close closes the database connection
func (a *Adapter) Close() error {
	return a.db.Close()
}

// SaveExecution inserts a new execution
func (a *Adapter) SaveExecution(ctx context.Context, execution *ports.Execution) error {
	now := time.Now().UTC()
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = now
	}
	if execution.UpdatedAt.IsZero() {
		execution.UpdatedAt = execution.CreatedAt
	}
	if execution.Status == "" {
		execution.Status = ports.ExecutionPending
	}

	err := a.dbw.SaveWithRetry(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO executions (id, prompt, status, result, error, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			execution.ID,
			execution.Prompt,
			string(execution.Status),
			execution.Result,
			execution.Error,
			execution.CreatedAt,
			execution.UpdatedAt,
		)
		return err
	}, constants.DatabaseMaxRetries)
	if err != nil {
		return errors.Wrapf(err, "failed to save execution %s", execution.ID)
	}
	return nil
}

// GetExecution loads one execution by handle
func (a *Adapter) GetExecution(ctx context.Context, id string) (*ports.Execution, error) {
	var execution *ports.Execution
	err := a.dbw.QueryWithTimeout(ctx, func(ctx context.Context, db dbutil.DB) error {
		row := db.QueryRowContext(ctx, `
			SELECT id, prompt, status, result, error, created_at, updated_at
			FROM executions WHERE id = ?
		`, id)

		var err error
		execution, err = scanExecution(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.WithMessagef(ports.ErrExecutionNotFound, "execution %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get execution %s", id)
	}
	return execution, nil
}

// CompleteExecution stores the result of a pending execution
func (a *Adapter) CompleteExecution(ctx context.Context, id, result string) error {
	return a.finish(ctx, id, ports.ExecutionCompleted, result, "")
}

// FailExecution marks a pending execution as failed
func (a *Adapter) FailExecution(ctx context.Context, id, reason string) error {
	return a.finish(ctx, id, ports.ExecutionFailed, "", reason)
}

// finish moves a pending execution to a final status. Final executions are
// never rewritten.
func (a *Adapter) finish(ctx context.Context, id string, status ports.ExecutionStatus, result, reason string) error {
	err := a.dbw.SaveWithRetry(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE executions SET status = ?, result = ?, error = ?, updated_at = ?
			WHERE id = ? AND status = ?
		`, string(status), result, reason, time.Now().UTC(), id, string(ports.ExecutionPending))
		if err != nil {
			return err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected > 0 {
			return nil
		}

		var current string
		err = tx.QueryRowContext(ctx, `SELECT status FROM executions WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.WithMessagef(ports.ErrExecutionNotFound, "execution %s", id)
		}
		if err != nil {
			return err
		}
		return errors.Errorf("execution %s is already %s", id, current)
	}, constants.DatabaseMaxRetries)
	if err != nil {
		return errors.Wrapf(err, "failed to mark execution %s as %s", id, status)
	}
	return nil
}

// ListPendingExecutions returns the oldest pending executions first
func (a *Adapter) ListPendingExecutions(ctx context.Context, limit int) ([]*ports.Execution, error) {
	if limit <= 0 {
		limit = constants.DefaultPageLimit
	}

	var executions []*ports.Execution
	err := a.dbw.QueryWithTimeout(ctx, func(ctx context.Context, db dbutil.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT id, prompt, status, result, error, created_at, updated_at
			FROM executions WHERE status = ?
			ORDER BY created_at ASC
			LIMIT ?
		`, string(ports.ExecutionPending), limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			execution, err := scanExecution(rows)
			if err != nil {
				return err
			}
			executions = append(executions, execution)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending executions")
	}
	return executions, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExecution(row rowScanner) (*ports.Execution, error) {
	var (
		execution ports.Execution
		status    string
	)
	err := row.Scan(
		&execution.ID,
		&execution.Prompt,
		&status,
		&execution.Result,
		&execution.Error,
		&execution.CreatedAt,
		&execution.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	execution.Status = ports.ExecutionStatus(status)
	return &execution, nil
}
