// Package execute runs validated SQL against the queried database with a
// read-only session and a hard row cap.
package execute

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/store"
)

const Kind = "ExecutionError"

// Error is a query the database refused or could not finish.
type Error struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("execute: %s: timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("execute: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure came from a broken connection
// rather than from the statement itself.
func (e *Error) Retryable() bool {
	if e.Timeout {
		return false
	}
	if errors.Is(e.Err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && !netErr.Timeout()
}

type Result struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"data"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
	Duration  time.Duration    `json:"-"`
}

type Config struct {
	Dialect              store.Dialect
	Timeout              time.Duration
	MaxConcurrentReaders int
	RetryBackoff         time.Duration
}

type Engine struct {
	db      *sql.DB
	dialect store.Dialect
	timeout time.Duration
	backoff time.Duration
	readers *semaphore.Weighted
}

func New(db *sql.DB, cfg Config) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if _, err := store.ParseDialect(string(cfg.Dialect)); err != nil {
		return nil, err
	}
	readers := cfg.MaxConcurrentReaders
	if readers <= 0 {
		readers = 1
	}
	return &Engine{
		db:      db,
		dialect: cfg.Dialect,
		timeout: cfg.Timeout,
		backoff: cfg.RetryBackoff,
		readers: semaphore.NewWeighted(int64(readers)),
	}, nil
}

// Execute runs sqlText and returns at most rowLimit rows. Truncated is set
// when the query produced more.
func (e *Engine) Execute(ctx context.Context, sqlText string, rowLimit int) (Result, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return Result{}, &Error{Op: "prepare", Err: errors.New("sql is required")}
	}
	if rowLimit <= 0 {
		return Result{}, &Error{Op: "prepare", Err: fmt.Errorf("row limit must be > 0, got %d", rowLimit)}
	}

	if err := e.readers.Acquire(ctx, 1); err != nil {
		return Result{}, classify(ctx, "wait for reader", err)
	}
	defer e.readers.Release(1)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := e.run(ctx, sqlText, rowLimit)
	var execErr *Error
	if errors.As(err, &execErr) && execErr.Retryable() {
		timer := time.NewTimer(e.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{}, classify(ctx, "query", ctx.Err())
		case <-timer.C:
		}
		result, err = e.run(ctx, sqlText, rowLimit)
	}
	if err != nil {
		return Result{}, err
	}
	result.Duration = time.Since(start)
	observability.ObserveExecution(result.Duration, result.Truncated)
	return result, nil
}

func (e *Engine) run(ctx context.Context, sqlText string, rowLimit int) (Result, error) {
	query := limitSQL(e.dialect, sqlText, rowLimit+1)

	if !e.dialect.SupportsReadOnlyTx() {
		rows, err := e.db.QueryContext(ctx, query)
		if err != nil {
			return Result{}, classify(ctx, "query", err)
		}
		defer func() { _ = rows.Close() }()
		return collect(ctx, rows, rowLimit)
	}

	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return Result{}, classify(ctx, "begin read-only transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return Result{}, classify(ctx, "query", err)
	}
	defer func() { _ = rows.Close() }()
	return collect(ctx, rows, rowLimit)
}

func collect(ctx context.Context, rows *sql.Rows, rowLimit int) (Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return Result{}, classify(ctx, "read columns", err)
	}

	result := Result{Columns: columns, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		if len(result.Rows) == rowLimit {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, classify(ctx, "scan row", err)
		}
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, classify(ctx, "iterate rows", err)
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

// limitSQL pushes the cap into the database. MySQL rejects derived tables
// with duplicate column names, so there the cap is enforced while scanning.
func limitSQL(dialect store.Dialect, sqlText string, limit int) string {
	if dialect == store.DialectMySQL {
		return sqlText
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, limit)
}

// classify also consults ctx because drivers report a cancelled statement
// with their own error values.
func classify(ctx context.Context, op string, err error) *Error {
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &Error{Op: op, Timeout: timeout, Err: err}
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
