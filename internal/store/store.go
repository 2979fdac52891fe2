package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectDuckDB   Dialect = "duckdb"
)

func ParseDialect(raw string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(raw))) {
	case DialectSQLite, "sqlite3":
		return DialectSQLite, nil
	case DialectPostgres, "postgresql", "pgx":
		return DialectPostgres, nil
	case DialectMySQL:
		return DialectMySQL, nil
	case DialectDuckDB:
		return DialectDuckDB, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", raw)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case DialectPostgres:
		return "pgx"
	case DialectMySQL:
		return "mysql"
	case DialectDuckDB:
		return "duckdb"
	default:
		return "sqlite"
	}
}

// SupportsReadOnlyTx reports whether BeginTx honours TxOptions.ReadOnly.
// The embedded engines get their read-only guarantee from the connection
// string instead.
func (d Dialect) SupportsReadOnlyTx() bool {
	switch d {
	case DialectPostgres, DialectMySQL:
		return true
	default:
		return false
	}
}

type Config struct {
	Dialect         Dialect
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Open connects to the queried database in read-only mode and verifies the
// connection.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if _, err := ParseDialect(string(cfg.Dialect)); err != nil {
		return nil, err
	}

	dsn, err := ReadOnlyDSN(cfg.Dialect, cfg.DSN)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.Dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", cfg.Dialect, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", cfg.Dialect, err)
	}
	return db, nil
}

// ReadOnlyDSN rewrites a connection string so the session cannot write.
func ReadOnlyDSN(dialect Dialect, dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	switch dialect {
	case DialectSQLite:
		return sqliteReadOnlyDSN(dsn), nil
	case DialectPostgres:
		return postgresReadOnlyDSN(dsn)
	case DialectDuckDB:
		if dsn == "" || dsn == ":memory:" {
			return dsn, nil
		}
		return appendQueryParam(dsn, "access_mode", "read_only"), nil
	case DialectMySQL:
		return dsn, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", dialect)
	}
}

func sqliteReadOnlyDSN(dsn string) string {
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	dsn = appendQueryParam(dsn, "mode", "ro")
	return appendQueryParam(dsn, "_pragma", "query_only(1)")
}

func postgresReadOnlyDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		parsed, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse postgres dsn: %w", err)
		}
		query := parsed.Query()
		query.Set("default_transaction_read_only", "on")
		parsed.RawQuery = query.Encode()
		return parsed.String(), nil
	}
	if strings.Contains(dsn, "default_transaction_read_only") {
		return dsn, nil
	}
	return dsn + " default_transaction_read_only=on", nil
}

func appendQueryParam(dsn, key, value string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + key + "=" + value
}
