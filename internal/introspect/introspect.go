// Package introspect builds schema snapshots from live database connections.
package introspect

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/querypilot/querypilot/internal/schema"
	"github.com/querypilot/querypilot/internal/store"
)

const Kind = "IntrospectionError"

// Error reports that the connection could not enumerate the schema. It is
// never retried: it points at a misconfigured database.
type Error struct {
	Dialect store.Dialect
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("introspect %s: %s: %v", e.Dialect, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Introspector interface {
	Introspect(ctx context.Context) (*schema.Model, error)
}

// New returns the introspector for the dialect. schemaName selects the
// namespace on server databases; empty picks the dialect default.
func New(dialect store.Dialect, db *sql.DB, schemaName string) (Introspector, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	switch dialect {
	case store.DialectSQLite:
		return &SQLite{DB: db}, nil
	case store.DialectPostgres:
		return newInfoSchema(dialect, db, schemaName, postgresQueries), nil
	case store.DialectMySQL:
		return newInfoSchema(dialect, db, schemaName, mysqlQueries), nil
	case store.DialectDuckDB:
		return newInfoSchema(dialect, db, schemaName, duckdbQueries), nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
}

type tableSet struct {
	order  []string
	tables map[string]*schema.Table
}

func newTableSet() *tableSet {
	return &tableSet{tables: map[string]*schema.Table{}}
}

func (s *tableSet) add(name string, view bool) {
	if _, ok := s.tables[name]; ok {
		return
	}
	s.order = append(s.order, name)
	s.tables[name] = &schema.Table{Name: name, View: view}
}

func (s *tableSet) addForeignKey(table string, fk schema.ForeignKey) {
	source, ok := s.tables[table]
	if !ok {
		return
	}
	target, ok := s.tables[fk.ReferencedTable]
	if !ok {
		return
	}
	if _, ok := target.Column(fk.ReferencedColumn); !ok {
		return
	}
	source.ForeignKeys = append(source.ForeignKeys, fk)
}

func (s *tableSet) model() (*schema.Model, error) {
	tables := make([]schema.Table, 0, len(s.order))
	for _, name := range s.order {
		tables = append(tables, *s.tables[name])
	}
	return schema.New(tables)
}
