package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/querypilot/querypilot/internal/schema"
	"github.com/querypilot/querypilot/internal/store"
)

// infoSchemaQueries holds the catalog queries for one dialect. Each takes
// the schema name as its single argument.
type infoSchemaQueries struct {
	defaultSchema string
	currentSchema string
	tables        string
	columns       string
	primaryKeys   string
	foreignKeys   string
}

var postgresQueries = infoSchemaQueries{
	defaultSchema: "public",
	tables: `SELECT table_name, table_type FROM information_schema.tables
WHERE table_schema = $1 AND table_type IN ('BASE TABLE', 'VIEW')
ORDER BY table_name`,
	columns: `SELECT table_name, column_name, data_type, is_nullable FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name, ordinal_position`,
	primaryKeys: `SELECT kcu.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_schema = tc.constraint_schema
 AND kcu.constraint_name = tc.constraint_name
 AND kcu.table_name = tc.table_name
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1
ORDER BY kcu.table_name, kcu.ordinal_position`,
	foreignKeys: `SELECT kcu.table_name, kcu.column_name, ref.table_name, ref.column_name
FROM information_schema.referential_constraints rc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_schema = rc.constraint_schema
 AND kcu.constraint_name = rc.constraint_name
JOIN information_schema.key_column_usage ref
  ON ref.constraint_schema = rc.unique_constraint_schema
 AND ref.constraint_name = rc.unique_constraint_name
 AND ref.ordinal_position = kcu.position_in_unique_constraint
WHERE kcu.table_schema = $1
ORDER BY kcu.table_name, kcu.column_name`,
}

var mysqlQueries = infoSchemaQueries{
	currentSchema: `SELECT DATABASE()`,
	tables: `SELECT TABLE_NAME, TABLE_TYPE FROM INFORMATION_SCHEMA.TABLES
WHERE TABLE_SCHEMA = ? AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
ORDER BY TABLE_NAME`,
	columns: `SELECT TABLE_NAME, COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = ?
ORDER BY TABLE_NAME, ORDINAL_POSITION`,
	primaryKeys: `SELECT TABLE_NAME, COLUMN_NAME FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
WHERE TABLE_SCHEMA = ? AND CONSTRAINT_NAME = 'PRIMARY'
ORDER BY TABLE_NAME, ORDINAL_POSITION`,
	foreignKeys: `SELECT TABLE_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
WHERE TABLE_SCHEMA = ? AND REFERENCED_TABLE_NAME IS NOT NULL
ORDER BY TABLE_NAME, COLUMN_NAME`,
}

var duckdbQueries = infoSchemaQueries{
	defaultSchema: "main",
	tables: `SELECT table_name, table_type FROM information_schema.tables
WHERE table_schema = ? AND table_type IN ('BASE TABLE', 'VIEW')
ORDER BY table_name`,
	columns: `SELECT table_name, column_name, data_type, is_nullable FROM information_schema.columns
WHERE table_schema = ?
ORDER BY table_name, ordinal_position`,
	primaryKeys: `SELECT table_name, unnest(constraint_column_names) FROM duckdb_constraints()
WHERE constraint_type = 'PRIMARY KEY' AND schema_name = ?`,
	foreignKeys: `SELECT table_name, unnest(constraint_column_names), referenced_table, unnest(referenced_column_names)
FROM duckdb_constraints()
WHERE constraint_type = 'FOREIGN KEY' AND schema_name = ?`,
}

// InfoSchema introspects server databases through information_schema (and
// duckdb_constraints() on DuckDB).
type InfoSchema struct {
	dialect    store.Dialect
	db         *sql.DB
	schemaName string
	queries    infoSchemaQueries
}

func newInfoSchema(dialect store.Dialect, db *sql.DB, schemaName string, queries infoSchemaQueries) *InfoSchema {
	schemaName = strings.TrimSpace(schemaName)
	if schemaName == "" {
		schemaName = queries.defaultSchema
	}
	return &InfoSchema{dialect: dialect, db: db, schemaName: schemaName, queries: queries}
}

func (s *InfoSchema) Introspect(ctx context.Context) (*schema.Model, error) {
	schemaName, err := s.resolveSchema(ctx)
	if err != nil {
		return nil, err
	}

	set := newTableSet()
	err = s.each(ctx, "list tables", s.queries.tables, schemaName, func(rows *sql.Rows) error {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return err
		}
		set.add(name, strings.EqualFold(kind, "VIEW"))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(set.order) == 0 {
		return nil, s.fail("list tables", fmt.Errorf("schema %q has no tables", schemaName))
	}

	err = s.each(ctx, "list columns", s.queries.columns, schemaName, func(rows *sql.Rows) error {
		var table, name, dataType, nullable string
		if err := rows.Scan(&table, &name, &dataType, &nullable); err != nil {
			return err
		}
		if target, ok := set.tables[table]; ok {
			target.Columns = append(target.Columns, schema.Column{
				Name:     name,
				Type:     dataType,
				Nullable: strings.EqualFold(nullable, "YES"),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.each(ctx, "list primary keys", s.queries.primaryKeys, schemaName, func(rows *sql.Rows) error {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return err
		}
		if target, ok := set.tables[table]; ok {
			for i := range target.Columns {
				if target.Columns[i].Name == column {
					target.Columns[i].PrimaryKey = true
					target.Columns[i].Nullable = false
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.each(ctx, "list foreign keys", s.queries.foreignKeys, schemaName, func(rows *sql.Rows) error {
		var table, column, refTable, refColumn string
		if err := rows.Scan(&table, &column, &refTable, &refColumn); err != nil {
			return err
		}
		set.addForeignKey(table, schema.ForeignKey{Column: column, ReferencedTable: refTable, ReferencedColumn: refColumn})
		return nil
	})
	if err != nil {
		return nil, err
	}

	model, err := set.model()
	if err != nil {
		return nil, s.fail("build model", err)
	}
	return model, nil
}

func (s *InfoSchema) resolveSchema(ctx context.Context) (string, error) {
	if s.schemaName != "" || s.queries.currentSchema == "" {
		return s.schemaName, nil
	}
	var current sql.NullString
	if err := s.db.QueryRowContext(ctx, s.queries.currentSchema).Scan(&current); err != nil {
		return "", s.fail("resolve current schema", err)
	}
	if !current.Valid || current.String == "" {
		return "", s.fail("resolve current schema", fmt.Errorf("no database selected"))
	}
	return current.String, nil
}

func (s *InfoSchema) each(ctx context.Context, op, query, schemaName string, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query, schemaName)
	if err != nil {
		return s.fail(op, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return s.fail(op, err)
		}
	}
	if err := rows.Err(); err != nil {
		return s.fail(op, err)
	}
	return nil
}

func (s *InfoSchema) fail(op string, err error) error {
	return &Error{Dialect: s.dialect, Op: op, Err: err}
}
