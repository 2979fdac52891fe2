package introspect

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/querypilot/querypilot/internal/schema"
	"github.com/querypilot/querypilot/internal/store"
)

const (
	sqliteTablesQuery = `SELECT name, type FROM sqlite_master
WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
ORDER BY name`
	sqliteColumnsQuery     = `SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`
	sqliteForeignKeysQuery = `SELECT "from", "table", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`
)

// SQLite reads the catalog through sqlite_master and the table-valued
// pragma functions.
type SQLite struct {
	DB *sql.DB
}

func (s *SQLite) Introspect(ctx context.Context) (*schema.Model, error) {
	set := newTableSet()

	rows, err := s.DB.QueryContext(ctx, sqliteTablesQuery)
	if err != nil {
		return nil, s.fail("list tables", err)
	}
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			_ = rows.Close()
			return nil, s.fail("scan table", err)
		}
		set.add(name, kind == "view")
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, s.fail("iterate tables", err)
	}
	_ = rows.Close()
	if len(set.order) == 0 {
		return nil, s.fail("list tables", fmt.Errorf("database has no tables"))
	}

	for _, name := range set.order {
		columns, err := s.columns(ctx, name)
		if err != nil {
			return nil, err
		}
		set.tables[name].Columns = columns
	}

	for _, name := range set.order {
		if set.tables[name].View {
			continue
		}
		fks, err := s.foreignKeys(ctx, name, set)
		if err != nil {
			return nil, err
		}
		for _, fk := range fks {
			set.addForeignKey(name, fk)
		}
	}

	model, err := set.model()
	if err != nil {
		return nil, s.fail("build model", err)
	}
	return model, nil
}

func (s *SQLite) columns(ctx context.Context, table string) ([]schema.Column, error) {
	rows, err := s.DB.QueryContext(ctx, sqliteColumnsQuery, table)
	if err != nil {
		return nil, s.fail("list columns of "+table, err)
	}
	defer func() { _ = rows.Close() }()

	var columns []schema.Column
	for rows.Next() {
		var (
			name, declared string
			notNull, pk    int
		)
		if err := rows.Scan(&name, &declared, &notNull, &pk); err != nil {
			return nil, s.fail("scan column of "+table, err)
		}
		columns = append(columns, schema.Column{
			Name:       name,
			Type:       declared,
			Nullable:   notNull == 0 && pk == 0,
			PrimaryKey: pk > 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("iterate columns of "+table, err)
	}
	return columns, nil
}

func (s *SQLite) foreignKeys(ctx context.Context, table string, set *tableSet) ([]schema.ForeignKey, error) {
	rows, err := s.DB.QueryContext(ctx, sqliteForeignKeysQuery, table)
	if err != nil {
		return nil, s.fail("list foreign keys of "+table, err)
	}
	defer func() { _ = rows.Close() }()

	var fks []schema.ForeignKey
	for rows.Next() {
		var (
			from, target string
			to           sql.NullString
		)
		if err := rows.Scan(&from, &target, &to); err != nil {
			return nil, s.fail("scan foreign key of "+table, err)
		}
		referenced := to.String
		if !to.Valid || referenced == "" {
			// REFERENCES t without a column list targets t's primary key.
			referenced = primaryKeyOf(set, target)
		}
		fks = append(fks, schema.ForeignKey{Column: from, ReferencedTable: target, ReferencedColumn: referenced})
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("iterate foreign keys of "+table, err)
	}
	return fks, nil
}

func (s *SQLite) fail(op string, err error) error {
	return &Error{Dialect: store.DialectSQLite, Op: op, Err: err}
}

func primaryKeyOf(set *tableSet, table string) string {
	target, ok := set.tables[table]
	if !ok {
		return ""
	}
	for _, column := range target.Columns {
		if column.PrimaryKey {
			return column.Name
		}
	}
	return ""
}
