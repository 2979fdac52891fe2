package schema

import (
	"fmt"
	"sort"
	"strings"
)

type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

type ForeignKey struct {
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

type Table struct {
	Name        string       `json:"name"`
	View        bool         `json:"view,omitempty"`
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// Column looks a column up by name, ignoring case the way unquoted SQL
// identifiers do.
func (t Table) Column(name string) (Column, bool) {
	for _, column := range t.Columns {
		if strings.EqualFold(column.Name, name) {
			return column, true
		}
	}
	return Column{}, false
}

// clone copies the slices so callers never share the model's storage.
func (t Table) clone() Table {
	t.Columns = append([]Column(nil), t.Columns...)
	t.ForeignKeys = append([]ForeignKey(nil), t.ForeignKeys...)
	return t
}

func (t Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, column := range t.Columns {
		names = append(names, column.Name)
	}
	return names
}

// Model is an immutable snapshot of a database schema. Build it with New.
type Model struct {
	tables map[string]Table
	order  []string
}

// New validates the tables and returns a Model. Table names must be unique
// (case-insensitively) and every foreign key must point at a table and
// column present in the same set.
func New(tables []Table) (*Model, error) {
	model := &Model{tables: make(map[string]Table, len(tables))}
	for _, table := range tables {
		name := strings.TrimSpace(table.Name)
		if name == "" {
			return nil, fmt.Errorf("table name is required")
		}
		key := strings.ToLower(name)
		if _, exists := model.tables[key]; exists {
			return nil, fmt.Errorf("duplicate table %q", name)
		}
		table = table.clone()
		table.Name = name
		sort.SliceStable(table.ForeignKeys, func(i, j int) bool {
			a, b := table.ForeignKeys[i], table.ForeignKeys[j]
			if a.Column != b.Column {
				return a.Column < b.Column
			}
			if a.ReferencedTable != b.ReferencedTable {
				return a.ReferencedTable < b.ReferencedTable
			}
			return a.ReferencedColumn < b.ReferencedColumn
		})
		model.tables[key] = table
		model.order = append(model.order, key)
	}
	sort.Slice(model.order, func(i, j int) bool {
		return model.tables[model.order[i]].Name < model.tables[model.order[j]].Name
	})

	for _, key := range model.order {
		table := model.tables[key]
		for _, fk := range table.ForeignKeys {
			if _, ok := table.Column(fk.Column); !ok {
				return nil, fmt.Errorf("foreign key on %s references missing local column %q", table.Name, fk.Column)
			}
			target, ok := model.Table(fk.ReferencedTable)
			if !ok {
				return nil, fmt.Errorf("foreign key %s.%s references unknown table %q", table.Name, fk.Column, fk.ReferencedTable)
			}
			if _, ok := target.Column(fk.ReferencedColumn); !ok {
				return nil, fmt.Errorf("foreign key %s.%s references unknown column %s.%s", table.Name, fk.Column, target.Name, fk.ReferencedColumn)
			}
		}
	}
	return model, nil
}

func (m *Model) Table(name string) (Table, bool) {
	if m == nil {
		return Table{}, false
	}
	table, ok := m.tables[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Table{}, false
	}
	return table.clone(), true
}

// Tables returns the tables in lexical name order.
func (m *Model) Tables() []Table {
	if m == nil {
		return nil
	}
	tables := make([]Table, 0, len(m.order))
	for _, key := range m.order {
		tables = append(tables, m.tables[key].clone())
	}
	return tables
}

func (m *Model) TableNames() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.order))
	for _, key := range m.order {
		names = append(names, m.tables[key].Name)
	}
	return names
}

func (m *Model) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}
