package lake

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/querypilot/querypilot/internal/schema"
	"github.com/querypilot/querypilot/internal/storage"
)

// Inspect builds a schema model from the parquet footer of each table's
// first file. Lake tables carry no keys.
func Inspect(ctx context.Context, store storage.ObjectStore, files []TableFile) (*schema.Model, error) {
	var tables []schema.Table
	seen := map[string]bool{}
	for _, file := range files {
		if seen[file.TableName] {
			continue
		}
		seen[file.TableName] = true

		columns, err := readColumns(ctx, store, file.ObjectPath)
		if err != nil {
			return nil, err
		}
		tables = append(tables, schema.Table{Name: file.TableName, View: true, Columns: columns})
	}
	model, err := schema.New(tables)
	if err != nil {
		return nil, fmt.Errorf("build lake schema: %w", err)
	}
	return model, nil
}

func readColumns(ctx context.Context, store storage.ObjectStore, key string) ([]schema.Column, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	// TODO: read only the footer with ranged gets once the store exposes them.
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	file, err := parquet.OpenFile(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("open parquet %q: %w", key, err)
	}

	fields := file.Schema().Fields()
	columns := make([]schema.Column, 0, len(fields))
	for _, field := range fields {
		columns = append(columns, schema.Column{
			Name:     field.Name(),
			Type:     columnType(field),
			Nullable: field.Optional(),
		})
	}
	return columns, nil
}

// columnType names the DuckDB type read_parquet gives the field.
func columnType(field parquet.Field) string {
	if !field.Leaf() {
		if field.Repeated() {
			return "LIST"
		}
		return "STRUCT"
	}
	typ := field.Type()
	if logical := typ.LogicalType(); logical != nil {
		switch {
		case logical.UTF8 != nil, logical.Enum != nil, logical.Json != nil:
			return "VARCHAR"
		case logical.Date != nil:
			return "DATE"
		case logical.Timestamp != nil:
			return "TIMESTAMP"
		case logical.Time != nil:
			return "TIME"
		case logical.Decimal != nil:
			return fmt.Sprintf("DECIMAL(%d,%d)", logical.Decimal.Precision, logical.Decimal.Scale)
		case logical.UUID != nil:
			return "UUID"
		}
	}
	switch typ.Kind() {
	case parquet.Boolean:
		return "BOOLEAN"
	case parquet.Int32:
		return "INTEGER"
	case parquet.Int64:
		return "BIGINT"
	case parquet.Int96:
		return "TIMESTAMP"
	case parquet.Float:
		return "FLOAT"
	case parquet.Double:
		return "DOUBLE"
	default:
		return "BLOB"
	}
}
