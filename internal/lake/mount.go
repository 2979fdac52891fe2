package lake

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/querypilot/querypilot/internal/storage"
)

// Mount copies the files below workDir and creates one view per table over
// read_parquet of its local copies. Existing views are replaced.
func Mount(ctx context.Context, db *sql.DB, store storage.ObjectStore, files []TableFile, workDir string) error {
	if len(files) == 0 {
		return fmt.Errorf("no files to mount")
	}

	groupedPaths := map[string][]string{}
	var order []string
	for index, file := range files {
		reader, err := store.Get(ctx, file.ObjectPath)
		if err != nil {
			return fmt.Errorf("get object %q: %w", file.ObjectPath, err)
		}

		localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(file.TableName), index))
		if err := writeFile(localPath, reader); err != nil {
			_ = reader.Close()
			return fmt.Errorf("write local parquet file %q: %w", localPath, err)
		}
		if err := reader.Close(); err != nil {
			return fmt.Errorf("close object %q: %w", file.ObjectPath, err)
		}

		if _, ok := groupedPaths[file.TableName]; !ok {
			order = append(order, file.TableName)
		}
		groupedPaths[file.TableName] = append(groupedPaths[file.TableName], localPath)
	}

	for _, tableName := range order {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`,
			quoteIdent(tableName), quoteStringArray(groupedPaths[tableName]))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			return fmt.Errorf("create view for table %q: %w", tableName, err)
		}
	}
	return nil
}

func writeFile(path string, reader io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if _, err := io.Copy(file, reader); err != nil {
		return err
	}
	return nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}
