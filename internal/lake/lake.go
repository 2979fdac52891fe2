// Package lake exposes parquet exports in an object store as DuckDB views
// so the pipeline can query them like any other database.
package lake

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/querypilot/querypilot/internal/schema"
	"github.com/querypilot/querypilot/internal/storage"
)

// TableFile is one parquet object backing a table.
type TableFile struct {
	TableName  string
	ObjectPath string
	SizeBytes  int64
	ETag       string
}

// Lake keeps the DuckDB views in db in step with the objects in store.
// It satisfies introspect.Introspector, so a schema.Cache over it also
// remounts the views when the exports change.
type Lake struct {
	store   storage.ObjectStore
	db      *sql.DB
	workDir string

	mu      sync.Mutex
	mounted string
	model   *schema.Model
}

// New prepares a lake over store. Object bodies are copied below workDir
// before DuckDB reads them; an empty workDir uses a fresh temp directory.
func New(store storage.ObjectStore, db *sql.DB, workDir string) (*Lake, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if db == nil {
		return nil, fmt.Errorf("duckdb connection is required")
	}
	if strings.TrimSpace(workDir) == "" {
		dir, err := os.MkdirTemp("", "querypilot-lake-")
		if err != nil {
			return nil, fmt.Errorf("create lake work dir: %w", err)
		}
		workDir = dir
	}
	return &Lake{store: store, db: db, workDir: workDir}, nil
}

// Close removes the local copies of the mounted objects.
func (l *Lake) Close() error {
	return os.RemoveAll(l.workDir)
}

// Introspect lists the exports, remounts the views if the object set
// changed and returns the schema read from the parquet footers.
func (l *Lake) Introspect(ctx context.Context) (*schema.Model, error) {
	files, err := Discover(ctx, l.store)
	if err != nil {
		return nil, err
	}
	key := filesKey(files)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model != nil && key == l.mounted {
		return l.model, nil
	}

	model, err := Inspect(ctx, l.store, files)
	if err != nil {
		return nil, err
	}
	if err := Mount(ctx, l.db, l.store, files, l.workDir); err != nil {
		return nil, err
	}
	l.mounted, l.model = key, model
	return model, nil
}

// Discover lists the parquet objects in store grouped by table name.
func Discover(ctx context.Context, store storage.ObjectStore) ([]TableFile, error) {
	objects, err := store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list lake objects: %w", err)
	}
	files := make([]TableFile, 0, len(objects))
	for _, object := range objects {
		table, ok := storage.TableFromKey(object.Key)
		if !ok {
			continue
		}
		files = append(files, TableFile{
			TableName:  strings.ToLower(table),
			ObjectPath: object.Key,
			SizeBytes:  object.Size,
			ETag:       object.ETag,
		})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no parquet exports found")
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].TableName != files[j].TableName {
			return files[i].TableName < files[j].TableName
		}
		return files[i].ObjectPath < files[j].ObjectPath
	})
	return files, nil
}

func filesKey(files []TableFile) string {
	var b strings.Builder
	for _, file := range files {
		fmt.Fprintf(&b, "%s|%d|%s\n", file.ObjectPath, file.SizeBytes, file.ETag)
	}
	return b.String()
}
