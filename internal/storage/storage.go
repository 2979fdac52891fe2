// Package storage is the read-only object store view the lake source
// mounts parquet exports from.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type ObjectStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// List returns every object under prefix, keys relative to the store
	// root, in lexical order.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
