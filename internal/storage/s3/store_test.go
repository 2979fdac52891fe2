package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/querypilot/querypilot/internal/storage"
)

func TestGetUsesPrefixAndNormalizedKey(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "exports/prod", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	reader, err := store.Get(context.Background(), "/orders/part-1.parquet")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = reader.Close()
	if fake.lastBucket != "bucket-a" {
		t.Fatalf("bucket = %q", fake.lastBucket)
	}
	if fake.lastKey != "exports/prod/orders/part-1.parquet" {
		t.Fatalf("key = %q", fake.lastKey)
	}
}

func TestGetRejectsPathTraversal(t *testing.T) {
	store, err := NewWithClient("bucket-a", "", &fakeClient{})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if _, err := store.Get(context.Background(), "../secrets.txt"); err == nil {
		t.Fatal("expected path traversal validation error")
	}
}

func TestGetMapsMissingObject(t *testing.T) {
	store, err := NewWithClient("bucket-a", "", &fakeClient{getErr: storage.ErrObjectNotFound})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if _, err := store.Get(context.Background(), "orders/missing.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v", err)
	}
}

func TestListReturnsKeysRelativeToPrefix(t *testing.T) {
	fake := &fakeClient{objects: []storage.ObjectInfo{
		{Key: "exports/users/part-2.parquet", Size: 20},
		{Key: "exports/orders/", Size: 0},
		{Key: "exports/orders/part-1.parquet", Size: 10},
	}}
	store, err := NewWithClient("bucket-a", "/exports/", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	infos, err := store.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if fake.lastPrefix != "exports/" {
		t.Fatalf("list prefix = %q", fake.lastPrefix)
	}
	if len(infos) != 2 || infos[0].Key != "orders/part-1.parquet" || infos[1].Key != "users/part-2.parquet" {
		t.Fatalf("List() = %+v", infos)
	}

	if _, err := store.List(context.Background(), "orders"); err != nil {
		t.Fatalf("List(orders) error = %v", err)
	}
	if fake.lastPrefix != "exports/orders/" {
		t.Fatalf("list prefix = %q", fake.lastPrefix)
	}
}

func TestCheckBucketFailsWhenMissing(t *testing.T) {
	store, err := NewWithClient("bucket-a", "", &fakeClient{bucketExists: false})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.checkBucket(context.Background()); err == nil {
		t.Fatal("expected missing bucket error")
	}
}

func TestParseEndpoint(t *testing.T) {
	endpoint, secure, err := parseEndpoint("https://minio.example.com", false)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "minio.example.com" || !secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}

	endpoint, secure, err = parseEndpoint("localhost:9000", false)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "localhost:9000" || secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}
}

type fakeClient struct {
	lastBucket   string
	lastKey      string
	lastPrefix   string
	bucketExists bool
	getErr       error
	objects      []storage.ObjectInfo
}

func (f *fakeClient) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f.lastBucket = bucket
	f.lastKey = key
	if f.getErr != nil {
		return nil, f.getErr
	}
	return io.NopCloser(strings.NewReader(key)), nil
}

func (f *fakeClient) Stat(_ context.Context, _, key string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{Key: key, Size: 10, LastModified: time.Now().UTC()}, nil
}

func (f *fakeClient) List(_ context.Context, _, prefix string) ([]storage.ObjectInfo, error) {
	f.lastPrefix = prefix
	return f.objects, nil
}

func (f *fakeClient) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}
