//go:build integration

package s3

import (
	"context"
	"io"
	"os"
	"testing"
	"time"
)

func TestStoreListsAndReadsAgainstMinIO(t *testing.T) {
	endpoint := envOr("QUERYPILOT_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("QUERYPILOT_TEST_S3_ENDPOINT is not set")
	}

	cfg := Config{
		Endpoint:        endpoint,
		Region:          envOr("QUERYPILOT_TEST_S3_REGION", "us-east-1"),
		Bucket:          envOr("QUERYPILOT_TEST_S3_BUCKET", "querypilot-it"),
		AccessKeyID:     envOr("QUERYPILOT_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey: envOr("QUERYPILOT_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:          envOr("QUERYPILOT_TEST_S3_PREFIX", ""),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	infos, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) == 0 {
		t.Skip("bucket has no objects under the prefix")
	}

	stat, err := store.Stat(ctx, infos[0].Key)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if stat.Size != infos[0].Size {
		t.Fatalf("Stat().Size = %d, List size = %d", stat.Size, infos[0].Size)
	}

	reader, err := store.Get(ctx, infos[0].Key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer func() { _ = reader.Close() }()
	body, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if int64(len(body)) != stat.Size {
		t.Fatalf("read %d bytes, want %d", len(body), stat.Size)
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
