package storage_test

import (
	"context"
	"os"
	"testing"

	"blobgw/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// newMinioStorage connects to the server named by BLOBGW_TEST_MINIO_ENDPOINT
// and skips the test when it is unset.
func newMinioStorage(t *testing.T) *storage.MinioStorage {
	t.Helper()

	endpoint := os.Getenv("BLOBGW_TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("BLOBGW_TEST_MINIO_ENDPOINT not set")
	}

	engine, err := storage.NewMinioStorage(context.Background(), storage.MinioOptions{
		Endpoint:  endpoint,
		AccessKey: getenv("BLOBGW_TEST_MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey: getenv("BLOBGW_TEST_MINIO_SECRET_KEY", "minioadmin"),
		Bucket:    "blobgw-test",
	}, 7)
	require.NoError(t, err, "NewMinioStorage error")
	return engine
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func TestMinioStorageRoundTrip(t *testing.T) {
	engine := newMinioStorage(t)
	ctx := context.Background()

	key := "test/minio/" + uuid.NewString()
	payload := []byte("stored through the S3 API in several chunks")
	require.NoError(t, engine.PutBlob(ctx, key, storage.SingleChunk(payload)))

	got, found := readAll(t, engine, key)
	require.True(t, found)
	require.Equal(t, payload, got)
}

func TestMinioStorageMissingKey(t *testing.T) {
	engine := newMinioStorage(t)

	_, found := readAll(t, engine, "test/minio/"+uuid.NewString())
	require.False(t, found)
}
