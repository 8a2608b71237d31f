package storage_test

import (
	"context"
	"io"
	"testing"
	"time"

	"blobgw/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newCachedStorage(t *testing.T, inner storage.StorageEngine, maxBytes int) (*storage.CachedStorage, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	engine, err := storage.NewCachedStorage(context.Background(), inner, storage.RedisOptions{
		Addr:     mr.Addr(),
		TTL:      time.Minute,
		MaxBytes: maxBytes,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine, mr
}

func TestCachedStorageFillsOnDrainedRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, mr := newCachedStorage(t, storage.NewMemoryStorage(), 0)

	require.NoError(t, engine.PutBlob(ctx, "u/s/k", storage.SingleChunk([]byte("cached bytes"))))
	require.False(t, mr.Exists("blob:u/s/k"), "put must not populate the cache")

	got, found := readAll(t, engine, "u/s/k")
	require.True(t, found)
	require.Equal(t, []byte("cached bytes"), got)

	value, err := mr.Get("blob:u/s/k")
	require.NoError(t, err)
	require.Equal(t, "cached bytes", value)
	require.Equal(t, time.Minute, mr.TTL("blob:u/s/k"))
}

func TestCachedStorageServesHits(t *testing.T) {
	t.Parallel()

	engine, mr := newCachedStorage(t, storage.NewMemoryStorage(), 0)

	// Only the cache knows about this key.
	require.NoError(t, mr.Set("blob:u/s/hot", "from redis"))

	got, found := readAll(t, engine, "u/s/hot")
	require.True(t, found)
	require.Equal(t, []byte("from redis"), got)
}

func TestCachedStorageInvalidatesOnPut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, mr := newCachedStorage(t, storage.NewMemoryStorage(), 0)

	require.NoError(t, mr.Set("blob:u/s/k", "stale"))
	require.NoError(t, engine.PutBlob(ctx, "u/s/k", storage.SingleChunk([]byte("fresh"))))
	require.False(t, mr.Exists("blob:u/s/k"))

	got, _ := readAll(t, engine, "u/s/k")
	require.Equal(t, []byte("fresh"), got)
}

func TestCachedStorageSkipsLargePayloads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, mr := newCachedStorage(t, storage.NewMemoryStorage(), 4)

	require.NoError(t, engine.PutBlob(ctx, "u/s/big", storage.SingleChunk([]byte("too large"))))
	got, _ := readAll(t, engine, "u/s/big")
	require.Equal(t, []byte("too large"), got)
	require.False(t, mr.Exists("blob:u/s/big"))
}

func TestCachedStorageBypassesBrokenCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inner := storage.NewMemoryStorage()
	engine, mr := newCachedStorage(t, inner, 0)

	require.NoError(t, inner.PutBlob(ctx, "u/s/k", storage.SingleChunk([]byte("still served"))))
	mr.SetError("server unavailable")

	got, found := readAll(t, engine, "u/s/k")
	require.True(t, found)
	require.Equal(t, []byte("still served"), got)

	require.NoError(t, engine.PutBlob(ctx, "u/s/k2", storage.SingleChunk([]byte("written"))))
}

func TestCachedStorageSlowReadDoesNotCacheReplacedPayload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, mr := newCachedStorage(t, storage.NewMemoryStorage(), 0)
	require.NoError(t, engine.PutBlob(ctx, "u/s/k", storage.SingleChunk([]byte("v1"))))

	// A reader opens v1 and reads its first chunk...
	stream, found, err := engine.GetBlob(ctx, "u/s/k")
	require.NoError(t, err)
	require.True(t, found)
	first, err := stream.NextChunk(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), first)

	// ...a put of v2 completes...
	require.NoError(t, engine.PutBlob(ctx, "u/s/k", storage.SingleChunk([]byte("v2"))))

	// ...and only then does the reader drain.
	_, err = stream.NextChunk(ctx)
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, stream.Close())

	require.False(t, mr.Exists("blob:u/s/k"), "replaced payload was cached")

	got, found := readAll(t, engine, "u/s/k")
	require.True(t, found)
	require.Equal(t, []byte("v2"), got)

	// A read that started after the put fills the cache normally.
	value, err := mr.Get("blob:u/s/k")
	require.NoError(t, err)
	require.Equal(t, "v2", value)
}

func TestCachedStorageReadAfterEachPut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, _ := newCachedStorage(t, storage.NewMemoryStorage(), 0)

	for i := range 5 {
		payload := []byte{byte('a' + i)}
		require.NoError(t, engine.PutBlob(ctx, "u/s/k", storage.SingleChunk(payload)))

		got, found := readAll(t, engine, "u/s/k")
		require.True(t, found)
		require.Equal(t, payload, got)

		// A second read is a cache hit and must agree.
		got, _ = readAll(t, engine, "u/s/k")
		require.Equal(t, payload, got)
	}
}
