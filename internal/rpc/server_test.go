package rpc_test

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"blobgw/internal/core"
	"blobgw/internal/rpc"
	"blobgw/internal/storage"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// countingEngine counts backend calls and can be told to fail writes.
type countingEngine struct {
	*storage.MemoryStorage
	calls  atomic.Int32
	putErr error
}

func (e *countingEngine) PutBlob(ctx context.Context, key string, src storage.ChunkSource) error {
	e.calls.Add(1)
	if e.putErr != nil {
		return e.putErr
	}
	return e.MemoryStorage.PutBlob(ctx, key, src)
}

func (e *countingEngine) GetBlob(ctx context.Context, key string) (storage.ChunkStream, bool, error) {
	e.calls.Add(1)
	return e.MemoryStorage.GetBlob(ctx, key)
}

// newTestClient serves the Storage service over an in-memory listener and
// returns a client connected to it.
func newTestClient(t *testing.T, engine storage.StorageEngine) *rpc.Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := rpc.NewServer(core.NewGateway(engine))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rpc.Serve(ctx, srv, lis, time.Second) }()

	client, err := rpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err, "NewClient error")

	t.Cleanup(func() {
		_ = client.Close()
		cancel()
		require.NoError(t, <-done, "Serve error")
	})
	return client
}

func ptr(s string) *string { return &s }

var thumbnails = &rpc.Scope{Usecase: "img", Scope: "thumbnails"}

func TestPutGetBlob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t, storage.NewMemoryStorage())

	contents := []byte("\x89PNG\r\n\x1a\n...")
	put, err := client.PutBlob(ctx, &rpc.PutBlobRequest{Scope: thumbnails, Contents: contents})
	require.NoError(t, err, "PutBlob error")
	require.True(t, strings.HasPrefix(put.Key, "img/thumbnails/"), "unexpected key %q", put.Key)

	got, err := client.GetBlob(ctx, &rpc.GetBlobRequest{Scope: thumbnails, Key: put.Key})
	require.NoError(t, err, "GetBlob error")
	require.Equal(t, contents, got.Contents)
}

func TestPutBlobExplicitKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t, storage.NewMemoryStorage())

	put, err := client.PutBlob(ctx, &rpc.PutBlobRequest{Scope: thumbnails, Key: ptr("cat"), Contents: []byte("meow")})
	require.NoError(t, err)
	require.Equal(t, "img/thumbnails/cat", put.Key)

	got, err := client.GetBlob(ctx, &rpc.GetBlobRequest{Scope: thumbnails, Key: "cat"})
	require.NoError(t, err)
	require.Equal(t, []byte("meow"), got.Contents)

	// An empty key is treated like an omitted one.
	put, err = client.PutBlob(ctx, &rpc.PutBlobRequest{Scope: thumbnails, Key: ptr(""), Contents: []byte("x")})
	require.NoError(t, err)
	require.NotEqual(t, "img/thumbnails/", put.Key)
}

func TestErrorsMapToUnknownWithReason(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine := &countingEngine{MemoryStorage: storage.NewMemoryStorage()}
	client := newTestClient(t, engine)

	tests := []struct {
		name    string
		call    func() error
		reason  string
		message string
	}{
		{
			name: "put without scope",
			call: func() error {
				_, err := client.PutBlob(ctx, &rpc.PutBlobRequest{Contents: []byte("x")})
				return err
			},
			reason:  rpc.ReasonMissingScope,
			message: "scope is required",
		},
		{
			name: "get without scope",
			call: func() error {
				_, err := client.GetBlob(ctx, &rpc.GetBlobRequest{Key: "k"})
				return err
			},
			reason:  rpc.ReasonMissingScope,
			message: "scope is required",
		},
		{
			name: "get missing key",
			call: func() error {
				_, err := client.GetBlob(ctx, &rpc.GetBlobRequest{Scope: thumbnails, Key: "nonexistent"})
				return err
			},
			reason:  rpc.ReasonNotFound,
			message: "not found: img/thumbnails/nonexistent",
		},
		{
			name: "separator in key",
			call: func() error {
				_, err := client.GetBlob(ctx, &rpc.GetBlobRequest{Scope: thumbnails, Key: "a/b"})
				return err
			},
			reason:  rpc.ReasonInvalidKey,
			message: `invalid key: key "a/b" contains "/"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)

			st, ok := status.FromError(err)
			require.True(t, ok)
			require.Equal(t, codes.Unknown, st.Code())
			require.Equal(t, tt.message, st.Message())
			require.Equal(t, tt.reason, rpc.Reason(err))
		})
	}

	// Only the not-found lookup reached the backend.
	require.Equal(t, int32(1), engine.calls.Load())
}

func TestBackendFailureCarriesCause(t *testing.T) {
	t.Parallel()

	engine := &countingEngine{MemoryStorage: storage.NewMemoryStorage(), putErr: errors.New("bucket is read-only")}
	client := newTestClient(t, engine)

	_, err := client.PutBlob(context.Background(), &rpc.PutBlobRequest{Scope: thumbnails, Key: ptr("k"), Contents: []byte("x")})
	require.Error(t, err)
	require.Equal(t, codes.Unknown, status.Code(err))
	require.Equal(t, rpc.ReasonBackendWriteFailed, rpc.Reason(err))
	require.Contains(t, status.Convert(err).Message(), "bucket is read-only")
}

func TestHealthService(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, storage.NewMemoryStorage())

	resp, err := healthpb.NewHealthClient(client.Conn()).Check(
		context.Background(),
		&healthpb.HealthCheckRequest{Service: rpc.ServiceName},
		grpc.CallContentSubtype("proto"),
	)
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestReasonWithoutDetails(t *testing.T) {
	t.Parallel()

	require.Empty(t, rpc.Reason(errors.New("plain")))
	require.Empty(t, rpc.Reason(status.Error(codes.Internal, "boom")))
}

func TestRecovererReturnsInternal(t *testing.T) {
	t.Parallel()

	info := &grpc.UnaryServerInfo{FullMethod: "/" + rpc.ServiceName + "/GetBlob"}
	resp, err := rpc.Recoverer(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	require.Nil(t, resp)
	require.Equal(t, codes.Internal, status.Code(err))
}
