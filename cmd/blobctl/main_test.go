package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"blobgw/internal/core"
	"blobgw/internal/rpc"
	"blobgw/internal/storage"

	"github.com/stretchr/testify/require"
)

func startGateway(t *testing.T) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := rpc.NewServer(core.NewGateway(storage.NewMemoryStorage()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rpc.Serve(ctx, srv, lis, time.Second) }()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return lis.Addr().String()
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPutThenGet(t *testing.T) {
	addr := startGateway(t)

	out, err := execute(t, "hello blob", "put", "--addr", addr, "--usecase", "docs", "--scope", "drafts", "-")
	require.NoError(t, err)
	key := strings.TrimSpace(out)
	require.True(t, strings.HasPrefix(key, "docs/drafts/"), "unexpected key %q", key)

	out, err = execute(t, "", "get", "--addr", addr, "--usecase", "docs", "--scope", "drafts", "--key", key)
	require.NoError(t, err)
	require.Equal(t, "hello blob", out)
}

func TestPutFileWithKeyAndGetToFile(t *testing.T) {
	addr := startGateway(t)
	dir := t.TempDir()

	in := filepath.Join(dir, "in.bin")
	require.NoError(t, os.WriteFile(in, []byte{0, 1, 2, 3}, 0o644))

	out, err := execute(t, "", "put", "--addr", addr, "--usecase", "bin", "--scope", "s", "-k", "raw", in)
	require.NoError(t, err)
	require.Equal(t, "bin/s/raw\n", out)

	dest := filepath.Join(dir, "out.bin")
	_, err = execute(t, "", "get", "--addr", addr, "--usecase", "bin", "--scope", "s", "-k", "raw", "-o", dest)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 1, 2, 3}, got)
}

func TestGetErrors(t *testing.T) {
	addr := startGateway(t)

	_, err := execute(t, "", "get", "--addr", addr, "--usecase", "docs", "--scope", "drafts")
	require.ErrorContains(t, err, "--key is required")

	_, err = execute(t, "", "get", "--addr", addr, "--usecase", "docs", "--scope", "drafts", "--key", "missing")
	require.ErrorContains(t, err, rpc.ReasonNotFound)
}
