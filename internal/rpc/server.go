package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"blobgw/internal/core"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer returns a gRPC server exposing the Storage service over gateway
// along with the standard health service. Extra options are appended to the
// defaults.
func NewServer(gateway *core.Gateway, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(LogRequest, Recoverer),
	}, opts...)

	srv := grpc.NewServer(opts...)
	RegisterStorageServer(srv, NewService(gateway))

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, healthSrv)

	return srv
}

// Serve runs srv on lis until ctx is done. It then stops accepting new
// calls and waits for in-flight calls, cutting them off after timeout.
func Serve(ctx context.Context, srv *grpc.Server, lis net.Listener, timeout time.Duration) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(lis)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(timeout):
		slog.Warn("Graceful shutdown timed out, closing remaining connections", "timeout", timeout)
		srv.Stop()
		<-stopped
	}

	if err := <-serveErr; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
