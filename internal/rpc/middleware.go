package rpc

import (
	"context"
	"log/slog"
	"time"

	"blobgw/internal/reqlog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// outcomeOf classifies a finished call. Failures carrying a request-side
// reason are the caller's fault; everything else is the server's.
func outcomeOf(err error, reason string) reqlog.Outcome {
	if err == nil {
		return reqlog.Succeeded
	}
	switch reason {
	case ReasonMissingScope, ReasonInvalidKey, ReasonNotFound:
		return reqlog.CallerFault
	}
	return reqlog.Failed
}

// LogRequest is an interceptor that logs every unary call once it completes.
func LogRequest(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	entry := reqlog.Entry{Transport: "grpc", Method: info.FullMethod}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		entry.IP = p.Addr.String()
	}

	start := time.Now()
	resp, err := handler(ctx, req)

	entry.Duration = time.Since(start)
	entry.Code = status.Code(err).String()
	entry.Reason = Reason(err)
	entry.Outcome = outcomeOf(err, entry.Reason)
	entry.Err = err
	entry.Log(ctx)

	return resp, err
}

// Recoverer is an interceptor that turns a panicking handler into an
// Internal error instead of crashing the process.
func Recoverer(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			slog.Error("Internal error in RPC handler", "method", info.FullMethod, "error", rvr)
			resp, err = nil, status.Error(codes.Internal, "internal error")
		}
	}()

	return handler(ctx, req)
}
