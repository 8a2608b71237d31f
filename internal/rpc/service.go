package rpc

import (
	"context"

	"blobgw/internal/core"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "blobgw.storage.v1.Storage"

const (
	putBlobMethod = "/" + ServiceName + "/PutBlob"
	getBlobMethod = "/" + ServiceName + "/GetBlob"
)

// StorageServer is the server API of the Storage service.
type StorageServer interface {
	PutBlob(context.Context, *PutBlobRequest) (*PutBlobResponse, error)
	GetBlob(context.Context, *GetBlobRequest) (*GetBlobResponse, error)
}

// RegisterStorageServer registers srv with s.
func RegisterStorageServer(s grpc.ServiceRegistrar, srv StorageServer) {
	s.RegisterService(&storageServiceDesc, srv)
}

var storageServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StorageServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PutBlob", Handler: putBlobHandler},
		{MethodName: "GetBlob", Handler: getBlobHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func putBlobHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PutBlobRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StorageServer).PutBlob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: putBlobMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StorageServer).PutBlob(ctx, req.(*PutBlobRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getBlobHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetBlobRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StorageServer).GetBlob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getBlobMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StorageServer).GetBlob(ctx, req.(*GetBlobRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Service binds the Storage service to a Gateway.
type Service struct {
	gateway *core.Gateway
}

func NewService(gateway *core.Gateway) *Service {
	return &Service{gateway: gateway}
}

func (s *Service) PutBlob(ctx context.Context, req *PutBlobRequest) (*PutBlobResponse, error) {
	var identifier string
	if req.Key != nil {
		identifier = *req.Key
	}

	key, err := s.gateway.Put(ctx, toScope(req.Scope), identifier, req.Contents)
	if err != nil {
		return nil, toStatus(err)
	}
	return &PutBlobResponse{Key: key}, nil
}

func (s *Service) GetBlob(ctx context.Context, req *GetBlobRequest) (*GetBlobResponse, error) {
	contents, err := s.gateway.Get(ctx, toScope(req.Scope), req.Key)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetBlobResponse{Contents: contents}, nil
}

func toScope(scope *Scope) *core.Scope {
	if scope == nil {
		return nil
	}
	return &core.Scope{Usecase: scope.Usecase, Scope: scope.Scope}
}
