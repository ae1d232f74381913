// Package grpc serves dismissal codes over gRPC for remote Generator sources.
package grpc

import (
	"context"
	"time"

	"github.com/Raimguzhinov/alarmd/internal/code"
	"github.com/Raimguzhinov/alarmd/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type CodeServiceServer interface {
	Generate(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: code.ServiceName,
	HandlerType: (*CodeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Generate",
			Handler:    generateHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "alarmd/code/v1/code.proto",
}

func generateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CodeServiceServer).Generate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: code.GenerateMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CodeServiceServer).Generate(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

type server struct {
	source  code.Source
	latency time.Duration
	logger  *logger.Logger
}

// New wraps source as a code service. latency simulates a slow backend.
func New(source code.Source, latency time.Duration, l *logger.Logger) CodeServiceServer {
	return &server{
		source:  source,
		latency: latency,
		logger:  l.Component("code/grpc"),
	}
}

func Register(gs grpc.ServiceRegistrar, srv CodeServiceServer) {
	gs.RegisterService(&ServiceDesc, srv)
}

func (s *server) Generate(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	if s.latency > 0 {
		t := time.NewTimer(s.latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, status.FromContextError(ctx.Err()).Err()
		}
	}

	v, err := s.source.Generate(ctx)
	if err != nil {
		s.logger.Error("grpc.Generate", logger.Err(err))
		return nil, status.Errorf(codes.Internal, "generate code: %v", err)
	}
	return wrapperspb.String(v), nil
}
