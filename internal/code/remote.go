package code

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName    = "alarmd.code.v1.CodeService"
	GenerateMethod = "/" + ServiceName + "/Generate"
)

// Remote asks a code service over gRPC. The caller bounds the call through ctx.
type Remote struct {
	conn grpc.ClientConnInterface
}

func NewRemote(conn grpc.ClientConnInterface) *Remote {
	return &Remote{conn: conn}
}

// DialRemote connects lazily; the first Generate call establishes the
// connection.
func DialRemote(addr string, opts ...grpc.DialOption) (*Remote, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("code - DialRemote - grpc.NewClient: %w", err)
	}
	return NewRemote(conn), conn, nil
}

func (r *Remote) Generate(ctx context.Context) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := r.conn.Invoke(ctx, GenerateMethod, &emptypb.Empty{}, out); err != nil {
		return "", fmt.Errorf("code - Remote.Generate: %w", err)
	}
	if err := Validate(out.GetValue()); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}
