package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Raimguzhinov/alarmd/internal/code"
	"github.com/Raimguzhinov/alarmd/pkg/logger"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fixedSource string

func (f fixedSource) Generate(context.Context) (string, error) {
	return string(f), nil
}

func startServer(t *testing.T, srv CodeServiceServer) *code.Remote {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	Register(gs, srv)
	go func() {
		_ = gs.Serve(lis)
	}()
	t.Cleanup(gs.Stop)

	remote, conn, err := code.DialRemote("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return remote
}

func TestServer_Generate(t *testing.T) {
	remote := startServer(t, New(code.Local{}, 0, logger.Discard()))

	v, err := remote.Generate(context.Background())
	require.NoError(t, err)
	assert.NoError(t, code.Validate(v))
}

func TestServer_MalformedCodeRejectedByClient(t *testing.T) {
	remote := startServer(t, New(fixedSource("nope"), 0, logger.Discard()))

	_, err := remote.Generate(context.Background())
	assert.ErrorIs(t, err, code.ErrMalformed)
}

func TestServer_LatencyHonoursDeadline(t *testing.T) {
	remote := startServer(t, New(code.Local{}, time.Second, logger.Discard()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := remote.Generate(ctx)
	require.Error(t, err)
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))
}

func TestGenerator_FallsBackWhenRemoteIsSlow(t *testing.T) {
	remote := startServer(t, New(fixedSource("SLOWCODE"), time.Second, logger.Discard()))

	g := code.NewGenerator(clock.NewMock(), logger.Discard(),
		code.WithPrimary(remote),
		code.WithTimeout(50*time.Millisecond),
	)

	c := g.Generate(context.Background(), "a")
	assert.NoError(t, code.Validate(c.Code))
	assert.NotEqual(t, "SLOWCODE", c.Code)
}
