package grpchealth

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(zap.NewNop())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return srv, lis.Addr().String()
}

func TestCheckReportsServingStatus(t *testing.T) {
	srv, addr := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	checker, err := Dial(ctx, addr, zap.NewNop())
	require.NoError(t, err)
	defer checker.Close()

	serving, err := checker.Check(ctx)
	require.NoError(t, err)
	require.True(t, serving)

	srv.SetServing(false)
	serving, err = checker.Check(ctx)
	require.NoError(t, err)
	require.False(t, serving)
}

func TestCheckFailsWithoutServer(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	checker, err := Dial(ctx, addr, zap.NewNop())
	require.NoError(t, err)
	defer checker.Close()

	serving, err := checker.Check(ctx)
	require.Error(t, err)
	require.False(t, serving)
}
