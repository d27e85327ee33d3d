// ABOUTME: Tests for the gRPC health service exposed next to the HTTP server
// ABOUTME: Serves over an in-memory bufconn listener

package gateway

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/2389/webchat-gateway/internal/agent"
)

func TestGRPCHealth(t *testing.T) {
	cfg := testConfig()
	cfg.Server.GRPCAddr = "127.0.0.1:0"
	gw, err := New(cfg, Deps{Responder: agent.Responder()}, testLogger())
	require.NoError(t, err)
	require.NotNil(t, gw.grpcServer)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = gw.grpcServer.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	require.NoError(t, gw.Shutdown(ctx))
}

func TestGRPCHealth_DisabledByDefault(t *testing.T) {
	gw, err := New(testConfig(), Deps{Responder: agent.Responder()}, testLogger())
	require.NoError(t, err)
	defer func() { _ = gw.Shutdown(context.Background()) }()

	assert.Nil(t, gw.grpcServer)
}
