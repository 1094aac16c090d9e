package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestGRPC_HealthPerProcess(t *testing.T) {
	admin, err := NewGRPC("127.0.0.1:0", nil)
	require.NoError(t, err)
	require.NoError(t, admin.Start())
	t.Cleanup(func() { _ = admin.Stop() })

	admin.SetServing("process-1", true)
	admin.SetServing("process-2", false)

	conn, err := grpc.NewClient(admin.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "process-1"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "process-2"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "process-9"})
	assert.Error(t, err, "unknown services are NOT_FOUND")
}

func TestGRPC_StopIsIdempotent(t *testing.T) {
	admin, err := NewGRPC("127.0.0.1:0", nil)
	require.NoError(t, err)
	require.NoError(t, admin.Start())

	require.NoError(t, admin.Stop())
	require.NoError(t, admin.Stop())
}

func TestNewGRPC_Validation(t *testing.T) {
	_, err := NewGRPC("nowhere", nil)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
