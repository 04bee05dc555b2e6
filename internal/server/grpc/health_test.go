package grpcserver

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startOps(t *testing.T, checks ...Check) (*Ops, healthpb.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ops := New(zaptest.NewLogger(t), Options{Reflection: true, PingTimeout: time.Second}, checks...)
	go func() { _ = ops.Serve(lis) }()
	t.Cleanup(func() { ops.Stop(time.Second) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return ops, healthpb.NewHealthClient(conn)
}

func statusOf(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := c.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestOps_FlipsWithPings(t *testing.T) {
	t.Parallel()
	var pgDown atomic.Bool
	pg := Check{Name: "postgres", Ping: func(context.Context) error {
		if pgDown.Load() {
			return errors.New("connection refused")
		}
		return nil
	}}
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	rd := Check{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }}

	ops, client := startOps(t, pg, rd)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, statusOf(t, client, ""), "not serving before the first probe")

	require.True(t, ops.Probe(context.Background()))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, statusOf(t, client, ""))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, statusOf(t, client, ServiceName))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, statusOf(t, client, "redis"))

	pgDown.Store(true)
	require.False(t, ops.Probe(context.Background()))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, statusOf(t, client, "postgres"))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, statusOf(t, client, "redis"))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, statusOf(t, client, ""))

	pgDown.Store(false)
	mr.Close()
	require.False(t, ops.Probe(context.Background()))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, statusOf(t, client, "postgres"))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, statusOf(t, client, "redis"))
}

func TestOps_RunStopsWithContext(t *testing.T) {
	t.Parallel()
	var pings atomic.Int32
	ops, client := startOps(t, Check{Name: "postgres", Ping: func(context.Context) error {
		pings.Add(1)
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ops.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return pings.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, statusOf(t, client, ""))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestOps_UnknownService(t *testing.T) {
	t.Parallel()
	_, client := startOps(t)
	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "nope"})
	require.Error(t, err)
}
