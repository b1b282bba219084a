package grpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

// switchChecker fails while down is set
type switchChecker struct {
	down  atomic.Bool
	calls atomic.Int32
}

func (c *switchChecker) Health(context.Context) error {
	c.calls.Add(1)
	if c.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func startServer(t *testing.T, checker HealthChecker) (*Server, healthpb.HealthClient) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	server := newServer(checker, lis, zap.NewNop())
	go func() { _ = server.Serve() }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return server, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func TestHealth_ServingBeforeFirstProbe(t *testing.T) {
	_, client := startServer(t, &switchChecker{})

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))
}

func TestWatchHealth_FollowsStore(t *testing.T) {
	checker := &switchChecker{}
	server, client := startServer(t, checker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.WatchHealth(ctx, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		return check(t, client, ServiceName) == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	checker.down.Store(true)
	assert.Eventually(t, func() bool {
		return check(t, client, ServiceName) == healthpb.HealthCheckResponse_NOT_SERVING &&
			check(t, client, "") == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	checker.down.Store(false)
	assert.Eventually(t, func() bool {
		return check(t, client, ServiceName) == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchHealth_StreamsTransitions(t *testing.T) {
	checker := &switchChecker{}
	checker.down.Store(true)
	server, client := startServer(t, checker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := client.Watch(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)

	// Unknown until the first probe registers the service
	first, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVICE_UNKNOWN, first.Status)

	go server.WatchHealth(ctx, 20*time.Millisecond)

	next, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, next.Status)
}

func TestWatchHealth_StopsOnCancel(t *testing.T) {
	checker := &switchChecker{}
	server, _ := startServer(t, checker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		server.WatchHealth(ctx, time.Hour)
		close(done)
	}()

	assert.Eventually(t, func() bool { return checker.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchHealth did not return after cancel")
	}
}

func TestHealth_UnknownService(t *testing.T) {
	_, client := startServer(t, &switchChecker{})

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "nope"})

	assert.Error(t, err)
}
