package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startBufconn(t *testing.T, s *Server) (grpc_health_v1.HealthClient, <-chan error) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return grpc_health_v1.NewHealthClient(conn), errCh
}

func check(t *testing.T, hc grpc_health_v1.HealthClient, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := hc.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestServingStatus(t *testing.T) {
	s := New("0")
	hc, errCh := startBufconn(t, s)

	for _, service := range []string{"", ServiceName} {
		assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, check(t, hc, service))
	}

	s.SetServing(true)
	for _, service := range []string{"", ServiceName} {
		assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check(t, hc, service))
	}

	s.SetServing(false)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, check(t, hc, ""))

	require.NoError(t, s.Shutdown(context.Background()))
	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, net.ErrClosed))
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestShutdownWithExpiredContext(t *testing.T) {
	s := New("0")
	_, errCh := startBufconn(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestListen(t *testing.T) {
	s := New("0")
	lis, err := s.Listen()
	require.NoError(t, err)
	_ = lis.Close()

	old := netListen
	netListen = func(network, address string) (net.Listener, error) {
		return nil, errors.New("listen fail")
	}
	defer func() { netListen = old }()

	_, err = s.Listen()
	assert.EqualError(t, err, "listen fail")
}
