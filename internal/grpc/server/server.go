// Package server exposes the gRPC health service of the file manager.
package server

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ServiceName is the health service name reported next to the overall ("")
// status.
const ServiceName = "file_manager.FileManager"

var netListen = net.Listen

type Server struct {
	port   string
	grpc   *grpc.Server
	health *health.Server
}

func New(port string) *Server {
	gs := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    2 * time.Minute,
			Timeout: 10 * time.Second,
		}),
	)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)

	s := &Server{port: port, grpc: gs, health: hs}
	s.SetServing(false)
	return s
}

func (s *Server) Listen() (net.Listener, error) {
	return netListen("tcp", ":"+s.port)
}

// Serve blocks until the server stops. A graceful stop is reported as
// net.ErrClosed.
func (s *Server) Serve(listener net.Listener) error {
	log.Info().Str("port", s.port).Msg("gRPC health server is starting")
	err := s.grpc.Serve(listener)
	if err == nil || errors.Is(err, grpc.ErrServerStopped) {
		return net.ErrClosed
	}
	return err
}

func (s *Server) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Shutdown reports NOT_SERVING to watchers and stops gracefully, falling back
// to a hard stop when ctx expires first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.grpc.Stop()
		<-done
		return ctx.Err()
	}
}
