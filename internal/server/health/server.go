package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ju4n97/estimator/internal/xfs"
)

// ServiceName is the name the estimator reports its health under.
const ServiceName = "estimator"

// Server exposes the gRPC health checking protocol on a unix socket.
type Server struct {
	path   string
	grpc   *grpc.Server
	health *health.Server
}

// New creates a health server. The estimator starts as NOT_SERVING.
func New(path string) *Server {
	s := &Server{
		path:   path,
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.SetServing(false)

	return s
}

// SetServing updates the reported status of the estimator.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve answers health checks until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	if err := xfs.Remove(s.path); err != nil {
		return err
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.path, err)
	}
	defer func() {
		if err := xfs.Remove(s.path); err != nil {
			slog.Error("Failed to remove health socket", "socket", s.path, "error", err)
		}
	}()

	stop := context.AfterFunc(ctx, func() {
		s.health.Shutdown()
		s.grpc.GracefulStop()
	})
	defer stop()

	slog.Info("Serving health checks", "socket", s.path)

	return s.grpc.Serve(ln)
}
