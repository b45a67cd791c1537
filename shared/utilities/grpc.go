package utilities

import (
	"context"
	"errors"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer exposes the standard gRPC health service for a single named service.
type HealthServer struct {
	name   string
	server *grpc.Server
	health *health.Server
	logger *zerolog.Logger
}

// NewHealthServer creates a gRPC server with only the health service registered.
// Both the overall ("") and the named service start as SERVING.
func NewHealthServer(name string, logger *zerolog.Logger) *HealthServer {
	grpcServer := grpc.NewServer()
	healthServer := RegisterHealthServer(grpcServer, name)

	return &HealthServer{
		name:   name,
		server: grpcServer,
		health: healthServer,
		logger: logger,
	}
}

// RegisterHealthServer registers the gRPC health check service.
func RegisterHealthServer(grpcServer *grpc.Server, name string) *health.Server {
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	return healthServer
}

// Serve blocks serving on lis until ctx is cancelled, then reports NOT_SERVING
// and stops gracefully.
func (s *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.server.GracefulStop()
	}()

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("grpc health server listening")

	if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}

	return nil
}
