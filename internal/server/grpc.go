package server

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCServer builds a server with ExtractionService and the standard
// health service registered. Both the overall and the per-service health
// status start as SERVING; callers flip them on shutdown.
func NewGRPCServer(svc ExtractionServer, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryInterceptor(logger)),
		grpc.MaxRecvMsgSize(96 << 20),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterExtractionServer(s, svc)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s, hs
}
