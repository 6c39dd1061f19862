package grpcx

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/meetslot/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewServer returns a gRPC server with tracing, request id and access-log interceptors.
func NewServer(logger *slog.Logger, extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(logger),
		),
	}
	opts = append(opts, extra...)
	srv := grpc.NewServer(opts...)
	reflection.Register(srv)
	return srv
}

// Health serves grpc.health.v1 with a status derived from the same readiness
// checks behind /readyz.
type Health struct {
	srv       *health.Server
	service   string
	readiness runtime.Readiness
	logger    *slog.Logger
}

func RegisterHealth(s *grpc.Server, service string, readiness runtime.Readiness, logger *slog.Logger) *Health {
	h := &Health{
		srv:       health.NewServer(),
		service:   service,
		readiness: readiness,
		logger:    logger,
	}
	healthpb.RegisterHealthServer(s, h.srv)
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Refresh re-runs the readiness checks once and publishes the result.
func (h *Health) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if failures := h.readiness.Failures(ctx); len(failures) > 0 {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		if h.logger != nil {
			h.logger.Warn("grpc health not serving", "failures", failures)
		}
	}
	h.set(st)
	return st
}

// Run refreshes status every interval until ctx is done, then marks the server as shutting down.
func (h *Health) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

func (h *Health) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", st)
	h.srv.SetServingStatus(h.service, st)
}
