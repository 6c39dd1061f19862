package main

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/md-rashed-zaman/meetslot/libs/config"
	"github.com/md-rashed-zaman/meetslot/libs/grpcx"
	"github.com/md-rashed-zaman/meetslot/libs/runtime"
)

// startGrpcServer serves grpc.health.v1 so orchestrators can probe the service over gRPC.
func startGrpcServer(ctx context.Context, logger *slog.Logger, service string, readiness runtime.Readiness) error {
	port, err := config.Port("GRPC_PORT", "9095")
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpcx.NewServer(logger)
	health := grpcx.RegisterHealth(srv, service, readiness, logger)
	go health.Run(ctx, time.Duration(config.Int("GRPC_HEALTH_INTERVAL_SECONDS", 10, 1, 300))*time.Second)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	return nil
}
