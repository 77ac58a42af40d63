package server

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/keiba-tracker/internal/common"
	"github.com/joseph-ayodele/keiba-tracker/internal/repository"
)

// ServiceName is the health service name reported alongside the overall "" status.
const ServiceName = "keiba.Tracker"

// NewGRPCServer returns a server exposing health and reflection. Handler
// errors are logged and mapped onto gRPC status codes.
func NewGRPCServer(logger *zap.Logger) (*grpc.Server, *health.Server) {
	logger = common.LoggerOrGlobal(logger)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryInterceptor(logger)))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(srv)
	return srv, hs
}

func unaryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, _ = common.EnsureRequestID(ctx)
		start := time.Now()
		resp, err := handler(ctx, req)
		log := common.LoggerFromContext(ctx, logger)
		if err != nil {
			log.Warn("grpc.request.failed", zap.String("method", info.FullMethod), zap.Error(err))
			return resp, common.GRPCStatus(err)
		}
		log.Debug("grpc.request", zap.String("method", info.FullMethod), zap.Duration("elapsed", time.Since(start)))
		return resp, nil
	}
}

// WatchDatabase flips the service status with database reachability until
// ctx is done.
func WatchDatabase(ctx context.Context, hs *health.Server, pool repository.Pool, interval time.Duration, logger *zap.Logger) {
	logger = common.LoggerOrGlobal(logger)
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := healthpb.HealthCheckResponse_SERVING
	for {
		next := healthpb.HealthCheckResponse_SERVING
		if err := repository.HealthCheck(ctx, pool, 2*time.Second); err != nil && ctx.Err() == nil {
			next = healthpb.HealthCheckResponse_NOT_SERVING
			if last != next {
				logger.Warn("grpc.health.not_serving", zap.Error(err))
			}
		}
		if last != next {
			hs.SetServingStatus(ServiceName, next)
			last = next
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
