package transport

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/goodnatureofminers/chainstate-backend/internal/clock"
)

// WatchHealth mirrors the sync health of source into the standard gRPC health service until ctx
// ends. The overall server status and service follow the same value.
func WatchHealth(ctx context.Context, srv *health.Server, service string, source StatusSource, interval time.Duration, logger *zap.Logger) error {
	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		next := healthpb.HealthCheckResponse_NOT_SERVING
		if source.Status().Healthy() {
			next = healthpb.HealthCheckResponse_SERVING
		}
		if next != last {
			srv.SetServingStatus("", next)
			srv.SetServingStatus(service, next)
			logger.Info("health changed", zap.String("status", next.String()))
			last = next
		}
		if err := clock.Wait(ctx, interval); err != nil {
			srv.Shutdown()
			return err
		}
	}
}
