package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	blockinsight7000v1 "github.com/goodnatureofminers/blockinsight7000-proto/pkg/blockinsight7000/v1"
	grpcMiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpcZap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpcRecovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpcCtxTags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	grpcPrometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	gwruntime "github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/goodnatureofminers/chainstate-backend/internal/transport"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/syncer"
)

const (
	healthService  = "chainstate.syncer"
	healthInterval = 5 * time.Second
)

// serveStatus runs the gRPC status server (explorer health and standard health) and, when
// configured, the REST gateway exposing it together with /v1/status.
func serveStatus(ctx context.Context, opts options, engine *syncer.Engine, logger *zap.Logger) error {
	logger = logger.Named("status")
	grpcZap.ReplaceGrpcLoggerV2(logger)

	chain := []grpc.UnaryServerInterceptor{
		grpcRecovery.UnaryServerInterceptor(),
		grpcCtxTags.UnaryServerInterceptor(),
		grpcPrometheus.UnaryServerInterceptor,
		grpcZap.UnaryServerInterceptor(logger),
	}
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(grpcMiddleware.ChainUnaryServer(chain...)),
	)
	grpcPrometheus.EnableHandlingTimeHistogram()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	blockinsight7000v1.RegisterExplorerServiceServer(grpcServer, transport.NewExplorerHandler(engine))
	grpcPrometheus.Register(grpcServer)

	socket, err := net.Listen("tcp", opts.StatusGRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", opts.StatusGRPCAddr, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting gRPC server", zap.String("addr", opts.StatusGRPCAddr))
		if err := grpcServer.Serve(socket); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down gRPC server")
		grpcServer.GracefulStop()
		return nil
	})
	g.Go(func() error {
		err := transport.WatchHealth(ctx, healthServer, healthService, engine, healthInterval, logger)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if opts.StatusAddr != "" {
		gw := gwruntime.NewServeMux()
		dialOpts := []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		}
		if err := blockinsight7000v1.RegisterExplorerServiceHandlerFromEndpoint(ctx, gw, opts.StatusGRPCAddr, dialOpts); err != nil {
			return fmt.Errorf("register explorer gateway: %w", err)
		}
		if err := transport.RegisterStatus(gw, engine); err != nil {
			return fmt.Errorf("register status: %w", err)
		}

		mux := http.NewServeMux()
		mux.Handle("/", gw)
		g.Go(func() error {
			return serveHTTP(ctx, "status", newHTTPServer(opts.StatusAddr, cors.Default().Handler(mux)), logger)
		})
	}
	return g.Wait()
}
