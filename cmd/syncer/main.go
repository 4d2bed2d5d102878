// Package main runs the chain state syncer for one chain of the chains file.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goodnatureofminers/chainstate-backend/internal/config"
	"github.com/goodnatureofminers/chainstate-backend/internal/metrics"
	noderpc "github.com/goodnatureofminers/chainstate-backend/internal/pkg/btcd/rpcclient"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/bitcoin"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/repository/clickhouse"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/syncer"
)

type options struct {
	Config         string        `long:"config" env:"CHAINSTATE_CONFIG" description:"path to the chains file" default:"configs/chains.toml"`
	Chain          string        `long:"chain" env:"CHAINSTATE_CHAIN" description:"chain to sync, a table of the chains file" required:"true"`
	Recompute      bool          `long:"recompute" description:"rebuild derived tables, optimize and exit"`
	Resync         bool          `long:"resync" description:"run one full sync pass, optimize and exit"`
	MetricsAddr    string        `long:"metrics-addr" env:"CHAINSTATE_METRICS_ADDR" description:"address for metrics server" default:":2112"`
	StatusAddr     string        `long:"status-addr" env:"CHAINSTATE_STATUS_ADDR" description:"address for the REST status server, empty disables it" default:":8001"`
	StatusGRPCAddr string        `long:"status-grpc-addr" env:"CHAINSTATE_STATUS_GRPC_ADDR" description:"address for the gRPC status server" default:":8000"`
	ZMQAddr        string        `long:"zmq-addr" env:"CHAINSTATE_ZMQ_ADDR" description:"node zmq hashblock endpoint, overrides the chains file"`
	LogFile        string        `long:"log-file" env:"CHAINSTATE_LOG_FILE" description:"also write JSON logs to this rotated file"`
	RPCTimeout     time.Duration `long:"rpc-timeout" env:"CHAINSTATE_RPC_TIMEOUT" description:"timeout of a single node request" default:"30s"`
	RPCRetry       time.Duration `long:"rpc-retry" env:"CHAINSTATE_RPC_RETRY" description:"interval between node request retries" default:"5s"`
	RPCRPS         int           `long:"rpc-rps" env:"CHAINSTATE_RPC_RPS" description:"node requests per second, 0 is unlimited" default:"0"`
	BatchMaxTxIO   int           `long:"batch-max-txio" env:"CHAINSTATE_BATCH_MAX_TXIO" description:"inputs plus outputs per commit batch" default:"100000"`
	BatchMaxBlocks int           `long:"batch-max-blocks" env:"CHAINSTATE_BATCH_MAX_BLOCKS" description:"blocks per commit batch" default:"5000"`
	BatchMaxBytes  int64         `long:"batch-max-bytes" env:"CHAINSTATE_BATCH_MAX_BYTES" description:"serialized block bytes per commit batch" default:"268435456"`
}

func main() {
	opts := options{}
	if _, err := flags.ParseArgs(&opts, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(opts.LogFile)
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	if opts.Recompute && opts.Resync {
		logger.Fatal("--recompute and --resync are exclusive")
	}

	if err := run(ctx, opts, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("syncer failed", zap.Error(err))
	}
}

func run(ctx context.Context, opts options, logger *zap.Logger) error {
	chains, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	chain, err := chains.Chain(opts.Chain)
	if err != nil {
		return err
	}
	logger = logger.With(zap.String("chain", opts.Chain))

	repo, err := clickhouse.NewRepository(chain.ClickhouseDSN, chain.Coin, chain.Network, metrics.NewClickhouseRepository())
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Warn("close repository", zap.Error(err))
		}
	}()

	node, shutdown, err := newNode(chain, opts, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	zmqAddr := opts.ZMQAddr
	if zmqAddr == "" {
		zmqAddr = chain.ZMQAddr
	}
	blockSignal, err := startBlockSignal(ctx, zmqAddr, logger)
	if err != nil {
		return fmt.Errorf("start block signal: %w", err)
	}

	engine, err := syncer.NewEngine(repo, node, metrics.NewSyncer(chain.Coin, chain.Network), syncer.Config{
		Coin:      chain.Coin,
		Network:   chain.Network,
		MaxTxIO:   opts.BatchMaxTxIO,
		MaxBlocks: opts.BatchMaxBlocks,
		MaxBytes:  opts.BatchMaxBytes,
	}, logger.Named("syncer"), blockSignal)
	if err != nil {
		return err
	}

	switch {
	case opts.Recompute:
		logger.Info("recomputing derived tables")
		return engine.Recompute(ctx)
	case opts.Resync:
		logger.Info("running one sync pass")
		return engine.Once(ctx)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveMetrics(ctx, opts.MetricsAddr, logger)
	})
	g.Go(func() error {
		return serveStatus(ctx, opts, engine, logger)
	})
	g.Go(func() error {
		return engine.Run(ctx)
	})
	return g.Wait()
}

// newNode builds the node client stack: HTTP JSON-RPC, per-method metrics, retries and the dialect.
func newNode(chain config.Chain, opts options, logger *zap.Logger) (*bitcoin.Node, func(), error) {
	dialect, err := bitcoin.ParseDialect(chain.NodeDialect())
	if err != nil {
		return nil, nil, err
	}
	var decoder bitcoin.ScriptDecoder
	if dialect == bitcoin.DialectBitcoind {
		if decoder, err = bitcoin.NewScriptDecoder(chain.Network); err != nil {
			return nil, nil, fmt.Errorf("init script decoder: %w", err)
		}
	}

	client, err := noderpc.NewHTTPClient(chain.RPCURL, chain.RPCUser, chain.RPCPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("init node rpc client: %w", err)
	}
	shutdown := func() {
		client.Shutdown()
		client.WaitForShutdown()
	}

	observed := noderpc.NewObservedClient(client, metrics.NewRPCClient(chain.Coin, chain.Network))
	rpc := bitcoin.NewRPCClient(observed, bitcoin.RPCConfig{
		Timeout:           opts.RPCTimeout,
		RetryInterval:     opts.RPCRetry,
		RequestsPerSecond: opts.RPCRPS,
	}, logger.Named("rpc"))

	node, err := bitcoin.NewNode(rpc, dialect, decoder)
	if err != nil {
		shutdown()
		return nil, nil, err
	}
	return node, shutdown, nil
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return serveHTTP(ctx, "metrics", newHTTPServer(addr, mux), logger)
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}
}

// serveHTTP runs srv until ctx ends, then shuts it down.
func serveHTTP(ctx context.Context, name string, srv *http.Server, logger *zap.Logger) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server", zap.String("server", name), zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("server", name), zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}
