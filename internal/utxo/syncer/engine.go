// Package syncer keeps the ClickHouse ledger of a chain in step with its node: it follows the best
// chain, rolls back reorganized blocks, commits blocks crash-consistently and tracks the mempool.
package syncer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/chainstate-backend/internal/clock"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/coinstate"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
)

var (
	// ErrNotLinked is returned when a batch does not extend the committed tip.
	ErrNotLinked = errors.New("batch does not extend the committed tip")
	// ErrRollbackTarget is returned for a rollback target outside [-1, tip].
	ErrRollbackTarget = errors.New("rollback target out of range")
)

// Config tunes an Engine. Zero values take defaults.
type Config struct {
	Coin            model.Coin
	Network         model.Network
	MaxTxIO         int
	MaxBlocks       int
	MaxBytes        int64
	SyncInterval    time.Duration
	MempoolInterval time.Duration
	RepairInterval  time.Duration
	RepairLimit     int
	MempoolWorkers  int
	BurnAge         int64
}

func (c Config) withDefaults() Config {
	if c.MaxTxIO <= 0 {
		c.MaxTxIO = defaultMaxTxIO
	}
	if c.MaxBlocks <= 0 {
		c.MaxBlocks = defaultMaxBlocks
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = defaultMaxBytes
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = defaultSyncInterval
	}
	if c.MempoolInterval <= 0 {
		c.MempoolInterval = defaultMempoolInterval
	}
	if c.RepairInterval <= 0 {
		c.RepairInterval = defaultRepairInterval
	}
	if c.RepairLimit <= 0 {
		c.RepairLimit = defaultRepairLimit
	}
	if c.MempoolWorkers <= 0 {
		c.MempoolWorkers = defaultMempoolWorkers
	}
	if c.BurnAge <= 0 {
		c.BurnAge = defaultBurnAge
	}
	return c
}

// Engine synchronizes one chain.
type Engine struct {
	logger      *zap.Logger
	cfg         Config
	ledger      Ledger
	node        Node
	metrics     Metrics
	converter   *coinstate.Converter
	stamper     *clock.Stamper
	sleep       func(context.Context, time.Duration) error
	blockSignal <-chan struct{}

	lock       chan struct{}
	state      *State
	status     atomic.Pointer[Status]
	lastRepair time.Time
}

// NewEngine builds an Engine. blockSignal may be nil.
func NewEngine(
	ledger Ledger,
	node Node,
	metrics Metrics,
	cfg Config,
	logger *zap.Logger,
	blockSignal <-chan struct{},
) (*Engine, error) {
	if ledger == nil || node == nil {
		return nil, errors.New("syncer ledger and node are required")
	}
	if metrics == nil {
		return nil, errors.New("syncer metrics is required")
	}
	cfg = cfg.withDefaults()
	logger = logger.With(
		zap.String("coin", string(cfg.Coin)),
		zap.String("network", string(cfg.Network)),
	)

	e := &Engine{
		logger:      logger,
		cfg:         cfg,
		ledger:      ledger,
		node:        node,
		metrics:     metrics,
		converter:   coinstate.NewConverter(cfg.Coin),
		stamper:     clock.NewStamper(),
		sleep:       clock.Wait,
		blockSignal: blockSignal,
		lock:        make(chan struct{}, 1),
		state:       newState(),
	}
	e.status.Store(&Status{Coin: cfg.Coin, Network: cfg.Network, Tip: model.EmptyTip})
	return e, nil
}
