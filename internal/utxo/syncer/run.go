package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/coinstate"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
)

// Start prepares the ledger: leftover staging tables are dropped, derived tables are created,
// interrupted commits are rolled back and the mempool set is loaded.
func (e *Engine) Start(ctx context.Context) error {
	swept, err := e.ledger.SweepStaging(ctx)
	if err != nil {
		return fmt.Errorf("sweep staging tables: %w", err)
	}
	if swept > 0 {
		e.logger.Info("dropped stale staging tables", zap.Int("tables", swept))
	}
	if err := e.ledger.EnsureDerivedTables(ctx, false); err != nil {
		return fmt.Errorf("ensure derived tables: %w", err)
	}

	return e.WithLock(ctx, func(st *State) error {
		if err := e.recover(ctx, st); err != nil {
			return fmt.Errorf("recover: %w", err)
		}
		if err := e.seedMempool(ctx, st); err != nil {
			return err
		}
		e.logger.Info("syncer started",
			zap.Int64("tip", st.Tip.Height),
			zap.Int("mempool", len(st.Mempool)),
		)
		e.publish(st)
		return nil
	})
}

// Run syncs the chain and the mempool until ctx ends. Cycle errors are logged and retried.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.syncLoop(ctx)
	})
	g.Go(func() error {
		return e.mempoolLoop(ctx)
	})
	return g.Wait()
}

// Once runs a single pass of every task and optimizes the base tables.
func (e *Engine) Once(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	if err := e.Sync(ctx); err != nil {
		return err
	}
	if err := e.Repair(ctx); err != nil {
		return err
	}
	if err := e.syncMempool(ctx); err != nil {
		return err
	}
	return e.ledger.Optimize(ctx)
}

// Recompute rebuilds the derived tables from the coins ledger.
func (e *Engine) Recompute(ctx context.Context) error {
	if err := e.ledger.EnsureDerivedTables(ctx, true); err != nil {
		return fmt.Errorf("recompute derived tables: %w", err)
	}
	return e.ledger.Optimize(ctx)
}

func (e *Engine) syncLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.Sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Warn("sync cycle failed", zap.Error(err))
		}
		if time.Since(e.lastRepair) >= e.cfg.RepairInterval {
			if err := e.Repair(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Warn("repair failed", zap.Error(err))
			}
		}
		if err := e.wait(ctx, e.cfg.SyncInterval); err != nil {
			return err
		}
	}
}

func (e *Engine) mempoolLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.syncMempool(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Warn("mempool cycle failed", zap.Error(err))
		}
		if err := e.sleep(ctx, e.cfg.MempoolInterval); err != nil {
			return err
		}
	}
}

func (e *Engine) wait(ctx context.Context, d time.Duration) error {
	if e.blockSignal == nil {
		return e.sleep(ctx, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.blockSignal:
		return nil
	case <-timer.C:
		return nil
	}
}

// Sync brings the ledger to the node tip: it rolls back blocks left uncommitted by a failed cycle,
// rolls back diverged blocks, commits every new block and burns aged governance payouts.
func (e *Engine) Sync(ctx context.Context) error {
	started := time.Now()
	return e.WithLock(ctx, func(st *State) (err error) {
		defer func() {
			e.metrics.ObserveCycle(err, started)
			st.lastSync = time.Now()
			st.lastErr = err
			e.publish(st)
		}()

		if err := e.recover(ctx, st); err != nil {
			return fmt.Errorf("recover: %w", err)
		}

		committed := 0
		for ctx.Err() == nil {
			batch, ok := e.takePrefetch(ctx, st)
			if !ok {
				first, more, err := e.nextBlock(ctx, st)
				if err != nil {
					return err
				}
				if !more {
					break
				}
				if batch, err = e.fetchBatch(ctx, first); err != nil {
					return err
				}
			}

			e.startPrefetch(ctx, st, batch[len(batch)-1])
			if err := e.commit(ctx, st, batch); err != nil {
				st.discardPrefetch()
				return fmt.Errorf("commit %d..%d: %w", batch[0].Height, batch[len(batch)-1].Height, err)
			}
			committed += len(batch)
			e.logger.Info("committed blocks",
				zap.Int64("from", batch[0].Height),
				zap.Int64("to", st.Tip.Height),
				zap.Int("blocks", len(batch)),
			)
		}
		st.discardPrefetch()
		if err := ctx.Err(); err != nil {
			return err
		}

		if committed > 0 {
			if err := e.burn(ctx, st); err != nil {
				return err
			}
		}
		return nil
	})
}

// burn moves PKT governance payouts that stayed unspent for BurnAge blocks to burned.
func (e *Engine) burn(ctx context.Context, st *State) error {
	if e.cfg.Coin != model.PKT {
		return nil
	}
	below := st.Tip.Height - e.cfg.BurnAge
	if below <= 0 {
		return nil
	}
	n, err := e.ledger.BurnGovernancePayouts(ctx, below, e.stamper.Next(1))
	if err != nil {
		return fmt.Errorf("burn governance payouts: %w", err)
	}
	e.metrics.ObserveBurn(n)
	if n > 0 {
		e.logger.Info("burned governance payouts", zap.Int("coins", n), zap.Int64("below", below))
	}
	return nil
}

// Repair re-applies heights at or below the tip that lack a complete chain entry. Deltas are merged
// with no-regress combiners since later blocks may already have moved their outputs on.
func (e *Engine) Repair(ctx context.Context) (err error) {
	started := time.Now()
	repaired := 0
	defer func() {
		e.metrics.ObserveRepair(err, repaired, started)
	}()

	return e.WithLock(ctx, func(st *State) error {
		e.lastRepair = time.Now()
		heights, err := e.ledger.MissingHeights(ctx, st.Tip.Height, e.cfg.RepairLimit)
		if err != nil {
			return fmt.Errorf("load missing heights: %w", err)
		}
		for _, height := range heights {
			block, err := e.node.BlockByHeight(ctx, height)
			if err != nil {
				return fmt.Errorf("fetch block %d: %w", height, err)
			}
			if err := e.apply(ctx, []model.NodeBlock{block}, coinstate.NoRegressCombiner()); err != nil {
				return fmt.Errorf("repair block %d: %w", height, err)
			}
			repaired++
		}
		if repaired > 0 {
			e.logger.Info("repaired heights", zap.Int("heights", repaired))
		}
		return nil
	})
}
