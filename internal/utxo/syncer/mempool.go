package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/coinstate"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
	"github.com/goodnatureofminers/chainstate-backend/pkg/workerpool"
)

// seedMempool loads the transactions the ledger still holds in mempool states, so they are not
// fetched again after a restart.
func (e *Engine) seedMempool(ctx context.Context, st *State) error {
	txids, err := e.ledger.MempoolTxids(ctx)
	if err != nil {
		return fmt.Errorf("load mempool txids: %w", err)
	}
	st.Mempool = make(map[string]struct{}, len(txids))
	for _, txid := range txids {
		st.Mempool[txid] = struct{}{}
	}
	return nil
}

// syncMempool applies transactions that entered the node mempool since the last cycle. Bodies are
// fetched without holding the state lock; transactions that fail to fetch are retried next cycle.
func (e *Engine) syncMempool(ctx context.Context) (err error) {
	started := time.Now()
	added := 0
	defer func() {
		e.metrics.ObserveMempool(err, added, started)
	}()

	current, err := e.node.MempoolTxids(ctx)
	if err != nil {
		return fmt.Errorf("fetch mempool: %w", err)
	}

	var unseen []string
	err = e.WithLock(ctx, func(st *State) error {
		for _, txid := range current {
			if _, ok := st.Mempool[txid]; !ok {
				unseen = append(unseen, txid)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	fetched := e.fetchTransactions(ctx, unseen)

	var (
		deltas coinstate.Deltas
		txids  = make([]string, 0, len(fetched))
	)
	for _, tx := range fetched {
		d, convErr := e.converter.Transaction(tx, nil)
		if convErr != nil {
			e.logger.Warn("skip mempool transaction", zap.String("txid", tx.TxID), zap.Error(convErr))
			continue
		}
		deltas.Append(d)
		txids = append(txids, tx.TxID)
	}

	return e.WithLock(ctx, func(st *State) error {
		if !deltas.Empty() {
			stamp := e.stamper.Next(2)
			deltas.Stamp(stamp, stamp+1)
			if err := e.ledger.InsertTransactions(ctx, deltas.Transactions); err != nil {
				return fmt.Errorf("insert mempool transactions: %w", err)
			}
			if err := e.ledger.ApplyMints(ctx, deltas.Mints, coinstate.NoRegressCombiner()); err != nil {
				return fmt.Errorf("apply mempool mints: %w", err)
			}
			if err := e.ledger.ApplySpends(ctx, deltas.Spends, coinstate.NoRegressCombiner()); err != nil {
				return fmt.Errorf("apply mempool spends: %w", err)
			}
		}

		live := make(map[string]struct{}, len(current))
		for _, txid := range current {
			live[txid] = struct{}{}
		}
		next := make(map[string]struct{}, len(current))
		for txid := range st.Mempool {
			if _, ok := live[txid]; ok {
				next[txid] = struct{}{}
			}
		}
		for _, txid := range txids {
			next[txid] = struct{}{}
		}
		st.Mempool = next
		added = len(txids)
		e.publish(st)
		return nil
	})
}

// fetchTransactions fetches txids concurrently and returns the ones that could be fetched, in
// mempool order. Transactions that left the mempool are dropped silently.
func (e *Engine) fetchTransactions(ctx context.Context, txids []string) []model.NodeTx {
	if len(txids) == 0 {
		return nil
	}

	type job struct {
		index int
		txid  string
	}
	jobs := make([]job, len(txids))
	for i, txid := range txids {
		jobs[i] = job{index: i, txid: txid}
	}

	results := make([]*model.NodeTx, len(txids))
	err := workerpool.Process(ctx, e.cfg.MempoolWorkers, jobs, func(ctx context.Context, j job) error {
		tx, err := e.node.RawTransaction(ctx, j.txid)
		switch {
		case errors.Is(err, model.ErrNotFound):
		case err != nil:
			e.logger.Warn("fetch mempool transaction failed", zap.String("txid", j.txid), zap.Error(err))
		default:
			results[j.index] = &tx
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("fetch mempool transactions interrupted", zap.Error(err))
	}

	out := make([]model.NodeTx, 0, len(results))
	for _, tx := range results {
		if tx != nil {
			out = append(out, *tx)
		}
	}
	return out
}
