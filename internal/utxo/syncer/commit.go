package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/coinstate"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/mergeupdate"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
)

// commit appends a linked batch to the ledger. Facts are written first, then the blocks are
// recorded as uncommitted, coin deltas are merged and finally the blocks are marked complete.
// A crash before the last step leaves uncommitted entries for recover to roll back.
func (e *Engine) commit(ctx context.Context, st *State, batch []model.NodeBlock) (err error) {
	started := time.Now()
	defer func() {
		e.metrics.ObserveCommit(err, len(batch), started)
	}()

	if err = linked(st.Tip, batch); err != nil {
		return err
	}
	if err = e.apply(ctx, batch, coinstate.Combiner()); err != nil {
		return err
	}

	last := batch[len(batch)-1]
	st.Tip = model.Tip{Height: last.Height, Hash: last.Hash, State: model.ChainComplete}
	return nil
}

func linked(tip model.Tip, batch []model.NodeBlock) error {
	if len(batch) == 0 {
		return fmt.Errorf("%w: empty batch", ErrNotLinked)
	}
	prevHash, prevHeight := tip.Hash, tip.Height
	for _, b := range batch {
		if b.Height != prevHeight+1 {
			return fmt.Errorf("%w: block %s at height %d after height %d", ErrNotLinked, b.Hash, b.Height, prevHeight)
		}
		if prevHeight >= 0 && b.PreviousBlockHash != prevHash {
			return fmt.Errorf("%w: block %s points to %s, want %s", ErrNotLinked, b.Hash, b.PreviousBlockHash, prevHash)
		}
		prevHash, prevHeight = b.Hash, b.Height
	}
	return nil
}

// apply writes the facts and coin deltas of blocks in commit order.
func (e *Engine) apply(ctx context.Context, blocks []model.NodeBlock, combiner mergeupdate.Combiner) error {
	var deltas coinstate.Deltas
	for _, b := range blocks {
		d, err := e.converter.Block(b)
		if err != nil {
			return fmt.Errorf("convert: %w", err)
		}
		deltas.Append(d)
	}

	facts := e.stamper.Next(1)
	coins := e.stamper.Next(2)
	deltas.Stamp(coins, coins+1)

	var (
		headers    = make([]model.Block, len(blocks))
		membership []model.BlockTx
		entries    = make([]model.ChainEntry, len(blocks))
	)
	for i, b := range blocks {
		headers[i] = b.Block
		headers[i].InsertedAtMs = facts
		for _, tx := range b.Transactions {
			membership = append(membership, model.BlockTx{BlockHash: b.Hash, TxID: tx.TxID, InsertedAtMs: facts})
		}
		entries[i] = model.ChainEntry{Height: b.Height, Hash: b.Hash, State: model.ChainUncommitted, InsertedAtMs: facts}
	}

	if err := e.ledger.InsertBlockTxs(ctx, membership); err != nil {
		return fmt.Errorf("insert block transactions: %w", err)
	}
	if err := e.ledger.InsertBlocks(ctx, headers); err != nil {
		return fmt.Errorf("insert blocks: %w", err)
	}
	if err := e.ledger.InsertTransactions(ctx, deltas.Transactions); err != nil {
		return fmt.Errorf("insert transactions: %w", err)
	}
	if err := e.ledger.InsertChainEntries(ctx, entries); err != nil {
		return fmt.Errorf("insert uncommitted entries: %w", err)
	}
	if err := e.ledger.ApplyMints(ctx, deltas.Mints, combiner); err != nil {
		return fmt.Errorf("apply mints: %w", err)
	}
	if err := e.ledger.ApplySpends(ctx, deltas.Spends, combiner); err != nil {
		return fmt.Errorf("apply spends: %w", err)
	}

	done := e.stamper.Next(1)
	for i := range entries {
		entries[i].State = model.ChainComplete
		entries[i].InsertedAtMs = done
	}
	if err := e.ledger.InsertChainEntries(ctx, entries); err != nil {
		return fmt.Errorf("insert complete entries: %w", err)
	}
	return nil
}
