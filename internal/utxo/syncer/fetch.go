package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
)

// nextBlock returns the node block extending st.Tip, rolling back the local chain until the node's
// chain links to it. ok is false when the ledger is caught up with the node.
func (e *Engine) nextBlock(ctx context.Context, st *State) (block model.NodeBlock, ok bool, err error) {
	for {
		block, err = e.node.BlockByHeight(ctx, st.Tip.Height+1)
		switch {
		case errors.Is(err, model.ErrNotFound):
			diverged, checkErr := e.tipDiverged(ctx, st.Tip)
			if checkErr != nil {
				return model.NodeBlock{}, false, checkErr
			}
			if !diverged {
				return model.NodeBlock{}, false, nil
			}
		case err != nil:
			return model.NodeBlock{}, false, fmt.Errorf("fetch block %d: %w", st.Tip.Height+1, err)
		case st.Tip.IsEmpty() || block.PreviousBlockHash == st.Tip.Hash:
			return block, true, nil
		}

		if err := e.rollback(ctx, st, st.Tip.Height-1); err != nil {
			return model.NodeBlock{}, false, err
		}
	}
}

// tipDiverged reports whether the node's block at the tip height differs from ours, which happens
// after a reorg onto a shorter chain.
func (e *Engine) tipDiverged(ctx context.Context, tip model.Tip) (bool, error) {
	if tip.IsEmpty() {
		return false, nil
	}
	hash, err := e.node.BlockHash(ctx, tip.Height)
	if errors.Is(err, model.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetch block hash %d: %w", tip.Height, err)
	}
	return hash != tip.Hash, nil
}

// fetchBatch follows next-block links from first until a budget is spent or the node tip is reached.
// The first block is always included.
func (e *Engine) fetchBatch(ctx context.Context, first model.NodeBlock) ([]model.NodeBlock, error) {
	batch := []model.NodeBlock{first}
	txio := first.TxIO()
	size := first.Size

	for len(batch) < e.cfg.MaxBlocks {
		last := batch[len(batch)-1]
		if last.NextBlockHash == "" {
			break
		}
		block, err := e.node.BlockByHash(ctx, last.NextBlockHash)
		if errors.Is(err, model.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetch block %s: %w", last.NextBlockHash, err)
		}
		if block.PreviousBlockHash != last.Hash {
			break
		}
		if txio+block.TxIO() > e.cfg.MaxTxIO || size+block.Size > e.cfg.MaxBytes {
			break
		}
		batch = append(batch, block)
		txio += block.TxIO()
		size += block.Size
	}
	return batch, nil
}

// future is a batch fetched in the background, valid only while the tip is still after.
type future struct {
	after  model.Tip
	done   chan struct{}
	cancel context.CancelFunc
	batch  []model.NodeBlock
	err    error
}

// startPrefetch fetches the batch following last while it is committed.
func (e *Engine) startPrefetch(ctx context.Context, st *State, last model.NodeBlock) {
	st.discardPrefetch()
	if last.NextBlockHash == "" {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	f := &future{
		after:  model.Tip{Height: last.Height, Hash: last.Hash, State: model.ChainComplete},
		done:   make(chan struct{}),
		cancel: cancel,
	}
	next := last.NextBlockHash
	go func() {
		defer close(f.done)
		first, err := e.node.BlockByHash(ctx, next)
		if err != nil {
			f.err = err
			return
		}
		f.batch, f.err = e.fetchBatch(ctx, first)
	}()
	st.prefetch = f
}

// takePrefetch returns the prefetched batch if it still extends st.Tip.
func (e *Engine) takePrefetch(ctx context.Context, st *State) ([]model.NodeBlock, bool) {
	f := st.prefetch
	if f == nil {
		return nil, false
	}
	st.prefetch = nil
	if f.after.Height != st.Tip.Height || f.after.Hash != st.Tip.Hash {
		f.cancel()
		return nil, false
	}

	select {
	case <-f.done:
	case <-ctx.Done():
		f.cancel()
		return nil, false
	}
	f.cancel()
	if f.err != nil || len(f.batch) == 0 || f.batch[0].PreviousBlockHash != st.Tip.Hash {
		return nil, false
	}
	return f.batch, true
}
