package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
)

// recover finishes a commit or rollback interrupted by a crash or a failed cycle. Live entries above
// the committed tip are rolled back so the ledger matches the last fully applied block.
func (e *Engine) recover(ctx context.Context, st *State) error {
	tip, err := e.ledger.Tip(ctx)
	if err != nil {
		return fmt.Errorf("load tip: %w", err)
	}
	st.Tip = tip
	if tip.IsEmpty() || tip.State == model.ChainComplete {
		return nil
	}

	committed, err := e.ledger.CommittedTip(ctx)
	if err != nil {
		return fmt.Errorf("load committed tip: %w", err)
	}
	e.logger.Warn("found uncommitted blocks, rolling back",
		zap.Int64("tip", tip.Height),
		zap.Int64("committed", committed.Height),
	)
	return e.rollback(ctx, st, committed.Height)
}

// rollback reverts every live block above target. Entries are first marked uncommitted so that
// an interrupted rollback is completed by recover on the next start.
func (e *Engine) rollback(ctx context.Context, st *State, target int64) error {
	st.discardPrefetch()

	if target < -1 || target > st.Tip.Height {
		return fmt.Errorf("%w: %d not in [-1, %d]", ErrRollbackTarget, target, st.Tip.Height)
	}
	entries, err := e.ledger.LiveEntriesAbove(ctx, target)
	if err != nil {
		return fmt.Errorf("load entries above %d: %w", target, err)
	}
	if len(entries) > 0 {
		if err := e.revert(ctx, entries); err != nil {
			return err
		}
	}

	tip, err := e.ledger.Tip(ctx)
	if err != nil {
		return fmt.Errorf("load tip: %w", err)
	}
	st.Tip = tip
	e.metrics.ObserveRollback(len(entries))
	e.logger.Info("rolled back", zap.Int64("target", target), zap.Int("blocks", len(entries)))
	return nil
}

func (e *Engine) revert(ctx context.Context, entries []model.ChainEntry) error {
	hashes := make([]string, len(entries))
	for i, entry := range entries {
		hashes[i] = entry.Hash
	}

	stamp := e.stamper.Next(4)
	if err := e.ledger.InsertChainEntries(ctx, withState(entries, model.ChainUncommitted, stamp)); err != nil {
		return fmt.Errorf("mark reverting entries: %w", err)
	}
	spends, err := e.ledger.RevertSpends(ctx, hashes, stamp+1)
	if err != nil {
		return fmt.Errorf("revert spends: %w", err)
	}
	mints, err := e.ledger.RevertMints(ctx, hashes, stamp+2)
	if err != nil {
		return fmt.Errorf("revert mints: %w", err)
	}
	if err := e.ledger.InsertChainEntries(ctx, withState(entries, model.ChainReverted, stamp+3)); err != nil {
		return fmt.Errorf("insert reverted entries: %w", err)
	}
	e.logger.Debug("reverted coins", zap.Int("spends", spends), zap.Int("mints", mints))
	return nil
}

func withState(entries []model.ChainEntry, state model.ChainState, stamp uint64) []model.ChainEntry {
	out := make([]model.ChainEntry, len(entries))
	for i, entry := range entries {
		out[i] = model.ChainEntry{Height: entry.Height, Hash: entry.Hash, State: state, InsertedAtMs: stamp}
	}
	return out
}
