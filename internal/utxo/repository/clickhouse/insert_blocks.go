package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
)

// InsertBlocks stores block header rows.
func (r *Repository) InsertBlocks(ctx context.Context, blocks []model.Block) (err error) {
	start := time.Now()
	defer func() {
		r.observe("insert_blocks", err, start)
	}()

	rows := make([][]any, len(blocks))
	for i, b := range blocks {
		rows[i] = []any{
			b.Hash,
			int32(b.Height),
			b.Version,
			int32(b.Size),
			b.MerkleRoot,
			dbTime(b.Time),
			b.Nonce,
			b.Bits,
			b.Difficulty,
			b.PreviousBlockHash,
			int32(b.TransactionCount),
			b.PcAnnCount,
			b.PcAnnDifficulty,
			b.PcBlkDifficulty,
			b.PcVersion,
			b.NetworkSteward,
			b.BlocksUntilRetarget,
			b.RetargetEstimate,
			b.InsertedAtMs,
		}
	}
	if err = r.InsertRows(ctx, blocksTable, rows); err != nil {
		return fmt.Errorf("insert blocks: %w", err)
	}
	return nil
}

// InsertBlockTxs stores block membership rows.
func (r *Repository) InsertBlockTxs(ctx context.Context, txs []model.BlockTx) (err error) {
	start := time.Now()
	defer func() {
		r.observe("insert_block_txs", err, start)
	}()

	rows := make([][]any, len(txs))
	for i, tx := range txs {
		rows[i] = []any{tx.BlockHash, tx.TxID, tx.InsertedAtMs}
	}
	if err = r.InsertRows(ctx, blockTxTable, rows); err != nil {
		return fmt.Errorf("insert block txs: %w", err)
	}
	return nil
}

// InsertTransactions stores transaction metadata rows.
func (r *Repository) InsertTransactions(ctx context.Context, txs []model.Transaction) (err error) {
	start := time.Now()
	defer func() {
		r.observe("insert_transactions", err, start)
	}()

	rows := make([][]any, len(txs))
	for i, tx := range txs {
		rows[i] = []any{
			tx.TxID,
			tx.Size,
			tx.VSize,
			tx.Version,
			tx.LockTime,
			tx.InputCount,
			tx.OutputCount,
			tx.Value,
			tx.Coinbase,
			dbTime(tx.FirstSeen),
			tx.InsertedAtMs,
		}
	}
	if err = r.InsertRows(ctx, transactionsTable, rows); err != nil {
		return fmt.Errorf("insert transactions: %w", err)
	}
	return nil
}
