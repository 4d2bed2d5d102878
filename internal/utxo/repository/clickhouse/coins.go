package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/coinstate"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/mergeupdate"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/schema"
)

// ApplyMints merges mint deltas into coins. Mempool and confirmed mints are staged separately.
func (r *Repository) ApplyMints(ctx context.Context, mints []model.CoinMint, combiner mergeupdate.Combiner) (err error) {
	start := time.Now()
	defer func() {
		r.observe("apply_mints", err, start)
	}()

	seen, minted := mintDeltas(mints)
	if err = r.merge.ApplyDeltas(ctx, coinsTable, coinKeys, seen, combiner); err != nil {
		return fmt.Errorf("apply mempool mints: %w", err)
	}
	if err = r.merge.ApplyDeltas(ctx, coinsTable, coinKeys, minted, combiner); err != nil {
		return fmt.Errorf("apply block mints: %w", err)
	}
	return nil
}

// ApplySpends merges spend deltas into coins.
func (r *Repository) ApplySpends(ctx context.Context, spends []model.CoinSpend, combiner mergeupdate.Combiner) (err error) {
	start := time.Now()
	defer func() {
		r.observe("apply_spends", err, start)
	}()

	spending, spent := spendDeltas(spends)
	if err = r.merge.ApplyDeltas(ctx, coinsTable, coinKeys, spending, combiner); err != nil {
		return fmt.Errorf("apply mempool spends: %w", err)
	}
	if err = r.merge.ApplyDeltas(ctx, coinsTable, coinKeys, spent, combiner); err != nil {
		return fmt.Errorf("apply block spends: %w", err)
	}
	return nil
}

// RevertSpends returns outputs whose latest version was spent in one of blockHashes to block.
func (r *Repository) RevertSpends(ctx context.Context, blockHashes []string, stamp uint64) (n int, err error) {
	start := time.Now()
	defer func() {
		r.observe("revert_spends", err, start)
	}()

	reverts, err := r.latestCoinsIn(ctx, "spentBlockHash", blockHashes, stamp)
	if err != nil {
		return 0, err
	}
	d := revertDeltas(txSpentShape, reverts, func(c model.CoinRevert) mergeupdate.Row { return txUnspentRow{c} })
	if err = r.merge.ApplyDeltas(ctx, coinsTable, coinKeys, d, coinstate.Combiner()); err != nil {
		return 0, fmt.Errorf("revert spends: %w", err)
	}
	return len(reverts), nil
}

// RevertMints returns outputs whose latest version was minted in one of blockHashes to mempool.
func (r *Repository) RevertMints(ctx context.Context, blockHashes []string, stamp uint64) (n int, err error) {
	start := time.Now()
	defer func() {
		r.observe("revert_mints", err, start)
	}()

	reverts, err := r.latestCoinsIn(ctx, "mintBlockHash", blockHashes, stamp)
	if err != nil {
		return 0, err
	}
	d := revertDeltas(txUnMintedShape, reverts, func(c model.CoinRevert) mergeupdate.Row { return txUnMintedRow{c} })
	if err = r.merge.ApplyDeltas(ctx, coinsTable, coinKeys, d, coinstate.Combiner()); err != nil {
		return 0, fmt.Errorf("revert mints: %w", err)
	}
	return len(reverts), nil
}

func (r *Repository) latestCoinsIn(ctx context.Context, column string, blockHashes []string, stamp uint64) (out []model.CoinRevert, err error) {
	if len(blockHashes) == 0 {
		return nil, nil
	}
	list, err := schema.HashList(blockHashes)
	if err != nil {
		return nil, err
	}
	col, err := schema.Ident(column)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
SELECT address, mintTxid, mintIndex, value
FROM (
	SELECT address, mintTxid, mintIndex, value, %[1]s
	FROM coins
	WHERE (address, mintTxid, mintIndex) IN (
		SELECT address, mintTxid, mintIndex FROM coins WHERE %[1]s IN %[2]s
	)
	ORDER BY address, mintTxid, mintIndex, dateMs DESC
	LIMIT 1 BY address, mintTxid, mintIndex
)
WHERE %[1]s IN %[2]s`, col, list)

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query coins by %s: %w", column, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		c := model.CoinRevert{InsertedAtMs: stamp}
		if err = rows.Scan(&c.Address, &c.MintTxid, &c.MintIndex, &c.Value); err != nil {
			return nil, fmt.Errorf("scan coin: %w", err)
		}
		out = append(out, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coins: %w", err)
	}
	return out, nil
}

// MempoolTxids returns transactions that minted or spend outputs currently in a mempool state.
func (r *Repository) MempoolTxids(ctx context.Context) (txids []string, err error) {
	start := time.Now()
	defer func() {
		r.observe("mempool_txids", err, start)
	}()

	query := fmt.Sprintf(`
SELECT DISTINCT txid FROM (
	SELECT toString(mintTxid) AS txid FROM coins FINAL WHERE currentState = %d
	UNION ALL
	SELECT spentTxid AS txid FROM coins FINAL WHERE currentState = %d
)`, model.StateMempool, model.StateSpending)

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query mempool txids: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		var txid string
		if err = rows.Scan(&txid); err != nil {
			return nil, fmt.Errorf("scan mempool txid: %w", err)
		}
		txids = append(txids, txid)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mempool txids: %w", err)
	}
	return txids, nil
}
