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

// BurnGovernancePayouts moves unspent governance payouts minted below height to burned.
func (r *Repository) BurnGovernancePayouts(ctx context.Context, below int64, stamp uint64) (n int, err error) {
	start := time.Now()
	defer func() {
		r.observe("burn_governance_payouts", err, start)
	}()

	if below <= 0 {
		return 0, nil
	}
	if err = schema.ValidHeight(below); err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
SELECT address, mintTxid, mintIndex, value
FROM coins FINAL
WHERE coinbase = %d AND mintHeight < ? AND currentState = %d`, model.GovernancePayout, model.StateBlock)

	rows, err := r.conn.Query(ctx, query, int32(below))
	if err != nil {
		return 0, fmt.Errorf("query burnable coins: %w", err)
	}
	var reverts []model.CoinRevert
	for rows.Next() {
		c := model.CoinRevert{InsertedAtMs: stamp}
		if err = rows.Scan(&c.Address, &c.MintTxid, &c.MintIndex, &c.Value); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan burnable coin: %w", err)
		}
		reverts = append(reverts, c)
	}
	if err = rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("iterate burnable coins: %w", err)
	}
	if err = rows.Close(); err != nil {
		return 0, fmt.Errorf("close rows: %w", err)
	}

	d := revertDeltas(txBurnedShape, reverts, func(c model.CoinRevert) mergeupdate.Row { return txBurnedRow{c} })
	if err = r.merge.ApplyDeltas(ctx, coinsTable, coinKeys, d, coinstate.Combiner()); err != nil {
		return 0, fmt.Errorf("burn governance payouts: %w", err)
	}
	return len(reverts), nil
}
