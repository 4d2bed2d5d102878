package clickhouse

import (
	"fmt"
	"time"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/coinstate"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/mergeupdate"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/schema"
)

// Staging shapes for coin merges. Each holds the coin key, the new state and the columns the
// transition sets; every other column keeps its stored value.
var (
	txSeenShape = coinShape("TxSeen",
		"value", "coinbase", "voteFor", "voteAgainst", "seenTime")
	txMintedShape = coinShape("TxMinted",
		"value", "coinbase", "voteFor", "voteAgainst", "seenTime", "mintBlockHash", "mintHeight", "mintTime")
	txSpendingShape = coinShape("TxSpending",
		"value", "spentTxid", "spentTxinNum", "spentSequence")
	txSpentShape = coinShape("TxSpent",
		"value", "spentTxid", "spentTxinNum", "spentSequence", "spentBlockHash", "spentHeight", "spentTime")
	txUnMintedShape = coinShape("TxUnMinted",
		"mintBlockHash", "mintHeight", "mintTime")
	txBurnedShape = coinShape("TxBurned")
)

func coinShape(name string, extra ...string) *schema.Table {
	names := append([]string{"address", "mintTxid", "mintIndex", "stateTr", versionCol}, extra...)
	cols := make([]schema.Column, len(names))
	for i, n := range names {
		c, ok := coinsTable.Column(n)
		if !ok {
			panic(fmt.Sprintf("coins has no column %s", n))
		}
		cols[i] = c
	}
	return schema.MustTable(name, schema.Memory{}, nil, cols...)
}

var epoch = time.Unix(0, 0).UTC()

// dbTime maps the zero time to the epoch, which is how DateTime columns store "unset".
func dbTime(t time.Time) time.Time {
	if t.IsZero() {
		return epoch
	}
	return t.UTC()
}

func coinKeyString(k model.CoinKey) string {
	return fmt.Sprintf("%s/%s/%d", k.Address, k.MintTxid, k.MintIndex)
}

func entering(s model.CoinState) int8 {
	return int8(coinstate.Entering(s))
}

type txSeenRow struct{ m model.CoinMint }

func (r txSeenRow) MergeKey() string { return coinKeyString(r.m.CoinKey) }

func (r txSeenRow) Values() []any {
	return []any{
		r.m.Address, r.m.MintTxid, r.m.MintIndex, entering(model.StateMempool), r.m.InsertedAtMs,
		r.m.Value, int8(r.m.Coinbase), r.m.VoteFor, r.m.VoteAgainst, dbTime(r.m.SeenTime),
	}
}

type txMintedRow struct{ m model.CoinMint }

func (r txMintedRow) MergeKey() string { return coinKeyString(r.m.CoinKey) }

func (r txMintedRow) Values() []any {
	return []any{
		r.m.Address, r.m.MintTxid, r.m.MintIndex, entering(model.StateBlock), r.m.InsertedAtMs,
		r.m.Value, int8(r.m.Coinbase), r.m.VoteFor, r.m.VoteAgainst, dbTime(r.m.SeenTime),
		r.m.Block.Hash, int32(r.m.Block.Height), dbTime(r.m.Block.Time),
	}
}

type txSpendingRow struct{ s model.CoinSpend }

func (r txSpendingRow) MergeKey() string { return coinKeyString(r.s.CoinKey) }

func (r txSpendingRow) Values() []any {
	return []any{
		r.s.Address, r.s.MintTxid, r.s.MintIndex, entering(model.StateSpending), r.s.InsertedAtMs,
		r.s.Value, r.s.SpentTxid, r.s.SpentTxinNum, r.s.SpentSequence,
	}
}

type txSpentRow struct{ s model.CoinSpend }

func (r txSpentRow) MergeKey() string { return coinKeyString(r.s.CoinKey) }

func (r txSpentRow) Values() []any {
	return []any{
		r.s.Address, r.s.MintTxid, r.s.MintIndex, entering(model.StateSpent), r.s.InsertedAtMs,
		r.s.Value, r.s.SpentTxid, r.s.SpentTxinNum, r.s.SpentSequence,
		r.s.Block.Hash, int32(r.s.Block.Height), dbTime(r.s.Block.Time),
	}
}

// txUnspentRow returns a spent output to block with every spend column cleared.
type txUnspentRow struct{ r model.CoinRevert }

func (r txUnspentRow) MergeKey() string { return coinKeyString(r.r.CoinKey) }

func (r txUnspentRow) Values() []any {
	return []any{
		r.r.Address, r.r.MintTxid, r.r.MintIndex, entering(coinstate.RevertState(model.StateSpent)), r.r.InsertedAtMs,
		r.r.Value, "", int32(0), uint32(0),
		"", int32(0), epoch,
	}
}

// txUnMintedRow returns a minted output to mempool with every mint block column cleared.
type txUnMintedRow struct{ r model.CoinRevert }

func (r txUnMintedRow) MergeKey() string { return coinKeyString(r.r.CoinKey) }

func (r txUnMintedRow) Values() []any {
	return []any{
		r.r.Address, r.r.MintTxid, r.r.MintIndex, entering(coinstate.RevertState(model.StateBlock)), r.r.InsertedAtMs,
		"", int32(0), epoch,
	}
}

type txBurnedRow struct{ r model.CoinRevert }

func (r txBurnedRow) MergeKey() string { return coinKeyString(r.r.CoinKey) }

func (r txBurnedRow) Values() []any {
	return []any{
		r.r.Address, r.r.MintTxid, r.r.MintIndex, entering(model.StateBurned), r.r.InsertedAtMs,
	}
}

func mintDeltas(mints []model.CoinMint) (seen, minted mergeupdate.Deltas) {
	seen.Shape, minted.Shape = txSeenShape, txMintedShape
	for _, m := range mints {
		if m.Block == nil {
			seen.Rows = append(seen.Rows, txSeenRow{m})
			continue
		}
		minted.Rows = append(minted.Rows, txMintedRow{m})
	}
	return seen, minted
}

func spendDeltas(spends []model.CoinSpend) (spending, spent mergeupdate.Deltas) {
	spending.Shape, spent.Shape = txSpendingShape, txSpentShape
	for _, s := range spends {
		if s.Block == nil {
			spending.Rows = append(spending.Rows, txSpendingRow{s})
			continue
		}
		spent.Rows = append(spent.Rows, txSpentRow{s})
	}
	return spending, spent
}

func revertDeltas(shape *schema.Table, reverts []model.CoinRevert, row func(model.CoinRevert) mergeupdate.Row) mergeupdate.Deltas {
	d := mergeupdate.Deltas{Shape: shape, Rows: make([]mergeupdate.Row, len(reverts))}
	for i, r := range reverts {
		d.Rows[i] = row(r)
	}
	return d
}
