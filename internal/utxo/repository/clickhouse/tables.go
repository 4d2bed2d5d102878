package clickhouse

import (
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/schema"
)

const (
	hashType     = "FixedString(64)"
	dateTimeType = "DateTime('UTC')"
	versionCol   = "dateMs"
)

var replacing = schema.ReplacingMergeTree{Version: versionCol}

// Base tables. Their DDL lives in migrations/clickhouse; these definitions must match it.
var (
	blocksTable = schema.MustTable("tbl_blk", replacing, []string{"hash"},
		schema.Col("hash", hashType),
		schema.Col("height", "Int32"),
		schema.Col("version", "Int32"),
		schema.Col("size", "Int32"),
		schema.Col("merkleRoot", hashType),
		schema.Col("time", dateTimeType),
		schema.Col("nonce", "UInt32"),
		schema.Col("bits", "UInt32"),
		schema.Col("difficulty", "Float64"),
		schema.Col("previousBlockHash", "String"),
		schema.Col("transactionCount", "Int32"),
		schema.Col("pcAnnCount", "Int64"),
		schema.Col("pcAnnDifficulty", "Float64"),
		schema.Col("pcBlkDifficulty", "Float64"),
		schema.Col("pcVersion", "Int8"),
		schema.Col("networkSteward", "String"),
		schema.Col("blocksUntilRetarget", "Int32"),
		schema.Col("retargetEstimate", "Float64"),
		schema.Col(versionCol, "UInt64"),
	)

	blockTxTable = schema.MustTable("tbl_blkTx", replacing, []string{"blockHash", "txid"},
		schema.Col("blockHash", hashType),
		schema.Col("txid", hashType),
		schema.Col(versionCol, "UInt64"),
	)

	transactionsTable = schema.MustTable("tbl_tx", replacing, []string{"txid"},
		schema.Col("txid", hashType),
		schema.Col("size", "Int32"),
		schema.Col("vsize", "Int32"),
		schema.Col("version", "Int32"),
		schema.Col("locktime", "UInt32"),
		schema.Col("inputCount", "Int32"),
		schema.Col("outputCount", "Int32"),
		schema.Col("value", "Int64"),
		schema.Col("coinbase", "String"),
		schema.Col("firstSeen", dateTimeType),
		schema.Col(versionCol, "UInt64"),
	)

	chainTable = schema.MustTable("chain", replacing, []string{"height", "hash"},
		schema.Col("height", "Int32"),
		schema.Col("hash", hashType),
		schema.Col("state", "Enum8('uncommitted' = 0, 'complete' = 1, 'reverted' = 2)"),
		schema.Col(versionCol, "UInt64"),
	)

	coinsTable = schema.MustTable("coins", replacing, coinKeys,
		schema.Col("address", "String"),
		schema.Col("mintTxid", hashType),
		schema.Col("mintIndex", "Int32"),
		schema.Col("stateTr", "Int8"),
		schema.AliasCol("currentState", "UInt8", "toUInt8(bitShiftRight(stateTr, 3))"),
		schema.AliasCol("prevState", "UInt8", "toUInt8(bitAnd(stateTr, 7))"),
		schema.Col(versionCol, "UInt64"),
		schema.Col("value", "Int64"),
		schema.Col("coinbase", "Int8"),
		schema.Col("voteFor", "String"),
		schema.Col("voteAgainst", "String"),
		schema.Col("seenTime", dateTimeType),
		schema.Col("mintBlockHash", "String"),
		schema.Col("mintHeight", "Int32"),
		schema.Col("mintTime", dateTimeType),
		schema.Col("spentTxid", "String"),
		schema.Col("spentTxinNum", "Int32"),
		schema.Col("spentBlockHash", "String"),
		schema.Col("spentHeight", "Int32"),
		schema.Col("spentTime", dateTimeType),
		schema.Col("spentSequence", "UInt32"),
	)

	coinKeys = []string{"address", "mintTxid", "mintIndex"}
)

// BaseTables returns the tables created by migrations.
func BaseTables() []*schema.Table {
	return []*schema.Table{blocksTable, blockTxTable, transactionsTable, chainTable, coinsTable}
}
