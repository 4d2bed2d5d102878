package syncer

import (
	"context"
	"time"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/mergeupdate"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	Ledger interface {
		Tip(ctx context.Context) (model.Tip, error)
		CommittedTip(ctx context.Context) (model.Tip, error)
		LiveEntriesAbove(ctx context.Context, height int64) ([]model.ChainEntry, error)
		MissingHeights(ctx context.Context, tip int64, limit int) ([]int64, error)
		InsertChainEntries(ctx context.Context, entries []model.ChainEntry) error
		InsertBlocks(ctx context.Context, blocks []model.Block) error
		InsertBlockTxs(ctx context.Context, txs []model.BlockTx) error
		InsertTransactions(ctx context.Context, txs []model.Transaction) error
		ApplyMints(ctx context.Context, mints []model.CoinMint, combiner mergeupdate.Combiner) error
		ApplySpends(ctx context.Context, spends []model.CoinSpend, combiner mergeupdate.Combiner) error
		RevertSpends(ctx context.Context, blockHashes []string, stamp uint64) (int, error)
		RevertMints(ctx context.Context, blockHashes []string, stamp uint64) (int, error)
		BurnGovernancePayouts(ctx context.Context, below int64, stamp uint64) (int, error)
		MempoolTxids(ctx context.Context) ([]string, error)
		SweepStaging(ctx context.Context) (int, error)
		EnsureDerivedTables(ctx context.Context, recompute bool) error
		Optimize(ctx context.Context) error
	}

	Node interface {
		BlockHash(ctx context.Context, height int64) (string, error)
		BlockByHeight(ctx context.Context, height int64) (model.NodeBlock, error)
		BlockByHash(ctx context.Context, hash string) (model.NodeBlock, error)
		MempoolTxids(ctx context.Context) ([]string, error)
		RawTransaction(ctx context.Context, txid string) (model.NodeTx, error)
	}

	Metrics interface {
		ObserveCycle(err error, started time.Time)
		ObserveCommit(err error, blocks int, started time.Time)
		ObserveRollback(blocks int)
		ObserveMempool(err error, added int, started time.Time)
		ObserveBurn(coins int)
		ObserveRepair(err error, heights int, started time.Time)
		SetTip(height int64)
	}
)
