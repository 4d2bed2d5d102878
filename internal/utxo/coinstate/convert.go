package coinstate

import (
	"errors"
	"fmt"
	"time"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/emission"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
	"github.com/goodnatureofminers/chainstate-backend/pkg/safe"
)

// ErrUnminedCoinbase is returned when a coinbase transaction is seen outside a block.
var ErrUnminedCoinbase = errors.New("coinbase transaction outside a block")

// Deltas are the rows produced by converting transactions.
type Deltas struct {
	Transactions []model.Transaction
	Mints        []model.CoinMint
	Spends       []model.CoinSpend
}

// Append adds other's rows to d.
func (d *Deltas) Append(other Deltas) {
	d.Transactions = append(d.Transactions, other.Transactions...)
	d.Mints = append(d.Mints, other.Mints...)
	d.Spends = append(d.Spends, other.Spends...)
}

// Stamp sets the version of every row. Spends must be stamped after the mints of the same batch so
// an output minted and spent together ends up spent.
func (d *Deltas) Stamp(mints, spends uint64) {
	for i := range d.Transactions {
		d.Transactions[i].InsertedAtMs = mints
	}
	for i := range d.Mints {
		d.Mints[i].InsertedAtMs = mints
	}
	for i := range d.Spends {
		d.Spends[i].InsertedAtMs = spends
	}
}

// Empty reports whether there is nothing to apply.
func (d Deltas) Empty() bool {
	return len(d.Transactions) == 0 && len(d.Mints) == 0 && len(d.Spends) == 0
}

// Converter turns node transactions into coin deltas for one chain.
type Converter struct {
	coin model.Coin
	now  func() time.Time
}

// NewConverter creates a converter for coin.
func NewConverter(coin model.Coin) *Converter {
	return &Converter{coin: coin, now: time.Now}
}

// Block converts every transaction of a block.
func (c *Converter) Block(block model.NodeBlock) (Deltas, error) {
	ref := block.Ref()
	var out Deltas
	for _, tx := range block.Transactions {
		d, err := c.Transaction(tx, ref)
		if err != nil {
			return Deltas{}, fmt.Errorf("block %s: %w", block.Hash, err)
		}
		out.Append(d)
	}
	return out, nil
}

// Transaction converts a transaction confirmed in block, or seen in the mempool when block is nil.
func (c *Converter) Transaction(tx model.NodeTx, block *model.BlockRef) (Deltas, error) {
	seen := c.now().UTC().Truncate(time.Second)
	if block != nil {
		seen = block.Time
	}

	coinbase := ""
	class := model.Ordinary
	if tx.IsCoinbase() {
		if block == nil {
			return Deltas{}, fmt.Errorf("tx %s: %w", tx.TxID, ErrUnminedCoinbase)
		}
		coinbase = tx.Inputs[0].Coinbase
		class = model.Coinbase
	}

	var (
		out   Deltas
		total int64
	)
	for _, o := range tx.Outputs {
		index, err := safe.Int32(o.N)
		if err != nil {
			return Deltas{}, fmt.Errorf("tx %s output index: %w", tx.TxID, err)
		}
		total += o.Value
		out.Mints = append(out.Mints, model.CoinMint{
			CoinKey:     model.CoinKey{Address: o.Address, MintTxid: tx.TxID, MintIndex: index},
			Value:       o.Value,
			Coinbase:    c.classify(class, o.Value, block),
			VoteFor:     o.VoteFor,
			VoteAgainst: o.VoteAgainst,
			SeenTime:    seen,
			Block:       block,
		})
	}

	inputs := 0
	for i, in := range tx.Inputs {
		if in.IsCoinbase() {
			continue
		}
		inputs++
		if !in.HasPrevOut {
			return Deltas{}, fmt.Errorf("tx %s input %d: missing previous output", tx.TxID, i)
		}
		index, err := safe.Int32(in.Vout)
		if err != nil {
			return Deltas{}, fmt.Errorf("tx %s input %d vout: %w", tx.TxID, i, err)
		}
		num, err := safe.Int32(i)
		if err != nil {
			return Deltas{}, fmt.Errorf("tx %s input %d: %w", tx.TxID, i, err)
		}
		out.Spends = append(out.Spends, model.CoinSpend{
			CoinKey:       model.CoinKey{Address: in.PrevAddress, MintTxid: in.TxID, MintIndex: index},
			Value:         in.PrevValue,
			SpentTxid:     tx.TxID,
			SpentTxinNum:  num,
			SpentSequence: in.Sequence,
			Block:         block,
		})
	}

	inputCount, err := safe.Int32(inputs)
	if err != nil {
		return Deltas{}, fmt.Errorf("tx %s input count: %w", tx.TxID, err)
	}
	outputCount, err := safe.Int32(len(tx.Outputs))
	if err != nil {
		return Deltas{}, fmt.Errorf("tx %s output count: %w", tx.TxID, err)
	}
	out.Transactions = []model.Transaction{{
		TxID:        tx.TxID,
		Size:        tx.Size,
		VSize:       tx.VSize,
		Version:     tx.Version,
		LockTime:    tx.LockTime,
		InputCount:  inputCount,
		OutputCount: outputCount,
		Value:       total,
		Coinbase:    coinbase,
		FirstSeen:   seen,
	}}
	return out, nil
}

// PKT pays the network steward exactly 51/256 of the block reward from the coinbase.
func (c *Converter) classify(class model.CoinbaseClass, value int64, block *model.BlockRef) model.CoinbaseClass {
	if class != model.Coinbase || c.coin != model.PKT {
		return class
	}
	if value == emission.GovernancePayout(emission.PKTReward(block.Height)) {
		return model.GovernancePayout
	}
	return model.Coinbase
}

// RevertState returns the state an output confirmed in state falls back to when its block is
// reverted: spent goes back to block and block goes back to mempool. Other states are returned unchanged.
func RevertState(confirmed model.CoinState) model.CoinState {
	switch confirmed {
	case model.StateSpent:
		return model.StateBlock
	case model.StateBlock:
		return model.StateMempool
	default:
		return confirmed
	}
}
