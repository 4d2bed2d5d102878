package model

import "errors"

// ErrNotFound is returned by the node when a height, block or transaction does not exist.
var ErrNotFound = errors.New("not found")

// NodeBlock is a block with transactions as reported by the node.
type NodeBlock struct {
	Block
	NextBlockHash string
	Confirmations int64
	Transactions  []NodeTx
}

// TxIO counts inputs and outputs across the block's transactions.
func (b NodeBlock) TxIO() int {
	n := 0
	for _, tx := range b.Transactions {
		n += len(tx.Inputs) + len(tx.Outputs)
	}
	return n
}

// Ref returns the location of the block for confirmed coin rows.
func (b NodeBlock) Ref() *BlockRef {
	return &BlockRef{Hash: b.Hash, Height: b.Height, Time: b.Time}
}

// NodeTx is a transaction with resolved previous outputs.
type NodeTx struct {
	TxID     string
	Size     int32
	VSize    int32
	Version  int32
	LockTime uint32
	Inputs   []NodeTxIn
	Outputs  []NodeTxOut
}

// IsCoinbase reports whether the first input is a coinbase input.
func (t NodeTx) IsCoinbase() bool {
	return len(t.Inputs) > 0 && t.Inputs[0].IsCoinbase()
}

// NodeTxIn is a transaction input. PrevAddress and PrevValue describe the spent output.
type NodeTxIn struct {
	Coinbase    string
	TxID        string
	Vout        uint32
	Sequence    uint32
	PrevAddress string
	PrevValue   int64
	HasPrevOut  bool
}

// IsCoinbase reports whether the input creates new coins.
func (in NodeTxIn) IsCoinbase() bool {
	return in.TxID == ""
}

// NodeTxOut is a transaction output.
type NodeTxOut struct {
	N           uint32
	Address     string
	Value       int64
	VoteFor     string
	VoteAgainst string
}
