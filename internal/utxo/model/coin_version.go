package model

import "time"

// CoinKey identifies an output in the coins ledger.
type CoinKey struct {
	Address   string
	MintTxid  string
	MintIndex int32
}

// CoinVersion is one version of an output lifecycle as stored in coins.
// The version with the greatest InsertedAtMs is authoritative for its key.
type CoinVersion struct {
	CoinKey
	StateTr        int8
	InsertedAtMs   uint64
	Value          int64
	Coinbase       CoinbaseClass
	VoteFor        string
	VoteAgainst    string
	SeenTime       time.Time
	MintBlockHash  string
	MintHeight     int32
	MintTime       time.Time
	SpentTxid      string
	SpentTxinNum   int32
	SpentBlockHash string
	SpentHeight    int32
	SpentTime      time.Time
	SpentSequence  uint32
}

// CurrentState decodes the state the version transitioned to.
func (c CoinVersion) CurrentState() CoinState {
	return CoinState(uint8(c.StateTr) >> 3)
}

// PrevState decodes the state the version transitioned from.
func (c CoinVersion) PrevState() CoinState {
	return CoinState(uint8(c.StateTr) & 0x07)
}

// CoinMint moves an output into the mempool (Block nil) or into a block.
type CoinMint struct {
	CoinKey
	InsertedAtMs uint64
	Value        int64
	Coinbase     CoinbaseClass
	VoteFor      string
	VoteAgainst  string
	SeenTime     time.Time
	Block        *BlockRef
}

// State returns the lifecycle state the mint moves the output to.
func (m CoinMint) State() CoinState {
	if m.Block == nil {
		return StateMempool
	}
	return StateBlock
}

// CoinSpend marks an output as spent by a mempool (Block nil) or confirmed transaction.
type CoinSpend struct {
	CoinKey
	InsertedAtMs  uint64
	Value         int64
	SpentTxid     string
	SpentTxinNum  int32
	SpentSequence uint32
	Block         *BlockRef
}

// State returns the lifecycle state the spend moves the output to.
func (s CoinSpend) State() CoinState {
	if s.Block == nil {
		return StateSpending
	}
	return StateSpent
}

// CoinRevert returns an output to an earlier state after its block was reverted.
type CoinRevert struct {
	CoinKey
	Value        int64
	InsertedAtMs uint64
}
