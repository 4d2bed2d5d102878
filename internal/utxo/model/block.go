// Package model defines domain models for chain state ingestion.
package model

import "time"

// Block is a block header row as stored in tbl_blk.
type Block struct {
	Hash                string
	Height              int64
	Version             int32
	Size                int64
	MerkleRoot          string
	Time                time.Time
	Nonce               uint32
	Bits                uint32
	Difficulty          float64
	PreviousBlockHash   string
	TransactionCount    int
	PcAnnCount          int64
	PcAnnDifficulty     float64
	PcBlkDifficulty     float64
	PcVersion           int8
	NetworkSteward      string
	BlocksUntilRetarget int32
	RetargetEstimate    float64
	InsertedAtMs        uint64
}

// BlockTx records that a transaction is included in a block.
type BlockTx struct {
	BlockHash    string
	TxID         string
	InsertedAtMs uint64
}

// BlockRef locates a confirmed transaction.
type BlockRef struct {
	Hash   string
	Height int64
	Time   time.Time
}
