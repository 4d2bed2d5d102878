package model

import "time"

// Transaction is the metadata row stored in tbl_tx.
type Transaction struct {
	TxID         string
	Size         int32
	VSize        int32
	Version      int32
	LockTime     uint32
	InputCount   int32
	OutputCount  int32
	Value        int64
	Coinbase     string
	FirstSeen    time.Time
	InsertedAtMs uint64
}
