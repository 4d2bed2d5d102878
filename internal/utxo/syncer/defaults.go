package syncer

import "time"

const (
	defaultMaxTxIO         = 100_000
	defaultMaxBlocks       = 5_000
	defaultMaxBytes        = 256 << 20
	defaultSyncInterval    = 5 * time.Second
	defaultMempoolInterval = time.Second
	defaultRepairInterval  = 5 * time.Minute
	defaultRepairLimit     = 100
	defaultMempoolWorkers  = 8
	// PKT governance payouts unspent for this many blocks are burned.
	defaultBurnAge = 129_600
)
