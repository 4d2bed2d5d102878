package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
)

var (
	syncerCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "cycles_total",
		Help:      "Count of sync cycles.",
	}, []string{"coin", "network", "status"})

	syncerCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of sync cycles.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"coin", "network", "status"})

	syncerCommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "commits_total",
		Help:      "Count of block batch commits.",
	}, []string{"coin", "network", "status"})

	syncerCommitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "commit_duration_seconds",
		Help:      "Duration of block batch commits.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"coin", "network", "status"})

	syncerCommittedBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "committed_blocks_total",
		Help:      "Count of blocks committed to the ledger.",
	}, []string{"coin", "network"})

	syncerBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "batch_size_blocks",
		Help:      "Number of blocks per committed batch.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 13),
	}, []string{"coin", "network"})

	syncerRolledBackBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "rolled_back_blocks_total",
		Help:      "Count of blocks reverted by rollbacks.",
	}, []string{"coin", "network"})

	syncerMempoolTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "mempool_cycles_total",
		Help:      "Count of mempool cycles.",
	}, []string{"coin", "network", "status"})

	syncerMempoolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "mempool_cycle_duration_seconds",
		Help:      "Duration of mempool cycles.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"coin", "network", "status"})

	syncerMempoolAdded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "mempool_transactions_total",
		Help:      "Count of mempool transactions applied to the ledger.",
	}, []string{"coin", "network"})

	syncerBurnedCoins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "burned_coins_total",
		Help:      "Count of governance payouts moved to burned.",
	}, []string{"coin", "network"})

	syncerRepairTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "repairs_total",
		Help:      "Count of repair passes.",
	}, []string{"coin", "network", "status"})

	syncerRepairedHeights = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "repaired_heights_total",
		Help:      "Count of heights re-applied by repair.",
	}, []string{"coin", "network"})

	syncerRepairDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "repair_duration_seconds",
		Help:      "Duration of repair passes.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"coin", "network", "status"})

	syncerTipHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "tip_height",
		Help:      "Height of the committed tip, -1 when empty.",
	}, []string{"coin", "network"})
)

// Syncer tracks the sync engine of one chain.
type Syncer struct {
	coin    string
	network string
}

// NewSyncer constructs a Syncer collector.
func NewSyncer(coin model.Coin, network model.Network) *Syncer {
	c, n := chainLabels(coin, network)
	return &Syncer{coin: c, network: n}
}

// ObserveCycle records a sync cycle outcome and duration.
func (m Syncer) ObserveCycle(err error, started time.Time) {
	s := status(err)
	syncerCyclesTotal.WithLabelValues(m.coin, m.network, s).Inc()
	syncerCycleDuration.WithLabelValues(m.coin, m.network, s).Observe(time.Since(started).Seconds())
}

// ObserveCommit records a batch commit; blocks are counted only when it succeeded.
func (m Syncer) ObserveCommit(err error, blocks int, started time.Time) {
	s := status(err)
	syncerCommitsTotal.WithLabelValues(m.coin, m.network, s).Inc()
	syncerCommitDuration.WithLabelValues(m.coin, m.network, s).Observe(time.Since(started).Seconds())
	if err == nil {
		syncerCommittedBlocks.WithLabelValues(m.coin, m.network).Add(float64(blocks))
		syncerBatchSize.WithLabelValues(m.coin, m.network).Observe(float64(blocks))
	}
}

// ObserveRollback records the number of reverted blocks.
func (m Syncer) ObserveRollback(blocks int) {
	syncerRolledBackBlocks.WithLabelValues(m.coin, m.network).Add(float64(blocks))
}

// ObserveMempool records a mempool cycle.
func (m Syncer) ObserveMempool(err error, added int, started time.Time) {
	s := status(err)
	syncerMempoolTotal.WithLabelValues(m.coin, m.network, s).Inc()
	syncerMempoolDuration.WithLabelValues(m.coin, m.network, s).Observe(time.Since(started).Seconds())
	syncerMempoolAdded.WithLabelValues(m.coin, m.network).Add(float64(added))
}

// ObserveBurn records burned governance payouts.
func (m Syncer) ObserveBurn(coins int) {
	syncerBurnedCoins.WithLabelValues(m.coin, m.network).Add(float64(coins))
}

// ObserveRepair records a repair pass.
func (m Syncer) ObserveRepair(err error, heights int, started time.Time) {
	s := status(err)
	syncerRepairTotal.WithLabelValues(m.coin, m.network, s).Inc()
	syncerRepairDuration.WithLabelValues(m.coin, m.network, s).Observe(time.Since(started).Seconds())
	syncerRepairedHeights.WithLabelValues(m.coin, m.network).Add(float64(heights))
}

// SetTip publishes the committed tip height.
func (m Syncer) SetTip(height int64) {
	syncerTipHeight.WithLabelValues(m.coin, m.network).Set(float64(height))
}
