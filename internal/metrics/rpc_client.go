package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
)

var (
	nodeRPCRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "node_rpc",
		Name:      "requests_total",
		Help:      "Count of node JSON-RPC requests by method.",
	}, []string{"method", "coin", "network", "status"})
	nodeRPCRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "node_rpc",
		Name:      "request_duration_seconds",
		Help:      "Duration of node JSON-RPC requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "coin", "network", "status"})
)

// RPCClient tracks JSON-RPC requests to one chain's node.
type RPCClient struct {
	coin    string
	network string
}

// NewRPCClient constructs a metrics collector for node requests.
func NewRPCClient(coin model.Coin, network model.Network) *RPCClient {
	c, n := chainLabels(coin, network)
	return &RPCClient{coin: c, network: n}
}

// Observe records a single request outcome and duration.
func (m RPCClient) Observe(method string, err error, started time.Time) {
	s := status(err)
	nodeRPCRequestsTotal.WithLabelValues(method, m.coin, m.network, s).Inc()
	nodeRPCRequestDuration.WithLabelValues(method, m.coin, m.network, s).Observe(time.Since(started).Seconds())
}
