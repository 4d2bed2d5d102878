// Package metrics holds the Prometheus collectors of the syncer, its ClickHouse store and node client.
package metrics

import "github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"

const namespace = "chainstate"

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func chainLabels(coin model.Coin, network model.Network) (string, string) {
	if coin == "" {
		coin = "unknown"
	}
	if network == "" {
		network = "unknown"
	}
	return string(coin), string(network)
}
