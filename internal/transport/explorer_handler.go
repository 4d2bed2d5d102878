// Package transport exposes the syncer status over gRPC and HTTP.
package transport

import (
	"context"
	"fmt"

	blockinsight7000v1 "github.com/goodnatureofminers/blockinsight7000-proto/pkg/blockinsight7000/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/syncer"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type StatusSource interface {
	Status() syncer.Status
}

// ExplorerHandler implements ExplorerServiceServer.
type ExplorerHandler struct {
	blockinsight7000v1.UnimplementedExplorerServiceServer
	source StatusSource
}

// NewExplorerHandler returns an ExplorerHandler reporting the health of source.
func NewExplorerHandler(source StatusSource) blockinsight7000v1.ExplorerServiceServer {
	return &ExplorerHandler{source: source}
}

// Health reports healthy while the last sync cycle succeeded and Unavailable otherwise.
func (h *ExplorerHandler) Health(_ context.Context, _ *blockinsight7000v1.HealthRequest) (*blockinsight7000v1.HealthResponse, error) {
	s := h.source.Status()
	if !s.Healthy() {
		return nil, status.Error(codes.Unavailable, describe(s))
	}
	return &blockinsight7000v1.HealthResponse{
		Status:      blockinsight7000v1.HealthStatus_HEALTH_STATUS_HEALTHY,
		Description: describe(s),
	}, nil
}

func describe(s syncer.Status) string {
	switch {
	case s.LastSync.IsZero():
		return fmt.Sprintf("%s %s: not synced yet", s.Coin, s.Network)
	case s.LastError != "":
		return fmt.Sprintf("%s %s at height %d: %s", s.Coin, s.Network, s.Tip.Height, s.LastError)
	default:
		return fmt.Sprintf("%s %s at height %d", s.Coin, s.Network, s.Tip.Height)
	}
}
