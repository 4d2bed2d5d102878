package transport

import (
	"encoding/json"
	"net/http"
	"time"

	gwruntime "github.com/grpc-ecosystem/grpc-gateway/v2/runtime"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/syncer"
)

// StatusPath is the REST path of the status document.
const StatusPath = "/v1/status"

type tipView struct {
	Height int64  `json:"height"`
	Hash   string `json:"hash,omitempty"`
	State  string `json:"state,omitempty"`
}

type emissionView struct {
	AlreadyMined string `json:"already_mined"`
	Reward       string `json:"reward"`
	Remaining    string `json:"remaining"`
}

// StatusView is the JSON form of syncer.Status. Emission amounts are decimal strings of atomic units.
type StatusView struct {
	Coin        string        `json:"coin"`
	Network     string        `json:"network"`
	Healthy     bool          `json:"healthy"`
	Tip         tipView       `json:"tip"`
	MempoolSize int           `json:"mempool_size"`
	LastSync    *time.Time    `json:"last_sync,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	Emission    *emissionView `json:"emission,omitempty"`
}

// NewStatusView converts a status snapshot.
func NewStatusView(s syncer.Status) StatusView {
	v := StatusView{
		Coin:        string(s.Coin),
		Network:     string(s.Network),
		Healthy:     s.Healthy(),
		Tip:         tipView{Height: s.Tip.Height, Hash: s.Tip.Hash, State: string(s.Tip.State)},
		MempoolSize: s.MempoolSize,
		LastError:   s.LastError,
	}
	if !s.LastSync.IsZero() {
		last := s.LastSync.UTC()
		v.LastSync = &last
	}
	if e := s.Emission; e != nil {
		v.Emission = &emissionView{
			AlreadyMined: e.AlreadyMined.String(),
			Reward:       e.Reward.String(),
			Remaining:    e.Remaining.String(),
		}
	}
	return v
}

// RegisterStatus serves GET StatusPath on mux.
func RegisterStatus(mux *gwruntime.ServeMux, source StatusSource) error {
	return mux.HandlePath(http.MethodGet, StatusPath, func(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
		view := NewStatusView(source.Status())
		w.Header().Set("Content-Type", "application/json")
		if !view.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(view)
	})
}
