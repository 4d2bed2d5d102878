package syncer

import (
	"time"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/emission"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
)

// Status is a point-in-time view of an Engine for health and status endpoints.
type Status struct {
	Coin        model.Coin
	Network     model.Network
	Tip         model.Tip
	MempoolSize int
	LastSync    time.Time
	LastError   string
	// Emission is set for PKT once a block is committed.
	Emission *emission.Info
}

// Healthy reports whether the last sync cycle succeeded.
func (s Status) Healthy() bool {
	return !s.LastSync.IsZero() && s.LastError == ""
}

// Status returns the latest published status. It never waits for the state lock.
func (e *Engine) Status() Status {
	return *e.status.Load()
}

// publish snapshots st; callers hold the state lock.
func (e *Engine) publish(st *State) {
	s := &Status{
		Coin:        e.cfg.Coin,
		Network:     e.cfg.Network,
		Tip:         st.Tip,
		MempoolSize: len(st.Mempool),
		LastSync:    st.lastSync,
	}
	if st.lastErr != nil {
		s.LastError = st.lastErr.Error()
	}
	if e.cfg.Coin == model.PKT && !st.Tip.IsEmpty() {
		info := emission.PKT(st.Tip.Height)
		s.Emission = &info
	}
	e.metrics.SetTip(st.Tip.Height)
	e.status.Store(s)
}
