package syncer

import (
	"context"
	"time"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
)

// State is the in-memory sync state of one chain. It is only reachable through Engine.WithLock.
type State struct {
	// Tip is the highest committed block.
	Tip model.Tip
	// Mempool is the set of txids observed in the node mempool and applied to the ledger.
	Mempool map[string]struct{}

	prefetch *future
	lastSync time.Time
	lastErr  error
}

func newState() *State {
	return &State{Tip: model.EmptyTip, Mempool: make(map[string]struct{})}
}

// discardPrefetch cancels any in-flight prefetch.
func (s *State) discardPrefetch() {
	if s.prefetch != nil {
		s.prefetch.cancel()
		s.prefetch = nil
	}
}

// WithLock runs fn with exclusive access to the chain state.
// It waits for the lock until ctx ends.
func (e *Engine) WithLock(ctx context.Context, fn func(*State) error) error {
	select {
	case e.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.lock }()
	return fn(e.state)
}
