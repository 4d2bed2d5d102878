package model

// ChainState is the commit state of a ChainEntry.
type ChainState string

var (
	// ChainUncommitted marks a block whose coin deltas may be partially applied.
	ChainUncommitted ChainState = "uncommitted"
	// ChainComplete marks a block whose coin deltas are fully applied.
	ChainComplete ChainState = "complete"
	// ChainReverted marks a block removed from the local chain by a rollback.
	ChainReverted ChainState = "reverted"
)

// ChainEntry is one version of the local commit state of a (height, hash) pair.
type ChainEntry struct {
	Height       int64
	Hash         string
	State        ChainState
	InsertedAtMs uint64
}

// Tip is the highest block the store considers part of the active chain.
// Height is -1 when nothing has been committed yet.
type Tip struct {
	Height int64
	Hash   string
	State  ChainState
}

// EmptyTip is the tip of a store holding no blocks.
var EmptyTip = Tip{Height: -1}

// IsEmpty reports whether no block has been committed.
func (t Tip) IsEmpty() bool {
	return t.Height < 0
}
