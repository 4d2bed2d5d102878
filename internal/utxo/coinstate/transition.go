// Package coinstate encodes output lifecycle transitions and the aggregate masks derived from them.
//
// A transition is stored in a single Int8 column: the previous state in the low StateBits bits and the
// current state in the bits above. Aggregates (balance, received, ...) are computed from a transition
// with a pair of 64-bit masks indexed by the encoded transition, both in Go and in ClickHouse.
package coinstate

import (
	"fmt"

	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/schema"
)

// StateBits is the width of one state inside an encoded transition.
const StateBits = 3

// CurrentMask selects the current state bits of an encoded transition.
const CurrentMask = (1<<StateBits - 1) << StateBits

// Transition is an encoded (from, to) state pair.
type Transition int8

// NewTransition encodes a move from one state to another.
func NewTransition(from, to model.CoinState) Transition {
	return Transition(int8(to)<<StateBits | int8(from))
}

// Entering encodes a move into to with the previous state left for the store to fill in.
func Entering(to model.CoinState) Transition {
	return NewTransition(model.StateNothing, to)
}

// From returns the state moved out of.
func (t Transition) From() model.CoinState {
	return model.CoinState(uint8(t) & (1<<StateBits - 1))
}

// To returns the state moved into.
func (t Transition) To() model.CoinState {
	return model.CoinState(uint8(t) >> StateBits)
}

func (t Transition) String() string {
	return fmt.Sprintf("%s->%s", t.From(), t.To())
}

// MaskedFromNothing rewrites a stored transition as if the output had come from nothing.
// Used when rebuilding aggregates from the latest version of each output.
func MaskedFromNothing(stateTr schema.Expr) schema.Expr {
	return schema.Call("bitAnd", stateTr, schema.Hex(CurrentMask))
}
