package coinstate

import (
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/mergeupdate"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/schema"
)

func currentExpr(stateTr schema.Expr) schema.Expr {
	return schema.Call("bitShiftRight", stateTr, schema.Int(StateBits))
}

// StateTransition moves the stored current state into the previous state bits of the staged
// transition, which carries only the new state.
func StateTransition(existing, incoming schema.Expr) schema.Expr {
	return schema.Binary(currentExpr(existing), "+", incoming)
}

// NoRegress behaves like StateTransition unless the stored state is already at or past the staged
// one, in which case the output keeps its state with a self transition.
func NoRegress(existing, incoming schema.Expr) schema.Expr {
	cur := currentExpr(existing)
	return schema.Call("if",
		schema.Binary(cur, ">=", currentExpr(incoming)),
		schema.Binary(cur, "*", schema.Int(1<<StateBits+1)),
		schema.Binary(cur, "+", incoming),
	)
}

// FirstSeen keeps the stored time once set.
func FirstSeen(existing, incoming schema.Expr) schema.Expr {
	return schema.Call("if",
		schema.Binary(schema.Call("toUnixTimestamp", existing), ">", schema.Int(0)),
		existing,
		incoming,
	)
}

// Combiner merges coin deltas into the coins table.
func Combiner() mergeupdate.Combiner {
	return mergeupdate.Combiner{
		"stateTr":  StateTransition,
		"seenTime": FirstSeen,
	}
}

// NoRegressCombiner merges coin deltas that may arrive after the output moved on.
func NoRegressCombiner() mergeupdate.Combiner {
	return mergeupdate.Combiner{
		"stateTr":  NoRegress,
		"seenTime": FirstSeen,
	}
}
