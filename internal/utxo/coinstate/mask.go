package coinstate

import (
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/model"
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/schema"
)

type stateMasks struct {
	add uint64
	sub uint64
}

// masks[s] has bit (to<<StateBits | from) set in add when to == s and in sub when from == s.
// A transition from a state to itself sets both and nets to zero.
var masks = buildMasks()

func buildMasks() [model.NumCoinStates]stateMasks {
	var out [model.NumCoinStates]stateMasks
	for from := model.CoinState(0); from < model.NumCoinStates; from++ {
		for to := model.CoinState(0); to < model.NumCoinStates; to++ {
			bit := uint64(1) << uint(NewTransition(from, to))
			out[to].add |= bit
			out[from].sub |= bit
		}
	}
	return out
}

// Aggregate is a named union of states. Its delta for a transition is +1 when the output enters the
// union, -1 when it leaves and 0 otherwise.
type Aggregate struct {
	name string
	add  uint64
	sub  uint64
}

// NewAggregate builds the masks of a union of states.
func NewAggregate(name string, states ...model.CoinState) Aggregate {
	a := Aggregate{name: name}
	for _, s := range states {
		a.add |= masks[s].add
		a.sub |= masks[s].sub
	}
	return a
}

var (
	Unconfirmed = NewAggregate("unconfirmed", model.StateMempool)
	Received    = NewAggregate("received", model.StateBlock, model.StateSpending, model.StateSpent, model.StateBurned)
	Balance     = NewAggregate("balance", model.StateBlock)
	Spending    = NewAggregate("spending", model.StateSpending)
	Spent       = NewAggregate("spent", model.StateSpent)
	Burned      = NewAggregate("burned", model.StateBurned)
	SpentCount  = NewAggregate("spentcount", model.StateSpent, model.StateSpending)
	Votes       = NewAggregate("votes", model.StateBlock)
)

// Name returns the aggregate name, which is also its column name in derived tables.
func (a Aggregate) Name() string { return a.name }

// AddMask returns the transitions entering the union.
func (a Aggregate) AddMask() uint64 { return a.add }

// SubMask returns the transitions leaving the union.
func (a Aggregate) SubMask() uint64 { return a.sub }

// Delta returns the change of the aggregate caused by t.
func (a Aggregate) Delta(t Transition) int64 {
	bit := uint64(1) << uint(t)
	var d int64
	if a.add&bit != 0 {
		d++
	}
	if a.sub&bit != 0 {
		d--
	}
	return d
}

// Clause renders Delta as a ClickHouse expression over an encoded transition column.
func (a Aggregate) Clause(stateTr schema.Expr) schema.Expr {
	bit := schema.Call("bitShiftLeft", schema.Call("toUInt64", schema.Int(1)), stateTr)
	return schema.Binary(
		schema.Binary(schema.Call("bitAnd", bit, schema.Hex(a.add)), "!=", schema.Int(0)),
		"-",
		schema.Binary(schema.Call("bitAnd", bit, schema.Hex(a.sub)), "!=", schema.Int(0)),
	)
}

// Weighted renders value * Clause, the contribution of one coin version to a summed column.
func (a Aggregate) Weighted(value, stateTr schema.Expr) schema.Expr {
	return schema.Binary(value, "*", a.Clause(stateTr))
}
