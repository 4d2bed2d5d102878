package model

// CoinState is a step of the output lifecycle. The numeric order follows the lifecycle.
type CoinState uint8

const (
	StateNothing CoinState = iota
	StateMempool
	StateBlock
	StateSpending
	StateSpent
	StateBurned
)

// NumCoinStates is the number of tracked lifecycle states.
const NumCoinStates = 6

var coinStateNames = [NumCoinStates]string{"nothing", "mempool", "block", "spending", "spent", "burned"}

func (s CoinState) String() string {
	if int(s) < len(coinStateNames) {
		return coinStateNames[s]
	}
	return "unknown"
}

// CoinbaseClass classifies the transaction that minted an output.
type CoinbaseClass int8

const (
	Ordinary         CoinbaseClass = 0
	Coinbase         CoinbaseClass = 1
	GovernancePayout CoinbaseClass = 2
)
