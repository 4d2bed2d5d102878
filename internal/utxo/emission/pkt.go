// Package emission implements the PKT block reward schedule.
package emission

import (
	"math/big"
)

const (
	// PKTBlocksPerPeriod is the number of blocks between reward reductions.
	PKTBlocksPerPeriod = 144000
	// PKTUnitsPerCoin is the number of atomic units in one PKT.
	PKTUnitsPerCoin = 0x40000000
	// GovernanceShareNum / GovernanceShareDen of each block reward pays the network steward.
	GovernanceShareNum = 51
	GovernanceShareDen = 256
)

var (
	pktMaxUnits     = new(big.Int).SetUint64(6441420151828656000)
	pktFirstReward  = big.NewInt(4166 * PKTUnitsPerCoin)
	nine            = big.NewInt(9)
	ten             = big.NewInt(10)
	blocksPerPeriod = big.NewInt(PKTBlocksPerPeriod)
)

// Info describes the emission state at a height, in atomic units.
type Info struct {
	AlreadyMined *big.Int
	Reward       *big.Int
	Remaining    *big.Int
}

// PKT returns the emission state at height.
func PKT(height int64) Info {
	if height < 0 {
		height = 0
	}
	period := height / PKTBlocksPerPeriod
	blockInPeriod := height - period*PKTBlocksPerPeriod

	mined := new(big.Int)
	for i := int64(0); i < period; i++ {
		mined.Add(mined, new(big.Int).Mul(rewardByPeriod(i), blocksPerPeriod))
	}
	reward := rewardByPeriod(period)
	mined.Add(mined, new(big.Int).Mul(reward, big.NewInt(blockInPeriod)))

	remaining := new(big.Int).Sub(pktMaxUnits, mined)
	remaining.Sub(remaining, reward)

	return Info{AlreadyMined: mined, Reward: reward, Remaining: remaining}
}

// PKTReward returns the block reward at height.
func PKTReward(height int64) int64 {
	if height < 0 {
		height = 0
	}
	return rewardByPeriod(height / PKTBlocksPerPeriod).Int64()
}

// GovernancePayout returns the network steward share of a block reward.
func GovernancePayout(reward int64) int64 {
	return reward * GovernanceShareNum / GovernanceShareDen
}

func rewardByPeriod(period int64) *big.Int {
	p := big.NewInt(period)
	a := new(big.Int).Exp(nine, p, nil)
	a.Mul(a, pktFirstReward)
	b := new(big.Int).Exp(ten, p, nil)
	return a.Quo(a, b)
}
