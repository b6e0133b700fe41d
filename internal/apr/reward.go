package apr

import (
	"math/big"

	"github.com/yourorg/auroraswap-apr/internal/model"
)

const (
	// DaysPerYear used by both reward models
	DaysPerYear = 365

	// VfatBlockInterval is the fixed block time assumed by the vfat.tools model
	VfatBlockInterval = 1.1

	// VfatBlocksPerDay is the constant rate of the fixed-rate model
	VfatBlocksPerDay = SecondsPerDay / VfatBlockInterval
)

var weiPerToken = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// NormalizeWei converts an 18-decimal fixed point integer to a float.
func NormalizeWei(raw *big.Int) float64 {
	if raw == nil {
		return 0
	}
	f := new(big.Float).SetInt(raw)
	f.Quo(f, weiPerToken)
	out, _ := f.Float64()
	return out
}

// RewardPercent returns alloc/total for a pool and validates it lies in [0,1].
func RewardPercent(alloc model.PoolAllocation) (float64, error) {
	if alloc.AllocPoint == nil || alloc.TotalAllocPoint == nil {
		return 0, model.Errorf(model.KindInvalidEmissionParams, "reward percent", "missing allocation points")
	}
	if alloc.AllocPoint.Sign() < 0 || alloc.TotalAllocPoint.Sign() <= 0 {
		return 0, model.Errorf(model.KindInvalidEmissionParams, "reward percent",
			"invalid allocation: alloc=%s total=%s", alloc.AllocPoint, alloc.TotalAllocPoint)
	}
	if alloc.AllocPoint.Cmp(alloc.TotalAllocPoint) > 0 {
		return 0, model.Errorf(model.KindInvalidEmissionParams, "reward percent",
			"pool alloc %s exceeds total %s", alloc.AllocPoint, alloc.TotalAllocPoint)
	}

	ratio := new(big.Float).Quo(new(big.Float).SetInt(alloc.AllocPoint), new(big.Float).SetInt(alloc.TotalAllocPoint))
	percent, _ := ratio.Float64()
	return percent, nil
}

// ChainRateReward projects the pool's yearly reward in USD using the measured block rate.
//
// rewardPercent must already be validated by RewardPercent.
func ChainRateReward(coinsPerBlockRaw *big.Int, tokenPriceUSD, rewardPercent, blocksPerDay float64) (float64, error) {
	if blocksPerDay <= 0 || !isFinite(blocksPerDay) {
		return 0, model.Errorf(model.KindInvalidEmissionParams, "chain rate reward",
			"blocks per day must be positive, got %v", blocksPerDay)
	}
	return yearlyReward("chain rate reward", coinsPerBlockRaw, tokenPriceUSD, rewardPercent, blocksPerDay)
}

// FixedRateReward projects the yearly reward with a constant 1.1s block interval.
// It is an alternate figure for comparison with third-party dashboards.
func FixedRateReward(coinsPerBlockRaw *big.Int, tokenPriceUSD, rewardPercent float64) (float64, error) {
	return yearlyReward("fixed rate reward", coinsPerBlockRaw, tokenPriceUSD, rewardPercent, VfatBlocksPerDay)
}

func yearlyReward(op string, coinsPerBlockRaw *big.Int, tokenPriceUSD, rewardPercent, blocksPerDay float64) (float64, error) {
	if coinsPerBlockRaw == nil || coinsPerBlockRaw.Sign() < 0 {
		return 0, model.Errorf(model.KindInvalidEmissionParams, op, "coins per block must be non-negative, got %v", coinsPerBlockRaw)
	}
	if tokenPriceUSD < 0 || !isFinite(tokenPriceUSD) {
		return 0, model.Errorf(model.KindInvalidEmissionParams, op, "invalid token price %v", tokenPriceUSD)
	}
	if coinsPerBlockRaw.Sign() == 0 {
		return 0, nil
	}

	coinsPerBlock := NormalizeWei(coinsPerBlockRaw)
	return coinsPerBlock * tokenPriceUSD * rewardPercent * blocksPerDay * DaysPerYear, nil
}
