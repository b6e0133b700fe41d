// Package apr implements the pure calculators behind the APR figure:
// block rate estimation, reward projection, staked value and the final ratio.
//
// Every function here is side-effect free. Preconditions are checked locally
// and violations are returned as tagged *model.Error values.
package apr

import (
	"math"

	"github.com/yourorg/auroraswap-apr/internal/model"
)

// Percent returns yearlyRewardUSD / stakedValueUSD * 100.
//
// The result is not clamped; negative or very large values are passed through.
func Percent(yearlyRewardUSD, stakedValueUSD float64) (float64, error) {
	if !isFinite(yearlyRewardUSD) || !isFinite(stakedValueUSD) {
		return 0, model.Errorf(model.KindInvalidEmissionParams, "apr",
			"non-finite input: reward=%v staked=%v", yearlyRewardUSD, stakedValueUSD)
	}
	if stakedValueUSD == 0 {
		return 0, model.Errorf(model.KindDivisionByZero, "apr", "staked value is zero")
	}

	out := yearlyRewardUSD / stakedValueUSD * 100
	if !isFinite(out) {
		return 0, model.Errorf(model.KindInvalidEmissionParams, "apr",
			"apr overflows: reward=%v staked=%v", yearlyRewardUSD, stakedValueUSD)
	}
	return out, nil
}

// Result computes both APR figures against the same staked value.
func Result(rewardsPerYear, rewardsPerYearVfat, stakedValueUSD float64) (model.APRResult, error) {
	aprValue, err := Percent(rewardsPerYear, stakedValueUSD)
	if err != nil {
		return model.APRResult{}, err
	}
	aprVfat, err := Percent(rewardsPerYearVfat, stakedValueUSD)
	if err != nil {
		return model.APRResult{}, err
	}
	return model.APRResult{APR: aprValue, APRVfat: aprVfat}, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
