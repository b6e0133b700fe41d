package apr

import (
	"math/big"

	"github.com/yourorg/auroraswap-apr/internal/model"
)

// EthPerLP returns how much of the priced leg backs one LP token.
// Both values must use the same fixed point scale.
func EthPerLP(reserveBRaw, totalSupplyRaw *big.Int) (float64, error) {
	if totalSupplyRaw == nil || totalSupplyRaw.Sign() == 0 {
		return 0, model.Errorf(model.KindEmptyPool, "eth per lp", "pool has zero total supply")
	}
	if reserveBRaw == nil || reserveBRaw.Sign() < 0 || totalSupplyRaw.Sign() < 0 {
		return 0, model.Errorf(model.KindInvalidEmissionParams, "eth per lp",
			"invalid reserves: reserve=%v supply=%v", reserveBRaw, totalSupplyRaw)
	}

	ratio := new(big.Float).Quo(new(big.Float).SetInt(reserveBRaw), new(big.Float).SetInt(totalSupplyRaw))
	out, _ := ratio.Float64()
	return out, nil
}

// StakedValueUSD values the LP tokens held by the staking contract.
//
// The factor 2 assumes a balanced two-asset constant-product pair where both
// legs hold equal value. It does not hold for weighted or stable pools.
func StakedValueUSD(lpStakedNormalized float64, reserveBRaw, totalSupplyRaw *big.Int, pairedPriceUSD float64) (float64, error) {
	ethPerLP, err := EthPerLP(reserveBRaw, totalSupplyRaw)
	if err != nil {
		return 0, err
	}
	if lpStakedNormalized < 0 || !isFinite(lpStakedNormalized) {
		return 0, model.Errorf(model.KindInvalidEmissionParams, "staked value", "invalid lp balance %v", lpStakedNormalized)
	}
	if pairedPriceUSD < 0 || !isFinite(pairedPriceUSD) {
		return 0, model.Errorf(model.KindInvalidEmissionParams, "staked value", "invalid paired price %v", pairedPriceUSD)
	}

	out := lpStakedNormalized * ethPerLP * 2 * pairedPriceUSD
	if !isFinite(out) {
		return 0, model.Errorf(model.KindInvalidEmissionParams, "staked value",
			"staked value overflows: lp=%v eth_per_lp=%v price=%v", lpStakedNormalized, ethPerLP, pairedPriceUSD)
	}
	return out, nil
}
