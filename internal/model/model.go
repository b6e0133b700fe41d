// Package model defines the core data structures for the APR service.
package model

import (
	"math/big"
	"time"
)

// BlockSample is a block height paired with its header timestamp (unix seconds).
type BlockSample struct {
	Number    uint64 `json:"number"`
	Timestamp uint64 `json:"timestamp"`
}

// PoolAllocation holds the staking contract's allocation points for one pool
// and the total across all pools.
type PoolAllocation struct {
	AllocPoint      *big.Int
	TotalAllocPoint *big.Int
}

// EmissionParams describes how much reward the target pool receives per block.
type EmissionParams struct {
	// RewardPerBlock is the raw 18-decimal fixed point emission of the staking contract
	RewardPerBlock *big.Int

	// RewardPriceUSD is the spot price of the reward token
	RewardPriceUSD float64

	// RewardPercent is the pool's share of the emission, in [0,1]
	RewardPercent float64

	// Allocation is kept for diagnostics
	Allocation PoolAllocation
}

// PoolState is the LP-side state needed to value the staked position.
type PoolState struct {
	// LPToken is the pair contract address taken from the staking contract's pool info
	LPToken string

	// LPStaked is the raw LP balance held by the staking contract
	LPStaked *big.Int

	// ReserveB is the raw reserve of the priced leg of the pair
	ReserveB *big.Int

	// TotalSupply is the raw LP total supply, same scale as ReserveB
	TotalSupply *big.Int

	// PairedPriceUSD is the spot price of the priced leg
	PairedPriceUSD float64
}

// APRResult is the response body of the APR endpoint.
type APRResult struct {
	APR     float64 `json:"APR"`
	APRVfat float64 `json:"APR_vfat"`
}

// Breakdown carries every intermediate figure of one pipeline run.
type Breakdown struct {
	PoolID              int64       `json:"pool_id"`
	LPToken             string      `json:"lp_token"`
	CurrentBlock        BlockSample `json:"current_block"`
	SampleBlock         BlockSample `json:"sample_block"`
	BlocksPerDay        float64     `json:"blocks_per_day"`
	AvgBlockTimeSeconds float64     `json:"avg_block_time_seconds"`
	AllocPoint          string      `json:"alloc_point"`
	TotalAllocPoint     string      `json:"total_alloc_point"`
	RewardPercent       float64     `json:"reward_percent"`
	RewardPerBlock      string      `json:"reward_per_block"`
	RewardPriceUSD      float64     `json:"reward_price_usd"`
	PairedPriceUSD      float64     `json:"paired_price_usd"`
	RewardsPerYear      float64     `json:"rewards_per_year_usd"`
	RewardsPerYearVfat  float64     `json:"rewards_per_year_vfat_usd"`
	LPStaked            float64     `json:"lp_staked"`
	EthPerLP            float64     `json:"eth_per_lp"`
	StakedUSD           float64     `json:"staked_usd"`
	Result              APRResult   `json:"result"`
	CollectedAt         int64       `json:"collected_at"`
}

// NewBreakdown creates a breakdown stamped with the current time
func NewBreakdown(poolID int64) Breakdown {
	return Breakdown{
		PoolID:      poolID,
		CollectedAt: time.Now().Unix(),
	}
}
